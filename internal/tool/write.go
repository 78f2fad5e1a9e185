package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/afero"
)

const writeDescription = `Writes a file in the project workspace, creating it
if needed. Parent directories are created automatically.`

// WriteTool writes workspace files.
type WriteTool struct {
	fs afero.Fs
}

// WriteInput is the input for the write_file tool.
type WriteInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// NewWriteTool creates a write_file tool over the given workspace filesystem.
func NewWriteTool(fs afero.Fs) *WriteTool {
	return &WriteTool{fs: fs}
}

func (t *WriteTool) ID() string          { return "write_file" }
func (t *WriteTool) Description() string { return writeDescription }

func (t *WriteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "Workspace-relative path of the file to write"
			},
			"content": {
				"type": "string",
				"description": "Full new content of the file"
			}
		},
		"required": ["path", "content"]
	}`)
}

// ResolvePaths reports which paths the call will touch.
func (t *WriteTool) ResolvePaths(input json.RawMessage) []string {
	var params WriteInput
	if err := json.Unmarshal(input, &params); err != nil || params.Path == "" {
		return nil
	}
	return []string{params.Path}
}

func (t *WriteTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params WriteInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Path == "" {
		return nil, fmt.Errorf("path is required")
	}

	old, err := afero.ReadFile(t.fs, params.Path)
	created := err != nil && os.IsNotExist(err)
	if err != nil && !created {
		return nil, fmt.Errorf("failed to read existing %s: %w", params.Path, err)
	}

	if dir := filepath.Dir(params.Path); dir != "." {
		if err := t.fs.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directories for %s: %w", params.Path, err)
		}
	}

	if err := afero.WriteFile(t.fs, params.Path, []byte(params.Content), 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", params.Path, err)
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(string(old), params.Content, false)
	added, removed := diffStats(diffs)

	verb := "Updated"
	if created {
		verb = "Created"
	}

	return &Result{
		Title:  fmt.Sprintf("%s %s", verb, params.Path),
		Output: fmt.Sprintf("%s %s (+%d/-%d characters)", verb, params.Path, added, removed),
		Metadata: map[string]any{
			"files":   []string{params.Path},
			"created": created,
			"added":   added,
			"removed": removed,
		},
	}, nil
}

// diffStats sums inserted and deleted characters.
func diffStats(diffs []diffmatchpatch.Diff) (added, removed int) {
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += len(d.Text)
		case diffmatchpatch.DiffDelete:
			removed += len(d.Text)
		}
	}
	return added, removed
}
