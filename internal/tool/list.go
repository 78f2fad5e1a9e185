package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

const listDescription = `Lists files and directories at a workspace path.
Directories are suffixed with a slash.`

// maxListEntries caps directory listings fed back to the model.
const maxListEntries = 200

// ListTool lists workspace directories.
type ListTool struct {
	fs afero.Fs
}

// ListInput is the input for the list_files tool.
type ListInput struct {
	Path string `json:"path,omitempty"`
}

// NewListTool creates a list_files tool over the given workspace filesystem.
func NewListTool(fs afero.Fs) *ListTool {
	return &ListTool{fs: fs}
}

func (t *ListTool) ID() string          { return "list_files" }
func (t *ListTool) Description() string { return listDescription }

func (t *ListTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "Workspace-relative directory to list (default: workspace root)"
			}
		}
	}`)
}

// ResolvePaths reports which paths the call will touch.
func (t *ListTool) ResolvePaths(input json.RawMessage) []string {
	var params ListInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil
	}
	if params.Path == "" {
		return []string{"."}
	}
	return []string{params.Path}
}

func (t *ListTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params ListInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	dir := params.Path
	if dir == "" {
		dir = "."
	}

	entries, err := afero.ReadDir(t.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	truncated := false
	if len(names) > maxListEntries {
		names = names[:maxListEntries]
		truncated = true
	}

	output := strings.Join(names, "\n")
	if output == "" {
		output = "(empty directory)"
	}
	if truncated {
		output += "\n\n(listing truncated)"
	}

	return &Result{
		Title:  fmt.Sprintf("%d entries in %s", len(names), dir),
		Output: output,
		Metadata: map[string]any{
			"count": len(names),
		},
	}, nil
}
