package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"
)

const readDescription = `Reads a file from the project workspace.

Usage:
- The path is relative to the workspace root
- Output is truncated beyond the size limit`

// maxReadBytes caps how much file content is fed back to the model.
const maxReadBytes = 256 * 1024

// ReadTool reads workspace files.
type ReadTool struct {
	fs afero.Fs
}

// ReadInput is the input for the read_file tool.
type ReadInput struct {
	Path string `json:"path"`
}

// NewReadTool creates a read_file tool over the given workspace filesystem.
func NewReadTool(fs afero.Fs) *ReadTool {
	return &ReadTool{fs: fs}
}

func (t *ReadTool) ID() string          { return "read_file" }
func (t *ReadTool) Description() string { return readDescription }

func (t *ReadTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "Workspace-relative path of the file to read"
			}
		},
		"required": ["path"]
	}`)
}

// ResolvePaths reports which paths the call will touch.
func (t *ReadTool) ResolvePaths(input json.RawMessage) []string {
	var params ReadInput
	if err := json.Unmarshal(input, &params); err != nil || params.Path == "" {
		return nil
	}
	return []string{params.Path}
}

func (t *ReadTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params ReadInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := afero.ReadFile(t.fs, params.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", params.Path, err)
	}

	truncated := false
	if len(data) > maxReadBytes {
		data = data[:maxReadBytes]
		truncated = true
	}

	output := string(data)
	if truncated {
		output += "\n\n(content truncated)"
	}

	return &Result{
		Title:  params.Path,
		Output: output,
		Metadata: map[string]any{
			"bytes":     len(data),
			"truncated": truncated,
		},
	}, nil
}
