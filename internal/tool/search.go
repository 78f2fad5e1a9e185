package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

const searchDescription = `Finds workspace files by glob pattern.

Usage:
- Supports patterns like "**/*.ts" or "src/**/*.tsx"
- Returns workspace-relative paths`

// maxSearchResults caps how many matches are fed back to the model.
const maxSearchResults = 100

// SearchTool matches workspace files against glob patterns.
type SearchTool struct {
	fs afero.Fs
}

// SearchInput is the input for the search_files tool.
type SearchInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

// NewSearchTool creates a search_files tool over the given workspace
// filesystem.
func NewSearchTool(fs afero.Fs) *SearchTool {
	return &SearchTool{fs: fs}
}

func (t *SearchTool) ID() string          { return "search_files" }
func (t *SearchTool) Description() string { return searchDescription }

func (t *SearchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "The glob pattern to match files against"
			},
			"path": {
				"type": "string",
				"description": "Subdirectory to search in (default: workspace root)"
			}
		},
		"required": ["pattern"]
	}`)
}

// ResolvePaths reports which paths the call will touch.
func (t *SearchTool) ResolvePaths(input json.RawMessage) []string {
	var params SearchInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil
	}
	if params.Path == "" {
		return []string{"."}
	}
	return []string{params.Path}
}

func (t *SearchTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params SearchInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}
	if !doublestar.ValidatePattern(params.Pattern) {
		return nil, fmt.Errorf("invalid pattern: %s", params.Pattern)
	}

	root := params.Path
	if root == "" {
		root = "."
	}

	var matches []string
	err := afero.Walk(t.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if ok, _ := doublestar.Match(params.Pattern, rel); ok {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	truncated := false
	if len(matches) > maxSearchResults {
		matches = matches[:maxSearchResults]
		truncated = true
	}

	if len(matches) == 0 {
		return &Result{
			Title:    "No matches",
			Output:   "No files matched the pattern",
			Metadata: map[string]any{"pattern": params.Pattern, "count": 0},
		}, nil
	}

	output := strings.Join(matches, "\n")
	if truncated {
		output += fmt.Sprintf("\n\n(showing first %d matches)", maxSearchResults)
	}

	return &Result{
		Title:  fmt.Sprintf("Found %d files", len(matches)),
		Output: output,
		Metadata: map[string]any{
			"pattern": params.Pattern,
			"count":   len(matches),
		},
	}, nil
}
