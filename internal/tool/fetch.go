package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

const fetchDescription = `Fetches content from an allow-listed URL.

Usage:
- The URL must start with http:// or https:// and its domain must be on the
  outbound allow-list
- Use format "markdown" for readable content, "text" for plain text,
  "html" for raw HTML`

const (
	maxFetchBytes     = 5 * 1024 * 1024
	defaultFetchLimit = 30 * time.Second
)

// FetchTool fetches web content. Authorization of the requested URL happens
// before Execute is called; redirect targets are re-checked per hop through
// the redirect policy, since a cleared URL can redirect anywhere.
type FetchTool struct {
	client *http.Client
	check  func(url string) error
}

// FetchInput is the input for the fetch_url tool.
type FetchInput struct {
	URL    string `json:"url"`
	Format string `json:"format"`
}

// NewFetchTool creates a fetch_url tool.
func NewFetchTool() *FetchTool {
	return &FetchTool{client: &http.Client{Timeout: defaultFetchLimit}}
}

// NewFetchToolWithClient creates a fetch_url tool using the given client.
func NewFetchToolWithClient(client *http.Client) *FetchTool {
	return &FetchTool{client: client}
}

// SetRedirectPolicy installs a check applied to every redirect target before
// the client follows it. A non-nil error from the check aborts the request.
func (t *FetchTool) SetRedirectPolicy(check func(url string) error) {
	t.check = check
	t.client.CheckRedirect = t.checkRedirect
}

func (t *FetchTool) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	if t.check != nil {
		if err := t.check(req.URL.String()); err != nil {
			return fmt.Errorf("redirect to %s blocked: %w", req.URL, err)
		}
	}
	return nil
}

func (t *FetchTool) ID() string          { return "fetch_url" }
func (t *FetchTool) Description() string { return fetchDescription }

func (t *FetchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {
				"type": "string",
				"description": "The URL to fetch content from"
			},
			"format": {
				"type": "string",
				"enum": ["text", "markdown", "html"],
				"description": "The format to return the content in"
			}
		},
		"required": ["url", "format"]
	}`)
}

// ResolveURL reports the URL the call will fetch.
func (t *FetchTool) ResolveURL(input json.RawMessage) string {
	var params FetchInput
	if err := json.Unmarshal(input, &params); err != nil {
		return ""
	}
	return params.URL
}

func (t *FetchTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params FetchInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	if params.Format != "text" && params.Format != "markdown" && params.Format != "html" {
		return nil, fmt.Errorf("format must be 'text', 'markdown', or 'html'")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, params.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "appforge-agent/1.0")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request failed with status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > maxFetchBytes {
		return nil, fmt.Errorf("response too large (exceeds 5MB limit)")
	}

	content := string(body)
	contentType := resp.Header.Get("Content-Type")

	var output string
	switch params.Format {
	case "markdown":
		if strings.Contains(contentType, "text/html") {
			output, err = htmlToMarkdown(content)
		} else {
			output = content
		}
	case "text":
		if strings.Contains(contentType, "text/html") {
			output, err = htmlToText(content)
		} else {
			output = content
		}
	default:
		output = content
	}
	if err != nil {
		return nil, fmt.Errorf("failed to convert content: %w", err)
	}

	return &Result{
		Title:  fmt.Sprintf("%s (%s)", params.URL, contentType),
		Output: output,
		Metadata: map[string]any{
			"status": resp.StatusCode,
			"bytes":  len(body),
		},
	}, nil
}

// htmlToText strips markup and non-content elements.
func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, iframe").Remove()
	return strings.TrimSpace(doc.Text()), nil
}

// htmlToMarkdown converts HTML to markdown.
func htmlToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		BulletListMarker: "-",
		CodeBlockStyle:   "fenced",
	})
	converter.Remove("script", "style", "meta", "link")
	return converter.ConvertString(html)
}
