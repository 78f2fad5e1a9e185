package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFS(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
	}
	return fs
}

func testCtx() *Context {
	return &Context{SessionID: "s1", MessageID: "m1", CallID: "c1"}
}

func TestReadTool(t *testing.T) {
	fs := testFS(t, map[string]string{"src/app.ts": "export const x = 1\n"})
	rt := NewReadTool(fs)

	res, err := rt.Execute(context.Background(), json.RawMessage(`{"path":"src/app.ts"}`), testCtx())
	require.NoError(t, err)
	assert.Equal(t, "export const x = 1\n", res.Output)
	assert.Equal(t, "src/app.ts", res.Title)
}

func TestReadTool_Missing(t *testing.T) {
	rt := NewReadTool(afero.NewMemMapFs())

	_, err := rt.Execute(context.Background(), json.RawMessage(`{"path":"nope.ts"}`), testCtx())
	assert.Error(t, err)
}

func TestReadTool_ResolvePaths(t *testing.T) {
	rt := NewReadTool(afero.NewMemMapFs())

	assert.Equal(t, []string{"a/b.ts"}, rt.ResolvePaths(json.RawMessage(`{"path":"a/b.ts"}`)))
	assert.Nil(t, rt.ResolvePaths(json.RawMessage(`{}`)))
	assert.Nil(t, rt.ResolvePaths(json.RawMessage(`not json`)))
}

func TestWriteTool_CreateAndUpdate(t *testing.T) {
	fs := afero.NewMemMapFs()
	wt := NewWriteTool(fs)

	res, err := wt.Execute(context.Background(), json.RawMessage(`{"path":"src/new.ts","content":"hello"}`), testCtx())
	require.NoError(t, err)
	assert.Contains(t, res.Title, "Created")
	assert.Equal(t, []string{"src/new.ts"}, res.Metadata["files"])
	assert.Equal(t, true, res.Metadata["created"])

	data, err := afero.ReadFile(fs, "src/new.ts")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	res, err = wt.Execute(context.Background(), json.RawMessage(`{"path":"src/new.ts","content":"hello world"}`), testCtx())
	require.NoError(t, err)
	assert.Contains(t, res.Title, "Updated")
	assert.Equal(t, false, res.Metadata["created"])
	assert.Equal(t, 6, res.Metadata["added"])
}

func TestListTool(t *testing.T) {
	fs := testFS(t, map[string]string{
		"src/a.ts": "",
		"src/b.ts": "",
	})
	require.NoError(t, fs.MkdirAll("src/components", 0755))

	lt := NewListTool(fs)
	res, err := lt.Execute(context.Background(), json.RawMessage(`{"path":"src"}`), testCtx())
	require.NoError(t, err)

	assert.Contains(t, res.Output, "a.ts")
	assert.Contains(t, res.Output, "components/")
}

func TestSearchTool(t *testing.T) {
	fs := testFS(t, map[string]string{
		"src/a.ts":        "",
		"src/deep/b.ts":   "",
		"src/style.css":   "",
		"README.md":       "",
		"public/index.ts": "",
	})
	st := NewSearchTool(fs)

	res, err := st.Execute(context.Background(), json.RawMessage(`{"pattern":"**/*.ts"}`), testCtx())
	require.NoError(t, err)

	assert.Contains(t, res.Output, "src/a.ts")
	assert.Contains(t, res.Output, "src/deep/b.ts")
	assert.Contains(t, res.Output, "public/index.ts")
	assert.NotContains(t, res.Output, "style.css")
	assert.NotContains(t, res.Output, "README.md")
}

func TestSearchTool_NoMatches(t *testing.T) {
	st := NewSearchTool(testFS(t, map[string]string{"a.txt": ""}))

	res, err := st.Execute(context.Background(), json.RawMessage(`{"pattern":"**/*.go"}`), testCtx())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Metadata["count"])
}

func TestSearchTool_InvalidPattern(t *testing.T) {
	st := NewSearchTool(afero.NewMemMapFs())

	_, err := st.Execute(context.Background(), json.RawMessage(`{"pattern":"[unclosed"}`), testCtx())
	assert.Error(t, err)
}

func TestFetchTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><head><script>evil()</script></head><body><h1>Title</h1><p>Body text</p></body></html>"))
	}))
	defer srv.Close()

	ft := NewFetchToolWithClient(srv.Client())

	res, err := ft.Execute(context.Background(),
		json.RawMessage(`{"url":"`+srv.URL+`","format":"text"}`), testCtx())
	require.NoError(t, err)
	assert.Contains(t, res.Output, "Body text")
	assert.NotContains(t, res.Output, "evil")

	res, err = ft.Execute(context.Background(),
		json.RawMessage(`{"url":"`+srv.URL+`","format":"markdown"}`), testCtx())
	require.NoError(t, err)
	assert.Contains(t, res.Output, "# Title")
}

func TestFetchTool_BadFormat(t *testing.T) {
	ft := NewFetchTool()

	_, err := ft.Execute(context.Background(), json.RawMessage(`{"url":"https://x.test","format":"pdf"}`), testCtx())
	assert.Error(t, err)
}

func TestFetchTool_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	ft := NewFetchToolWithClient(srv.Client())
	_, err := ft.Execute(context.Background(), json.RawMessage(`{"url":"`+srv.URL+`","format":"text"}`), testCtx())
	assert.ErrorContains(t, err, "404")
}

func TestFetchTool_RedirectPolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/start":
			http.Redirect(w, r, "/private", http.StatusFound)
		default:
			_, _ = w.Write([]byte("internal data"))
		}
	}))
	defer srv.Close()

	ft := NewFetchToolWithClient(srv.Client())
	ft.SetRedirectPolicy(func(url string) error {
		if strings.Contains(url, "/private") {
			return fmt.Errorf("domain not allowed")
		}
		return nil
	})

	// Each redirect hop is re-checked, so a cleared URL cannot bounce the
	// request to a disallowed target.
	_, err := ft.Execute(context.Background(),
		json.RawMessage(`{"url":"`+srv.URL+`/start","format":"text"}`), testCtx())
	assert.ErrorContains(t, err, "blocked")

	res, err := ft.Execute(context.Background(),
		json.RawMessage(`{"url":"`+srv.URL+`/other","format":"text"}`), testCtx())
	require.NoError(t, err)
	assert.Contains(t, res.Output, "internal data")
}

func TestFetchTool_ResolveURL(t *testing.T) {
	ft := NewFetchTool()

	assert.Equal(t, "https://cdn.jsdelivr.net/x", ft.ResolveURL(json.RawMessage(`{"url":"https://cdn.jsdelivr.net/x"}`)))
	assert.Empty(t, ft.ResolveURL(json.RawMessage(`garbage`)))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	fs := afero.NewMemMapFs()

	r.Register(NewWriteTool(fs))
	r.Register(NewReadTool(fs))
	r.Register(NewSearchTool(fs))

	got, ok := r.Get("read_file")
	require.True(t, ok)
	assert.Equal(t, "read_file", got.ID())

	_, ok = r.Get("unknown")
	assert.False(t, ok)

	var ids []string
	for _, tl := range r.List() {
		ids = append(ids, tl.ID())
	}
	assert.Equal(t, []string{"read_file", "search_files", "write_file"}, ids)
}

func TestToolsImplementResolvers(t *testing.T) {
	fs := afero.NewMemMapFs()

	var _ PathResolver = NewReadTool(fs)
	var _ PathResolver = NewWriteTool(fs)
	var _ PathResolver = NewListTool(fs)
	var _ PathResolver = NewSearchTool(fs)
	var _ URLResolver = NewFetchTool()

	// fetch_url is network-only; it must not claim filesystem paths.
	_, isPathResolver := interface{}(NewFetchTool()).(PathResolver)
	assert.False(t, isPathResolver)
}

func TestReadTool_Truncation(t *testing.T) {
	big := strings.Repeat("x", maxReadBytes+10)
	fs := testFS(t, map[string]string{"big.txt": big})

	res, err := NewReadTool(fs).Execute(context.Background(), json.RawMessage(`{"path":"big.txt"}`), testCtx())
	require.NoError(t, err)
	assert.Equal(t, true, res.Metadata["truncated"])
	assert.Contains(t, res.Output, "(content truncated)")
}
