package toolserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("one two\nthree\n"), 0644))

	s, err := New(Config{Root: root, Logger: zerolog.Nop()})
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, root
}

func post(t *testing.T, url string, args ...string) (int, map[string]string) {
	t.Helper()

	body, err := json.Marshal(map[string][]string{"arguments": args})
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]string{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestCatalog(t *testing.T) {
	ts, _ := setupServer(t)

	resp, err := http.Get(ts.URL + "/tools")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var catalog catalogResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&catalog))

	names := make([]string, 0, len(catalog.Tools))
	for _, tool := range catalog.Tools {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.InputSchema)
	}
	assert.Equal(t, []string{"read_file", "list_dir", "write_file", "word_count"}, names)
}

func TestInvoke(t *testing.T) {
	ts, root := setupServer(t)

	t.Run("should read a file under the root", func(t *testing.T) {
		status, out := post(t, ts.URL+"/tools/read_file", "notes.txt")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "one two\nthree\n", out["output"])
	})

	t.Run("should count words", func(t *testing.T) {
		status, out := post(t, ts.URL+"/tools/word_count", "notes.txt")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "lines=2 words=3 bytes=14", out["output"])
	})

	t.Run("should write then list", func(t *testing.T) {
		status, _ := post(t, ts.URL+"/tools/write_file", "sub/out.txt", "hello", "world")
		require.Equal(t, http.StatusOK, status)

		data, err := os.ReadFile(filepath.Join(root, "sub", "out.txt"))
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(data))

		status, out := post(t, ts.URL+"/tools/list_dir")
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, out["output"], "notes.txt (14 bytes)")
		assert.Contains(t, out["output"], "sub/")
	})

	t.Run("should reject traversal with 400", func(t *testing.T) {
		status, out := post(t, ts.URL+"/tools/read_file", "../../etc/passwd")
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, out["error"], "outside root")
	})

	t.Run("should reject absolute paths with 400", func(t *testing.T) {
		status, _ := post(t, ts.URL+"/tools/read_file", "/etc/passwd")
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("should reject bad arity with 400", func(t *testing.T) {
		status, _ := post(t, ts.URL+"/tools/read_file")
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("should answer unknown tools with 404", func(t *testing.T) {
		status, out := post(t, ts.URL+"/tools/format_disk", "x")
		assert.Equal(t, http.StatusNotFound, status)
		assert.Contains(t, out["error"], "format_disk")
	})

	t.Run("should answer handler failures with 500", func(t *testing.T) {
		status, out := post(t, ts.URL+"/tools/read_file", "missing.txt")
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.NotEmpty(t, out["error"])
	})
}
