package coretools

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFiles(t *testing.T) *Files {
	t.Helper()
	f, err := NewFiles(t.TempDir())
	require.NoError(t, err)
	return f
}

func TestFilesReadWrite(t *testing.T) {
	t.Run("should write, append and read back", func(t *testing.T) {
		f := newFiles(t)

		_, err := f.Write("notes/a.txt", "hello")
		require.NoError(t, err)
		_, err = f.Append("notes/a.txt", " world")
		require.NoError(t, err)

		content, truncated, err := f.Read("notes/a.txt")
		require.NoError(t, err)
		assert.False(t, truncated)
		assert.Equal(t, "hello world", content)
	})

	t.Run("should truncate at the read limit", func(t *testing.T) {
		f := newFiles(t)
		f.ReadLimit = 4

		_, err := f.Write("big.txt", "abcdefgh")
		require.NoError(t, err)

		content, truncated, err := f.Read("big.txt")
		require.NoError(t, err)
		assert.True(t, truncated)
		assert.Equal(t, "abcd", content)
	})

	t.Run("should fail on a missing file", func(t *testing.T) {
		_, _, err := newFiles(t).Read("missing.txt")
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("should delete files", func(t *testing.T) {
		f := newFiles(t)
		target, err := f.Write("gone.txt", "x")
		require.NoError(t, err)

		_, err = f.Delete("gone.txt")
		require.NoError(t, err)
		_, err = os.Stat(target)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestFilesList(t *testing.T) {
	f := newFiles(t)
	_, err := f.Write("b.txt", "12")
	require.NoError(t, err)
	_, err = f.Write("a.txt", "1")
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(f.Root, "dir"), 0755))

	entries, err := f.List(".")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a.txt", entries[0].Name)
	assert.True(t, entries[2].IsDir)

	out := FormatEntries(entries)
	assert.Equal(t, "a.txt (1 bytes)\nb.txt (2 bytes)\ndir/", out)
	assert.Equal(t, "(empty)", FormatEntries(nil))
}

func TestConfine(t *testing.T) {
	f := newFiles(t)

	cases := []struct {
		path string
		ok   bool
	}{
		{"a.txt", true},
		{"sub/../a.txt", true},
		{".", true},
		{"../etc/passwd", false},
		{"sub/../../x", false},
		{"/etc/passwd", false},
		{"", false},
	}
	for _, c := range cases {
		resolved, err := f.Confine(c.path)
		if c.ok {
			require.NoError(t, err, c.path)
			assert.True(t, strings.HasPrefix(resolved, f.Root), c.path)
			continue
		}
		assert.Error(t, err, c.path)
	}

	_, err := f.Confine("../x")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestResolve(t *testing.T) {
	f := newFiles(t)

	abs, err := f.Resolve("/tmp/x")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", abs)

	_, err = f.Resolve("http://example.com/a")
	assert.Error(t, err)
}
