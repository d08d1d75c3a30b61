package commands

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestClip(t *testing.T) {
	t.Run("should keep short text", func(t *testing.T) {
		assert.Equal(t, "abc", clip("abc", 10))
	})

	t.Run("should not split a multibyte rune", func(t *testing.T) {
		// "é" is two bytes; a cut at 2 would land inside it
		got := clip("aé-tail", 2)
		assert.True(t, utf8.ValidString(got))
		assert.Equal(t, "a\n[truncated]", got)
	})
}

func TestPreview(t *testing.T) {
	t.Run("should collapse whitespace", func(t *testing.T) {
		assert.Equal(t, "a b c", preview("a\n b\t\tc", 20))
	})

	t.Run("should not split a multibyte rune", func(t *testing.T) {
		got := preview(strings.Repeat("日本", 10), 8)
		assert.True(t, utf8.ValidString(got))
		assert.Equal(t, "日...", got)
	})
}
