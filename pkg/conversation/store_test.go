package conversation

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	cases := map[string][]Turn{
		"empty": {},
		"single": {
			{Role: RoleUser, Content: "hello"},
		},
		"mixed roles and odd content": {
			{Role: RoleUser, Content: "list files"},
			{Role: RoleModel, Content: "/ls ."},
			{Role: RoleSystem, Content: "a.txt\nb.txt\n"},
			{Role: RoleModel, Content: ""},
			{Role: RoleUser, Content: "ünïcödé \"quoted\" \t tab <html>&amp;"},
		},
	}

	for name, turns := range cases {
		t.Run(name, func(t *testing.T) {
			data, err := Snapshot(turns)
			require.NoError(t, err)

			restored, err := Restore(data)
			require.NoError(t, err)
			assert.Equal(t, turns, restored)

			again, err := Snapshot(restored)
			require.NoError(t, err)
			assert.Equal(t, data, again)
		})
	}
}

func TestSanitize(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
	}{
		"valid":      {in: "héllo", want: "héllo"},
		"binary":     {in: "Content of bin:\n\xff\xfe\x00", want: "Content of bin:\n\ufffd\x00"},
		"split rune": {in: "h\xc3", want: "h\ufffd"},
		"empty":      {in: "", want: ""},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, Sanitize(tc.in))
		})
	}
}

func TestRestore(t *testing.T) {
	t.Run("should reject unknown roles", func(t *testing.T) {
		_, err := Restore([]byte(`[{"role":"assistant","content":"x"}]`))
		assert.ErrorIs(t, err, ErrInvalidRole)
	})

	t.Run("should reject malformed json", func(t *testing.T) {
		_, err := Restore([]byte(`{"role":`))
		assert.Error(t, err)
	})

	t.Run("should treat null as empty", func(t *testing.T) {
		turns, err := Restore([]byte(`null`))
		require.NoError(t, err)
		assert.Empty(t, turns)
	})
}

func TestStorePersistence(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist only after model turns", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "conversation.json")
		store, err := Open(path, zerolog.Nop())
		require.NoError(t, err)

		require.NoError(t, store.AppendUser(ctx, "hi"))
		require.NoError(t, store.AppendSystem(ctx, "info"))
		_, err = os.Stat(path)
		assert.True(t, os.IsNotExist(err))

		require.NoError(t, store.AppendModel(ctx, "hello"))
		data, err := os.ReadFile(path)
		require.NoError(t, err)

		turns, err := Restore(data)
		require.NoError(t, err)
		assert.Equal(t, store.Turns(), turns)
	})

	t.Run("should resume from an existing snapshot", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "conversation.json")
		first, err := Open(path, zerolog.Nop())
		require.NoError(t, err)
		require.NoError(t, first.AppendUser(ctx, "q"))
		require.NoError(t, first.AppendModel(ctx, "a"))

		second, err := Open(path, zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, first.Turns(), second.Turns())
	})

	t.Run("should survive a restart with non utf-8 content", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "conversation.json")
		first, err := Open(path, zerolog.Nop())
		require.NoError(t, err)
		require.NoError(t, first.AppendSystem(ctx, "Content of bin:\n\xff\xfe\x00"))
		require.NoError(t, first.AppendSystem(ctx, "h\xc3"))
		require.NoError(t, first.AppendModel(ctx, "ok"))

		data, err := first.Snapshot()
		require.NoError(t, err)
		restored, err := Restore(data)
		require.NoError(t, err)
		assert.Equal(t, first.Turns(), restored)

		second, err := Open(path, zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, first.Turns(), second.Turns())
		assert.Equal(t, "h\ufffd", second.Turns()[1].Content)
	})

	t.Run("should log through the given logger", func(t *testing.T) {
		var buf bytes.Buffer
		path := filepath.Join(t.TempDir(), "conversation.json")
		store, err := Open(path, zerolog.New(&buf).Level(zerolog.DebugLevel))
		require.NoError(t, err)

		require.NoError(t, store.AppendModel(ctx, "hello"))
		assert.Contains(t, buf.String(), "Conversation persisted")
		assert.Contains(t, buf.String(), path)
	})

	t.Run("should start empty without a snapshot", func(t *testing.T) {
		store, err := Open(filepath.Join(t.TempDir(), "missing.json"), zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, 0, store.Len())
	})

	t.Run("should fail on a corrupt snapshot", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "conversation.json")
		require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))

		_, err := Open(path, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("should clear turns and remove the snapshot", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "conversation.json")
		store, err := Open(path, zerolog.Nop())
		require.NoError(t, err)
		require.NoError(t, store.AppendModel(ctx, "a"))

		require.NoError(t, store.Clear())
		assert.Equal(t, 0, store.Len())
		_, err = os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("should reject invalid roles without mutating", func(t *testing.T) {
		store, err := Open("", zerolog.Nop())
		require.NoError(t, err)

		err = store.Append(ctx, Turn{Role: "tool", Content: "x"})
		assert.ErrorIs(t, err, ErrInvalidRole)
		assert.Equal(t, 0, store.Len())
	})
}

func TestContextWindow(t *testing.T) {
	store, err := Open("", zerolog.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.AppendUser(ctx, "goal"))
	require.NoError(t, store.AppendModel(ctx, "/ls ."))
	require.NoError(t, store.AppendSystem(ctx, "a.txt"))

	msgs := store.ContextWindow()
	require.Len(t, msgs, 3)
	assert.Equal(t, Message{Role: RoleUser, Content: "goal"}, msgs[0])
	assert.Equal(t, Message{Role: RoleModel, Content: "/ls ."}, msgs[1])
	assert.Equal(t, Message{Role: RoleUser, Content: "SYSTEM INFO: a.txt"}, msgs[2])
	assert.Equal(t, 1, store.Count(RoleSystem))
}
