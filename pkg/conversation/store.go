package conversation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harun/orca/internal/observability"
	"github.com/harun/orca/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Store holds the conversation and persists it as a JSON snapshot
type Store struct {
	path   string
	turns  []Turn
	logger zerolog.Logger
	mu     sync.Mutex
}

// Open loads the snapshot at path, or starts empty when none exists.
// An empty path keeps the conversation in memory only.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	observability.EnsureRegistered()

	s := &Store{path: path, turns: []Turn{}, logger: logger}
	if path == "" {
		return s, nil
	}

	start := time.Now()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation snapshot: %w", err)
	}

	turns, err := Restore(data)
	if err != nil {
		return nil, err
	}
	s.turns = turns
	observability.RecordSnapshotLoad(time.Since(start))

	logger.Debug().
		Str("path", path).
		Int("turns", len(turns)).
		Msg("Conversation restored")

	return s, nil
}

// Path returns the snapshot location
func (s *Store) Path() string {
	return s.path
}

// Append adds a turn. Model turns trigger a full snapshot write; the turn
// stays in memory even when that write fails.
func (s *Store) Append(ctx context.Context, turn Turn) error {
	if !turn.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, turn.Role)
	}
	turn.Content = Sanitize(turn.Content)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, turn)
	if turn.Role != RoleModel {
		return nil
	}
	return s.persistLocked(ctx)
}

// AppendUser appends a user turn
func (s *Store) AppendUser(ctx context.Context, content string) error {
	return s.Append(ctx, Turn{Role: RoleUser, Content: content})
}

// AppendModel appends a model turn and persists
func (s *Store) AppendModel(ctx context.Context, content string) error {
	return s.Append(ctx, Turn{Role: RoleModel, Content: content})
}

// AppendSystem appends a system turn
func (s *Store) AppendSystem(ctx context.Context, content string) error {
	return s.Append(ctx, Turn{Role: RoleSystem, Content: content})
}

// Clear empties the conversation and removes the snapshot file
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = []Turn{}
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove conversation snapshot: %w", err)
	}
	return nil
}

// Turns returns a copy of the conversation
func (s *Store) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Count returns the number of turns with the given role
func (s *Store) Count(role Role) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.turns {
		if t.Role == role {
			n++
		}
	}
	return n
}

// Snapshot serializes the current conversation
func (s *Store) Snapshot() ([]byte, error) {
	return Snapshot(s.Turns())
}

// ContextWindow builds the provider messages for the current conversation
func (s *Store) ContextWindow() []Message {
	return BuildContext(s.Turns())
}

// persistLocked overwrites the snapshot atomically. Caller holds s.mu.
func (s *Store) persistLocked(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	_, span := tracing.StartSpan(
		ctx,
		"orca.conversation",
		"conversation.persist",
		attribute.Int("turns", len(s.turns)),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		observability.RecordSnapshotSave(time.Since(start))
	}()

	fail := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	data, err := Snapshot(s.turns)
	if err != nil {
		return fail(err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fail(fmt.Errorf("failed to create conversation directory: %w", err))
	}

	tempPath := s.path + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fail(fmt.Errorf("failed to create temp file: %w", err))
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fail(fmt.Errorf("failed to write snapshot: %w", err))
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fail(fmt.Errorf("failed to sync snapshot: %w", err))
	}
	file.Close()

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fail(fmt.Errorf("failed to replace snapshot: %w", err))
	}

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Debug().
		Str("path", s.path).
		Int("turns", len(s.turns)).
		Msg("Conversation persisted")

	return nil
}
