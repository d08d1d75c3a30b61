package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Role identifies who authored a turn
type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

// SystemPrefix marks system turns when they are shown to a model as user input.
const SystemPrefix = "SYSTEM INFO: "

// ErrInvalidRole is returned for a turn whose role is not user, model or system.
var ErrInvalidRole = errors.New("invalid turn role")

// Turn is one message of the conversation
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModel, RoleSystem:
		return true
	}
	return false
}

// Sanitize replaces invalid UTF-8 sequences with U+FFFD, the form JSON
// encoding would produce anyway. Stored turns are always sanitized.
func Sanitize(content string) string {
	if utf8.ValidString(content) {
		return content
	}
	return strings.ToValidUTF8(content, string(utf8.RuneError))
}

// Snapshot serializes turns into the persisted JSON array form.
func Snapshot(turns []Turn) ([]byte, error) {
	if turns == nil {
		turns = []Turn{}
	}
	data, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation: %w", err)
	}
	return data, nil
}

// Restore parses a snapshot produced by Snapshot.
func Restore(data []byte) ([]Turn, error) {
	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("failed to parse conversation snapshot: %w", err)
	}
	if turns == nil {
		turns = []Turn{}
	}
	for i, t := range turns {
		if !t.Role.Valid() {
			return nil, fmt.Errorf("turn %d: %w: %q", i, ErrInvalidRole, t.Role)
		}
	}
	return turns, nil
}

// Message is a turn mapped for a provider context window. Role is either
// user or model; each backend maps model to its own vocabulary.
type Message struct {
	Role    Role
	Content string
}

// BuildContext maps turns to provider messages. System turns are presented
// as user messages carrying SystemPrefix.
func BuildContext(turns []Turn) []Message {
	msgs := make([]Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case RoleSystem:
			msgs = append(msgs, Message{Role: RoleUser, Content: SystemPrefix + t.Content})
		default:
			msgs = append(msgs, Message{Role: t.Role, Content: t.Content})
		}
	}
	return msgs
}
