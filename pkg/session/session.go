package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/harun/orca/pkg/conversation"
	"github.com/harun/orca/pkg/toolclient"
)

// Mode selects which provider backend answers
type Mode string

const (
	ModePrimary   Mode = "explicit:primary"
	ModeSecondary Mode = "explicit:secondary"
	ModeAutomatic Mode = "automatic"
)

// Valid reports whether m is one of the three modes
func (m Mode) Valid() bool {
	switch m {
	case ModePrimary, ModeSecondary, ModeAutomatic:
		return true
	}
	return false
}

// ParseMode accepts the full mode names and the short operator forms
// primary, secondary and auto.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "primary", string(ModePrimary):
		return ModePrimary, nil
	case "secondary", string(ModeSecondary):
		return ModeSecondary, nil
	case "auto", "automatic":
		return ModeAutomatic, nil
	}
	return "", fmt.Errorf("invalid mode %q: expected primary, secondary or auto", s)
}

// Session is the explicit context value shared by the dispatcher, the agent
// loop and the gateway.
type Session struct {
	Conversation *conversation.Store
	Tools        *toolclient.Registry

	mode       Mode
	attachment *Attachment
	mu         sync.Mutex
}

// New creates a session around an opened conversation
func New(conv *conversation.Store, tools *toolclient.Registry, mode Mode) *Session {
	if !mode.Valid() {
		mode = ModeAutomatic
	}
	if tools == nil {
		tools = toolclient.NewRegistry()
	}
	return &Session{
		Conversation: conv,
		Tools:        tools,
		mode:         mode,
	}
}

// Mode returns the current provider mode
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode changes the provider mode and returns the previous one
func (s *Session) SetMode(m Mode) (Mode, error) {
	if !m.Valid() {
		return "", fmt.Errorf("invalid mode %q", m)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.mode
	s.mode = m
	return prev, nil
}

// SetAttachment queues a for the next gateway call, replacing any pending one
func (s *Session) SetAttachment(a *Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachment = a
}

// PendingAttachment returns the queued attachment without taking it
func (s *Session) PendingAttachment() *Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachment
}

// TakeAttachment removes and returns the queued attachment
func (s *Session) TakeAttachment() *Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.attachment
	s.attachment = nil
	return a
}

// RestoreAttachment puts a back unless another attachment was queued meanwhile
func (s *Session) RestoreAttachment(a *Attachment) {
	if a == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attachment == nil {
		s.attachment = a
	}
}
