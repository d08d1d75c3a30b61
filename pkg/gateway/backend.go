// Package gateway routes completion requests to language-model backends.
//
// Two backends are configured as primary and secondary. The session's mode
// decides whether one of them is called explicitly or whether the primary
// is tried first with the secondary as fallback. A successful call appends
// exactly one model turn to the conversation.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/harun/orca/pkg/conversation"
	"github.com/harun/orca/pkg/session"
	"github.com/openai/openai-go"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
)

var (
	// ErrUnavailable is returned for a backend whose credential did not resolve
	ErrUnavailable = errors.New("provider unavailable")
	// ErrEmptyResponse is returned when a backend answers with no text
	ErrEmptyResponse = errors.New("empty response")
)

// APIError is a backend failure that carries the HTTP status the API answered with
type APIError struct {
	Provider string
	Status   int
	Err      error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// HTTPStatus exposes the status to errpolicy.IsRetryable
func (e *APIError) HTTPStatus() int { return e.Status }

// apiError tags SDK errors with their HTTP status; anything else passes through
func apiError(provider string, err error) error {
	var (
		anthropicErr *anthropic.Error
		openaiErr    *openai.Error
		googleErr    *googleapi.Error
		status       int
	)
	switch {
	case errors.As(err, &anthropicErr):
		status = anthropicErr.StatusCode
	case errors.As(err, &openaiErr):
		status = openaiErr.StatusCode
	case errors.As(err, &googleErr):
		status = googleErr.Code
	}
	if status == 0 {
		return err
	}
	return &APIError{Provider: provider, Status: status, Err: err}
}

// Request is one completion call
type Request struct {
	Model       string
	Messages    []conversation.Message
	Attachment  *session.Attachment
	MaxTokens   int
	Temperature float64
}

// Response is the text a backend produced
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Backend is a language-model API
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Provider describes a configured backend. Available is decided once from
// credential presence.
type Provider struct {
	Name      string
	Model     string
	Available bool
	Backend   Backend
}

// BackendConfig configures a backend built by NewBackend
type BackendConfig struct {
	Name   string
	APIKey string
	Logger zerolog.Logger
}

// NewBackend builds the backend for a provider name
func NewBackend(ctx context.Context, cfg BackendConfig) (Backend, error) {
	switch cfg.Name {
	case "anthropic":
		return NewAnthropic(cfg.APIKey), nil
	case "openai":
		return NewOpenAI(cfg.APIKey), nil
	case "gemini":
		return NewGemini(ctx, cfg.APIKey)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Name)
	}
}

// lastUserIndex is where an attachment is placed, -1 when there is no user message
func lastUserIndex(msgs []conversation.Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == conversation.RoleUser {
			return i
		}
	}
	return -1
}
