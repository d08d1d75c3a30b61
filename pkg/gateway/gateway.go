package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harun/orca/internal/observability"
	"github.com/harun/orca/internal/tracing"
	"github.com/harun/orca/pkg/errpolicy"
	"github.com/harun/orca/pkg/session"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ClearPolicy decides what happens to a pending attachment after a request
type ClearPolicy string

const (
	// ClearAlways drops the attachment whatever the outcome
	ClearAlways ClearPolicy = "always"
	// ClearOnSuccess restores the attachment when every attempt failed
	ClearOnSuccess ClearPolicy = "on_success"
)

// ParseClearPolicy validates a configured clear policy; empty means always
func ParseClearPolicy(s string) (ClearPolicy, error) {
	switch ClearPolicy(s) {
	case "", ClearAlways:
		return ClearAlways, nil
	case ClearOnSuccess:
		return ClearOnSuccess, nil
	}
	return "", fmt.Errorf("invalid attachment clear policy %q: expected always or on_success", s)
}

// Config holds gateway configuration
type Config struct {
	Primary     Provider
	Secondary   Provider
	Policy      errpolicy.Table
	ClearPolicy ClearPolicy
	MaxTokens   int
	Temperature float64
	Logger      zerolog.Logger
}

// Gateway selects a backend per the session mode and records the reply
type Gateway struct {
	primary     Provider
	secondary   Provider
	policy      errpolicy.Table
	clearPolicy ClearPolicy
	maxTokens   int
	temperature float64
	logger      zerolog.Logger
}

// New creates a gateway
func New(cfg Config) (*Gateway, error) {
	if cfg.Primary.Name == "" || cfg.Secondary.Name == "" {
		return nil, fmt.Errorf("primary and secondary providers are required")
	}
	if cfg.Primary.Name == cfg.Secondary.Name {
		return nil, fmt.Errorf("primary and secondary must differ, both are %s", cfg.Primary.Name)
	}
	if cfg.Policy == nil {
		cfg.Policy = errpolicy.Default()
	}
	if cfg.ClearPolicy == "" {
		cfg.ClearPolicy = ClearAlways
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	observability.EnsureRegistered()

	return &Gateway{
		primary:     cfg.Primary,
		secondary:   cfg.Secondary,
		policy:      cfg.Policy,
		clearPolicy: cfg.ClearPolicy,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      cfg.Logger,
	}, nil
}

// Providers returns the primary and secondary descriptors in that order
func (g *Gateway) Providers() []Provider {
	return []Provider{g.primary, g.secondary}
}

// Complete answers the session's conversation. On success exactly one model
// turn is appended and its text returned.
//
// In explicit mode the selected backend's error is returned unmodified. In
// automatic mode a failing primary falls back to the secondary within the
// same request and the secondary's error is returned if it fails too.
func (g *Gateway) Complete(ctx context.Context, sess *session.Session) (string, error) {
	mode := sess.Mode()
	attachment := sess.TakeAttachment()
	logger := tracing.LoggerFromContext(ctx, g.logger)

	req := Request{
		Messages:    sess.Conversation.ContextWindow(),
		Attachment:  attachment,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	}

	var (
		text string
		err  error
	)
	switch mode {
	case session.ModePrimary:
		text, err = g.attempt(ctx, g.primary, g.policy.For(errpolicy.ProviderExplicit), req)
	case session.ModeSecondary:
		text, err = g.attempt(ctx, g.secondary, g.policy.For(errpolicy.ProviderExplicit), req)
	default:
		rule := g.policy.For(errpolicy.ProviderAutomatic)
		text, err = g.attempt(ctx, g.primary, rule, req)
		if err != nil && rule.Action == errpolicy.Fallback && ctx.Err() == nil {
			logger.Warn().
				Str("primary", g.primary.Name).
				Str("secondary", g.secondary.Name).
				Err(err).
				Msg("Primary provider failed, falling back")
			observability.RecordProviderFallback()
			text, err = g.attempt(ctx, g.secondary, rule, req)
		}
	}

	if err != nil {
		if g.clearPolicy == ClearOnSuccess {
			sess.RestoreAttachment(attachment)
		}
		return "", err
	}

	if perr := sess.Conversation.AppendModel(ctx, text); perr != nil {
		// the turn stays in memory
		logger.Error().Err(perr).Msg("Failed to persist conversation")
		observability.RecordSwallowedError("conversation.persist")
	}
	return text, nil
}

// attempt calls one provider, retrying retryable errors per rule
func (g *Gateway) attempt(ctx context.Context, p Provider, rule errpolicy.Rule, req Request) (string, error) {
	if !p.Available || p.Backend == nil {
		observability.RecordProviderCall(p.Name, 0, false)
		return "", fmt.Errorf("%w: %s", ErrUnavailable, p.Name)
	}
	req.Model = p.Model

	for attempt := 0; ; attempt++ {
		text, err := g.call(ctx, p, req, attempt)
		if err == nil {
			return text, nil
		}
		if attempt >= rule.Retries || !errpolicy.IsRetryable(err) {
			return "", err
		}

		delay := rule.BackoffFor(attempt)
		logger := tracing.LoggerFromContext(ctx, g.logger)
		logger.Debug().
			Str("provider", p.Name).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Err(err).
			Msg("Retrying provider call")

		select {
		case <-ctx.Done():
			return "", err
		case <-time.After(delay):
		}
	}
}

func (g *Gateway) call(ctx context.Context, p Provider, req Request, attempt int) (string, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"orca.gateway",
		"gateway.complete",
		attribute.String("provider", p.Name),
		attribute.String("model", p.Model),
		attribute.Int("attempt", attempt),
		attribute.Bool("attachment", req.Attachment != nil),
	)
	defer span.End()

	start := time.Now()
	resp, err := p.Backend.Complete(ctx, req)
	if err == nil && (resp == nil || strings.TrimSpace(resp.Text) == "") {
		err = fmt.Errorf("%s: %w", p.Name, ErrEmptyResponse)
	}
	duration := time.Since(start)
	observability.RecordProviderCall(p.Name, duration, err == nil)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	span.SetAttributes(
		attribute.Int("input_tokens", resp.InputTokens),
		attribute.Int("output_tokens", resp.OutputTokens),
	)
	logger := tracing.LoggerFromContext(ctx, g.logger)
	logger.Debug().
		Str("provider", p.Name).
		Dur("duration", duration).
		Int("output_tokens", resp.OutputTokens).
		Msg("Provider call completed")
	return resp.Text, nil
}
