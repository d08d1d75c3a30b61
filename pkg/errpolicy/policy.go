// Package errpolicy decides what each subsystem does when an operation fails.
package errpolicy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"
)

// Action is the reaction to a failure
type Action string

const (
	Retry    Action = "retry"
	Fallback Action = "fallback"
	Abort    Action = "abort"
	Continue Action = "continue"
)

// Subsystem names a failure domain
type Subsystem string

const (
	Dispatch          Subsystem = "dispatch"
	ProviderExplicit  Subsystem = "provider.explicit"
	ProviderAutomatic Subsystem = "provider.automatic"
	ToolServer        Subsystem = "toolserver"
	AgentLoop         Subsystem = "agent.loop"
	Process           Subsystem = "process"
)

// Rule is the policy for one subsystem. Retries applies before the action
// and only to retryable errors.
type Rule struct {
	Action  Action
	Retries int
	Backoff time.Duration
}

// Table maps subsystems to rules
type Table map[Subsystem]Rule

var allowed = map[Subsystem][]Action{
	Dispatch:          {Continue, Abort},
	ProviderExplicit:  {Abort, Retry},
	ProviderAutomatic: {Fallback, Abort, Retry},
	ToolServer:        {Continue, Abort},
	AgentLoop:         {Abort, Continue},
	Process:           {Continue, Abort},
}

// Default returns the policy orca ships with
func Default() Table {
	return Table{
		Dispatch:          {Action: Continue},
		ProviderExplicit:  {Action: Abort},
		ProviderAutomatic: {Action: Fallback},
		ToolServer:        {Action: Continue},
		AgentLoop:         {Action: Abort},
		Process:           {Action: Continue},
	}
}

// For returns the rule for s, falling back to the default table
func (t Table) For(s Subsystem) Rule {
	if r, ok := t[s]; ok {
		return r
	}
	return Default()[s]
}

// With returns a copy of t with s overridden
func (t Table) With(s Subsystem, r Rule) Table {
	out := make(Table, len(t)+1)
	for k, v := range t {
		out[k] = v
	}
	out[s] = r
	return out
}

// Validate rejects unknown subsystems and actions a subsystem cannot honor
func (t Table) Validate() error {
	keys := make([]string, 0, len(t))
	for s := range t {
		keys = append(keys, string(s))
	}
	sort.Strings(keys)

	for _, k := range keys {
		s := Subsystem(k)
		r := t[s]
		actions, ok := allowed[s]
		if !ok {
			return fmt.Errorf("error policy: unknown subsystem %q", s)
		}
		if !contains(actions, r.Action) {
			return fmt.Errorf("error policy %s: action %q not allowed (must be one of %s)", s, r.Action, join(actions))
		}
		if r.Retries < 0 {
			return fmt.Errorf("error policy %s: retries cannot be negative", s)
		}
	}
	return nil
}

// Parse builds a table from config values, layered over Default
func Parse(raw map[string]RawRule) (Table, error) {
	t := Default()
	for name, rr := range raw {
		s := Subsystem(name)
		r := t.For(s)
		if rr.Action != "" {
			r.Action = Action(strings.ToLower(rr.Action))
		}
		r.Retries = rr.Retries
		r.Backoff = time.Duration(rr.BackoffMs) * time.Millisecond
		t[s] = r
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// RawRule is the config shape of a rule
type RawRule struct {
	Action    string `json:"action" mapstructure:"action"`
	Retries   int    `json:"retries" mapstructure:"retries"`
	BackoffMs int    `json:"backoff_ms" mapstructure:"backoff_ms"`
}

// maxBackoff caps the doubled delay unless the base itself is larger
const maxBackoff = time.Minute

// HTTPStatusError is implemented by errors that carry the HTTP status a
// remote API answered with.
type HTTPStatusError interface {
	error
	HTTPStatus() int
}

// IsRetryable reports whether err looks transient: rate limits, 5xx
// responses, resets and timeouts. Cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr HTTPStatusError
	if errors.As(err, &statusErr) {
		return RetryableStatus(statusErr.HTTPStatus())
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"econnreset", "connection reset", "etimedout", "rate limit", "overloaded"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// RetryableStatus reports whether an HTTP status is worth retrying
func RetryableStatus(status int) bool {
	return status == 408 || status == 429 || status >= 500
}

// BackoffFor returns the delay before retry attempt n (0-based), doubling
// from the base up to a minute.
func (r Rule) BackoffFor(attempt int) time.Duration {
	base := r.Backoff
	if base <= 0 {
		base = time.Second
	}
	limit := maxBackoff
	if base > limit {
		limit = base
	}

	delay := base
	for i := 0; i < attempt && delay < limit; i++ {
		delay *= 2
	}
	if delay > limit {
		delay = limit
	}
	return delay
}

func contains(actions []Action, a Action) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}

func join(actions []Action) string {
	parts := make([]string, len(actions))
	for i, a := range actions {
		parts[i] = string(a)
	}
	return strings.Join(parts, ", ")
}
