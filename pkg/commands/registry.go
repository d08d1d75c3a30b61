// Package commands holds the static command table and the dispatcher that
// routes operator and agent input to handlers.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrExit is returned by the exit command to end the REPL
var ErrExit = errors.New("exit requested")

// Handler is implemented only by Action and Confirmed
type Handler interface {
	handle(ctx context.Context, env *Env, args []string) error
}

// Action runs without operator involvement
type Action func(ctx context.Context, env *Env, args []string) error

func (a Action) handle(ctx context.Context, env *Env, args []string) error {
	return a(ctx, env, args)
}

// Confirmed runs only after the operator approves it
type Confirmed func(ctx context.Context, env *Env, args []string) error

func (c Confirmed) handle(ctx context.Context, env *Env, args []string) error {
	name := commandFromContext(ctx)
	prompt := fmt.Sprintf("Run %s %s?", name, strings.Join(args, " "))

	if env.Confirm == nil {
		return fmt.Errorf("%s needs confirmation but no operator is attached", name)
	}
	approved, err := env.Confirm.Confirm(ctx, strings.TrimSpace(prompt))
	recordConfirmation(ctx, name, approved, args)
	if err != nil {
		return fmt.Errorf("confirmation failed: %w", err)
	}
	if !approved {
		env.Out().Info("Cancelled.")
		return nil
	}
	return c(ctx, env, args)
}

// Descriptor is one row of the command table
type Descriptor struct {
	Name    string
	Usage   string
	Summary string
	MinArgs int
	MaxArgs int  // -1 is unbounded
	Loop    bool // offered to the agent loop
	Handler Handler
}

// Accepts reports whether n arguments satisfy the arity
func (d Descriptor) Accepts(n int) bool {
	return n >= d.MinArgs && (d.MaxArgs < 0 || n <= d.MaxArgs)
}

// Syntax renders "/name usage"
func (d Descriptor) Syntax(prefix string) string {
	if d.Usage == "" {
		return prefix + d.Name
	}
	return prefix + d.Name + " " + d.Usage
}

// Registry is the command table, built once
type Registry struct {
	order []string
	descs map[string]Descriptor
}

// NewRegistry builds a table; duplicate names and loop-offered confirmed
// commands are rejected.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{descs: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		if d.Name == "" || strings.ContainsAny(d.Name, " \t") {
			return nil, fmt.Errorf("invalid command name %q", d.Name)
		}
		if d.Handler == nil {
			return nil, fmt.Errorf("command %s has no handler", d.Name)
		}
		if _, dup := r.descs[d.Name]; dup {
			return nil, fmt.Errorf("duplicate command %s", d.Name)
		}
		if _, confirmed := d.Handler.(Confirmed); confirmed && d.Loop {
			return nil, fmt.Errorf("command %s requires confirmation and cannot be offered to the agent loop", d.Name)
		}
		if d.MaxArgs >= 0 && d.MaxArgs < d.MinArgs {
			return nil, fmt.Errorf("command %s: max args below min args", d.Name)
		}
		r.order = append(r.order, d.Name)
		r.descs[d.Name] = d
	}
	return r, nil
}

// Lookup returns the descriptor for name
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.descs[name]
	return d, ok
}

// Descriptors returns the table in declaration order
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.descs[name])
	}
	return out
}

// AllowList is the set of unattended commands the agent loop may run.
// It holds Action values, so a Confirmed handler cannot be admitted.
type AllowList struct {
	names   []string
	descs   map[string]Descriptor
	actions map[string]Action
}

// NewAllowList admits the named commands, all of which must be Actions
func NewAllowList(r *Registry, names ...string) (*AllowList, error) {
	a := &AllowList{
		descs:   make(map[string]Descriptor, len(names)),
		actions: make(map[string]Action, len(names)),
	}
	for _, name := range names {
		d, ok := r.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown command %s", name)
		}
		action, ok := d.Handler.(Action)
		if !ok {
			return nil, fmt.Errorf("command %s requires confirmation and cannot run unattended", name)
		}
		if _, dup := a.actions[name]; dup {
			continue
		}
		a.names = append(a.names, name)
		a.descs[name] = d
		a.actions[name] = action
	}
	return a, nil
}

// LoopAllowList admits every command marked for the loop
func LoopAllowList(r *Registry) (*AllowList, error) {
	var names []string
	for _, d := range r.Descriptors() {
		if d.Loop {
			names = append(names, d.Name)
		}
	}
	return NewAllowList(r, names...)
}

// Allows reports whether name is admitted
func (a *AllowList) Allows(name string) bool {
	_, ok := a.actions[name]
	return ok
}

// Describe lists admitted commands with usage, one per line
func (a *AllowList) Describe(prefix string) string {
	var b strings.Builder
	for i, name := range a.names {
		if i > 0 {
			b.WriteByte('\n')
		}
		d := a.descs[name]
		fmt.Fprintf(&b, "%s - %s", d.Syntax(prefix), d.Summary)
	}
	return b.String()
}

func (a *AllowList) lookup(name string) (Descriptor, Action, bool) {
	action, ok := a.actions[name]
	if !ok {
		return Descriptor{}, nil, false
	}
	return a.descs[name], action, true
}
