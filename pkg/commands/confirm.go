package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/harun/orca/internal/observability"
	"github.com/harun/orca/internal/tracing"
)

// Confirmer asks the operator to approve a command
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// LineConfirmer prompts on out and reads a y/N answer from in. The reader
// is shared with the REPL so buffered input is never lost.
type LineConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

// NewLineConfirmer creates a prompt-based confirmer
func NewLineConfirmer(in *bufio.Reader, out io.Writer) *LineConfirmer {
	return &LineConfirmer{in: in, out: out}
}

// Confirm blocks until the operator answers. EOF counts as no.
func (c *LineConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Fprintf(c.out, "%s [y/N]: ", prompt)

	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		if err == io.EOF {
			fmt.Fprintln(c.out)
			return false, nil
		}
		return false, fmt.Errorf("failed to read input: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// DenyAll rejects every confirmation, for unattended processes
type DenyAll struct{}

// Confirm always answers no
func (DenyAll) Confirm(context.Context, string) (bool, error) {
	return false, nil
}

func recordConfirmation(ctx context.Context, command string, approved bool, args []string) {
	observability.RecordConfirmation(ctx, command, approved, map[string]interface{}{
		"args": args,
	})
}

func commandFromContext(ctx context.Context) string {
	if name := tracing.GetCommand(ctx); name != "" {
		return name
	}
	return "command"
}
