package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/harun/orca/internal/app"
	"github.com/harun/orca/internal/daemon"
	"github.com/harun/orca/internal/tracing"
	"github.com/harun/orca/pkg/commands"
	"github.com/spf13/cobra"
)

const chatPrompt = "orca> "

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session (default)",
	Long: `Start an interactive session. Lines starting with the command prefix
run commands; anything else is sent to the model. Ctrl-C cancels the
current request, /exit or end of input leaves.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	a, err := app.Build(cmd.Context(), cfg, app.Options{
		Confirm: commands.NewLineConfirmer(in, out),
		Report:  &commands.WriterReporter{Out: out, Err: cmd.ErrOrStderr()},
	})
	if err != nil {
		return err
	}
	defer a.Close()

	guard := daemon.NewGuard(daemon.GuardConfig{
		Policy:      a.Policy,
		Passthrough: []error{commands.ErrExit},
		Logger:      a.Component("repl"),
	})

	return repl(cmd.Context(), in, out, a, guard)
}

func repl(ctx context.Context, in *bufio.Reader, out io.Writer, a *app.App, guard *daemon.Guard) error {
	if ctx == nil {
		ctx = context.Background()
	}

	prefix := a.Dispatcher.Prefix()
	fmt.Fprintf(out, "orca %s, mode %s. Type %shelp for commands, %sexit to leave.\n",
		version, a.Session.Mode(), prefix, prefix)

	for {
		fmt.Fprint(out, chatPrompt)
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read input: %w", err)
		}
		eof := errors.Is(err, io.EOF)

		if line = strings.TrimSpace(line); line != "" {
			if derr := dispatchLine(ctx, a, guard, line); derr != nil {
				if errors.Is(derr, commands.ErrExit) {
					return nil
				}
				return derr
			}
		}
		if eof {
			fmt.Fprintln(out)
			return nil
		}
	}
}

// dispatchLine runs one input; Ctrl-C cancels only this input
func dispatchLine(ctx context.Context, a *app.App, guard *daemon.Guard, line string) error {
	inputCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	return guard.Run(tracing.NewRequestContext(inputCtx), "repl", func(ctx context.Context) error {
		return a.Dispatcher.Dispatch(ctx, line)
	})
}
