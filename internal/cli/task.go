package cli

import (
	"fmt"
	"strings"

	"github.com/harun/orca/internal/app"
	"github.com/harun/orca/pkg/commands"
	"github.com/spf13/cobra"
)

var (
	taskMaxSteps int
	taskMode     string
)

var taskCmd = &cobra.Command{
	Use:   "task <goal...>",
	Short: "Run one autonomous task and exit",
	Long: `Run one autonomous task. The model is given the goal and the commands
it may use, and drives them one per step until it replies with the
completion token or the step limit is reached.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	taskCmd.Flags().IntVar(&taskMaxSteps, "max-steps", 0, "step limit (default from config)")
	taskCmd.Flags().StringVar(&taskMode, "mode", "", "provider mode: primary, secondary or auto")
	rootCmd.AddCommand(taskCmd)
}

func runTask(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	out := cmd.OutOrStdout()
	a, err := app.New(ctx, app.Options{
		ConfigPath: cfgFile,
		LogLevel:   logLevel,
		Mode:       taskMode,
		MaxSteps:   taskMaxSteps,
		Report:     &commands.WriterReporter{Out: out, Err: cmd.ErrOrStderr()},
	})
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Loop.Run(ctx, strings.Join(args, " "))
	fmt.Fprintln(out, res.Summary())
	return err
}
