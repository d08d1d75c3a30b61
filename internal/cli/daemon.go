package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/harun/orca/internal/app"
	"github.com/harun/orca/internal/daemon"
	"github.com/harun/orca/pkg/commands"
	"github.com/spf13/cobra"
)

var workerMode bool

var daemonCmd = &cobra.Command{
	Use:   "daemon [goal...]",
	Short: "Detach a background worker",
	Long: `Detach a background worker and return immediately. The worker writes
its PID file, runs the goal as an autonomous task when one is given, and
keeps a heartbeat until it is stopped with "orca stop".`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().BoolVar(&workerMode, "worker", false, "run as the detached worker")
	_ = daemonCmd.Flags().MarkHidden("worker")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if workerMode {
		return runWorker(cmd, args)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lm := daemon.NewLifecycleManager(cfg.Daemon.PIDFile, nopLogger())
	if lm.IsRunning() {
		pid, _ := lm.GetPID()
		return fmt.Errorf("worker is already running (pid %d)", pid)
	}

	sup, err := daemon.NewSupervisor(daemon.SupervisorConfig{LogFile: cfg.Daemon.LogFile, Logger: nopLogger()})
	if err != nil {
		return err
	}
	pid, err := sup.Detach(os.Args[1:])
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Worker started (pid %d), logs: %s\n", pid, cfg.Daemon.LogFile)
	return nil
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	out := cmd.OutOrStdout()
	a, err := app.New(ctx, app.Options{
		ConfigPath: cfgFile,
		LogLevel:   logLevel,
		Report:     &commands.WriterReporter{Out: out, Err: cmd.ErrOrStderr()},
	})
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.Config
	logger := a.Component("daemon")
	guard := daemon.NewGuard(daemon.GuardConfig{Policy: a.Policy, Logger: logger})

	w, err := daemon.NewWorker(daemon.WorkerConfig{
		Lifecycle: daemon.NewLifecycleManager(cfg.Daemon.PIDFile, logger),
		Watchdog: daemon.NewWatchdog(daemon.WatchdogConfig{
			Path:     cfg.HeartbeatPath(),
			Schedule: cfg.Daemon.Heartbeat,
			Guard:    guard,
			Logger:   logger,
		}),
		Guard:       guard,
		Tasks:       a.Loop,
		Goal:        strings.Join(args, " "),
		MetricsAddr: cfg.Daemon.MetricsAddr,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	return w.Run(ctx)
}
