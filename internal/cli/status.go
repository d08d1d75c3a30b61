package cli

import (
	"fmt"
	"time"

	"github.com/harun/orca/internal/daemon"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show worker status",
	Long:  `Show whether the background worker is running and when it last reported a heartbeat.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	st := daemon.ReadStatus(cfg.Daemon.PIDFile, cfg.HeartbeatPath())
	if !st.Running {
		fmt.Fprintln(out, "Status: stopped")
	} else {
		fmt.Fprintln(out, "Status: running")
		fmt.Fprintf(out, "PID: %d\n", st.PID)
	}

	if st.LastHeartbeat.IsZero() {
		fmt.Fprintln(out, "Last heartbeat: never")
	} else {
		fmt.Fprintf(out, "Last heartbeat: %s (%s ago)\n",
			st.LastHeartbeat.Local().Format(time.RFC3339),
			formatDuration(time.Since(st.LastHeartbeat)))
	}
	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}
