package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/harun/orca/internal/config"
	"github.com/harun/orca/internal/tracing"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "orca",
	Short: "orca - interactive and autonomous command-line agent",
	Long: `orca is an interactive and autonomous command-line agent.
It talks to two language-model providers with failover, runs slash commands
against files, the shell, a browser and remote tool servers, and can work on
a goal autonomously for a bounded number of steps.

Run without a subcommand to start an interactive chat.`,
	Version:       version,
	Args:          cobra.NoArgs,
	RunE:          runChat,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	if err := tracing.InitOpenTelemetry("orca"); err == nil {
		defer tracing.ShutdownOpenTelemetry(context.Background())
	}
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.orca/orca.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error), overrides the config")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// signalContext is cancelled by SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
