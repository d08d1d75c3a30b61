package cli

import (
	"fmt"

	"github.com/harun/orca/internal/logger"
	"github.com/harun/orca/pkg/toolserver"
	"github.com/spf13/cobra"
)

var (
	toolserverAddr string
	toolserverRoot string
)

var toolserverCmd = &cobra.Command{
	Use:   "toolserver",
	Short: "Serve file tools over HTTP",
	Long: `Serve the reference tool server: read_file, list_dir, write_file and
word_count, confined to a root directory. Register it in a session with
"/tool-add <label> http://<addr>".`,
	Args: cobra.NoArgs,
	RunE: runToolserver,
}

func init() {
	toolserverCmd.Flags().StringVar(&toolserverAddr, "addr", "127.0.0.1:8765", "listen address")
	toolserverCmd.Flags().StringVar(&toolserverRoot, "root", ".", "directory the tools are confined to")
	rootCmd.AddCommand(toolserverCmd)
}

func runToolserver(cmd *cobra.Command, args []string) error {
	level := logLevel
	if level == "" {
		level = "info"
	}
	log, err := logger.New(logger.Config{
		Level:     level,
		Console:   true,
		Pretty:    true,
		Redaction: true,
		Out:       cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	srv, err := toolserver.New(toolserver.Config{Root: toolserverRoot, Logger: log.Component("toolserver")})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", srv.Root(), toolserverAddr)
	return srv.ListenAndServe(ctx, toolserverAddr)
}
