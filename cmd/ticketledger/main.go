package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/steveyegge/ticketledger/internal/config"
	"github.com/steveyegge/ticketledger/internal/logging"
	"github.com/steveyegge/ticketledger/internal/ui"

	// Trackers register themselves with the tracker registry.
	_ "github.com/steveyegge/ticketledger/internal/jira"
	_ "github.com/steveyegge/ticketledger/internal/tracker/memory"
)

var (
	configPath  string
	jsonOutput  bool
	verboseFlag bool
	quietFlag   bool

	// Set by PersistentPreRunE.
	settings *config.Settings
	logger   *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ticketledger",
	Short: "ticketledger - publish test results to issue trackers",
	Long: `Keeps one test-result comment per issue up to date with the outcome of every
test that reports against it, and optionally moves the issue through its workflow.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			printVersion(cmd)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.ApplyColorProfile()

		s, err := config.Load(configPath)
		if err != nil {
			return err
		}
		opts := s.LoggingOptions()
		opts.Verbose = verboseFlag
		opts.Quiet = quietFlag
		opts.Writer = cmd.ErrOrStderr()
		l, err := logging.New(opts)
		if err != nil {
			return err
		}

		settings = s
		logger = l
		if s.File != "" {
			logger.Debug("loaded config", "file", s.File)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./ticketledger.yaml, then the user config dir)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
