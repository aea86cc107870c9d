package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	scraper "github.com/tourlens/scraper"
	"github.com/tourlens/scraper/config"
)

var (
	cfg *config.Config
	log zerolog.Logger

	headless bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "tourlens",
	Short:         "tourlens searches and exports the tourism data portal.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.LoadConfig()
		if cmd.Flags().Changed("headless") {
			cfg.Headless = headless
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		log = scraper.NewLogger(os.Stderr, scraper.ParseLevel(cfg.LogLevel))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", true, "Run the browser without a window.")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error).")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

// truncate shortens s to n runes for table cells.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
