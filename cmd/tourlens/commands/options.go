package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	scraper "github.com/tourlens/scraper"
	"github.com/tourlens/scraper/cache"
)

var optionsType string

func init() {
	categoriesCmd.Flags().StringVar(&optionsType, "type", "", "Tourism type the categories belong to.")
	optionsCmd.AddCommand(subRegionsCmd, categoriesCmd)
	rootCmd.AddCommand(optionsCmd)
}

func optionLister() scraper.OptionLister {
	lister := scraper.OptionLister{
		Launch:  scraper.ChromeLauncher(log),
		Browser: cfg.BrowserOptions(),
		Routes:  cfg.Routes(),
		Log:     log,
		TTL:     cfg.OptionCacheTTL,
	}
	if cfg.MemcacheAddr != "" {
		lister.Cache = cache.NewMemcacheService(strings.Split(cfg.MemcacheAddr, ",")...)
	}
	return lister
}

func printOptions(title string, names []string) {
	t := newTable()
	t.SetTitle(title)
	t.AppendHeader(table.Row{"#", "option"})
	for i, name := range names {
		t.AppendRow(table.Row{i + 1, name})
	}
	t.Render()
}

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Lists the choices offered by the search filters.",
}

var subRegionsCmd = &cobra.Command{
	Use:   "sub-regions <region>",
	Short: "Lists the sub-regions of a region.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := optionLister().SubRegions(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printOptions(args[0], names)
		return nil
	},
}

var categoriesCmd = &cobra.Command{
	Use:   "categories [parent-category...]",
	Short: "Lists the service categories below the given parents.",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := optionLister().Categories(cmd.Context(), optionsType, args...)
		if err != nil {
			return err
		}
		printOptions(fmt.Sprintf("level %d %v", len(args)+1, strings.Join(args, " > ")), names)
		return nil
	},
}
