package commands

import (
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	scraper "github.com/tourlens/scraper"
	"github.com/tourlens/scraper/seoul"
)

var (
	seoulCategory string
	seoulOut      string
	seoulPageSize int
)

func init() {
	flags := seoulCmd.Flags()
	flags.StringVar(&seoulCategory, "category", "", "Keep rows whose tags match this tourism type.")
	flags.StringVar(&seoulOut, "out", "", "Write the rows to this .csv or .xlsx file instead of printing them.")
	flags.IntVar(&seoulPageSize, "page-size", seoul.DefaultPageSize, "Rows per API request.")
	rootCmd.AddCommand(seoulCmd)
}

var seoulCmd = &cobra.Command{
	Use:   "seoul [--category name] [--out file]",
	Short: "Fetches the Seoul open-data attraction list.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.SeoulAPIKey == "" {
			return errors.New("SEOUL_API_KEY is not set")
		}
		client := seoul.NewClient(cfg.SeoulAPIKey, cfg.SeoulAPIService)
		rows, err := client.FetchAll(cmd.Context(), seoulPageSize)
		if err != nil {
			return err
		}
		records := client.Fields.FilterByCategory(client.Fields.Records(rows), seoulCategory)
		log.Info().Int("fetched", len(rows)).Int("kept", len(records)).Msg("seoul rows")

		if seoulOut != "" {
			normalizer := scraper.NewNormalizer()
			t := normalizer.Table(normalizer.FlattenList(records))
			if err := scraper.SaveTable(seoulOut, t, scraper.DefaultCSVOptions()); err != nil {
				return err
			}
			fmt.Printf("wrote %d rows to %v\n", len(t.Rows), seoulOut)
			return nil
		}

		t := newTable()
		t.AppendHeader(table.Row{"id", "title", "tags"})
		for _, record := range records {
			tags := ""
			for _, f := range record.Raw {
				if f.Key == client.Fields.Tags {
					tags = f.Value
				}
			}
			t.AppendRow(table.Row{record.RecordID, record.Title, truncate(tags, 60)})
		}
		t.Render()
		return nil
	},
}
