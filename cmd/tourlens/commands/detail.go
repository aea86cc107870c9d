package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	scraper "github.com/tourlens/scraper"
)

var (
	detailFilter filterFlags
	detailPage   int
	detailTabs   []string
)

func init() {
	addFilterFlags(detailCmd, &detailFilter)
	detailCmd.Flags().IntVar(&detailPage, "page", 1, "Result page the record is listed on.")
	detailCmd.Flags().StringSliceVar(&detailTabs, "tabs", nil, "Tabs to collect (common, intro, repeat, course, room, images). Default depends on the record type.")
	rootCmd.AddCommand(detailCmd)
}

func recordType(s *scraper.Session, recordID string) string {
	buffer, _ := s.ListSnapshot()
	records, _ := scraper.ParseList(buffer)
	for _, record := range records {
		if record.RecordID == recordID {
			return record.RecordType
		}
	}
	return ""
}

var detailCmd = &cobra.Command{
	Use:   "detail <record-id> [filter flags] [--page N]",
	Short: "Opens one record and prints its detail tabs.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recordID := args[0]
		filter, err := detailFilter.filter()
		if err != nil {
			return err
		}
		var tabs []scraper.TabKind
		for _, name := range detailTabs {
			kind, err := scraper.ParseTabKind(name)
			if err != nil {
				return err
			}
			tabs = append(tabs, kind)
		}

		ctx := cmd.Context()
		return scraper.WithSession(ctx, scraper.ChromeLauncher(log), cfg.BrowserOptions(), log, func(s *scraper.Session) error {
			if _, err := openPage(ctx, s, filter, detailPage); err != nil {
				return err
			}
			if len(tabs) == 0 {
				tabs = scraper.TabsFor(recordType(s, recordID))
			}
			extractor := scraper.Extractor{TabTimeout: cfg.TabTimeout, BaseURL: cfg.BaseURL}
			detail, err := extractor.Extract(ctx, s, recordID, tabs)
			if err != nil {
				return err
			}

			t := newTable()
			t.SetTitle(fmt.Sprintf("%v (%v)", detail.Title, detail.RecordID))
			t.AppendHeader(table.Row{"tab", "status", "source", "rows", "images", "cause"})
			for _, kind := range tabs {
				tab, ok := detail.Tabs[kind]
				if !ok {
					continue
				}
				cause := ""
				if tab.Cause != nil {
					cause = tab.Cause.Error()
				}
				t.AppendRow(table.Row{kind, tab.Status, tab.Source, len(tab.Payload.Rows), len(tab.Payload.Images), cause})
			}
			t.Render()

			normalizer := scraper.NewNormalizer()
			rows := normalizer.FlattenDetail(nil, detail.Payloads(), detail.RecordType)
			fields := newTable()
			fields.AppendHeader(table.Row{"row", "key", "value"})
			for i, row := range rows {
				for _, f := range row.Fields() {
					fields.AppendRow(table.Row{i + 1, f.Key, truncate(f.Value, 80)})
				}
			}
			fields.Render()
			return nil
		})
	},
}
