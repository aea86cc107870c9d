package commands

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	scraper "github.com/tourlens/scraper"
)

var (
	searchFilter filterFlags
	searchPage   int
)

func init() {
	addFilterFlags(searchCmd, &searchFilter)
	searchCmd.Flags().IntVar(&searchPage, "page", 1, "Result page to print.")
	rootCmd.AddCommand(searchCmd)
}

// openPage runs filter and moves the session to page.
func openPage(ctx context.Context, s *scraper.Session, filter scraper.SearchFilter, page int) (scraper.PageCursor, error) {
	if err := scraper.Apply(ctx, s, cfg.Routes(), filter); err != nil {
		return scraper.PageCursor{}, err
	}
	cursor, err := scraper.Search(ctx, s, filter, scraper.ItemsPerPage)
	if err != nil {
		return cursor, err
	}
	if page > 1 {
		return scraper.GotoPage(ctx, s, cursor, page)
	}
	return cursor, nil
}

var searchCmd = &cobra.Command{
	Use:   "search [filter flags] [--page N]",
	Short: "Runs a search and prints one result page.",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := searchFilter.filter()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		return scraper.WithSession(ctx, scraper.ChromeLauncher(log), cfg.BrowserOptions(), log, func(s *scraper.Session) error {
			cursor, err := openPage(ctx, s, filter, searchPage)
			if err != nil {
				return err
			}
			buffer, _ := s.ListSnapshot()
			records, _ := scraper.ParseList(buffer)

			t := newTable()
			t.SetTitle(fmt.Sprintf("page %d/%d, %d items", cursor.CurrentPage, cursor.TotalPages, cursor.TotalCount))
			t.AppendHeader(table.Row{"contentid", "type", "title", "mapx", "mapy"})
			for _, record := range records {
				t.AppendRow(table.Row{record.RecordID, record.RecordType, record.Title, record.GeoX, record.GeoY})
			}
			t.Render()
			return nil
		})
	},
}
