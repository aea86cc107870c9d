package commands

import (
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/tourlens/scraper/blog"
)

var (
	reviewsCount   int
	reviewsContent bool
)

func init() {
	reviewsCmd.Flags().IntVarP(&reviewsCount, "count", "n", 10, "Number of posts, at most 100.")
	reviewsCmd.Flags().BoolVar(&reviewsContent, "content", false, "Scrape the body of each post.")
	rootCmd.AddCommand(reviewsCmd)
}

var reviewsCmd = &cobra.Command{
	Use:   "reviews <query>",
	Short: "Searches blog reviews of a place.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.NaverClientID == "" || cfg.NaverClientSecret == "" {
			return errors.New("NAVER_CLIENT_ID and NAVER_CLIENT_SECRET must be set")
		}
		collector := &blog.Collector{Search: blog.NewSearchClient(cfg.NaverClientID, cfg.NaverClientSecret)}
		if reviewsContent {
			fetcher, err := blog.NewFetcher(cfg.CookieFile, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := fetcher.SaveCookie(); err != nil {
					log.Warn().Err(err).Msg("could not save cookies")
				}
			}()
			collector.Fetcher = fetcher
		}

		reviews, err := collector.Collect(cmd.Context(), args[0], reviewsCount)
		if err != nil {
			return err
		}

		t := newTable()
		t.SetTitle(args[0])
		t.AppendHeader(table.Row{"date", "blogger", "title", "link"})
		for _, r := range reviews {
			t.AppendRow(table.Row{r.Date(), r.Blogger, truncate(r.Title, 40), r.Link})
		}
		t.Render()

		if reviewsContent {
			for i, r := range reviews {
				fmt.Printf("\n[%d] %v\n", i+1, r.Title)
				switch {
				case r.Err != "":
					fmt.Printf("(not scraped: %v)\n", r.Err)
				case r.Content != "":
					fmt.Println(r.Content)
				default:
					fmt.Println(r.Description)
				}
			}
		}
		return nil
	},
}
