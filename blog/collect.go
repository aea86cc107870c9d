package blog

import (
	"context"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Collector searches posts and scrapes their bodies.
type Collector struct {
	Search   *SearchClient
	Fetcher  *Fetcher
	Parallel int
	// Hosts whose posts are scraped; others keep only the search snippet.
	Hosts []string
}

func (c *Collector) scrapable(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	hosts := c.Hosts
	if len(hosts) == 0 {
		hosts = []string{"blog.naver.com"}
	}
	for _, host := range hosts {
		if u.Hostname() == host || strings.HasSuffix(u.Hostname(), "."+host) {
			return true
		}
	}
	return false
}

// Collect returns up to n reviews for query. Scrape failures are stored on
// the review, they do not fail the call.
func (c *Collector) Collect(ctx context.Context, query string, n int) ([]Review, error) {
	reviews, err := c.Search.Search(ctx, query, n)
	if err != nil {
		return nil, err
	}
	if c.Fetcher == nil {
		return reviews, nil
	}

	var g errgroup.Group
	parallel := c.Parallel
	if parallel <= 0 {
		parallel = 4
	}
	g.SetLimit(parallel)
	for i := range reviews {
		if !c.scrapable(reviews[i].Link) {
			continue
		}
		g.Go(func() error {
			content, err := c.Fetcher.Content(ctx, reviews[i].Link)
			if err != nil {
				reviews[i].Err = err.Error()
				return nil
			}
			reviews[i].Content = content
			return nil
		})
	}
	g.Wait()
	return reviews, nil
}
