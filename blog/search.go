// Package blog looks up blog reviews for a place and scrapes their text.
package blog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const DefaultSearchURL = "https://openapi.naver.com"

// Review is one blog post found for a query.
type Review struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Blogger     string `json:"bloggername"`
	PostDate    string `json:"postdate"` // YYYYMMDD
	Content     string `json:"content,omitempty"`
	Err         string `json:"error,omitempty"`
}

// Date formats PostDate as YYYY-MM-DD.
func (r Review) Date() string {
	if len(r.PostDate) != 8 {
		return r.PostDate
	}
	return r.PostDate[0:4] + "-" + r.PostDate[4:6] + "-" + r.PostDate[6:8]
}

type SearchError struct {
	Status  int
	Code    string `json:"errorCode"`
	Message string `json:"errorMessage"`
}

func (err SearchError) Error() string {
	return fmt.Sprintf("blog search %v: %v %v", err.Status, err.Code, err.Message)
}

// SearchClient calls the Naver blog search API.
type SearchClient struct {
	HTTP *resty.Client
}

func NewSearchClient(clientID, clientSecret string) *SearchClient {
	client := resty.New()
	client.SetBaseURL(DefaultSearchURL)
	client.SetHeader("X-Naver-Client-Id", clientID)
	client.SetHeader("X-Naver-Client-Secret", clientSecret)
	client.SetTimeout(time.Second * 10)
	return &SearchClient{HTTP: client}
}

type searchResult struct {
	Total int      `json:"total"`
	Items []Review `json:"items"`
}

// Search returns up to display posts for query, sorted by relevance.
func (c *SearchClient) Search(ctx context.Context, query string, display int) ([]Review, error) {
	if display <= 0 || display > 100 {
		display = 10
	}
	var result searchResult
	var apiErr SearchError
	res, err := c.HTTP.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query":   query,
			"display": strconv.Itoa(display),
			"sort":    "sim",
		}).
		SetResult(&result).
		SetError(&apiErr).
		ForceContentType("application/json").
		Get("/v1/search/blog.json")
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		apiErr.Status = res.StatusCode()
		return nil, apiErr
	}
	for i := range result.Items {
		result.Items[i].Title = stripTags(result.Items[i].Title)
		result.Items[i].Description = stripTags(result.Items[i].Description)
	}
	return result.Items, nil
}

// stripTags drops the <b> highlight markup and decodes entities.
func stripTags(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}
