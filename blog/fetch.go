package blog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	cookiejar "github.com/orirawlings/persistent-cookiejar"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

const (
	UserAgent_chrome120 = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	UserAgent_default   = UserAgent_chrome120
)

// ContentSelectors are tried in order to find a post body.
var ContentSelectors = []string{"div.se-main-container", "div.post-view", "#postViewArea"}

type RequestError struct {
	RequestURL *url.URL
	Err        error
}

func (err RequestError) Error() string {
	return fmt.Sprintf("%v request error: %v", err.RequestURL.String(), err.Err)
}

type ResponseError struct {
	RequestURL *url.URL
	Status     string
}

func (err ResponseError) Error() string {
	return fmt.Sprintf("%v response code: %v", err.RequestURL.String(), err.Status)
}

// Fetcher downloads blog pages. Cookies persist in CookieFile when it is set.
type Fetcher struct {
	UserAgent string
	Encoding  encoding.Encoding // force charset over Content-Type response header
	Log       zerolog.Logger

	client http.Client
	jar    *cookiejar.Jar
}

func NewFetcher(cookieFile string, log zerolog.Logger) (*Fetcher, error) {
	options := &cookiejar.Options{NoPersist: true}
	if cookieFile != "" {
		options = &cookiejar.Options{
			Filename:              cookieFile,
			PersistSessionCookies: true,
		}
	}
	jar, err := cookiejar.New(options)
	if err != nil {
		return nil, err
	}
	return &Fetcher{
		UserAgent: UserAgent_default,
		Log:       log,
		client: http.Client{
			Jar:     jar,
			Timeout: 20 * time.Second,
		},
		jar: jar,
	}, nil
}

// SaveCookie stores cookies to the cookie file. Without one it does nothing.
func (f *Fetcher) SaveCookie() error {
	return f.jar.Save()
}

// charsetEncoding parses a charset name. UTF-8 and unknown names give nil.
func charsetEncoding(charset string) encoding.Encoding {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "euc-kr", "euckr", "cp949", "ms949", "ks_c_5601-1987", "x-windows-949":
		return korean.EUCKR
	}
	return nil
}

// convertEncodingToUtf8 converts body(given encoding) to UTF-8.
func convertEncodingToUtf8(body []byte, encoding encoding.Encoding) ([]byte, error) {
	if encoding == nil {
		return body, nil
	}
	b, _, err := transform.Bytes(encoding.NewDecoder(), body)
	if err != nil {
		return nil, err
	}
	return b, nil
}

var charsetPattern = regexp.MustCompile(`(?i)charset=["']?([\w-]+)`)

func charsetFromContentType(contentType string) string {
	if m := charsetPattern.FindStringSubmatch(contentType); m != nil {
		return m[1]
	}
	return ""
}

// Page is a downloaded, UTF-8 decoded document.
type Page struct {
	*goquery.Document
	BaseURL *url.URL
}

func (page *Page) ResolveLink(relativeURL string) (string, error) {
	u, err := page.BaseURL.Parse(relativeURL)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Get downloads rawURL and decodes it using the header or meta charset.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	userAgent := f.UserAgent
	if userAgent == "" {
		userAgent = UserAgent_default
	}
	req.Header.Set("User-agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9")

	f.Log.Debug().Str("url", rawURL).Msg("GET")
	response, err := f.client.Do(req)
	if err != nil {
		return nil, RequestError{req.URL, err}
	}
	defer response.Body.Close()

	req = response.Request // update req.URL after redirects
	if response.StatusCode/100 != 2 {
		return nil, ResponseError{req.URL, response.Status}
	}
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}

	encode := f.Encoding
	if encode == nil {
		encode = charsetEncoding(charsetFromContentType(response.Header.Get("content-type")))
	}
	if encode == nil {
		// fall back to <meta charset> / <meta http-equiv=Content-Type>
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
			if charset, ok := doc.Find("meta[charset]").Attr("charset"); ok {
				encode = charsetEncoding(charset)
			} else if content, ok := doc.Find("meta[http-equiv=Content-Type]").Attr("content"); ok {
				encode = charsetEncoding(charsetFromContentType(content))
			}
		}
	}
	if body, err = convertEncodingToUtf8(body, encode); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	doc.Url = req.URL
	return &Page{Document: doc, BaseURL: req.URL}, nil
}

// Frame returns the page loaded by the first iframe matching selector, or
// page itself when there is none.
func (f *Fetcher) Frame(ctx context.Context, page *Page, selector string) (*Page, error) {
	src, ok := page.Find(selector).First().Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return page, nil
	}
	frameURL, err := page.ResolveLink(src)
	if err != nil {
		return nil, err
	}
	return f.Get(ctx, frameURL)
}

var blankLines = regexp.MustCompile(`\n\s*\n+`)

func cleanText(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n"))
}

// ErrNoContent means none of the ContentSelectors matched text.
var ErrNoContent = errors.New("no post body found")

// Content returns the text of the post at rawURL. Blogs that wrap the post
// in iframe#mainFrame are followed into the frame.
func (f *Fetcher) Content(ctx context.Context, rawURL string) (string, error) {
	page, err := f.Get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	if page, err = f.Frame(ctx, page, "iframe#mainFrame"); err != nil {
		return "", err
	}
	for _, selector := range ContentSelectors {
		if text := cleanText(page.Find(selector).First().Text()); text != "" {
			return text, nil
		}
	}
	return "", ErrNoContent
}
