package scraper

import (
	"bytes"
	"encoding/xml"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var tagSanitizer = regexp.MustCompile(`[^A-Za-z0-9_가-힣]`)

type tableRowMarkup struct {
	Key   *string `find:"td.th"`
	Value *string `find:"td:not(.th)"`
}

type tableMarkup struct {
	Rows []tableRowMarkup `find:"tbody > tr"`
}

type tabContentMarkup struct {
	Tables []tableMarkup `find:"table"`
	Images []string      `find:"img" attr:"src"`
}

func (row tableRowMarkup) field() (Field, bool) {
	if row.Key == nil || row.Value == nil {
		return Field{}, false
	}
	key := tagSanitizer.ReplaceAllString(strings.TrimSpace(*row.Key), "")
	if key == "" {
		return Field{}, false
	}
	// element names cannot start with a digit
	if first, _ := utf8.DecodeRuneInString(key); !unicode.IsLetter(first) && first != '_' {
		key = "_" + key
	}
	return Field{Key: key, Value: strings.TrimSpace(*row.Value)}, true
}

// fallbackBuffer rebuilds a tab response from the rendered tab content.
// It returns "" when the markup carries nothing usable.
func fallbackBuffer(kind TabKind, html, baseURL string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	var content tabContentMarkup
	if err := UnmarshalHTML(&content, html); err != nil {
		return ""
	}

	var items [][]Field
	switch kind.Shape() {
	case ShapeURLList:
		for _, src := range imageSources(content.Images, baseURL) {
			items = append(items, []Field{{Key: "originimgurl", Value: src}})
		}
	case ShapeMulti:
		// one table per sub-item
		for _, table := range content.Tables {
			var item []Field
			for _, row := range table.Rows {
				if f, ok := row.field(); ok {
					item = append(item, f)
				}
			}
			if len(item) > 0 {
				items = append(items, item)
			}
		}
	default:
		var item []Field
		for _, table := range content.Tables {
			for _, row := range table.Rows {
				if f, ok := row.field(); ok {
					item = append(item, f)
				}
			}
		}
		if len(item) > 0 {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return ""
	}
	return synthesizeResponse(items)
}

// imageSources keeps absolute http(s) sources, in order, without duplicates.
func imageSources(sources []string, baseURL string) []string {
	base, _ := url.Parse(baseURL)
	seen := map[string]bool{}
	var urls []string
	for _, src := range sources {
		u, err := url.Parse(strings.TrimSpace(src))
		if err != nil || src == "" {
			continue
		}
		if !u.IsAbs() {
			if base == nil || baseURL == "" {
				if !strings.HasPrefix(src, "//") {
					continue
				}
				u.Scheme = "https"
			} else {
				u = base.ResolveReference(u)
			}
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		s := u.String()
		if seen[s] {
			continue
		}
		seen[s] = true
		urls = append(urls, s)
	}
	return urls
}

func synthesizeResponse(items [][]Field) string {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?><response><body><items>`)
	for _, item := range items {
		buf.WriteString("<item>")
		for _, f := range item {
			buf.WriteString("<" + f.Key + ">")
			xml.EscapeText(&buf, []byte(f.Value))
			buf.WriteString("</" + f.Key + ">")
		}
		buf.WriteString("</item>")
	}
	buf.WriteString(`</items></body></response>`)
	return buf.String()
}
