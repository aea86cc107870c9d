package scraper

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"
)

// Field is one key/value pair, kept in document order.
type Field struct {
	Key   string
	Value string
}

// ListRecord is one entry of a list page.
type ListRecord struct {
	Title      string
	ImageURL   string
	GeoX       string
	GeoY       string
	RecordID   string
	RecordType string
	Page       int     // list page the record was seen on, 0 if unknown
	Raw        []Field // every field of the item, in order
}

// payload is a response envelope: <response><header/><body><items><item/>...</items>...</body></response>.
// The parser is lenient about the outer elements and keys on items/item and body.
type payload struct {
	items [][]Field
	body  map[string]string
}

func parsePayload(buffer string) payload {
	var p payload
	if strings.TrimSpace(buffer) == "" {
		return p
	}

	d := xml.NewDecoder(strings.NewReader(buffer))
	d.Strict = false
	d.AutoClose = xml.HTMLAutoClose
	d.Entity = xml.HTMLEntity
	d.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		// the buffer is already decoded text
		return input, nil
	}

	var path []string
	var item []Field
	var items [][]Field
	var text strings.Builder
	body := map[string]string{}
	inItem := -1 // depth of the current <item>, -1 outside
	parent := func(n int) string {
		if len(path) < n {
			return ""
		}
		return path[len(path)-n]
	}

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return payload{}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			switch {
			case inItem < 0 && name == "item" && parent(1) == "items":
				inItem = len(path)
				item = nil
			case inItem >= 0 && len(path) == inItem+1:
				text.Reset()
			case inItem < 0 && parent(1) == "body":
				text.Reset()
			}
			path = append(path, name)
		case xml.CharData:
			if inItem >= 0 && len(path) > inItem+1 {
				text.Write(t)
			} else if inItem < 0 && parent(2) == "body" {
				text.Write(t)
			}
		case xml.EndElement:
			if len(path) == 0 {
				continue
			}
			name := path[len(path)-1]
			path = path[:len(path)-1]
			switch {
			case inItem >= 0 && len(path) == inItem+1:
				item = append(item, Field{Key: name, Value: strings.TrimSpace(text.String())})
			case inItem >= 0 && len(path) == inItem:
				items = append(items, item)
				inItem = -1
			case inItem < 0 && parent(1) == "body" && name != "items":
				body[name] = strings.TrimSpace(text.String())
			}
		}
	}
	p.items = items
	p.body = body
	return p
}

func (p payload) bodyInt(key string) int {
	n, err := strconv.Atoi(p.body[key])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func lookup(fields []Field, key string) string {
	for _, f := range fields {
		if f.Key == key {
			return f.Value
		}
	}
	return ""
}

func hasKey(fields []Field, key string) bool {
	for _, f := range fields {
		if f.Key == key {
			return true
		}
	}
	return false
}

// ParseList parses a list payload. Malformed input yields no records and a zero count.
func ParseList(buffer string) ([]ListRecord, int) {
	p := parsePayload(buffer)
	var records []ListRecord
	for _, item := range p.items {
		var raw []Field
		for _, f := range item {
			if f.Value != "" {
				raw = append(raw, f)
			}
		}
		records = append(records, ListRecord{
			Title:      lookup(item, "title"),
			ImageURL:   lookup(item, "firstimage"),
			GeoX:       lookup(item, "mapx"),
			GeoY:       lookup(item, "mapy"),
			RecordID:   lookup(item, "contentid"),
			RecordType: lookup(item, "contenttypeid"),
			Raw:        raw,
		})
	}
	return records, p.bodyInt("totalCount")
}

// ParsePageNo returns the pageNo of a payload, 0 if absent.
func ParsePageNo(buffer string) int {
	return parsePayload(buffer).bodyInt("pageNo")
}

// IsListPayload reports whether buffer looks like a list response rather
// than a detail or tab response.
func IsListPayload(buffer string) bool {
	p := parsePayload(buffer)
	if _, ok := p.body["totalCount"]; !ok {
		return false
	}
	for _, item := range p.items {
		if !hasKey(item, "title") || hasKey(item, "overview") || hasKey(item, "homepage") {
			return false
		}
	}
	return true
}

// TabPayload is the structured content of one detail tab.
type TabPayload struct {
	Kind   TabKind
	Rows   [][]Field // single-row kinds carry at most one row
	Images []string  // image kind only
}

func (p TabPayload) Empty() bool {
	return len(p.Rows) == 0 && len(p.Images) == 0
}

// ParseDetailTab parses a tab response into the shape of its kind.
func ParseDetailTab(buffer string, kind TabKind) TabPayload {
	p := parsePayload(buffer)
	result := TabPayload{Kind: kind}
	switch kind.Shape() {
	case ShapeSingle:
		for _, item := range p.items {
			if len(item) > 0 {
				result.Rows = [][]Field{item}
				break
			}
		}
	case ShapeMulti:
		for _, item := range p.items {
			if len(item) > 0 {
				result.Rows = append(result.Rows, item)
			}
		}
	case ShapeURLList:
		seen := map[string]bool{}
		for _, item := range p.items {
			url := lookup(item, "originimgurl")
			if url == "" {
				url = lookup(item, "smallimageurl")
			}
			if url == "" || seen[url] {
				continue
			}
			seen[url] = true
			result.Images = append(result.Images, url)
		}
	}
	return result
}
