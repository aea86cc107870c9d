// Package seoul reads the Seoul open-data tourism services. Rows come back
// as scraper.ListRecord so they share the export schema of the SPA scraper.
package seoul

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	scraper "github.com/tourlens/scraper"
)

const (
	DefaultBaseURL  = "http://openapi.seoul.go.kr:8088"
	DefaultService  = "TbVwAttractions"
	DefaultPageSize = 1000

	codeOK     = "INFO-000"
	codeNoData = "INFO-200"
)

// APIError is a RESULT block other than success.
type APIError struct {
	Code    string
	Message string
}

func (err APIError) Error() string {
	return fmt.Sprintf("seoul api %v: %v", err.Code, err.Message)
}

// FieldMap names the row keys that fill the ListRecord fields.
type FieldMap struct {
	Title string
	ID    string
	Tags  string
	X     string
	Y     string
}

func DefaultFields() FieldMap {
	return FieldMap{Title: "POST_SJ", ID: "POST_SN", Tags: "TAG"}
}

type Client struct {
	Key     string
	Service string
	Fields  FieldMap
	HTTP    *resty.Client
}

func NewClient(key, service string) *Client {
	if service == "" {
		service = DefaultService
	}
	client := resty.New()
	client.SetBaseURL(DefaultBaseURL)
	client.SetHeader("user-agent", "tourlens/1.0")
	client.SetTimeout(time.Second * 30)
	return &Client{
		Key:     key,
		Service: service,
		Fields:  DefaultFields(),
		HTTP:    client,
	}
}

// Page is one slice of a service.
type Page struct {
	TotalCount int
	Rows       [][]scraper.Field
}

type result struct {
	Code    string `json:"CODE"`
	Message string `json:"MESSAGE"`
}

type envelope struct {
	ListTotalCount int               `json:"list_total_count"`
	Result         result            `json:"RESULT"`
	Row            []json.RawMessage `json:"row"`
}

// Fetch returns rows start..end, 1-based and inclusive.
func (c *Client) Fetch(ctx context.Context, start, end int) (Page, error) {
	res, err := c.HTTP.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"key":     c.Key,
			"service": c.Service,
			"start":   strconv.Itoa(start),
			"end":     strconv.Itoa(end),
		}).
		Get("/{key}/json/{service}/{start}/{end}/")
	if err != nil {
		return Page{}, err
	}
	if res.IsError() {
		return Page{}, fmt.Errorf("seoul api: %v", res.Status())
	}
	return parsePage(res.Body(), c.Service)
}

func parsePage(body []byte, service string) (Page, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return Page{}, fmt.Errorf("seoul api: %v", err)
	}
	// errors come without the service envelope
	if raw, ok := top["RESULT"]; ok {
		var r result
		if err := json.Unmarshal(raw, &r); err != nil {
			return Page{}, fmt.Errorf("seoul api: %v", err)
		}
		if r.Code == codeNoData {
			return Page{}, nil
		}
		return Page{}, APIError{Code: r.Code, Message: r.Message}
	}
	raw, ok := top[service]
	if !ok {
		return Page{}, fmt.Errorf("seoul api: no %v in response", service)
	}
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Page{}, fmt.Errorf("seoul api: %v", err)
	}
	switch e.Result.Code {
	case codeOK, "":
	case codeNoData:
		return Page{}, nil
	default:
		return Page{}, APIError{Code: e.Result.Code, Message: e.Result.Message}
	}

	page := Page{TotalCount: e.ListTotalCount}
	for i, row := range e.Row {
		fields, err := orderedFields(row)
		if err != nil {
			return Page{}, fmt.Errorf("seoul api: row %d: %v", i, err)
		}
		page.Rows = append(page.Rows, fields)
	}
	return page, nil
}

// orderedFields decodes a flat JSON object keeping its key order.
func orderedFields(raw json.RawMessage) ([]scraper.Field, error) {
	d := json.NewDecoder(bytes.NewReader(raw))
	d.UseNumber()
	if tok, err := d.Token(); err != nil || tok != json.Delim('{') {
		return nil, fmt.Errorf("row is not an object")
	}
	var fields []scraper.Field
	for d.More() {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var v interface{}
		if err := d.Decode(&v); err != nil {
			return nil, err
		}
		fields = append(fields, scraper.Field{Key: key, Value: valueString(v)})
	}
	if _, err := d.Token(); err != nil && err != io.EOF {
		return nil, err
	}
	return fields, nil
}

func valueString(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// FetchAll pages through the whole service.
func (c *Client) FetchAll(ctx context.Context, pageSize int) ([][]scraper.Field, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	var rows [][]scraper.Field
	total := -1
	for start := 1; total < 0 || start <= total; start += pageSize {
		page, err := c.Fetch(ctx, start, start+pageSize-1)
		if err != nil {
			return rows, err
		}
		total = page.TotalCount
		rows = append(rows, page.Rows...)
		if len(page.Rows) == 0 {
			break
		}
	}
	return rows, nil
}

// Records maps rows to list records.
func (f FieldMap) Records(rows [][]scraper.Field) []scraper.ListRecord {
	records := make([]scraper.ListRecord, 0, len(rows))
	for _, row := range rows {
		record := scraper.ListRecord{}
		for _, field := range row {
			if field.Value == "" {
				continue
			}
			switch field.Key {
			case f.Title:
				record.Title = field.Value
			case f.ID:
				record.RecordID = field.Value
			case f.X:
				record.GeoX = field.Value
			case f.Y:
				record.GeoY = field.Value
			}
			record.Raw = append(record.Raw, field)
		}
		records = append(records, record)
	}
	return records
}
