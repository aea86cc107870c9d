package scraper

import (
	"fmt"
	"regexp"
	"strings"
)

// Category groups keys for the column layout. Columns are laid out in
// category order, and in first-seen order inside a category.
type Category int

const (
	CategoryList Category = iota
	CategoryCommon
	CategoryIntro
	CategoryRepeat // repeating info, course legs and rooms
	CategoryImage
	numCategories
)

func (c Category) String() string {
	return [...]string{"list", "common", "intro", "repeat", "image"}[c]
}

func categoryOf(kind TabKind) Category {
	switch kind {
	case TabCommon:
		return CategoryCommon
	case TabIntro:
		return CategoryIntro
	case TabRepeat, TabCourse, TabRoom:
		return CategoryRepeat
	}
	return CategoryImage
}

// KeyRegistry records every column key once, in first-seen order per category.
type KeyRegistry struct {
	seen map[string]Category
	keys [numCategories][]string
}

func NewKeyRegistry() *KeyRegistry {
	return &KeyRegistry{seen: map[string]Category{}}
}

func (r *KeyRegistry) Add(category Category, key string) {
	if _, ok := r.seen[key]; ok {
		return
	}
	r.seen[key] = category
	r.keys[category] = append(r.keys[category], key)
}

func (r *KeyRegistry) Keys(category Category) []string {
	return append([]string(nil), r.keys[category]...)
}

// Columns is the final column layout.
func (r *KeyRegistry) Columns() []string {
	var columns []string
	for _, keys := range r.keys {
		columns = append(columns, keys...)
	}
	return columns
}

// Row is an ordered record. Add never overwrites: a repeated key gets a
// numeric suffix, even when the value is the same.
type Row struct {
	fields []Field
	index  map[string]int
}

func NewRow() *Row {
	return &Row{index: map[string]int{}}
}

// Add stores value under key, or the first free key_2, key_3... if taken,
// and returns the key used.
func (r *Row) Add(key, value string) string {
	actual := key
	for n := 2; ; n++ {
		if _, ok := r.index[actual]; !ok {
			break
		}
		actual = fmt.Sprintf("%v_%d", key, n)
	}
	r.index[actual] = len(r.fields)
	r.fields = append(r.fields, Field{Key: actual, Value: value})
	return actual
}

func (r *Row) Get(key string) (string, bool) {
	i, ok := r.index[key]
	if !ok {
		return "", false
	}
	return r.fields[i].Value, true
}

func (r *Row) Fields() []Field {
	return append([]Field(nil), r.fields...)
}

func (r *Row) Len() int {
	return len(r.fields)
}

func (r *Row) clone() *Row {
	c := &Row{
		fields: append([]Field(nil), r.fields...),
		index:  make(map[string]int, len(r.index)),
	}
	for k, v := range r.index {
		c.index[k] = v
	}
	return c
}

const DefaultMaxImages = 5

// Normalizer flattens list and detail payloads into rows sharing one key registry.
type Normalizer struct {
	Registry  *KeyRegistry
	MaxImages int
}

func NewNormalizer() *Normalizer {
	return &Normalizer{Registry: NewKeyRegistry(), MaxImages: DefaultMaxImages}
}

var hrefPattern = regexp.MustCompile(`href=["']([^"']+)["']`)
var tagPattern = regexp.MustCompile(`<[^>]*>`)

// cleanValue extracts the link from homepage values, which arrive as anchors.
func cleanValue(key, value string) string {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(key, "homepage") {
		if m := hrefPattern.FindStringSubmatch(value); m != nil {
			return m[1]
		}
		return strings.TrimSpace(tagPattern.ReplaceAllString(value, ""))
	}
	return value
}

func (n *Normalizer) add(row *Row, category Category, fields []Field) {
	for _, f := range fields {
		value := cleanValue(f.Key, f.Value)
		if value == "" {
			continue
		}
		n.Registry.Add(category, row.Add(f.Key, value))
	}
}

// FlattenList returns one row per list record.
func (n *Normalizer) FlattenList(records []ListRecord) []*Row {
	rows := make([]*Row, 0, len(records))
	for _, record := range records {
		row := NewRow()
		n.add(row, CategoryList, record.Raw)
		rows = append(rows, row)
	}
	return rows
}

// multiTabFor is the only multi-row tab a record type may contribute.
func multiTabFor(recordType string) TabKind {
	switch recordType {
	case ContentTypeCourse:
		return TabCourse
	case ContentTypeLodging:
		return TabRoom
	}
	return TabRepeat
}

// FlattenDetail merges the list fields of a record and its tabs. A record
// whose multi-row tab has N sub-items yields N rows sharing the parent fields.
func (n *Normalizer) FlattenDetail(base []Field, tabs map[TabKind]TabPayload, recordType string) []*Row {
	parent := NewRow()
	n.add(parent, CategoryList, base)
	for _, kind := range []TabKind{TabCommon, TabIntro} {
		if rows := tabs[kind].Rows; len(rows) > 0 {
			n.add(parent, categoryOf(kind), rows[0])
		}
	}

	var rows []*Row
	subs := tabs[multiTabFor(recordType)].Rows
	if len(subs) == 0 {
		rows = []*Row{parent}
	}
	for _, sub := range subs {
		row := parent.clone()
		n.add(row, CategoryRepeat, sub)
		rows = append(rows, row)
	}

	images := tabs[TabImages].Images
	if n.MaxImages > 0 && len(images) > n.MaxImages {
		images = images[:n.MaxImages]
	}
	for _, row := range rows {
		for i, src := range images {
			n.add(row, CategoryImage, []Field{{Key: fmt.Sprintf("image_url_%d", i+1), Value: src}})
		}
	}
	return rows
}

// Table is the flattened export.
type Table struct {
	Columns []string
	Rows    []*Row
}

// Table lays rows out with the registry's columns.
func (n *Normalizer) Table(rows []*Row) *Table {
	return &Table{Columns: n.Registry.Columns(), Rows: rows}
}

// Records returns the cells of every row in column order, "" where a row lacks a column.
func (t *Table) Records() [][]string {
	records := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		record := make([]string, len(t.Columns))
		for i, column := range t.Columns {
			record[i], _ = row.Get(column)
		}
		records = append(records, record)
	}
	return records
}
