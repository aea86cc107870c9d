package scraper

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type Unmarshaller interface {
	Unmarshal(s string) error
}

type UnmarshalMustBePointerError struct{}

func (err UnmarshalMustBePointerError) Error() string {
	return "must be a pointer to the value"
}

type UnmarshalUnexportedFieldError struct{}

func (err UnmarshalUnexportedFieldError) Error() string {
	return "field must be exported"
}

type UnmarshalFieldError struct {
	Field string
	Err   error
}

func (err UnmarshalFieldError) Error() string {
	e := err.Err
	fields := []string{err.Field}
	next, ok := e.(UnmarshalFieldError)
	for ok {
		fields = append(fields, next.Field)
		e = next.Err
		next, ok = e.(UnmarshalFieldError)
	}
	return fmt.Sprintf("%v: %v", strings.Join(fields, "."), e)
}

var spaces = regexp.MustCompile(`\s+`)

// normalizeText collapses runs of whitespace, as rendered table cells carry layout newlines.
func normalizeText(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

type UnmarshalOption struct {
	Attr string // if nonempty, extracts attribute of element. otherwise, uses normalized Text()
	Re   string // Regular Expression. must contain one capture.
}

func unmarshalValue(value reflect.Value, sel *goquery.Selection, opt UnmarshalOption) error {
	if !value.CanSet() {
		return errors.New("value must CanSet")
	}

	var re *regexp.Regexp
	if opt.Re != "" {
		var err error
		if re, err = regexp.Compile(opt.Re); err != nil {
			return fmt.Errorf("re:%#v: %v", opt.Re, err)
		}
	}

	type pair struct {
		Sel  *goquery.Selection
		Text string
	}
	selected := make([]pair, 0, sel.Length())
	for i := 0; i < sel.Length(); i++ {
		j := sel.Eq(i)

		var s string
		if opt.Attr != "" {
			w, ok := j.Attr(opt.Attr)
			if !ok {
				continue
			}
			s = strings.TrimSpace(w)
		} else {
			s = normalizeText(j.Text())
		}

		if re != nil {
			submatch := re.FindStringSubmatch(s)
			n := len(submatch) - 1
			if n == -1 {
				continue
			} else if n != 1 {
				return fmt.Errorf("re:%#v: matched count of the regular expression is %d, should be 0 or 1, for text %#v", opt.Re, n, s)
			}
			s = submatch[1]
		}

		selected = append(selected, pair{j, s})
	}

	if value.Kind() == reflect.Slice {
		rv := reflect.MakeSlice(value.Type(), len(selected), len(selected))
		for i := 0; i < len(selected); i++ {
			if err := unmarshalValueOne(rv.Index(i), selected[i].Sel, selected[i].Text); err != nil {
				return fmt.Errorf("#%d: %v", i, err)
			}
		}
		value.Set(rv)
		return nil
	}

	if value.Kind() == reflect.Bool {
		value.SetBool(len(selected) > 0)
		return nil
	}

	if value.Kind() == reflect.Ptr {
		if len(selected) == 0 {
			value.Set(reflect.Zero(value.Type()))
			return nil
		}
		newValue := reflect.New(value.Type().Elem())
		value.Set(newValue)
		value = newValue.Elem()
		// a pointer takes the first match
		selected = selected[:1]
	}

	if len(selected) != 1 {
		return fmt.Errorf("length(%v) != 1", len(selected))
	}

	return unmarshalValueOne(value, selected[0].Sel, selected[0].Text)
}

func unmarshalValueOne(value reflect.Value, sel *goquery.Selection, s string) error {
	if !value.CanAddr() {
		return fmt.Errorf("failed CanAddr: %v, %v", value, value.Type())
	}

	if inf, ok := value.Addr().Interface().(Unmarshaller); ok {
		return inf.Unmarshal(s)
	}

	switch value.Kind() {
	case reflect.Struct:
		return unmarshalStruct(value, sel)

	case reflect.String:
		value.SetString(s)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
		if err != nil {
			return err
		}
		value.SetInt(i)

	default:
		return fmt.Errorf("unknown type %v", value.Type())
	}
	return nil
}

func unmarshalStruct(value reflect.Value, sel *goquery.Selection) error {
	const FindTag = "find"
	const AttrTag = "attr"
	const ReTag = "re"

	vt := value.Type()
	for i := 0; i < vt.NumField(); i++ {
		fieldType := vt.Field(i)
		if fieldType.PkgPath != "" {
			return UnmarshalFieldError{fieldType.Name, UnmarshalUnexportedFieldError{}}
		}

		selected := sel
		if selector := fieldType.Tag.Get(FindTag); selector != "" {
			selected = sel.Find(selector)
		}
		opt := UnmarshalOption{
			Attr: fieldType.Tag.Get(AttrTag),
			Re:   fieldType.Tag.Get(ReTag),
		}
		if err := unmarshalValue(value.Field(i), selected, opt); err != nil {
			return UnmarshalFieldError{fieldType.Name, err}
		}
	}
	return nil
}

// Unmarshal parses selection and stores to v.
// if v is a struct, each field may specify following tags.
//   - `find` tag with CSS selector to specify sub element.
//   - `attr` tag with attribute name to get a text. if this tag not exists, get a text from text element.
//   - `re` tag with regular expression, use only matched substring from a text.
//
// A pointer field is nil when nothing matches, a bool field reports presence,
// a slice takes every match and any other field requires exactly one match.
func Unmarshal(v interface{}, selection *goquery.Selection, opt UnmarshalOption) error {
	ht := reflect.TypeOf(v)
	if ht == nil || ht.Kind() != reflect.Ptr {
		return UnmarshalMustBePointerError{}
	}
	return unmarshalValue(reflect.ValueOf(v).Elem(), selection, opt)
}

// UnmarshalHTML parses a markup fragment and unmarshals it into v.
func UnmarshalHTML(v interface{}, html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return err
	}
	return Unmarshal(v, doc.Selection, UnmarshalOption{})
}
