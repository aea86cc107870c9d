package scraper

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

var testLog = zerolog.Nop()

// fakeRecord is one item of the scripted portal.
type fakeRecord struct {
	ID     string
	Type   string
	Title  string
	Intro  []Field
	Multi  [][]Field // repeat, course or room items depending on Type
	Images []string
}

// fakeSite is a scripted in-memory version of the portal. Every browser
// launched from it sees the same records; failure injection is shared.
type fakeSite struct {
	records   []fakeRecord
	perPage   int
	blockSize int

	// tabs whose click never moves the buffer, only the rendered markup
	stuckTabs map[TabKind]bool
	// pager clicks rewrite the buffer without moving the page
	brokenPager bool
	// searches are answered but the answer never reaches the buffer
	unwrittenSearch bool
	// modal markup by modal selector
	modals map[string]string

	mu              sync.Mutex
	failOpen        map[string]int // title -> failed clicks left
	failBack        int
	failLaunchAfter int // launches allowed, 0 for unlimited
	launches        int
	pagerClicks     []string
	stamp           int
}

func newFakeSite(records []fakeRecord) *fakeSite {
	return &fakeSite{
		records:   records,
		perPage:   ItemsPerPage,
		blockSize: 10,
		stuckTabs: map[TabKind]bool{},
		modals:    map[string]string{},
		failOpen:  map[string]int{},
	}
}

// fakeRecords returns n attractions with ids "1".."n".
func fakeRecords(n int) []fakeRecord {
	records := make([]fakeRecord, n)
	for i := range records {
		id := strconv.Itoa(i + 1)
		records[i] = fakeRecord{
			ID:     id,
			Type:   "12",
			Title:  "명소 " + id,
			Intro:  []Field{{Key: "infocenter", Value: "02-000-" + id}, {Key: "restdate", Value: "월요일"}},
			Images: []string{"https://img.test/" + id + "/a.jpg", "https://img.test/" + id + "/b.jpg"},
		}
	}
	return records
}

func (site *fakeSite) launcher() Launcher {
	return func(ctx context.Context, options BrowserOptions) (Browser, error) {
		site.mu.Lock()
		defer site.mu.Unlock()
		if site.failLaunchAfter > 0 && site.launches >= site.failLaunchAfter {
			return nil, errors.New("chrome failed to start")
		}
		site.launches++
		return newFakeSPA(site), nil
	}
}

func (site *fakeSite) launchCount() int {
	site.mu.Lock()
	defer site.mu.Unlock()
	return site.launches
}

func (site *fakeSite) clicks() []string {
	site.mu.Lock()
	defer site.mu.Unlock()
	return append([]string(nil), site.pagerClicks...)
}

func (site *fakeSite) take(counter *int) bool {
	site.mu.Lock()
	defer site.mu.Unlock()
	if *counter <= 0 {
		return false
	}
	*counter--
	return true
}

func (site *fakeSite) takeOpenFailure(title string) bool {
	site.mu.Lock()
	defer site.mu.Unlock()
	if site.failOpen[title] <= 0 {
		return false
	}
	site.failOpen[title]--
	return true
}

func (site *fakeSite) totalPages() int {
	return PagesFor(len(site.records), site.perPage)
}

func (site *fakeSite) pageRecords(page int) []fakeRecord {
	start := (page - 1) * site.perPage
	if start < 0 || start >= len(site.records) {
		return nil
	}
	end := start + site.perPage
	if end > len(site.records) {
		end = len(site.records)
	}
	return site.records[start:end]
}

func responseXML(items [][]Field, body ...Field) string {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?><response><header><resultCode>0000</resultCode><resultMsg>OK</resultMsg></header><body><items>`)
	for _, item := range items {
		buf.WriteString("<item>")
		for _, f := range item {
			buf.WriteString("<" + f.Key + ">")
			xml.EscapeText(&buf, []byte(f.Value))
			buf.WriteString("</" + f.Key + ">")
		}
		buf.WriteString("</item>")
	}
	buf.WriteString("</items>")
	for _, f := range body {
		buf.WriteString("<" + f.Key + ">" + f.Value + "</" + f.Key + ">")
	}
	buf.WriteString("</body></response>")
	return buf.String()
}

func (r fakeRecord) listItem() []Field {
	return []Field{
		{Key: "contentid", Value: r.ID},
		{Key: "contenttypeid", Value: r.Type},
		{Key: "title", Value: r.Title},
		{Key: "firstimage", Value: "https://img.test/" + r.ID + "/first.jpg"},
		{Key: "mapx", Value: "126.97" + r.ID},
		{Key: "mapy", Value: "37.57" + r.ID},
	}
}

func (site *fakeSite) listXML(page int, extra ...Field) string {
	var items [][]Field
	for _, r := range site.pageRecords(page) {
		items = append(items, r.listItem())
	}
	body := []Field{
		{Key: "numOfRows", Value: strconv.Itoa(site.perPage)},
		{Key: "pageNo", Value: strconv.Itoa(page)},
		{Key: "totalCount", Value: strconv.Itoa(len(site.records))},
	}
	return responseXML(items, append(body, extra...)...)
}

func (r fakeRecord) commonItem() []Field {
	return []Field{
		{Key: "contentid", Value: r.ID},
		{Key: "contenttypeid", Value: r.Type},
		{Key: "title", Value: r.Title},
		{Key: "homepage", Value: `<a href="https://site.test/` + r.ID + `" target="_blank">홈페이지</a>`},
		{Key: "overview", Value: r.Title + " 소개"},
	}
}

func (r fakeRecord) commonXML() string {
	return responseXML([][]Field{r.commonItem()}, Field{Key: "totalCount", Value: "1"})
}

func (r fakeRecord) multiTab() TabKind {
	return multiTabFor(r.Type)
}

func (r fakeRecord) tabXML(kind TabKind) string {
	ids := []Field{{Key: "contentid", Value: r.ID}, {Key: "contenttypeid", Value: r.Type}}
	switch kind {
	case TabCommon:
		return r.commonXML()
	case TabIntro:
		return responseXML([][]Field{append(ids, r.Intro...)})
	case TabImages:
		var items [][]Field
		for _, src := range r.Images {
			items = append(items, []Field{{Key: "contentid", Value: r.ID}, {Key: "originimgurl", Value: src}})
		}
		return responseXML(items)
	}
	var items [][]Field
	for _, item := range r.Multi {
		items = append(items, append(append([]Field(nil), ids...), item...))
	}
	return responseXML(items)
}

// tabs lists the tab kinds the detail view of r offers.
func (r fakeRecord) tabs() []TabKind {
	tabs := []TabKind{TabCommon, TabIntro}
	switch {
	case r.Type == ContentTypeCourse || r.Type == ContentTypeLodging:
		tabs = append(tabs, r.multiTab())
	case len(r.Multi) > 0:
		tabs = append(tabs, TabRepeat)
	}
	return append(tabs, TabImages)
}

// renderedTab is the markup the detail view shows for kind.
func (r fakeRecord) renderedTab(kind TabKind) string {
	var buf strings.Builder
	buf.WriteString(`<div class="tab-content on"><h4>` + TabLabels[kind][0] + `</h4>`)
	table := func(fields []Field) {
		buf.WriteString("<table><tbody>")
		for _, f := range fields {
			buf.WriteString(`<tr><td class="th">` + f.Key + `</td><td>` + f.Value + `</td></tr>`)
		}
		buf.WriteString("</tbody></table>")
	}
	switch kind.Shape() {
	case ShapeURLList:
		for _, src := range r.Images {
			buf.WriteString(`<img src="` + src + `">`)
		}
	case ShapeMulti:
		for _, item := range r.Multi {
			table(item)
		}
	default:
		table(r.Intro)
	}
	buf.WriteString("</div>")
	return buf.String()
}

type fakeView int

const (
	viewBlank fakeView = iota
	viewSearch
	viewList
	viewDetail
)

// fakeSPA is one browser on a fakeSite. Like a Session it is used by one
// goroutine at a time.
type fakeSPA struct {
	site *fakeSite

	view      fakeView
	route     string
	page      int
	record    *fakeRecord
	tab       TabKind
	buffer    string
	values    map[string]string
	responses map[string]string
	closed    bool

	// mutating interactions, in order
	log []string
}

func newFakeSPA(site *fakeSite) *fakeSPA {
	return &fakeSPA{
		site:   site,
		values: map[string]string{},
	}
}

var (
	pagerValueClick = regexp.MustCompile(`^div\.paging button\[value="(\d+)"\]$`)
	pagerNameClick  = regexp.MustCompile(`^div\.paging button\[name="(\w+)"\]$`)
)

// routeEndpoints maps a route suffix to the call its search issues.
var routeEndpoints = map[string]SearchKind{
	"useInforArea":     SearchArea,
	"useInforLocation": SearchLocation,
	"useInforKeyword":  SearchKeyword,
	"useInforFestival": SearchDate,
}

func (b *fakeSPA) respond(url, body string) {
	if b.responses != nil {
		b.responses[url] = body
	}
}

func (b *fakeSPA) Navigate(ctx context.Context, url string) error {
	if b.closed {
		return ErrSessionClosed
	}
	b.log = append(b.log, "navigate "+url)
	b.view = viewSearch
	b.route = url
	b.page = 0
	b.record = nil
	b.buffer = ""
	return nil
}

func (b *fakeSPA) Back(ctx context.Context) error {
	if b.view != viewDetail {
		return errors.New("no history")
	}
	if b.site.take(&b.site.failBack) {
		return errors.New("history.back did not settle")
	}
	b.view = viewList
	b.record = nil
	return nil
}

// block returns the page numbers rendered with the current page.
func (b *fakeSPA) block() (pages []int, first, last bool) {
	total := b.site.totalPages()
	start := (b.page-1)/b.site.blockSize*b.site.blockSize + 1
	end := start + b.site.blockSize - 1
	if end > total {
		end = total
	}
	for n := start; n <= end; n++ {
		pages = append(pages, n)
	}
	return pages, start == 1, end == total
}

func (b *fakeSPA) showPage(page int) {
	b.page = page
	b.buffer = b.site.listXML(page)
}

func (b *fakeSPA) clickPager(selector string) error {
	if b.view != viewList {
		return fmt.Errorf("no visible %v", selector)
	}
	b.site.mu.Lock()
	b.site.pagerClicks = append(b.site.pagerClicks, selector)
	b.site.stamp++
	stamp := b.site.stamp
	b.site.mu.Unlock()

	pages, firstBlock, lastBlock := b.block()
	target := 0
	if m := pagerValueClick.FindStringSubmatch(selector); m != nil {
		n, _ := strconv.Atoi(m[1])
		for _, p := range pages {
			if p == n {
				target = n
			}
		}
	} else if m := pagerNameClick.FindStringSubmatch(selector); m != nil {
		switch m[1] {
		case "first":
			if !firstBlock {
				target = 1
			}
		case "prev":
			if !firstBlock {
				target = pages[0] - 1
			}
		case "next":
			if !lastBlock {
				target = pages[len(pages)-1] + 1
			}
		case "last":
			if !lastBlock {
				target = b.site.totalPages()
			}
		}
	}
	if target == 0 {
		return fmt.Errorf("no visible %v", selector)
	}
	if b.site.brokenPager {
		b.buffer = b.site.listXML(b.page, Field{Key: "stamp", Value: strconv.Itoa(stamp)})
		return nil
	}
	b.showPage(target)
	return nil
}

func (b *fakeSPA) Click(ctx context.Context, selector string) error {
	if b.closed {
		return ErrSessionClosed
	}
	if strings.HasPrefix(selector, pagerSelector+" ") {
		return b.clickPager(selector)
	}
	b.log = append(b.log, "click "+selector)
	return nil
}

func matchText(got, want string, exact bool) bool {
	got = normalizeText(got)
	if exact {
		return got == want
	}
	return strings.Contains(got, want)
}

func (b *fakeSPA) tabFor(label string, exact bool) (TabKind, bool) {
	if b.record == nil {
		return 0, false
	}
	for _, kind := range b.record.tabs() {
		for _, l := range TabLabels[kind] {
			if matchText(l, label, exact) {
				return kind, true
			}
		}
	}
	return 0, false
}

func (b *fakeSPA) ClickText(ctx context.Context, selector, text string, exact bool) error {
	if b.closed {
		return ErrSessionClosed
	}
	switch {
	case selector == searchButton && text == "검색":
		if b.view != viewSearch && b.view != viewList {
			return fmt.Errorf("no visible %v", selector)
		}
		kind := SearchArea
		for suffix, k := range routeEndpoints {
			if strings.HasSuffix(b.route, suffix) {
				kind = k
			}
		}
		b.view = viewList
		b.values[RequestURLSelector] = "https://apis.test/B551011" + kind.Endpoint() + "?pageNo=1"
		if b.site.unwrittenSearch {
			b.page = 1
			b.respond(kind.Endpoint(), b.site.listXML(1))
			return nil
		}
		b.showPage(1)
		b.respond(kind.Endpoint(), b.buffer)
		return nil

	case selector == galleryTitles:
		if b.view != viewList {
			return fmt.Errorf("no visible %v", selector)
		}
		for _, r := range b.site.pageRecords(b.page) {
			if !matchText(r.Title, text, exact) {
				continue
			}
			if b.site.takeOpenFailure(r.Title) {
				return errors.New("element is not clickable")
			}
			record := r
			b.view = viewDetail
			b.record = &record
			b.tab = TabCommon
			// the detail response does not reach the buffer by itself
			b.respond(detailEndpoint, record.commonXML())
			return nil
		}
		return fmt.Errorf("no visible %v with text %q", selector, text)

	case selector == tabButtons && b.view == viewDetail:
		kind, ok := b.tabFor(text, exact)
		if !ok {
			return fmt.Errorf("no visible tab %q", text)
		}
		b.tab = kind
		if kind == TabCommon || !b.site.stuckTabs[kind] {
			b.buffer = b.record.tabXML(kind)
		}
		return nil
	}
	b.log = append(b.log, fmt.Sprintf("clicktext %v|%v", selector, text))
	return nil
}

func (b *fakeSPA) VisibleText(ctx context.Context, selector, text string, exact bool) (bool, error) {
	if b.closed {
		return false, ErrSessionClosed
	}
	if selector == tabButtons && b.view == viewDetail {
		_, ok := b.tabFor(text, exact)
		return ok, nil
	}
	return false, nil
}

func (b *fakeSPA) visible(selector string) bool {
	switch selector {
	case galleryTitles, galleryList:
		return b.view == viewList
	case searchFilterBox:
		return b.view == viewSearch || b.view == viewList
	}
	return b.view != viewBlank
}

func (b *fakeSPA) WaitVisible(ctx context.Context, selector string) error {
	if b.closed {
		return ErrSessionClosed
	}
	if !b.visible(selector) {
		return fmt.Errorf("%v never became visible", selector)
	}
	return nil
}

func (b *fakeSPA) WaitHidden(ctx context.Context, selector string) error {
	if b.closed {
		return ErrSessionClosed
	}
	return nil
}

func (b *fakeSPA) Fill(ctx context.Context, selector, value string) error {
	if b.closed {
		return ErrSessionClosed
	}
	b.log = append(b.log, fmt.Sprintf("fill %v=%v", selector, value))
	b.values[selector] = value
	return nil
}

func (b *fakeSPA) Value(ctx context.Context, selector string) (string, error) {
	if b.closed {
		return "", ErrSessionClosed
	}
	if selector == ResponseBufferSelector {
		return b.buffer, nil
	}
	return b.values[selector], nil
}

func (b *fakeSPA) SetValue(ctx context.Context, selector, value string) error {
	if b.closed {
		return ErrSessionClosed
	}
	if selector == ResponseBufferSelector {
		b.buffer = value
		return nil
	}
	b.values[selector] = value
	return nil
}

func (b *fakeSPA) pagerHTML() string {
	if b.view != viewList || b.site.totalPages() <= 1 {
		return ""
	}
	pages, firstBlock, lastBlock := b.block()
	control := func(name, label string, disabled bool) string {
		if disabled {
			return fmt.Sprintf(`<button type="button" name="%v" disabled>%v</button>`, name, label)
		}
		return fmt.Sprintf(`<button type="button" name="%v">%v</button>`, name, label)
	}
	var buf strings.Builder
	buf.WriteString(`<div class="paging">`)
	buf.WriteString(control("first", "처음", firstBlock))
	buf.WriteString(control("prev", "이전", firstBlock))
	for _, n := range pages {
		class := ""
		if n == b.page {
			class = ` class="on"`
		}
		fmt.Fprintf(&buf, `<button type="button" value="%d"%v>%d</button>`, n, class, n)
	}
	buf.WriteString(control("next", "다음", lastBlock))
	buf.WriteString(control("last", "끝", lastBlock))
	buf.WriteString(`</div>`)
	return buf.String()
}

func (b *fakeSPA) OuterHTML(ctx context.Context, selector string) (string, error) {
	if b.closed {
		return "", ErrSessionClosed
	}
	switch selector {
	case pagerSelector:
		return b.pagerHTML(), nil
	case activeTabContent:
		if b.view != viewDetail {
			return "", nil
		}
		return b.record.renderedTab(b.tab), nil
	case "div.tab-box":
		if b.view != viewDetail {
			return "", nil
		}
		var buf strings.Builder
		buf.WriteString(`<div class="tab-box"><ul class="tab-type2">`)
		for _, kind := range b.record.tabs() {
			buf.WriteString("<li><button>" + TabLabels[kind][0] + "</button></li>")
		}
		buf.WriteString(`</ul></div>`)
		return buf.String(), nil
	case geoXInput:
		if b.view == viewSearch {
			return `<input type="text" id="searchXCoord">`, nil
		}
		return "", nil
	}
	return b.site.modals[selector], nil
}

func (b *fakeSPA) ExpectResponse(ctx context.Context, urlContains string, trigger func(ctx context.Context) error) ([]byte, error) {
	if b.closed {
		return nil, ErrSessionClosed
	}
	b.responses = map[string]string{}
	defer func() { b.responses = nil }()
	if err := trigger(ctx); err != nil {
		return nil, err
	}
	for url, body := range b.responses {
		if strings.Contains(url, urlContains) {
			return []byte(body), nil
		}
	}
	return nil, fmt.Errorf("no response matching %v", urlContains)
}

func (b *fakeSPA) Close() error {
	if b.closed {
		return ErrSessionClosed
	}
	b.closed = true
	return nil
}

// searchedSession returns a session whose list shows page 1 of an empty
// area search on site.
func searchedSession(t testing.TB, site *fakeSite) (*Session, *fakeSPA, PageCursor) {
	t.Helper()
	b := newFakeSPA(site)
	s := NewSession(b, BrowserOptions{}, testLog)
	ctx := context.Background()
	routes := DefaultRoutes("https://portal.test/")
	if err := Apply(ctx, s, routes, SearchFilter{}); err != nil {
		t.Fatal(err)
	}
	cursor, err := Search(ctx, s, SearchFilter{}, ItemsPerPage)
	if err != nil {
		t.Fatal(err)
	}
	return s, b, cursor
}
