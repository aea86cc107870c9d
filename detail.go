package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type TabKind int

const (
	TabCommon TabKind = iota
	TabIntro
	TabRepeat
	TabCourse
	TabRoom
	TabImages
)

var tabNames = [...]string{"common", "intro", "repeat", "course", "room", "images"}

func (kind TabKind) String() string {
	if kind < 0 || int(kind) >= len(tabNames) {
		return fmt.Sprintf("TabKind(%d)", int(kind))
	}
	return tabNames[kind]
}

func ParseTabKind(s string) (TabKind, error) {
	for i, name := range tabNames {
		if name == s {
			return TabKind(i), nil
		}
	}
	for kind, labels := range TabLabels {
		for _, label := range labels {
			if label == s {
				return kind, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown tab %q", s)
}

type TabShape int

const (
	ShapeSingle TabShape = iota
	ShapeMulti
	ShapeURLList
)

func (kind TabKind) Shape() TabShape {
	switch kind {
	case TabRepeat, TabCourse, TabRoom:
		return ShapeMulti
	case TabImages:
		return ShapeURLList
	}
	return ShapeSingle
}

// TabLabels are the button texts of each tab. The SPA is inconsistent
// about spacing, so some kinds have variants.
var TabLabels = map[TabKind][]string{
	TabCommon: {"공통정보"},
	TabIntro:  {"소개정보"},
	TabRepeat: {"반복정보"},
	TabCourse: {"코스정보", "코스 정보"},
	TabRoom:   {"객실정보", "객실 정보"},
	TabImages: {"추가이미지"},
}

const (
	ContentTypeCourse  = "25"
	ContentTypeLodging = "32"

	detailEndpoint   = "/KorService2/detailCommon2"
	tabButtons       = "button"
	activeTabContent = "div.tab-content.on"
)

// TabsFor returns the tabs worth requesting for a record type. Course and
// lodging records carry their sub-items in dedicated tabs instead of the
// generic repeating-info tab.
func TabsFor(recordType string) []TabKind {
	multi := TabRepeat
	switch recordType {
	case ContentTypeCourse:
		multi = TabCourse
	case ContentTypeLodging:
		multi = TabRoom
	}
	return []TabKind{TabCommon, TabIntro, multi, TabImages}
}

type TabStatus int

const (
	TabPopulated TabStatus = iota + 1
	TabEmpty               // valid, nothing to show
	TabFailed
)

func (status TabStatus) String() string {
	switch status {
	case TabPopulated:
		return "populated"
	case TabEmpty:
		return "empty"
	case TabFailed:
		return "failed"
	}
	return "unknown"
}

const (
	SourceResponse = "response"
	SourceBuffer   = "buffer"
	SourceFallback = "fallback"
	SourceAbsent   = "absent"
)

// TabResult is the outcome of one tab.
type TabResult struct {
	Status  TabStatus
	Source  string
	Buffer  string // response text, synthesized when Source is SourceFallback
	Payload TabPayload
	Cause   error
}

func populated(kind TabKind, buffer, source string) TabResult {
	payload := ParseDetailTab(buffer, kind)
	if payload.Empty() {
		return TabResult{Status: TabEmpty, Source: source, Buffer: buffer, Payload: payload}
	}
	return TabResult{Status: TabPopulated, Source: source, Buffer: buffer, Payload: payload}
}

// DetailResult holds the tabs of one record.
type DetailResult struct {
	RecordID   string
	RecordType string
	Title      string
	Page       int
	Tabs       map[TabKind]TabResult
}

// Payloads returns the populated tab payloads.
func (detail DetailResult) Payloads() map[TabKind]TabPayload {
	payloads := map[TabKind]TabPayload{}
	for kind, tab := range detail.Tabs {
		if tab.Status == TabPopulated {
			payloads[kind] = tab.Payload
		}
	}
	return payloads
}

// Extractor walks the detail view of records on the current list page.
type Extractor struct {
	TabTimeout time.Duration
	BaseURL    string // resolves relative image sources in the fallback
}

func (extractor Extractor) tabTimeout() time.Duration {
	if extractor.TabTimeout <= 0 {
		return DefaultTabTimeout
	}
	return extractor.TabTimeout
}

// Extract uses the default Extractor.
func Extract(ctx context.Context, s *Session, recordID string, tabs []TabKind) (DetailResult, error) {
	return Extractor{}.Extract(ctx, s, recordID, tabs)
}

// findRecord maps a record id to its list entry using the last list buffer.
func findRecord(ctx context.Context, s *Session, recordID string) (ListRecord, int, error) {
	buffer, page := s.ListSnapshot()
	if buffer == "" {
		live, err := s.Read(ctx)
		if err != nil {
			return ListRecord{}, 0, NavigationError{Step: "read buffer", Err: err}
		}
		buffer, page = live, ParsePageNo(live)
	}
	records, _ := ParseList(buffer)
	for _, record := range records {
		if record.RecordID == recordID {
			record.Page = page
			return record, page, nil
		}
	}
	return ListRecord{}, page, RecordNotFoundError{RecordID: recordID, Page: page}
}

// Extract opens recordID's detail view and collects tabs. The common tab is
// always collected. On return the view is back on the common tab.
func (extractor Extractor) Extract(ctx context.Context, s *Session, recordID string, tabs []TabKind) (DetailResult, error) {
	record, page, err := findRecord(ctx, s, recordID)
	if err != nil {
		return DetailResult{}, err
	}
	log := s.Log.With().Str("record_id", recordID).Int("page", page).Logger()

	result := DetailResult{
		RecordID:   recordID,
		RecordType: record.RecordType,
		Title:      record.Title,
		Page:       page,
		Tabs:       map[TabKind]TabResult{},
	}

	if err := WaitVisible(galleryTitles).Do(ctx, s.Browser); err != nil {
		return result, err
	}
	responseCtx, cancel := context.WithTimeout(ctx, s.Options.responseTimeout())
	body, err := s.Browser.ExpectResponse(responseCtx, detailEndpoint, func(ctx context.Context) error {
		return ClickText(galleryTitles, record.Title, true).Do(ctx, s.Browser)
	})
	cancel()
	if err != nil {
		return result, NavigationError{Step: "open detail " + record.Title, Err: err}
	}
	common := string(body)
	if err := s.materialize(ctx, common); err != nil {
		return result, err
	}
	result.Tabs[TabCommon] = populated(TabCommon, common, SourceResponse)
	if id := lookupFirst(result.Tabs[TabCommon].Payload, "contentid"); id != "" && id != recordID {
		return result, NavigationError{Step: fmt.Sprintf("detail of %v opened %v", recordID, id)}
	}

	left := false
	for _, kind := range tabs {
		if kind == TabCommon {
			continue
		}
		tab, clicked := extractor.extractTab(ctx, s, kind)
		left = left || clicked
		result.Tabs[kind] = tab
		log.Debug().Str("tab", kind.String()).Str("status", tab.Status.String()).Str("source", tab.Source).Msg("tab done")
	}

	if left {
		if err := extractor.backToCommon(ctx, s); err != nil {
			return result, err
		}
	}
	return result, nil
}

func lookupFirst(payload TabPayload, key string) string {
	if len(payload.Rows) == 0 {
		return ""
	}
	return lookup(payload.Rows[0], key)
}

// visibleTabLabel returns the label variant of kind that is currently shown.
func visibleTabLabel(ctx context.Context, s *Session, kind TabKind) (string, error) {
	for _, label := range TabLabels[kind] {
		ok, err := s.Browser.VisibleText(ctx, tabButtons, label, false)
		if err != nil {
			return "", err
		}
		if ok {
			return label, nil
		}
	}
	return "", nil
}

// extractTab clicks one tab and reads its response, falling back to the
// rendered markup when the buffer does not move. clicked reports whether
// the view left the common tab.
func (extractor Extractor) extractTab(ctx context.Context, s *Session, kind TabKind) (tab TabResult, clicked bool) {
	label, err := visibleTabLabel(ctx, s, kind)
	if err != nil {
		return TabResult{Status: TabFailed, Cause: err}, false
	}
	if label == "" {
		return TabResult{Status: TabEmpty, Source: SourceAbsent, Payload: TabPayload{Kind: kind}}, false
	}

	previous, err := s.Read(ctx)
	if err != nil {
		return TabResult{Status: TabFailed, Cause: err}, false
	}
	if err := s.Browser.ClickText(ctx, tabButtons, label, false); err != nil {
		return TabResult{Status: TabFailed, Cause: NavigationError{Step: "click tab " + label, Err: err}}, false
	}

	timeout := extractor.tabTimeout()
	buffer, err := s.AwaitChange(ctx, previous, timeout)
	if err == nil {
		if tab := populated(kind, buffer, SourceBuffer); tab.Status == TabPopulated {
			return tab, true
		}
	} else if ctx.Err() != nil {
		return TabResult{Status: TabFailed, Cause: ctx.Err()}, true
	}

	cause := error(TabTimeoutError{Tab: kind, Timeout: timeout})
	html := extractor.renderedTab(ctx, s, kind)
	synthesized := fallbackBuffer(kind, html, extractor.BaseURL)
	if synthesized == "" {
		if err == nil {
			// the buffer moved and really is empty
			return TabResult{Status: TabEmpty, Source: SourceBuffer, Buffer: buffer, Payload: TabPayload{Kind: kind}}, true
		}
		return TabResult{Status: TabEmpty, Source: SourceFallback, Payload: TabPayload{Kind: kind}, Cause: cause}, true
	}
	tab = populated(kind, synthesized, SourceFallback)
	tab.Cause = cause
	return tab, true
}

// renderedTab waits briefly for the active tab's content and returns its markup.
func (extractor Extractor) renderedTab(ctx context.Context, s *Session, kind TabKind) string {
	ready := func(html string) bool {
		if kind.Shape() == ShapeURLList {
			return strings.Contains(html, `src="http`) || strings.Contains(html, `src="//`)
		}
		return strings.Contains(html, "<h4")
	}
	waitCtx, cancel := context.WithTimeout(ctx, extractor.tabTimeout())
	defer cancel()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	var html string
	for {
		current, err := s.Browser.OuterHTML(waitCtx, activeTabContent)
		if err == nil {
			html = current
			if ready(html) {
				return html
			}
		}
		select {
		case <-waitCtx.Done():
			return html
		case <-ticker.C:
		}
	}
}

func (extractor Extractor) backToCommon(ctx context.Context, s *Session) error {
	label, err := visibleTabLabel(ctx, s, TabCommon)
	if err != nil || label == "" {
		return NavigationError{Step: "find common tab", Err: err}
	}
	previous, err := s.Read(ctx)
	if err != nil {
		return NavigationError{Step: "read buffer", Err: err}
	}
	if err := s.Browser.ClickText(ctx, tabButtons, label, false); err != nil {
		return NavigationError{Step: "click common tab", Err: err}
	}
	_, err = s.AwaitChange(ctx, previous, extractor.tabTimeout())
	var timeout TimeoutError
	if errors.As(err, &timeout) {
		// the SPA does not always rewrite the buffer for the common response,
		// the click itself restored the view
		s.Log.Debug().Msg("common tab left the buffer unchanged")
		return nil
	}
	if err != nil {
		return NavigationError{Step: "return to common tab", Err: err}
	}
	return nil
}

// BackToList leaves the detail view for the list it was opened from.
func BackToList(ctx context.Context, s *Session) error {
	if err := s.Browser.Back(ctx); err != nil {
		return NavigationError{Step: "back to list", Err: err}
	}
	return WaitVisible(galleryList).Do(ctx, s.Browser)
}

type tabListMarkup struct {
	Labels []string `find:"div.tab-box ul.tab-type2 li button"`
}

// AvailableTabs returns the tab labels of the open detail view.
func AvailableTabs(ctx context.Context, s *Session) ([]string, error) {
	html, err := s.Browser.OuterHTML(ctx, "div.tab-box")
	if err != nil {
		return nil, err
	}
	var markup tabListMarkup
	if err := UnmarshalHTML(&markup, html); err != nil {
		return nil, err
	}
	var labels []string
	for _, label := range markup.Labels {
		if label != "" {
			labels = append(labels, label)
		}
	}
	return labels, nil
}
