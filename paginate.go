package scraper

import (
	"context"
	"fmt"
	"sort"
	"strconv"
)

const (
	// ItemsPerPage is the SPA's fixed list page size.
	ItemsPerPage = 12
	// MaxPagerIterations bounds GotoPage.
	MaxPagerIterations = 50

	pagerSelector = "div.paging"
)

// PageCursor is the navigator's view of the pager. TotalPages 0 means unknown.
type PageCursor struct {
	CurrentPage int
	TotalPages  int
	TotalCount  int
}

// PagesFor returns the number of pages needed for count records.
func PagesFor(count, perPage int) int {
	if count <= 0 || perPage <= 0 {
		return 0
	}
	return (count + perPage - 1) / perPage
}

type pagerMarkup struct {
	Current     *string  `find:"button.on" attr:"value"`
	CurrentText *string  `find:"button.on"`
	Pages       []string `find:"button[value]" attr:"value"`
	First       bool     `find:"button[name=first]:not([disabled])"`
	Prev        bool     `find:"button[name=prev]:not([disabled])"`
	Next        bool     `find:"button[name=next]:not([disabled])"`
	Last        bool     `find:"button[name=last]:not([disabled])"`
}

// pagerState is what the rendered pager offers right now.
type pagerState struct {
	Current int
	Visible []int
	First   bool
	Prev    bool
	Next    bool
	Last    bool
}

func parsePager(html string) (pagerState, error) {
	var markup pagerMarkup
	if err := UnmarshalHTML(&markup, html); err != nil {
		return pagerState{}, err
	}
	state := pagerState{
		First: markup.First,
		Prev:  markup.Prev,
		Next:  markup.Next,
		Last:  markup.Last,
	}
	for _, current := range []*string{markup.Current, markup.CurrentText} {
		if current == nil {
			continue
		}
		if n, err := strconv.Atoi(*current); err == nil && n > 0 {
			state.Current = n
			break
		}
	}
	seen := map[int]bool{}
	for _, v := range markup.Pages {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || seen[n] {
			continue
		}
		seen[n] = true
		state.Visible = append(state.Visible, n)
	}
	sort.Ints(state.Visible)
	return state, nil
}

type stepKind int

const (
	stepNone stepKind = iota
	stepDirect
	stepFirst
	stepLast
	stepNext
	stepPrev
)

func (kind stepKind) String() string {
	return [...]string{"none", "direct", "first", "last", "next", "prev"}[kind]
}

type pagerStep struct {
	Kind stepKind
	Page int // for stepDirect
}

func (step pagerStep) selector() string {
	if step.Kind == stepDirect {
		return fmt.Sprintf(`%v button[value="%d"]`, pagerSelector, step.Page)
	}
	return fmt.Sprintf(`%v button[name="%v"]`, pagerSelector, step.Kind)
}

// planStep picks the next pager interaction. Direct clicks win whenever the
// target is visible. first/last are only considered when total is known and
// the target is strictly closer to that end than to the current page, so a
// jump never has to be undone by the opposite jump.
func planStep(state pagerState, target, total int) (pagerStep, error) {
	current := state.Current
	if current == target {
		return pagerStep{Kind: stepNone}, nil
	}
	for _, n := range state.Visible {
		if n == target {
			return pagerStep{Kind: stepDirect, Page: n}, nil
		}
	}

	forward := target > current
	if total > 0 {
		if forward && state.Last && total-target < target-current {
			return pagerStep{Kind: stepLast}, nil
		}
		if !forward && state.First && target-1 < current-target {
			return pagerStep{Kind: stepFirst}, nil
		}
	}
	if forward && state.Next {
		return pagerStep{Kind: stepNext}, nil
	}
	if !forward && state.Prev {
		return pagerStep{Kind: stepPrev}, nil
	}

	// no block control: move to the visible edge nearest the target
	edge := 0
	for _, n := range state.Visible {
		if forward && n > current && n > edge {
			edge = n
		}
		if !forward && n < current && (edge == 0 || n < edge) {
			edge = n
		}
	}
	if edge > 0 {
		return pagerStep{Kind: stepDirect, Page: edge}, nil
	}
	return pagerStep{}, NavigationError{Step: fmt.Sprintf("pager has no control towards page %d from page %d", target, current)}
}

func readPager(ctx context.Context, s *Session) (pagerState, error) {
	html, err := s.Browser.OuterHTML(ctx, pagerSelector)
	if err != nil {
		return pagerState{}, err
	}
	return parsePager(html)
}

// confirmPage checks that the list buffer reflects target.
func (s *Session) confirmPage(ctx context.Context, target int) error {
	if buffer, page := s.ListSnapshot(); buffer != "" && page == target {
		return nil
	}
	isTarget := func(buffer string) bool {
		if !IsListPayload(buffer) {
			return false
		}
		page := ParsePageNo(buffer)
		return page == target || page == 0
	}
	buffer, err := s.awaitBuffer(ctx, DefaultControlTimeout, fmt.Sprintf("list page %d", target), isTarget)
	if err != nil {
		return NavigationError{Step: fmt.Sprintf("confirm page %d", target), Err: err}
	}
	s.rememberList(buffer, target)
	return nil
}

// GotoPage moves the SPA to target. The returned cursor is only advanced
// after the buffer confirms the page.
func GotoPage(ctx context.Context, s *Session, cursor PageCursor, target int) (PageCursor, error) {
	if target < 1 || (cursor.TotalPages > 0 && target > cursor.TotalPages) {
		return cursor, InvalidPageError{Target: target, TotalPages: cursor.TotalPages}
	}
	log := s.Log.With().Int("target", target).Logger()

	lastSeen := cursor.CurrentPage
	for i := 0; i < MaxPagerIterations; i++ {
		state, err := readPager(ctx, s)
		if err != nil {
			return cursor, NavigationError{Step: "read pager", Err: err}
		}
		if state.Current == 0 {
			// a single result page renders no pager
			state.Current = lastSeen
			if state.Current == 0 {
				state.Current = 1
			}
		}
		lastSeen = state.Current

		step, err := planStep(state, target, cursor.TotalPages)
		if err != nil {
			return cursor, err
		}
		if step.Kind == stepNone {
			if err := s.confirmPage(ctx, target); err != nil {
				return cursor, err
			}
			cursor.CurrentPage = target
			log.Debug().Int("iterations", i).Msg("on target page")
			return cursor, nil
		}

		previous, err := s.Read(ctx)
		if err != nil {
			return cursor, NavigationError{Step: "read buffer", Err: err}
		}
		log.Debug().Int("current", state.Current).Str("step", step.Kind.String()).Int("page", step.Page).Msg("pager click")
		if err := s.Browser.Click(ctx, step.selector()); err != nil {
			return cursor, NavigationError{Step: "click pager " + step.Kind.String(), Err: err}
		}
		buffer, err := s.AwaitChange(ctx, previous, 0)
		if err != nil {
			return cursor, NavigationError{Step: "await page change", Err: err}
		}
		if IsListPayload(buffer) {
			s.rememberList(buffer, ParsePageNo(buffer))
		}
	}
	return cursor, NavigationExhaustedError{Target: target, LastSeen: lastSeen, Iterations: MaxPagerIterations}
}
