package scraper

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParsePager(t *testing.T) {
	html := `<div class="paging">
		<button type="button" name="first" disabled>처음</button>
		<button type="button" name="prev" disabled>이전</button>
		<button type="button" value="1">1</button>
		<button type="button" value="2" class="on">2</button>
		<button type="button" value="3">3</button>
		<button type="button" value="3">3</button>
		<button type="button" name="next">다음</button>
		<button type="button" name="last">끝</button>
	</div>`

	got, err := parsePager(html)
	if err != nil {
		t.Fatal(err)
	}
	shouldBe := pagerState{
		Current: 2,
		Visible: []int{1, 2, 3},
		Next:    true,
		Last:    true,
	}
	if diff := cmp.Diff(shouldBe, got); diff != "" {
		t.Errorf("(-shouldBe +got)\n%v", diff)
	}

	empty, err := parsePager("")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(pagerState{}, empty); diff != "" {
		t.Errorf("(-shouldBe +got)\n%v", diff)
	}
}

func pages(from, to int) []int {
	var result []int
	for n := from; n <= to; n++ {
		result = append(result, n)
	}
	return result
}

func TestPlanStep(t *testing.T) {
	full := func(current int, visible []int) pagerState {
		return pagerState{Current: current, Visible: visible, First: true, Prev: true, Next: true, Last: true}
	}
	tests := []struct {
		name     string
		state    pagerState
		target   int
		total    int
		shouldBe pagerStep
	}{
		{"already there", full(3, pages(1, 5)), 3, 5, pagerStep{Kind: stepNone}},
		{"visible target", full(1, pages(1, 5)), 3, 5, pagerStep{Kind: stepDirect, Page: 3}},
		{"visible beats jump", full(1, pages(1, 10)), 10, 40, pagerStep{Kind: stepDirect, Page: 10}},
		{"closer to the end", full(1, pages(1, 10)), 35, 40, pagerStep{Kind: stepLast}},
		{"closer to the current page", full(1, pages(1, 10)), 15, 40, pagerStep{Kind: stepNext}},
		{"unknown total never jumps", full(1, pages(1, 10)), 35, 0, pagerStep{Kind: stepNext}},
		{"closer to the start", full(38, pages(31, 40)), 2, 40, pagerStep{Kind: stepFirst}},
		{"backwards block", full(38, pages(31, 40)), 25, 40, pagerStep{Kind: stepPrev}},
		{"no block control forward", pagerState{Current: 1, Visible: pages(1, 5)}, 9, 0, pagerStep{Kind: stepDirect, Page: 5}},
		{"no block control backward", pagerState{Current: 14, Visible: pages(11, 15)}, 3, 0, pagerStep{Kind: stepDirect, Page: 11}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := planStep(tt.state, tt.target, tt.total)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.shouldBe, got); diff != "" {
				t.Errorf("(-shouldBe +got)\n%v", diff)
			}
		})
	}

	t.Run("no control at all", func(t *testing.T) {
		_, err := planStep(pagerState{Current: 1, Visible: []int{1}}, 3, 0)
		var nav NavigationError
		if !errors.As(err, &nav) {
			t.Errorf("want NavigationError, got %v", err)
		}
	})
}

func TestPagerStepSelector(t *testing.T) {
	if got := (pagerStep{Kind: stepDirect, Page: 7}).selector(); got != `div.paging button[value="7"]` {
		t.Errorf("direct selector %v", got)
	}
	if got := (pagerStep{Kind: stepLast}).selector(); got != `div.paging button[name="last"]` {
		t.Errorf("last selector %v", got)
	}
}

func TestGotoPage(t *testing.T) {
	ctx := context.Background()

	t.Run("direct click", func(t *testing.T) {
		site := newFakeSite(fakeRecords(60))
		s, _, cursor := searchedSession(t, site)
		if diff := cmp.Diff(PageCursor{CurrentPage: 1, TotalPages: 5, TotalCount: 60}, cursor); diff != "" {
			t.Fatalf("(-shouldBe +got)\n%v", diff)
		}

		got, err := GotoPage(ctx, s, cursor, 3)
		if err != nil {
			t.Fatal(err)
		}
		if got.CurrentPage != 3 {
			t.Errorf("current page %v", got.CurrentPage)
		}
		if diff := cmp.Diff([]string{`div.paging button[value="3"]`}, site.clicks()); diff != "" {
			t.Errorf("(-shouldBe +got)\n%v", diff)
		}
		buffer, page := s.ListSnapshot()
		records, _ := ParseList(buffer)
		if page != 3 || len(records) != ItemsPerPage || records[0].RecordID != "25" {
			t.Errorf("snapshot page %v, first record %+v", page, records)
		}
	})

	t.Run("same page clicks nothing", func(t *testing.T) {
		site := newFakeSite(fakeRecords(60))
		s, _, cursor := searchedSession(t, site)
		got, err := GotoPage(ctx, s, cursor, 1)
		if err != nil {
			t.Fatal(err)
		}
		if got.CurrentPage != 1 || len(site.clicks()) != 0 {
			t.Errorf("page %v after %v clicks", got.CurrentPage, site.clicks())
		}
	})

	t.Run("jump to the last block", func(t *testing.T) {
		site := newFakeSite(fakeRecords(30 * ItemsPerPage))
		s, _, cursor := searchedSession(t, site)
		got, err := GotoPage(ctx, s, cursor, 25)
		if err != nil {
			t.Fatal(err)
		}
		shouldBe := []string{`div.paging button[name="last"]`, `div.paging button[value="25"]`}
		if diff := cmp.Diff(shouldBe, site.clicks()); diff != "" {
			t.Errorf("(-shouldBe +got)\n%v", diff)
		}
		if got.CurrentPage != 25 {
			t.Errorf("current page %v", got.CurrentPage)
		}
	})

	t.Run("walk blocks forward and back", func(t *testing.T) {
		site := newFakeSite(fakeRecords(30 * ItemsPerPage))
		s, _, cursor := searchedSession(t, site)
		cursor, err := GotoPage(ctx, s, cursor, 14)
		if err != nil {
			t.Fatal(err)
		}
		cursor, err = GotoPage(ctx, s, cursor, 9)
		if err != nil {
			t.Fatal(err)
		}
		shouldBe := []string{
			`div.paging button[name="next"]`,
			`div.paging button[value="14"]`,
			`div.paging button[name="prev"]`,
			`div.paging button[value="9"]`,
		}
		if diff := cmp.Diff(shouldBe, site.clicks()); diff != "" {
			t.Errorf("(-shouldBe +got)\n%v", diff)
		}
		if cursor.CurrentPage != 9 {
			t.Errorf("current page %v", cursor.CurrentPage)
		}
	})

	t.Run("out of range", func(t *testing.T) {
		site := newFakeSite(fakeRecords(60))
		s, _, cursor := searchedSession(t, site)
		for _, target := range []int{0, 6} {
			_, err := GotoPage(ctx, s, cursor, target)
			var invalid InvalidPageError
			if !errors.As(err, &invalid) || invalid.Target != target {
				t.Errorf("target %v: want InvalidPageError, got %v", target, err)
			}
		}
	})

	t.Run("exhausted", func(t *testing.T) {
		site := newFakeSite(fakeRecords(40 * ItemsPerPage))
		site.brokenPager = true
		s, _, cursor := searchedSession(t, site)
		_, err := GotoPage(ctx, s, cursor, 15)
		var exhausted NavigationExhaustedError
		if !errors.As(err, &exhausted) {
			t.Fatalf("want NavigationExhaustedError, got %v", err)
		}
		shouldBe := NavigationExhaustedError{Target: 15, LastSeen: 1, Iterations: MaxPagerIterations}
		if diff := cmp.Diff(shouldBe, exhausted); diff != "" {
			t.Errorf("(-shouldBe +got)\n%v", diff)
		}
		if !IsRetryable(err) {
			t.Error("exhaustion must be retryable")
		}
	})
}

func TestPagesFor(t *testing.T) {
	tests := []struct{ count, perPage, shouldBe int }{
		{0, 12, 0},
		{1, 12, 1},
		{12, 12, 1},
		{13, 12, 2},
		{20, 0, 0},
	}
	for _, tt := range tests {
		if got := PagesFor(tt.count, tt.perPage); got != tt.shouldBe {
			t.Errorf("PagesFor(%v, %v) = %v, want %v", tt.count, tt.perPage, got, tt.shouldBe)
		}
	}
}
