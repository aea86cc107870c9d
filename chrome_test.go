package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const spaPage = `<html><head><meta charset="utf-8"></head><body>
<div class="search-filter">
	<input id="title" type="text">
	<button type="button" onclick="search()"> 검색 </button>
	<button type="button" style="display:none">숨김</button>
</div>
<p id="echo"></p>
<textarea id="ResponseXML"></textarea>
<script>
document.getElementById("title").addEventListener("change", e => {
	document.getElementById("echo").textContent = e.target.value;
});
function search() {
	fetch("/KorService2/areaBasedList2?keyword=" + encodeURIComponent(document.getElementById("title").value))
		.then(r => r.text())
		.then(t => { document.getElementById("ResponseXML").value = t; });
}
</script>
</body></html>`

func launchTestChrome(t *testing.T) *ChromeBrowser {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	b, err := LaunchChrome(context.Background(), BrowserOptions{Headless: true, NoSandbox: true}, testLog)
	if err != nil {
		t.Skipf("Chrome is not available, skipping test: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestChromeBrowser(t *testing.T) {
	list := responseXML([][]Field{{{Key: "contentid", Value: "126508"}, {Key: "title", Value: "경복궁"}}},
		Field{Key: "pageNo", Value: "1"}, Field{Key: "totalCount", Value: "1"})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/KorService2/areaBasedList2":
			w.Header().Set("Content-Type", "text/xml; charset=utf-8")
			fmt.Fprint(w, list)
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, spaPage)
		}
	}))
	defer ts.Close()

	b := launchTestChrome(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.Navigate(ctx, ts.URL+"/#/useInforArea"); err != nil {
		t.Fatal(err)
	}
	if err := b.WaitVisible(ctx, searchButton); err != nil {
		t.Fatal(err)
	}

	if err := b.Fill(ctx, keywordInput, "궁"); err != nil {
		t.Fatal(err)
	}
	if echo, err := b.Value(ctx, "p#echo"); err != nil || echo != "궁" {
		t.Errorf("change event not dispatched: %q, %v", echo, err)
	}

	visible, err := b.VisibleText(ctx, searchButton, "검색", true)
	if err != nil || !visible {
		t.Errorf("search button visible %v, %v", visible, err)
	}
	hidden, err := b.VisibleText(ctx, searchButton, "숨김", true)
	if err != nil || hidden {
		t.Errorf("hidden button visible %v, %v", hidden, err)
	}
	if err := b.ClickText(ctx, searchButton, "숨김", true); err == nil {
		t.Error("clicked a hidden button")
	}

	body, err := b.ExpectResponse(ctx, "/KorService2/areaBasedList2", func(ctx context.Context) error {
		return b.ClickText(ctx, searchButton, "검색", true)
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(list, string(body)); diff != "" {
		t.Errorf("(-shouldBe +got)\n%v", diff)
	}

	s := NewSession(b, BrowserOptions{}, testLog)
	buffer, err := s.AwaitChange(ctx, "", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	records, total := ParseList(buffer)
	if total != 1 || len(records) != 1 || records[0].Title != "경복궁" {
		t.Errorf("buffer parsed to %+v, total %v", records, total)
	}

	if err := s.materialize(ctx, "<response/>"); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Read(ctx); got != "<response/>" {
		t.Errorf("buffer %q after materialize", got)
	}

	if html, err := b.OuterHTML(ctx, "div.missing"); err != nil || html != "" {
		t.Errorf("missing element gave %q, %v", html, err)
	}

	// hash routes switch in place and keep the page state
	if err := b.Navigate(ctx, ts.URL+"/#/useInforKeyword"); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Read(ctx); got != "<response/>" {
		t.Errorf("hash navigation reloaded the page")
	}
	if err := b.Back(ctx); err != nil {
		t.Error(err)
	}

	if err := b.Close(); err != nil {
		t.Error(err)
	}
	if err := b.Close(); err != nil {
		t.Error(err)
	}
}

func TestSameDocument(t *testing.T) {
	tests := []struct {
		current, next string
		hash          string
		ok            bool
	}{
		{"https://portal.test/#/useInforArea", "https://portal.test/#/useInforKeyword", "#/useInforKeyword", true},
		{"about:blank", "https://portal.test/#/useInforArea", "", false},
		{"https://other.test/#/a", "https://portal.test/#/a", "", false},
		{"https://portal.test/", "https://portal.test/#/a", "", false},
	}
	for _, tt := range tests {
		hash, ok := sameDocument(tt.current, tt.next)
		if hash != tt.hash || ok != tt.ok {
			t.Errorf("sameDocument(%v, %v) = %v, %v", tt.current, tt.next, hash, ok)
		}
	}
}

func TestJSCall(t *testing.T) {
	got := jsCall("function(a, b, c) {}", `div[name="x"]`, nil, true)
	if diff := cmp.Diff(`(function(a, b, c) {})("div[name=\"x\"]",null,true)`, got); diff != "" {
		t.Errorf("(-shouldBe +got)\n%v", diff)
	}
}

func TestChromeAllocatorOptions(t *testing.T) {
	base, err := chromeAllocatorOptions(BrowserOptions{})
	if err != nil {
		t.Fatal(err)
	}
	full, err := chromeAllocatorOptions(BrowserOptions{Headless: true, NoSandbox: true, UserDataDir: t.TempDir(), ExecPath: "/usr/bin/chromium"})
	if err != nil {
		t.Fatal(err)
	}
	if len(full) <= len(base) {
		t.Errorf("%v options with every setting, %v without", len(full), len(base))
	}
}
