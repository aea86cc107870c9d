package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

const pollInterval = 100 * time.Millisecond

// ChromeBrowser implements Browser on top of chromedp.
type ChromeBrowser struct {
	ctx       context.Context
	cancel    context.CancelFunc
	log       zerolog.Logger
	closeOnce sync.Once
}

func chromeAllocatorOptions(options BrowserOptions) ([]chromedp.ExecAllocatorOption, error) {
	allocOptions := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOptions = append(allocOptions,
		chromedp.Flag("headless", options.Headless),
		chromedp.WindowSize(1366, 900),
	)
	if options.Headless {
		allocOptions = append(allocOptions, chromedp.DisableGPU)
	}
	if options.UserDataDir != "" {
		dir, err := filepath.Abs(options.UserDataDir)
		if err != nil {
			return nil, err
		}
		allocOptions = append(allocOptions, chromedp.UserDataDir(dir))
	}
	if options.ExecPath != "" {
		allocOptions = append(allocOptions, chromedp.ExecPath(options.ExecPath))
	}
	if options.NoSandbox || os.Getenv("CI") == "true" {
		allocOptions = append(allocOptions,
			chromedp.NoSandbox,
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-extensions", true),
		)
	}
	return allocOptions, nil
}

// LaunchChrome starts a browser with an isolated context and a single page.
func LaunchChrome(ctx context.Context, options BrowserOptions, log zerolog.Logger) (*ChromeBrowser, error) {
	allocOptions, err := chromeAllocatorOptions(options)
	if err != nil {
		return nil, err
	}

	// the browser lives until Close, not until the caller's ctx ends
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOptions...)
	browserCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(log.Printf),
		chromedp.WithErrorf(log.Printf),
	)
	cancelFunc := func() {
		cancel()
		allocCancel()
	}

	// the first Run allocates the target, so it must use the browser context itself
	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		cancelFunc()
		return nil, err
	}

	return &ChromeBrowser{
		ctx:    browserCtx,
		cancel: cancelFunc,
		log:    log,
	}, nil
}

// ChromeLauncher adapts LaunchChrome to a Launcher.
func ChromeLauncher(log zerolog.Logger) Launcher {
	return func(ctx context.Context, options BrowserOptions) (Browser, error) {
		return LaunchChrome(ctx, options, log)
	}
}

// bind derives a chromedp context that honours ctx's deadline and cancellation.
func (b *ChromeBrowser) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(b.ctx)
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		parent := cancel
		cancel = func() {
			cancelDeadline()
			parent()
		}
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (b *ChromeBrowser) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := b.bind(ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (b *ChromeBrowser) eval(ctx context.Context, expr string, res interface{}) error {
	return b.run(ctx, chromedp.Evaluate(expr, res))
}

// poll evaluates expr until it returns true or ctx ends.
func (b *ChromeBrowser) poll(ctx context.Context, expr string) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		var ok bool
		if err := b.eval(ctx, expr, &ok); err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// jsCall renders fn applied to JSON-encoded arguments.
func jsCall(fn string, args ...interface{}) string {
	encoded := make([]string, len(args))
	for i, arg := range args {
		b, err := json.Marshal(arg)
		if err != nil {
			b = []byte("null")
		}
		encoded[i] = string(b)
	}
	return fmt.Sprintf("(%s)(%s)", fn, strings.Join(encoded, ","))
}

const jsFindVisible = `function(sel, text, exact, click) {
	const visible = el => !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
	const norm = s => (s || "").replace(/\s+/g, " ").trim();
	for (const el of document.querySelectorAll(sel)) {
		if (!visible(el)) continue;
		if (text !== null) {
			const t = norm(el.innerText || el.textContent);
			if (exact ? t !== text : !t.includes(text)) continue;
		}
		if (click) {
			el.scrollIntoView({block: "center"});
			el.click();
		}
		return true;
	}
	return false;
}`

const jsNoneVisible = `function(sel) {
	const visible = el => !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
	return !Array.from(document.querySelectorAll(sel)).some(visible);
}`

const jsValue = `function(sel) {
	const el = document.querySelector(sel);
	if (!el) return "";
	if (el.value !== undefined && el.value !== null) return String(el.value);
	return el.textContent || "";
}`

const jsSetValue = `function(sel, value, notify) {
	const el = document.querySelector(sel);
	if (!el) return false;
	el.value = value;
	if (notify) {
		el.dispatchEvent(new Event("input", {bubbles: true}));
		el.dispatchEvent(new Event("change", {bubbles: true}));
	}
	return true;
}`

const jsOuterHTML = `function(sel) {
	const el = document.querySelector(sel);
	return el ? el.outerHTML : "";
}`

const jsLocation = `function() { return location.href; }`

const jsSetHash = `function(hash) { location.hash = hash; return true; }`

const jsBack = `function() { history.back(); return true; }`

func sameDocument(a, b string) (string, bool) {
	ai := strings.Index(a, "#")
	bi := strings.Index(b, "#")
	if ai < 0 || bi < 0 || a[:ai] != b[:bi] {
		return "", false
	}
	return b[bi:], true
}

func (b *ChromeBrowser) Navigate(ctx context.Context, url string) error {
	var current string
	if err := b.eval(ctx, jsCall(jsLocation), &current); err == nil {
		// hash routes never fire a load event, so switch them in place
		if hash, ok := sameDocument(current, url); ok {
			var done bool
			return b.eval(ctx, jsCall(jsSetHash, hash), &done)
		}
	}
	return b.run(ctx, chromedp.Navigate(url))
}

// Back goes one history entry back. The SPA only changes the hash, so
// chromedp.NavigateBack would wait for a load event that never comes.
func (b *ChromeBrowser) Back(ctx context.Context) error {
	var done bool
	return b.eval(ctx, jsCall(jsBack), &done)
}

func (b *ChromeBrowser) clickMatching(ctx context.Context, selector string, text interface{}, exact bool) error {
	var clicked bool
	if err := b.eval(ctx, jsCall(jsFindVisible, selector, text, exact, true), &clicked); err != nil {
		return err
	}
	if !clicked {
		if text != nil {
			return fmt.Errorf("no visible %v with text %q", selector, text)
		}
		return fmt.Errorf("no visible %v", selector)
	}
	return nil
}

func (b *ChromeBrowser) Click(ctx context.Context, selector string) error {
	return b.clickMatching(ctx, selector, nil, false)
}

func (b *ChromeBrowser) ClickText(ctx context.Context, selector, text string, exact bool) error {
	return b.clickMatching(ctx, selector, text, exact)
}

func (b *ChromeBrowser) VisibleText(ctx context.Context, selector, text string, exact bool) (bool, error) {
	var found bool
	err := b.eval(ctx, jsCall(jsFindVisible, selector, text, exact, false), &found)
	return found, err
}

func (b *ChromeBrowser) WaitVisible(ctx context.Context, selector string) error {
	return b.poll(ctx, jsCall(jsFindVisible, selector, nil, false, false))
}

func (b *ChromeBrowser) WaitHidden(ctx context.Context, selector string) error {
	return b.poll(ctx, jsCall(jsNoneVisible, selector))
}

func (b *ChromeBrowser) Fill(ctx context.Context, selector, value string) error {
	var ok bool
	if err := b.eval(ctx, jsCall(jsSetValue, selector, value, true), &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("input %v not found", selector)
	}
	return nil
}

func (b *ChromeBrowser) Value(ctx context.Context, selector string) (string, error) {
	var value string
	err := b.eval(ctx, jsCall(jsValue, selector), &value)
	return value, err
}

func (b *ChromeBrowser) SetValue(ctx context.Context, selector, value string) error {
	var ok bool
	if err := b.eval(ctx, jsCall(jsSetValue, selector, value, false), &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("element %v not found", selector)
	}
	return nil
}

func (b *ChromeBrowser) OuterHTML(ctx context.Context, selector string) (string, error) {
	var html string
	err := b.eval(ctx, jsCall(jsOuterHTML, selector), &html)
	return html, err
}

func (b *ChromeBrowser) ExpectResponse(ctx context.Context, urlContains string, trigger func(ctx context.Context) error) ([]byte, error) {
	listenCtx, cancelListen := context.WithCancel(b.ctx)
	defer cancelListen()

	var mu sync.Mutex
	var matched network.RequestID
	finished := make(chan network.RequestID, 1)

	// listeners run on the event loop and must not block
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *network.EventResponseReceived:
			if ev.Response.Status != 200 || !strings.Contains(ev.Response.URL, urlContains) {
				return
			}
			mu.Lock()
			if matched == "" {
				matched = ev.RequestID
			}
			mu.Unlock()
		case *network.EventLoadingFinished:
			mu.Lock()
			id := matched
			mu.Unlock()
			if id != "" && ev.RequestID == id {
				select {
				case finished <- id:
				default:
				}
			}
		}
	})

	if err := trigger(ctx); err != nil {
		return nil, err
	}

	select {
	case id := <-finished:
		var body []byte
		err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			body, err = network.GetResponseBody(id).Do(ctx)
			return err
		}))
		if err != nil {
			return nil, err
		}
		b.log.Debug().Str("url_contains", urlContains).Int("bytes", len(body)).Msg("captured response")
		return body, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *ChromeBrowser) Close() error {
	b.closeOnce.Do(b.cancel)
	return nil
}
