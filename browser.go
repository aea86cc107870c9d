package scraper

import "context"

// Browser is the automation capability the engine depends on.
// Elements are located by CSS selector, optionally narrowed by their
// rendered text, because the SPA exposes few stable ids.
// Every blocking method is bounded by ctx.
type Browser interface {
	Navigate(ctx context.Context, url string) error

	// Back returns to the previous history entry.
	Back(ctx context.Context) error

	// Click clicks the first visible element matching selector.
	Click(ctx context.Context, selector string) error

	// ClickText clicks the first visible element matching selector whose
	// trimmed text equals text (exact) or contains it.
	ClickText(ctx context.Context, selector, text string, exact bool) error

	VisibleText(ctx context.Context, selector, text string, exact bool) (bool, error)

	WaitVisible(ctx context.Context, selector string) error

	// WaitHidden waits until no element matching selector is visible.
	WaitHidden(ctx context.Context, selector string) error

	// Fill sets the value of an input and dispatches input and change events.
	Fill(ctx context.Context, selector, value string) error

	// Value returns the value property of the first match, "" when absent.
	Value(ctx context.Context, selector string) (string, error)

	// SetValue writes the value property without dispatching events.
	SetValue(ctx context.Context, selector, value string) error

	// OuterHTML returns the markup of the first match, "" when absent.
	OuterHTML(ctx context.Context, selector string) (string, error)

	// ExpectResponse runs trigger and returns the body of the first
	// successful response whose URL contains urlContains.
	ExpectResponse(ctx context.Context, urlContains string, trigger func(ctx context.Context) error) ([]byte, error)

	Close() error
}
