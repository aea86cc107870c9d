package scraper

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultControlTimeout bounds waits for menus, modals and buttons.
	DefaultControlTimeout = 10 * time.Second
	// DefaultResponseTimeout is the generous per-wait budget for SPA round trips.
	DefaultResponseTimeout = 300 * time.Second
	// DefaultTabTimeout bounds the buffer wait after a tab click.
	DefaultTabTimeout = 10 * time.Second
)

// Action is a single interaction with the SPA. Actions are composable:
//
//	err := Run(ctx, browser,
//		Navigate(routes.Area),
//		ClickText("button", "지역 선택", true),
//		WaitVisible("div.modal.region-modal.on"),
//	)
type Action interface {
	Do(ctx context.Context, b Browser) error
}

// ActionFunc allows custom actions to be created from functions
type ActionFunc func(ctx context.Context, b Browser) error

// Do implements Action.Do
func (fn ActionFunc) Do(ctx context.Context, b Browser) error {
	return fn(ctx, b)
}

// Run executes actions in order and stops at the first failure.
func Run(ctx context.Context, b Browser, actions ...Action) error {
	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := action.Do(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func Navigate(url string) Action {
	return ActionFunc(func(ctx context.Context, b Browser) error {
		if err := b.Navigate(ctx, url); err != nil {
			return NavigationError{Step: "navigate " + url, Err: err}
		}
		return nil
	})
}

func Click(selector string) Action {
	return ActionFunc(func(ctx context.Context, b Browser) error {
		if err := b.Click(ctx, selector); err != nil {
			return NavigationError{Step: "click " + selector, Err: err}
		}
		return nil
	})
}

func ClickText(selector, text string, exact bool) Action {
	return ActionFunc(func(ctx context.Context, b Browser) error {
		if err := b.ClickText(ctx, selector, text, exact); err != nil {
			return NavigationError{Step: fmt.Sprintf("click %v %q", selector, text), Err: err}
		}
		return nil
	})
}

// WaitVisible waits for selector with DefaultControlTimeout unless ctx is shorter.
func WaitVisible(selector string) Action {
	return WaitVisibleTimeout(selector, DefaultControlTimeout)
}

func WaitVisibleTimeout(selector string, timeout time.Duration) Action {
	return ActionFunc(func(ctx context.Context, b Browser) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := b.WaitVisible(ctx, selector); err != nil {
			return NavigationError{Step: "wait visible " + selector, Err: err}
		}
		return nil
	})
}

func WaitHidden(selector string) Action {
	return ActionFunc(func(ctx context.Context, b Browser) error {
		ctx, cancel := context.WithTimeout(ctx, DefaultControlTimeout)
		defer cancel()
		if err := b.WaitHidden(ctx, selector); err != nil {
			return NavigationError{Step: "wait hidden " + selector, Err: err}
		}
		return nil
	})
}

func Fill(selector, value string) Action {
	return ActionFunc(func(ctx context.Context, b Browser) error {
		if err := b.Fill(ctx, selector, value); err != nil {
			return NavigationError{Step: "fill " + selector, Err: err}
		}
		return nil
	})
}

// WaitAttached waits until selector exists in the DOM, visible or not.
func WaitAttached(selector string) Action {
	return ActionFunc(func(ctx context.Context, b Browser) error {
		ctx, cancel := context.WithTimeout(ctx, DefaultControlTimeout)
		defer cancel()
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			html, err := b.OuterHTML(ctx, selector)
			if err == nil && html != "" {
				return nil
			}
			select {
			case <-ctx.Done():
				return NavigationError{Step: "wait attached " + selector, Err: ctx.Err()}
			case <-ticker.C:
			}
		}
	})
}
