package scraper

import (
	"context"
	"errors"
	"log"
	"time"
)

var (
	// ErrWaitTimeout is returned when a DOM condition is not met in time.
	ErrWaitTimeout = errors.New("wait timed out")
	// ErrNotFound is returned when a selector matches nothing.
	ErrNotFound = errors.New("element not found")
	// ErrSessionClosed is returned by page operations after Close.
	ErrSessionClosed = errors.New("browser session closed")
)

// Page is the slice of browser behaviour the walker and extractor need.
// BrowserSession implements it against a live browser; tests use a fake.
type Page interface {
	Open(ctx context.Context, url string) error
	DismissOverlay(ctx context.Context, timeout time.Duration)
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	WaitClickable(ctx context.Context, selector string, timeout time.Duration) error
	WaitChanged(ctx context.Context, selector, attr, previous string, timeout time.Duration) error
	Click(ctx context.Context, selector string) error
	ClickJS(ctx context.Context, selector string) error
	Settle(ctx context.Context, d time.Duration)
	Content(ctx context.Context) (string, error)
	URL() string
}

// Session is a Page that owns browser resources.
type Session interface {
	Page
	Close() error
}

// Launcher opens the browser session used for one run.
type Launcher func(ctx context.Context) (Session, error)

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// awaitRender waits for ready after a click that re-renders the page in
// place. If the page has not rendered within d, a further d is slept
// before the caller reads the DOM. A non-positive d skips both.
func awaitRender(ctx context.Context, page Page, d time.Duration, ready func(time.Duration) error) {
	if d <= 0 {
		return
	}
	if err := ready(d); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("Page did not re-render within %s, pausing: %v", d, err)
		page.Settle(ctx, d)
	}
}
