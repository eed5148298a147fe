package scraper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	path := filepath.Join("testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}

// fakePage serves canned HTML. Each URL maps to a sequence of DOM states.
// A click queues the next state; it is rendered only by a wait that
// observes it or by Settle, so reading the DOM straight after a click sees
// the old state. Waits fail with ErrWaitTimeout when their condition does
// not hold.
type fakePage struct {
	pages map[string][]string

	url     string
	states  []string
	cur     int
	pending bool

	// slowRender keeps queued states from being seen by waits, as when the
	// page renders after the wait has given up. Only Settle applies them.
	slowRender bool

	// flaky makes the first n waits for a selector time out.
	flaky map[string]int

	opened     []string
	clicks     []string
	settles    []time.Duration
	overlays   int
	closed     bool
	contentErr error
}

func newFakePage() *fakePage {
	return &fakePage{pages: map[string][]string{}, flaky: map[string]int{}}
}

func (p *fakePage) add(url string, states ...string) {
	p.pages[url] = states
}

func (p *fakePage) Open(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.opened = append(p.opened, url)
	p.url = url
	p.cur = 0
	p.pending = false
	p.states = p.pages[url]
	if len(p.states) == 0 {
		p.states = []string{"<html><body></body></html>"}
	}
	return nil
}

func (p *fakePage) DismissOverlay(ctx context.Context, timeout time.Duration) {
	p.overlays++
}

func (p *fakePage) render() {
	if p.pending {
		p.cur++
		p.pending = false
	}
}

func parseState(t string) *goquery.Selection {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(t))
	if err != nil {
		return &goquery.Selection{}
	}
	return doc.Selection
}

func (p *fakePage) has(selector string) bool {
	return parseState(p.states[p.cur]).Find(selector).Length() > 0
}

// queued returns the state a pending click will render, if waits may see it.
func (p *fakePage) queued() (*goquery.Selection, bool) {
	if !p.pending || p.slowRender {
		return nil, false
	}
	return parseState(p.states[p.cur+1]), true
}

func (p *fakePage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n := p.flaky[selector]; n > 0 {
		p.flaky[selector] = n - 1
		return fmt.Errorf("%s: %w", selector, ErrWaitTimeout)
	}
	if next, ok := p.queued(); ok && next.Find(selector).Length() > 0 {
		p.render()
		return nil
	}
	if !p.has(selector) {
		return fmt.Errorf("%s: %w", selector, ErrWaitTimeout)
	}
	return nil
}

func (p *fakePage) WaitClickable(ctx context.Context, selector string, timeout time.Duration) error {
	if err := p.WaitFor(ctx, selector, timeout); err != nil {
		return err
	}
	if p.has(selector + "[disabled]") {
		return fmt.Errorf("%s: not enabled: %w", selector, ErrWaitTimeout)
	}
	return nil
}

func changedFrom(doc *goquery.Selection, selector, attr, previous string) bool {
	first := doc.Find(selector).First()
	if first.Length() == 0 {
		return false
	}
	value := first.Text()
	if attr != "" {
		v, ok := first.Attr(attr)
		if !ok {
			return false
		}
		value = v
	}
	return value != previous
}

func (p *fakePage) WaitChanged(ctx context.Context, selector, attr, previous string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if next, ok := p.queued(); ok && changedFrom(next, selector, attr, previous) {
		p.render()
		return nil
	}
	if !changedFrom(parseState(p.states[p.cur]), selector, attr, previous) {
		return fmt.Errorf("%s unchanged: %w", selector, ErrWaitTimeout)
	}
	return nil
}

func (p *fakePage) click(selector string) error {
	p.render()
	if !p.has(selector) {
		return fmt.Errorf("click %s: %w", selector, ErrNotFound)
	}
	p.clicks = append(p.clicks, selector)
	if p.cur < len(p.states)-1 {
		p.pending = true
	}
	return nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error   { return p.click(selector) }
func (p *fakePage) ClickJS(ctx context.Context, selector string) error { return p.click(selector) }

func (p *fakePage) Settle(ctx context.Context, d time.Duration) {
	p.settles = append(p.settles, d)
	p.render()
}

func (p *fakePage) Content(ctx context.Context) (string, error) {
	if p.contentErr != nil {
		return "", p.contentErr
	}
	return p.states[p.cur], nil
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

func replaceOnce(t *testing.T, s, old, new string) string {
	t.Helper()
	if !strings.Contains(s, old) {
		t.Fatalf("fixture does not contain %q", old)
	}
	return strings.Replace(s, old, new, 1)
}
