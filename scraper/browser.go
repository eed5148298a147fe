package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"cnb_scraper/config"
)

// BrowserSession drives a single Chromium page through playwright. The page
// is reused for every navigation in a run.
type BrowserSession struct {
	cfg             config.BrowserConfig
	overlaySelector string

	// mu guards the handles below, which Close clears.
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
}

func NewBrowserSession(cfg config.BrowserConfig, proxy config.ProxyConfig, site *config.SiteConfig) (*BrowserSession, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args: []string{
			"--disable-gpu",
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-blink-features=AutomationControlled",
		},
	}
	if proxy.URL != "" {
		launch.Proxy = &playwright.Proxy{Server: proxy.URL}
	}

	browser, err := pw.Chromium.Launch(launch)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(cfg.UserAgent),
		Viewport:  &playwright.Size{Width: 1920, Height: 1080},
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	if cfg.NavigationTimeout > 0 {
		page.SetDefaultNavigationTimeout(float64(cfg.NavigationTimeout.Milliseconds()))
	}

	s := &BrowserSession{
		cfg:     cfg,
		pw:      pw,
		browser: browser,
		context: bctx,
		page:    page,
	}
	if site != nil {
		s.overlaySelector = site.OverlaySelector
	}
	return s, nil
}

// NewLauncher returns a Launcher that starts a fresh browser per run.
func NewLauncher(cfg *config.Config) Launcher {
	return func(ctx context.Context) (Session, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log.Println("Launching browser...")
		s, err := NewBrowserSession(cfg.Browser, cfg.Proxy, cfg.Site)
		if err != nil {
			return nil, err
		}
		log.Println("Browser ready")
		return s, nil
	}
}

func (s *BrowserSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.page != nil {
		errs = append(errs, s.page.Close())
		s.page = nil
	}
	if s.context != nil {
		errs = append(errs, s.context.Close())
		s.context = nil
	}
	if s.browser != nil {
		errs = append(errs, s.browser.Close())
		s.browser = nil
	}
	if s.pw != nil {
		errs = append(errs, s.pw.Stop())
		s.pw = nil
	}
	return errors.Join(errs...)
}

// current returns the live page, or ErrSessionClosed once Close has run.
func (s *BrowserSession) current(ctx context.Context) (playwright.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil {
		return nil, ErrSessionClosed
	}
	return s.page, nil
}

// Open navigates and returns once the browser fires the load event.
func (s *BrowserSession) Open(ctx context.Context, url string) error {
	page, err := s.current(ctx)
	if err != nil {
		return err
	}
	_, err = page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, translate(err))
	}
	return nil
}

// DismissOverlay closes the promo bar if it shows up in time. Failures are
// logged and otherwise ignored.
func (s *BrowserSession) DismissOverlay(ctx context.Context, timeout time.Duration) {
	if s.overlaySelector == "" {
		return
	}
	if err := s.WaitClickable(ctx, s.overlaySelector, timeout); err != nil {
		if errors.Is(err, ErrWaitTimeout) {
			log.Println("Promo bar close button not found or not clickable within timeout")
		} else {
			log.Printf("Error closing promo bar: %v", err)
		}
		return
	}
	if err := s.Click(ctx, s.overlaySelector); err != nil {
		log.Printf("Error closing promo bar: %v", err)
		return
	}
	log.Println("Promo bar closed")
}

func (s *BrowserSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	page, err := s.current(ctx)
	if err != nil {
		return err
	}
	err = page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", selector, translate(err))
	}
	return nil
}

func (s *BrowserSession) WaitClickable(ctx context.Context, selector string, timeout time.Duration) error {
	page, err := s.current(ctx)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	loc := page.Locator(selector).First()
	err = loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", selector, translate(err))
	}

	for {
		enabled, err := loc.IsEnabled()
		if err != nil {
			return fmt.Errorf("%s: %w", selector, translate(err))
		}
		if enabled {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s: not enabled: %w", selector, ErrWaitTimeout)
		}
		if err := sleepCtx(ctx, 100*time.Millisecond); err != nil {
			return err
		}
	}
}

// changedScript reports whether the first match of a selector carries an
// attribute (or, with no attribute, text) different from the previous value.
const changedScript = `([selector, attr, previous]) => {
	const el = document.querySelector(selector);
	if (!el) return false;
	const value = attr ? el.getAttribute(attr) : el.textContent;
	return value !== null && value !== previous;
}`

// WaitChanged waits until the first element matching selector no longer
// shows previous. It is used after clicks that re-render the page in place.
func (s *BrowserSession) WaitChanged(ctx context.Context, selector, attr, previous string, timeout time.Duration) error {
	page, err := s.current(ctx)
	if err != nil {
		return err
	}
	_, err = page.WaitForFunction(changedScript, []interface{}{selector, attr, previous}, playwright.PageWaitForFunctionOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("%s unchanged: %w", selector, translate(err))
	}
	return nil
}

func (s *BrowserSession) Click(ctx context.Context, selector string) error {
	page, err := s.current(ctx)
	if err != nil {
		return err
	}
	if err := page.Locator(selector).First().Click(); err != nil {
		return fmt.Errorf("click %s: %w", selector, translate(err))
	}
	return nil
}

// ClickJS clicks through element.click() so overlays cannot intercept it.
func (s *BrowserSession) ClickJS(ctx context.Context, selector string) error {
	page, err := s.current(ctx)
	if err != nil {
		return err
	}
	if _, err := page.Locator(selector).First().Evaluate(`el => el.click()`, nil); err != nil {
		return fmt.Errorf("js click %s: %w", selector, translate(err))
	}
	return nil
}

// Settle pauses for d, or until ctx is done.
func (s *BrowserSession) Settle(ctx context.Context, d time.Duration) {
	sleepCtx(ctx, d)
}

func (s *BrowserSession) Content(ctx context.Context) (string, error) {
	page, err := s.current(ctx)
	if err != nil {
		return "", err
	}
	html, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("page content: %w", err)
	}
	return html, nil
}

// URL returns the current page URL, or "" once the session is closed.
func (s *BrowserSession) URL() string {
	page, err := s.current(context.Background())
	if err != nil {
		return ""
	}
	return page.URL()
}

func translate(err error) error {
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrWaitTimeout, err)
	}
	return err
}
