// Package chrome implements rendering sessions as tabs of one headless
// Chrome instance driven over the DevTools protocol.
package chrome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/hszk-dev/typereel/internal/session"
)

// Config holds configuration for the Chrome engine.
type Config struct {
	// ExecPath is the Chrome binary. Empty lets chromedp search the usual locations.
	ExecPath string

	// Headless runs Chrome without a window.
	Headless bool

	// ViewportWidth and ViewportHeight size every tab.
	ViewportWidth  int
	ViewportHeight int

	// ActionTimeout bounds each individual session operation.
	ActionTimeout time.Duration
}

// DefaultConfig returns the viewport the bundled document is laid out for.
func DefaultConfig() Config {
	return Config{
		Headless:       true,
		ViewportWidth:  1536,
		ViewportHeight: 695,
		ActionTimeout:  30 * time.Second,
	}
}

// Engine launches Chrome on first use and opens one tab per session. If the
// browser exits it is relaunched on the next NewSession call.
type Engine struct {
	cfg Config

	mu            sync.Mutex
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
}

// Compile-time verification that Engine implements session.Engine.
var _ session.Engine = (*Engine)(nil)

// NewEngine creates an engine. Chrome is not started until a session is requested.
// A non-positive ActionTimeout falls back to the default.
func NewEngine(cfg Config) *Engine {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultConfig().ActionTimeout
	}
	return &Engine{cfg: cfg}
}

// NewSession opens a fresh tab sized to the configured viewport.
func (e *Engine) NewSession(ctx context.Context) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	browserCtx, err := e.browser()
	if err != nil {
		return nil, err
	}

	tabCtx, cancel := chromedp.NewContext(browserCtx)
	t := &tab{ctx: tabCtx, cancel: cancel, timeout: e.cfg.ActionTimeout}

	viewport := chromedp.EmulateViewport(int64(e.cfg.ViewportWidth), int64(e.cfg.ViewportHeight))
	if err := t.open(ctx, viewport); err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return t, nil
}

// Close shuts the browser down. Open sessions stop working.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shutdownLocked()
}

func (e *Engine) browser() (context.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browserCtx != nil && e.browserCtx.Err() == nil {
		return e.browserCtx, nil
	}
	e.shutdownLocked()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), e.allocatorOptions()...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// Running with no actions starts the browser.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	slog.Info("browser started", "headless", e.cfg.Headless)
	e.browserCtx = browserCtx
	e.cancelBrowser = cancelBrowser
	e.cancelAlloc = cancelAlloc
	return browserCtx, nil
}

func (e *Engine) shutdownLocked() {
	if e.cancelBrowser != nil {
		e.cancelBrowser()
	}
	if e.cancelAlloc != nil {
		e.cancelAlloc()
	}
	e.browserCtx = nil
	e.cancelBrowser = nil
	e.cancelAlloc = nil
}

func (e *Engine) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", e.cfg.Headless),
		chromedp.NoSandbox,
		chromedp.WindowSize(e.cfg.ViewportWidth, e.cfg.ViewportHeight),
	)
	if e.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(e.cfg.ExecPath))
	}
	return opts
}

// tab is a session backed by one browser tab.
type tab struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	once    sync.Once
}

func (t *tab) Navigate(ctx context.Context, url string) error {
	return t.run(ctx, chromedp.Navigate(url))
}

func (t *tab) Click(ctx context.Context, selector string) error {
	return t.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (t *tab) Focus(ctx context.Context, selector string) error {
	return t.run(ctx, chromedp.Focus(selector, chromedp.ByQuery))
}

func (t *tab) Fill(ctx context.Context, selector, value string) error {
	script, err := fillScript(selector, value)
	if err != nil {
		return err
	}
	return t.run(ctx, chromedp.Evaluate(script, nil))
}

func (t *tab) Screenshot(ctx context.Context, selector string, width, height int) ([]byte, error) {
	script, err := originScript(selector)
	if err != nil {
		return nil, err
	}

	var origin struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	var buf []byte
	err = t.run(ctx,
		chromedp.Evaluate(script, &origin),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, err := page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				WithClip(&page.Viewport{
					X:      origin.X,
					Y:      origin.Y,
					Width:  float64(width),
					Height: float64(height),
					Scale:  1,
				}).
				Do(ctx)
			if err != nil {
				return err
			}
			buf = data
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, errors.New("empty screenshot")
	}
	return buf, nil
}

func (t *tab) Close() error {
	var err error
	t.once.Do(func() {
		err = chromedp.Cancel(t.ctx)
		t.cancel()
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// open creates the tab's target and runs actions on it. The first Run on a
// chromedp context binds the target's event loop to that context, so it runs
// on t.ctx itself; a timeout or caller cancellation tears the whole tab down.
// On error the tab is already released.
func (t *tab) open(ctx context.Context, actions ...chromedp.Action) error {
	watchdog := time.AfterFunc(t.timeout, t.cancel)
	stop := context.AfterFunc(ctx, t.cancel)

	err := chromedp.Run(t.ctx, actions...)

	// Either callback may have fired after Run returned and killed the tab.
	timedOut := !watchdog.Stop()
	callerGone := !stop()
	switch {
	case err == nil && !timedOut && !callerGone:
		return nil
	case callerGone && ctx.Err() != nil:
		err = ctx.Err()
	case timedOut:
		err = fmt.Errorf("target not ready after %v: %w", t.timeout, context.DeadlineExceeded)
	}
	t.cancel()
	return err
}

// run executes actions on an open tab, stopping early if either the operation
// timeout elapses or the caller's ctx is cancelled. Cancelling runCtx only
// abandons the actions; the tab stays usable.
func (t *tab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(t.ctx, t.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func fillScript(selector, value string) (string, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return "", fmt.Errorf("encode selector: %w", err)
	}
	val, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encode value: %w", err)
	}
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) { throw new Error("element not found: " + %s); }
	el.value = %s;
	el.dispatchEvent(new Event("input", { bubbles: true }));
	return true;
})()`, sel, sel, val), nil
}

func originScript(selector string) (string, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return "", fmt.Errorf("encode selector: %w", err)
	}
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) { throw new Error("element not found: " + %s); }
	const r = el.getBoundingClientRect();
	return { x: r.left + window.scrollX, y: r.top + window.scrollY };
})()`, sel, sel), nil
}
