// Package render converts the page model into a single multi-page PDF using
// headless Chrome.
package render

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"outfit2pdf/internal/chrome"
	"outfit2pdf/internal/layout"
	u "outfit2pdf/internal/utils"
)

// RenderError marks a fatal document assembly failure. No partial PDF is ever
// returned alongside one.
type RenderError struct {
	Cause error
}

func (e *RenderError) Error() string { return "render pdf: " + e.Cause.Error() }
func (e *RenderError) Unwrap() error { return e.Cause }

// Renderer turns pages into PDF bytes. A shared Chrome pool is created
// lazily; with pooling disabled each render launches its own Chrome.
type Renderer struct {
	cfg u.Config

	poolMu  sync.Mutex
	pool    *chrome.Pool
	poolErr error
}

// NewRenderer creates a renderer bound to the given config.
func NewRenderer(cfg u.Config) *Renderer {
	return &Renderer{cfg: cfg}
}

func (r *Renderer) getChromePool() (*chrome.Pool, error) {
	r.poolMu.Lock()
	defer r.poolMu.Unlock()

	if r.cfg.PDF.ChromePoolSize <= 0 {
		return nil, nil
	}
	if r.pool != nil {
		return r.pool, nil
	}
	if r.poolErr != nil {
		return nil, r.poolErr
	}
	pool, err := chrome.NewPool(r.cfg)
	if err != nil {
		r.poolErr = err
		return nil, err
	}
	r.pool = pool
	return r.pool, nil
}

// Pool exposes the underlying Chrome pool for the stats endpoint. May return
// nil when pooling is disabled.
func (r *Renderer) Pool() (*chrome.Pool, error) {
	return r.getChromePool()
}

// Render produces the complete catalog PDF for the given pages. Any failure
// is returned as *RenderError; context and session errors stay reachable via
// errors.Is/As through the Cause chain.
func (r *Renderer) Render(pages []layout.Page, description string) ([]byte, error) {
	if len(pages) == 0 {
		return nil, &RenderError{Cause: fmt.Errorf("no pages to render")}
	}

	html, err := BuildHTML(pages, description)
	if err != nil {
		return nil, &RenderError{Cause: err}
	}

	pdf, err := r.renderHTML(html)
	if err != nil {
		return nil, &RenderError{Cause: err}
	}
	return pdf, nil
}

// paper returns the landscape page size: the 4×2 grid is wider than tall.
func (r *Renderer) paper() u.PaperSize {
	p, ok := r.cfg.PDF.PaperSizes[r.cfg.PDF.DefaultPaper]
	if !ok {
		p = u.PaperSize{Width: 8.27, Height: 11.69}
	}
	if p.Height > p.Width {
		p.Width, p.Height = p.Height, p.Width
	}
	return p
}

func (r *Renderer) renderHTML(html string) ([]byte, error) {
	pool, err := r.getChromePool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return r.renderWithOwnChrome(html)
	}

	timeout := time.Duration(r.cfg.PDF.TimeoutSecs) * time.Second

	runOnce := func() ([]byte, error) {
		acquireCtx, acquireCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer acquireCancel()

		tab, err := pool.Acquire(acquireCtx)
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithTimeout(tab.Ctx, timeout)
		pdf, renderErr := printToPDF(ctx, html, r.paper(), r.cfg.PDF.Margin)
		cancel()

		pool.Release(tab, renderErr)
		return pdf, renderErr
	}

	pdf, renderErr := runOnce()
	if renderErr != nil && chrome.IsSessionInterrupted(renderErr) {
		u.Warn("Chrome session interrupted; restarting pool and retrying once", "error", renderErr)
		_ = pool.Restart()
		return runOnce()
	}
	return pdf, renderErr
}

// renderWithOwnChrome starts a dedicated Chrome instance for one render.
func (r *Renderer) renderWithOwnChrome(html string) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "chromedata-*")
	if err != nil {
		return nil, fmt.Errorf("cannot create temp profile dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), chrome.AllocatorOptions(r.cfg, tmpDir)...)
	defer allocCancel()
	chromeCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	timeout := time.Duration(r.cfg.PDF.TimeoutSecs) * time.Second
	chromeCtx, cancel = context.WithTimeout(chromeCtx, timeout)
	defer cancel()

	return printToPDF(chromeCtx, html, r.paper(), r.cfg.PDF.Margin)
}

// printToPDF loads the document into an existing tab and prints it.
func printToPDF(ctx context.Context, html string, paper u.PaperSize, margin float64) ([]byte, error) {
	var pdf []byte
	actions := []chromedp.Action{
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frame, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frame.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(200 * time.Millisecond),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(paper.Width).
				WithPaperHeight(paper.Height).
				WithMarginTop(margin).
				WithMarginBottom(margin).
				WithMarginLeft(margin).
				WithMarginRight(margin).
				Do(ctx)
			return err
		}),
	}

	if err := chromedp.Run(ctx, actions...); err != nil {
		return nil, err
	}
	return pdf, nil
}
