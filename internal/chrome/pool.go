// Package chrome manages a pool of headless Chrome tabs used for PDF
// rendering. Tabs are created lazily; Chrome only launches on first use.
package chrome

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	u "outfit2pdf/internal/utils"
)

// Tab is one acquired rendering slot bound to its own chromedp context.
type Tab struct {
	Ctx    context.Context
	cancel context.CancelFunc
}

// Pool bounds the number of concurrent Chrome tabs and owns the shared
// browser allocator.
type Pool struct {
	mu            sync.Mutex
	cfg           u.Config
	sem           chan struct{}
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	profileDir    string
	closed        bool
	restarts      int
	lastRestart   time.Time
}

// Stats is a point-in-time snapshot of pool state for observability.
type Stats struct {
	Enabled      bool
	Capacity     int
	Idle         int
	InUse        int
	PoolSizeConf int
	ProfileDir   string
	Restarts     int
	LastRestart  string
}

// NewPool creates a pool sized by cfg.PDF.ChromePoolSize. A size of zero or
// less disables pooling and is an error here; callers fall back to
// per-request Chrome instances.
func NewPool(cfg u.Config) (*Pool, error) {
	if cfg.PDF.ChromePoolSize <= 0 {
		return nil, errors.New("chrome pool disabled: pool size <= 0")
	}

	dir, err := createProfileDir(cfg)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		cfg:        cfg,
		sem:        make(chan struct{}, cfg.PDF.ChromePoolSize),
		profileDir: dir,
	}
	p.initContexts()
	for i := 0; i < cfg.PDF.ChromePoolSize; i++ {
		p.sem <- struct{}{}
	}
	return p, nil
}

func (p *Pool) initContexts() {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), AllocatorOptions(p.cfg, p.profileDir)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	p.browserCtx = browserCtx
	p.browserCancel = browserCancel
	p.allocCancel = allocCancel
}

// Acquire blocks until a tab slot is free or ctx expires.
func (p *Pool) Acquire(ctx context.Context) (*Tab, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.New("chrome pool is closed")
	}
	sem := p.sem
	browserCtx := p.browserCtx
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-sem:
	}

	tabCtx, cancel := chromedp.NewContext(browserCtx)
	return &Tab{Ctx: tabCtx, cancel: cancel}, nil
}

// Release returns the slot to the pool. The tab's context is always torn
// down; renderErr is only used for logging.
func (p *Pool) Release(tab *Tab, renderErr error) {
	if tab == nil {
		return
	}
	if tab.cancel != nil {
		tab.cancel()
	}
	if renderErr != nil && IsSessionInterrupted(renderErr) {
		u.Warn("Released interrupted chrome tab", "error", renderErr)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.sem <- struct{}{}:
	default:
	}
}

// Restart tears down the current browser and profile dir and starts fresh.
// Used after a session interruption poisoned the shared browser.
func (p *Pool) Restart() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("chrome pool is closed")
	}

	if p.browserCancel != nil {
		p.browserCancel()
	}
	if p.allocCancel != nil {
		p.allocCancel()
	}
	if p.profileDir != "" {
		_ = os.RemoveAll(p.profileDir)
	}

	dir, err := createProfileDir(p.cfg)
	if err != nil {
		return err
	}
	p.profileDir = dir
	p.initContexts()

	// Refill the semaphore so slots held by dead tabs come back.
	for {
		select {
		case p.sem <- struct{}{}:
		default:
			p.restarts++
			p.lastRestart = time.Now()
			u.Warn("Chrome pool restarted", "restarts", p.restarts)
			return nil
		}
	}
}

// Close shuts the pool down. Idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	if p.browserCancel != nil {
		p.browserCancel()
	}
	if p.allocCancel != nil {
		p.allocCancel()
	}
	if p.profileDir != "" {
		_ = os.RemoveAll(p.profileDir)
	}
}

// Stats reports current pool occupancy.
func (p *Pool) Stats(timeoutSecs int) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.sem == nil {
		return Stats{PoolSizeConf: p.cfg.PDF.ChromePoolSize}
	}

	idle := len(p.sem)
	capacity := cap(p.sem)
	st := Stats{
		Enabled:      true,
		Capacity:     capacity,
		Idle:         idle,
		InUse:        capacity - idle,
		PoolSizeConf: p.cfg.PDF.ChromePoolSize,
		ProfileDir:   p.profileDir,
		Restarts:     p.restarts,
	}
	if !p.lastRestart.IsZero() {
		st.LastRestart = p.lastRestart.Format(time.RFC3339)
	}
	return st
}

// AllocatorOptions returns the Chrome launch flags shared by the pool and the
// per-request fallback path. Software rendering flags keep minimal container
// environments working.
func AllocatorOptions(cfg u.Config, profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-gpu-compositing", true),
		chromedp.Flag("disable-features", "Vulkan,UseSkiaRenderer"),
		chromedp.Flag("use-gl", "swiftshader"),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.PDF.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.PDF.ChromePath))
	}
	if cfg.PDF.ChromeNoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	return opts
}

func createProfileDir(cfg u.Config) (string, error) {
	base := cfg.PDF.UserDataDir
	if base != "" {
		if err := os.MkdirAll(base, 0o755); err != nil {
			return "", err
		}
	}
	return os.MkdirTemp(base, "outfit2pdf-chrome-*")
}

// IsSessionInterrupted reports whether err looks like a torn-down or timed
// out Chrome session rather than a render problem.
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "target closed") ||
		strings.Contains(msg, "session closed") ||
		strings.Contains(msg, "websocket url timeout")
}
