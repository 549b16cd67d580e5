package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const stealthScript = `
	Object.defineProperty(navigator, 'webdriver', {
		get: () => undefined,
	});
	window.chrome = { runtime: {} };
	Object.defineProperty(navigator, 'plugins', {
		get: () => [1, 2, 3, 4, 5],
	});
`

// ChromeLauncher starts headless Chrome instances through one shared
// exec allocator.
type ChromeLauncher struct {
	cfg    ChromeConfig
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc
}

func NewChromeLauncher(cfg ChromeConfig, logger *zap.Logger) *ChromeLauncher {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.UserAgent(cfg.UserAgent),

		// Stealth options
		chromedp.Flag("accept-language", "zh-TW,zh;q=0.9,en-US;q=0.8,en;q=0.7"),
		chromedp.Flag("accept-encoding", "gzip, deflate, br"),
		chromedp.Flag("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.Flag("disable-extensions", ""),
	)
	if cfg.ProxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.ProxyURL))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &ChromeLauncher{
		cfg:         cfg,
		logger:      logger,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
	}
}

// Launch opens a new browser and runs it once so that a broken binary or a
// missing display fails here rather than on first use.
func (l *ChromeLauncher) Launch(ctx context.Context) (Handle, error) {
	tabCtx, tabCancel := chromedp.NewContext(l.allocCtx)

	// The browser lives as long as the context of its first Run, so the
	// launch timeout is enforced from outside instead of deriving a child.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx) }()

	timer := time.NewTimer(l.cfg.LaunchTimeout)
	defer timer.Stop()

	select {
	case err := <-started:
		if err != nil {
			tabCancel()
			return nil, fmt.Errorf("failed to start chrome: %w", err)
		}
	case <-timer.C:
		tabCancel()
		return nil, fmt.Errorf("chrome did not start within %s", l.cfg.LaunchTimeout)
	case <-ctx.Done():
		tabCancel()
		return nil, ctx.Err()
	}

	return &chromeHandle{cfg: l.cfg, logger: l.logger, ctx: tabCtx, cancel: tabCancel}, nil
}

// Close shuts down the allocator. Handles still open are killed with it.
func (l *ChromeLauncher) Close() error {
	l.allocCancel()
	return nil
}

type chromeHandle struct {
	cfg    ChromeConfig
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// run executes actions on the tab, bounded by both the caller's ctx and
// timeout. Cancelling a derived context leaves the tab itself open.
func (h *chromeHandle) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(h.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (h *chromeHandle) Load(ctx context.Context, url string) (Page, error) {
	err := h.run(ctx, h.cfg.PageLoadTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady(h.cfg.WaitSelector),
		chromedp.Evaluate(stealthScript, nil),
		chromedp.Sleep(h.cfg.SettleDelay),
	)
	if err != nil {
		h.logger.Debug("navigation failed", zap.String("url", url), zap.Error(err))
		return Page{}, fmt.Errorf("navigation failed: %w", err)
	}

	var page Page
	err = h.run(ctx, h.cfg.PageLoadTimeout,
		chromedp.Location(&page.URL),
		chromedp.Title(&page.Title),
		chromedp.OuterHTML("html", &page.HTML),
	)
	if err != nil {
		return Page{}, fmt.Errorf("failed to get page state: %w", err)
	}

	h.logger.Debug("page loaded",
		zap.String("current_url", page.URL),
		zap.String("title", page.Title),
		zap.Int("dom_length", len(page.HTML)))
	return page, nil
}

func (h *chromeHandle) Reset(ctx context.Context) error {
	deadline := h.cfg.PageLoadTimeout
	if d, ok := ctx.Deadline(); ok {
		deadline = time.Until(d)
	}
	return h.run(ctx, deadline,
		network.ClearBrowserCookies(),
		network.ClearBrowserCache(),
		chromedp.Navigate("about:blank"),
	)
}

func (h *chromeHandle) Ping(ctx context.Context) error {
	deadline := h.cfg.PageLoadTimeout
	if d, ok := ctx.Deadline(); ok {
		deadline = time.Until(d)
	}
	var current string
	if err := h.run(ctx, deadline, chromedp.Location(&current)); err != nil {
		return err
	}
	if current == "" {
		return errors.New("browser reported no location")
	}
	return nil
}

func (h *chromeHandle) Close() error {
	err := chromedp.Cancel(h.ctx)
	h.cancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
