package engine

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/chromedp/chromedp"

	"lightkeeper/internal/logging"
)

// ChromeLauncher launches a headless Chrome with a remote debugging port
// that the audit engine can attach to.
type ChromeLauncher struct {
	execPath string
	headless bool
	logger   logging.Logger
}

// ChromeOption configures a ChromeLauncher.
type ChromeOption func(*ChromeLauncher)

// WithExecPath overrides the browser binary location.
func WithExecPath(path string) ChromeOption {
	return func(l *ChromeLauncher) { l.execPath = path }
}

// WithHeadful runs the browser with a visible window.
func WithHeadful() ChromeOption {
	return func(l *ChromeLauncher) { l.headless = false }
}

// NewChromeLauncher creates a launcher with headless defaults.
func NewChromeLauncher(logger logging.Logger, opts ...ChromeOption) *ChromeLauncher {
	l := &ChromeLauncher{headless: true, logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch starts a fresh browser instance on a free debugging port.
func (l *ChromeLauncher) Launch(ctx context.Context) (Host, error) {
	port, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("failed to pick a debugging port: %w", err)
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("remote-debugging-port", strconv.Itoa(port)))
	if !l.headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if l.execPath != "" {
		opts = append(opts, chromedp.ExecPath(l.execPath))
	}

	// The allocator hangs off Background so a cancelled measurement context
	// cannot orphan the cleanup path; Close tears everything down.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// First Run starts the browser process
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	l.logger.Debug("Browser launched", "debug_port", port)

	return &chromeHost{
		port:          port,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		logger:        l.logger,
	}, nil
}

type chromeHost struct {
	port          int
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	logger        logging.Logger
}

// Endpoint returns the debugging address for the audit engine.
func (h *chromeHost) Endpoint() string {
	return fmt.Sprintf("127.0.0.1:%d", h.port)
}

// NewPage opens a fresh tab.
func (h *chromeHost) NewPage(_ context.Context) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(h.browserCtx)
	// Materialize the tab so the handle is live before the caller uses it
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return &chromePage{ctx: tabCtx, cancel: cancel}, nil
}

// Close tears the browser down.
func (h *chromeHost) Close() error {
	if err := chromedp.Cancel(h.browserCtx); err != nil {
		h.logger.Warn("Browser did not shut down cleanly", "error", err)
	}
	h.cancelBrowser()
	h.cancelAlloc()
	return nil
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func (p *chromePage) Navigate(_ context.Context, url string) error {
	return chromedp.Run(p.ctx, chromedp.Navigate(url))
}

func (p *chromePage) Evaluate(_ context.Context, expr string) error {
	return chromedp.Run(p.ctx, chromedp.Evaluate(expr, nil))
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}

// freePort asks the kernel for an unused TCP port.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
