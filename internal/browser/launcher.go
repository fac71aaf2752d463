package browser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/jmylchreest/sessionkeeper/internal/logger"
)

// Args are the fixed hardening flags every browser is launched with.
var Args = []string{"disable-dev-shm-usage", "no-sandbox"}

func log() *slog.Logger { return logger.For("browser") }

// LaunchConfig configures a browser launch.
type LaunchConfig struct {
	// ExecutablePath overrides the Chrome binary. Empty means auto-detect.
	ExecutablePath string
	// Stealth adds StealthFlags to the launch.
	Stealth bool
}

// Flags returns the exec allocator options for a launch: chromedp's
// defaults plus Args.
func Flags() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for _, arg := range Args {
		opts = append(opts, chromedp.Flag(arg, true))
	}
	return opts
}

// Session is one running browser instance.
type Session struct {
	allocCtx      context.Context
	cancelAlloc   context.CancelFunc
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
}

// Launch starts a browser. Launch errors are returned unchanged.
func Launch(ctx context.Context, cfg LaunchConfig) (*Session, error) {
	opts := Flags()
	if cfg.Stealth {
		opts = append(opts, StealthFlags()...)
	}

	execPath := cfg.ExecutablePath
	if execPath == "" {
		execPath = FindChromePath()
	}
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}

	log().Info("Creating browser", "args", Args, "executable_path", execPath, "stealth", cfg.Stealth)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			log().Debug("chromedp", "msg", fmt.Sprintf(format, args...))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			log().Debug("chromedp error", "msg", fmt.Sprintf(format, args...))
		}),
	)

	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, err
	}

	s := &Session{
		allocCtx:      allocCtx,
		cancelAlloc:   cancelAlloc,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
	}

	if err := target.SetDiscoverTargets(true).Do(s.exec(ctx)); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// exec binds ctx to the browser-level CDP executor.
func (s *Session) exec(ctx context.Context) context.Context {
	return cdp.WithExecutor(ctx, chromedp.FromContext(s.browserCtx).Browser)
}

// NewContext creates an isolated browser context with its own cookie jar.
func (s *Session) NewContext(ctx context.Context) (Context, error) {
	id, err := target.CreateBrowserContext().Do(s.exec(ctx))
	if err != nil {
		return nil, fmt.Errorf("create browser context: %w", err)
	}
	log().Debug("browser context created", "browser_context", id)
	return newBrowserContext(s, id), nil
}

// Close shuts the browser down.
func (s *Session) Close() {
	if s.cancelBrowser != nil {
		s.cancelBrowser()
	}
	if s.cancelAlloc != nil {
		s.cancelAlloc()
	}
}
