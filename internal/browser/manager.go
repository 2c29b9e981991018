// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/seatwatch/internal/config"
)

const shutdownGracePeriod = 10 * time.Second

// Manager owns the browser for the lifetime of a command: either a Chrome it
// launched itself or a running Chrome it attached to over DevTools.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	tabCtx        context.Context
	tabCancel     context.CancelFunc
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	attached      bool

	mu     sync.Mutex
	closed bool
}

// NewManager starts or attaches to a browser and opens the working tab. When
// a start URL is configured the tab navigates there. ctx bounds startup only;
// the browser lives until Shutdown.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		cfg:    cfg,
		logger: logger.Named("browser_manager"),
	}

	var err error
	if cfg.RemoteURL != "" {
		err = m.attach(ctx)
	} else {
		err = m.launch(ctx)
	}
	if err != nil {
		m.release()
		return nil, err
	}

	if cfg.StartURL != "" {
		if err := m.Navigate(ctx, cfg.StartURL); err != nil {
			m.release()
			return nil, err
		}
	}
	return m, nil
}

func (m *Manager) launch(ctx context.Context) error {
	m.logger.Info("Launching browser.",
		zap.Bool("headless", m.cfg.Headless),
		zap.String("profile", m.cfg.UserDataDir))

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), DefaultAllocatorOptions(m.cfg)...)
	m.allocCancel = allocCancel

	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(m.logger.Sugar().Debugf))
	m.tabCtx, m.tabCancel = tabCtx, tabCancel

	startCtx, cancel := CombineContext(tabCtx, ctx)
	defer cancel()
	if err := chromedp.Run(startCtx); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	m.logger.Info("Browser started.")
	return nil
}

func (m *Manager) attach(ctx context.Context) error {
	m.logger.Info("Attaching to running browser.", zap.String("remote_url", m.cfg.RemoteURL))
	m.attached = true

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), m.cfg.RemoteURL)
	m.allocCancel = allocCancel

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	m.browserCancel = browserCancel

	listCtx, cancel := CombineContext(browserCtx, ctx)
	defer cancel()
	targets, err := chromedp.Targets(listCtx)
	if err != nil {
		return fmt.Errorf("failed to list browser targets: %w", err)
	}
	t := pickTarget(targets, m.cfg.TargetURLContains)
	if t == nil {
		return fmt.Errorf("no page target matches %q", m.cfg.TargetURLContains)
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx, chromedp.WithTargetID(t.TargetID))
	m.tabCtx, m.tabCancel = tabCtx, tabCancel

	runCtx, cancelRun := CombineContext(tabCtx, ctx)
	defer cancelRun()
	if err := chromedp.Run(runCtx); err != nil {
		return fmt.Errorf("failed to attach to target %s: %w", t.TargetID, err)
	}
	m.logger.Info("Attached to tab.", zap.String("url", t.URL), zap.String("title", t.Title))
	return nil
}

// pickTarget returns the first page target whose URL contains substr.
func pickTarget(targets []*target.Info, substr string) *target.Info {
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if substr == "" || strings.Contains(t.URL, substr) {
			return t
		}
	}
	return nil
}

// Navigate loads url in the working tab.
func (m *Manager) Navigate(ctx context.Context, url string) error {
	c, cancel := CombineContext(m.tabCtx, ctx)
	defer cancel()
	m.logger.Info("Navigating.", zap.String("url", url))
	if err := chromedp.Run(c, chromedp.Navigate(url)); err != nil {
		return classify(m.tabCtx, "navigate", err)
	}
	return nil
}

// Session returns a collaborator bound to the working tab.
func (m *Manager) Session(page config.PageConfig) *Session {
	return NewSession(m.tabCtx, page, m.logger)
}

// Shutdown closes a launched browser, or detaches from an attached one
// without closing the user's tab.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	var err error
	if !m.attached && m.tabCtx != nil {
		closeCtx, cancel := context.WithTimeout(ctx, shutdownGracePeriod)
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(m.tabCtx) }()
		select {
		case err = <-done:
		case <-closeCtx.Done():
			err = fmt.Errorf("browser did not close in time: %w", closeCtx.Err())
		}
		cancel()
	}
	m.release()
	m.logger.Info("Browser manager shut down.")
	return err
}

func (m *Manager) release() {
	if m.attached && m.tabCtx != nil {
		// Cancelling any context above an attached tab closes that tab. The
		// DevTools connection drops when the process exits.
		return
	}
	for _, cancel := range []context.CancelFunc{m.tabCancel, m.browserCancel, m.allocCancel} {
		if cancel != nil {
			cancel()
		}
	}
}
