package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/stealth"
)

const webdriverOverride = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// defaultStartTimeout bounds browser startup when Options.StartTimeout is unset.
const defaultStartTimeout = time.Minute

// closeTimeout bounds the graceful browser shutdown before contexts are torn down.
const closeTimeout = 10 * time.Second

// Options configures how sessions are started.
type Options struct {
	// ExecPath overrides Chrome auto-detection.
	ExecPath string
	// RemoteURL attaches to an already running browser instead of launching one.
	RemoteURL    string
	UserAgent    string
	WindowWidth  int
	WindowHeight int
	// StartTimeout bounds browser startup. Defaults to one minute.
	StartTimeout time.Duration
	Logger       *slog.Logger
}

// Manager opens one visible, automation-masked Chrome session per call.
type Manager struct {
	opts   Options
	logger *slog.Logger
}

// NewManager builds a session manager.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{opts: opts, logger: logger.With(slog.String("component", "browser"))}
}

// AllocatorOptions returns the Chrome launch flags used for local sessions.
func (m *Manager) AllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", false),
		chromedp.Flag("hide-scrollbars", false),
		chromedp.Flag("mute-audio", false),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if m.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(m.opts.UserAgent))
	}
	if m.opts.WindowWidth > 0 && m.opts.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(m.opts.WindowWidth, m.opts.WindowHeight))
	}
	if m.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(m.opts.ExecPath))
	}
	return opts
}

// Open starts a fresh browser, injects the automation evasions and returns the
// session. Any failure here is reported as ErrEngineUnavailable.
func (m *Manager) Open(ctx context.Context) (Session, error) {
	var (
		allocCtx    context.Context
		cancelAlloc context.CancelFunc
	)
	if m.opts.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), m.opts.RemoteURL)
	} else {
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.Background(), m.AllocatorOptions()...)
	}

	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(m.devtoolsLog(slog.LevelDebug)),
		chromedp.WithErrorf(m.devtoolsLog(slog.LevelDebug)),
	)

	s := &ChromeSession{
		ctx:    tabCtx,
		logger: m.logger,
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
	}

	// The first Run allocates the browser and ties its lifetime to the context
	// it is given, so it runs on tabCtx. Startup is bounded by cancelling the
	// session.
	startTimeout := m.opts.StartTimeout
	if startTimeout <= 0 {
		startTimeout = defaultStartTimeout
	}
	start := time.Now()
	stopOnCancel := context.AfterFunc(ctx, s.cancel)
	timer := time.AfterFunc(startTimeout, s.cancel)

	err := chromedp.Run(tabCtx, chromedp.ActionFunc(injectEvasions))
	timedOut := !timer.Stop()
	canceled := !stopOnCancel()

	if err != nil || timedOut || canceled {
		s.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if timedOut {
			err = fmt.Errorf("browser did not start within %s", startTimeout)
		}
		return nil, ErrEngineUnavailable{Err: err}
	}
	m.logger.Debug("browser session opened",
		slog.Bool("remote", m.opts.RemoteURL != ""),
		slog.Duration("startup", time.Since(start)),
	)
	return s, nil
}

func (m *Manager) devtoolsLog(level slog.Level) func(string, ...any) {
	return func(format string, args ...any) {
		m.logger.Log(context.Background(), level, "devtools", slog.String("msg", fmt.Sprintf(format, args...)))
	}
}

func injectEvasions(ctx context.Context) error {
	for _, script := range []string{stealth.JS, webdriverOverride} {
		if _, err := cdppage.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
			return fmt.Errorf("inject evasion script: %w", err)
		}
	}
	return nil
}

// ChromeSession is a Session backed by chromedp.
type ChromeSession struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// run executes actions on the tab, bounded by both the session and ctx.
func (s *ChromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	return chromedp.Run(runCtx, actions...)
}

func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *ChromeSession) Present(ctx context.Context, selector string) (bool, error) {
	quoted, err := quote(selector)
	if err != nil {
		return false, err
	}
	var ok bool
	err = s.run(ctx, chromedp.Evaluate(fmt.Sprintf(`document.querySelector(%s) !== null`, quoted), &ok))
	return ok, err
}

func (s *ChromeSession) Clickable(ctx context.Context, selector string) (bool, error) {
	quoted, err := quote(selector)
	if err != nil {
		return false, err
	}
	script := fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el || el.disabled || el.getAttribute('aria-disabled') === 'true') return false;
	const style = window.getComputedStyle(el);
	if (style.visibility === 'hidden' || style.display === 'none' || style.pointerEvents === 'none') return false;
	const rect = el.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0;
})()`, quoted)
	var ok bool
	err = s.run(ctx, chromedp.Evaluate(script, &ok))
	return ok, err
}

func (s *ChromeSession) SetValue(ctx context.Context, selector, value string) error {
	return s.run(ctx,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (s *ChromeSession) Click(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (s *ChromeSession) ReadyState(ctx context.Context) (string, error) {
	var state string
	err := s.run(ctx, chromedp.Evaluate(`document.readyState`, &state))
	return state, err
}

func (s *ChromeSession) URL(ctx context.Context) (string, error) {
	var location string
	err := s.run(ctx, chromedp.Location(&location))
	return location, err
}

func (s *ChromeSession) Text(ctx context.Context) (string, error) {
	var text string
	err := s.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))
	return text, err
}

// Close shuts the browser down. Only the first call does any work.
func (s *ChromeSession) Close() error {
	s.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(s.ctx) }()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.closeErr = fmt.Errorf("close browser: %w", err)
			}
		case <-time.After(closeTimeout):
			s.closeErr = fmt.Errorf("close browser: timed out after %s", closeTimeout)
		}
		s.cancel()
		if s.closeErr != nil {
			s.logger.Warn("browser close failed", slog.Any("error", s.closeErr))
		}
	})
	return s.closeErr
}

func quote(selector string) (string, error) {
	b, err := json.Marshal(selector)
	if err != nil {
		return "", fmt.Errorf("quote selector: %w", err)
	}
	return string(b), nil
}
