// Package poller runs form attempts until slots show up or the run is bounded out.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/anemwatch/browser"
	"github.com/aluiziolira/anemwatch/config"
	"github.com/aluiziolira/anemwatch/detector"
	"github.com/aluiziolira/anemwatch/models"
	"github.com/aluiziolira/anemwatch/probe"
)

// State is the controller's position in its state machine.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateSuccess
	StateRetry
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSuccess:
		return "success"
	case StateRetry:
		return "retry"
	case StateFatal:
		return "fatal"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// FormFiller fills and submits the form on a loaded page.
type FormFiller interface {
	FillAndSubmit(ctx context.Context, page browser.Page, creds config.Credentials) (models.PostSubmitState, error)
}

// PageDetector classifies the landing page.
type PageDetector interface {
	Detect(ctx context.Context, page browser.Page) models.Detection
}

// Reporter surfaces each attempt to the operator.
type Reporter interface {
	Report(a models.Attempt)
}

// Prober runs the optional candidate pre-check.
type Prober interface {
	Check(ctx context.Context, creds config.Credentials) (*probe.Result, error)
}

// Options wires a Controller. Prober and Metrics are optional.
type Options struct {
	Config      *config.Config
	Credentials config.Credentials
	Opener      browser.Opener
	Form        FormFiller
	Detector    PageDetector
	Reporter    Reporter
	Prober      Prober
	Metrics     *Metrics
	Logger      *slog.Logger
}

// Controller sequences attempts one at a time.
type Controller struct {
	cfg      *config.Config
	creds    config.Credentials
	opener   browser.Opener
	form     FormFiller
	detector PageDetector
	reporter Reporter
	prober   Prober
	metrics  *Metrics
	logger   *slog.Logger

	state atomic.Int32

	mu   sync.Mutex
	last *models.Attempt
}

// New validates the wiring and returns an idle controller.
func New(opts Options) (*Controller, error) {
	if opts.Config == nil {
		return nil, errors.New("poller: config is required")
	}
	if opts.Opener == nil || opts.Form == nil || opts.Detector == nil || opts.Reporter == nil {
		return nil, errors.New("poller: opener, form, detector and reporter are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		cfg:      opts.Config,
		creds:    opts.Credentials,
		opener:   opts.Opener,
		form:     opts.Form,
		detector: opts.Detector,
		reporter: opts.Reporter,
		prober:   opts.Prober,
		metrics:  opts.Metrics,
		logger:   logger.With(slog.String("component", "poller")),
	}
	c.setState(StateIdle)
	return c, nil
}

// State returns the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Last returns a copy of the most recent attempt, if any.
func (c *Controller) Last() (models.Attempt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return models.Attempt{}, false
	}
	return *c.last, true
}

// RunAttempt performs one open, navigate, fill, detect, close cycle. Every
// error or panic becomes a Failed attempt; the session is always closed.
func (c *Controller) RunAttempt(ctx context.Context, number int) (attempt models.Attempt) {
	attempt = models.Attempt{
		ID:        uuid.NewString(),
		Number:    number,
		StartedAt: time.Now(),
	}
	defer func() {
		attempt.Duration = time.Since(attempt.StartedAt)
	}()

	fail := func(err error) models.Attempt {
		attempt.Outcome = models.OutcomeFailed
		attempt.Err = err
		return attempt
	}

	if c.creds.IsZero() {
		return fail(config.ErrMissingCredentials{Field: "N1/N2", Err: errors.New("credentials not loaded")})
	}

	session, err := c.opener.Open(ctx)
	if err != nil {
		return fail(err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			c.logger.Warn("session close failed", slog.Int("attempt", number), slog.Any("error", err))
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("attempt panic", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			attempt.Outcome = models.OutcomeFailed
			attempt.Err = fmt.Errorf("attempt panic: %v", r)
		}
	}()

	if err := browser.Navigate(ctx, session, c.cfg.Site.URL, c.cfg.NavigationTimeout, c.cfg.PollInterval); err != nil {
		return fail(err)
	}

	post, err := c.form.FillAndSubmit(ctx, session, c.creds)
	attempt.PostSubmit = post
	if err != nil {
		return fail(err)
	}

	det := c.detector.Detect(ctx, session)
	attempt.URL = det.URL
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	attempt.Outcome = det.Result.Outcome()
	if det.Result == models.DetectionIndeterminate {
		attempt.Err = detector.ErrIndeterminate{Reason: det.Reason}
	}
	if det.URL != "" {
		c.logger.Info("landing page", slog.Int("attempt", number), slog.String("url", det.URL))
	}
	return attempt
}

// Run loops over attempts until slots are found, the run is bounded out, a
// fatal error occurs or ctx ends. Only fatal errors are returned.
func (c *Controller) Run(ctx context.Context) (*models.RunResult, error) {
	result := &models.RunResult{
		StartTime:     time.Now(),
		OutcomeCounts: make(map[models.Outcome]int),
		ErrorsByType:  make(map[string]int),
	}
	defer func() {
		result.EndTime = time.Now()
	}()

	if c.creds.IsZero() {
		c.setState(StateFatal)
		result.Reason = models.StopFatal
		return result, config.ErrMissingCredentials{Field: "N1/N2", Err: errors.New("credentials not loaded")}
	}

	var deadline time.Time
	if c.cfg.MaxDuration > 0 {
		deadline = result.StartTime.Add(c.cfg.MaxDuration)
	}
	c.logger.Info("polling started",
		slog.Any("credentials", c.creds),
		slog.Bool("watch", c.cfg.Watch),
		slog.Int("max_attempts", c.cfg.MaxAttempts),
		slog.Duration("max_duration", c.cfg.MaxDuration),
	)

	failures := 0
	for number := 1; ; number++ {
		if ctx.Err() != nil {
			return c.stop(result, models.StopCanceled, StateIdle), nil
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return c.stop(result, models.StopDeadline, StateFatal), nil
		}

		c.setState(StateRunning)
		c.runProbe(ctx)

		attempt := c.RunAttempt(ctx, number)
		c.record(result, attempt)
		c.reporter.Report(attempt)

		if IsFatal(attempt.Err) {
			c.logger.Error("fatal error, stopping", slog.Any("error", attempt.Err))
			c.stop(result, models.StopFatal, StateFatal)
			return result, attempt.Err
		}
		if ctx.Err() != nil {
			return c.stop(result, models.StopCanceled, StateIdle), nil
		}

		var delay time.Duration
		switch attempt.Outcome {
		case models.OutcomeSlotsAvailable:
			c.logger.Info("slots may be available", slog.Int("attempt", number), slog.String("url", attempt.URL))
			return c.stop(result, models.StopSlotsFound, StateSuccess), nil
		case models.OutcomeNoSlots:
			failures = 0
			if !c.cfg.Watch {
				return c.stop(result, models.StopNoSlots, StateSuccess), nil
			}
			delay = c.cfg.WatchInterval
		default:
			failures++
			delay = c.backoff(failures)
		}

		if c.cfg.MaxAttempts > 0 && number >= c.cfg.MaxAttempts {
			return c.stop(result, models.StopExhausted, StateFatal), nil
		}
		if !deadline.IsZero() && !time.Now().Add(delay).Before(deadline) {
			return c.stop(result, models.StopDeadline, StateFatal), nil
		}

		c.setState(StateRetry)
		result.Retries++
		c.metrics.IncRetries()
		c.logger.Info("next attempt scheduled",
			slog.Int("attempt", number+1),
			slog.String("after", string(attempt.Outcome)),
			slog.Duration("delay", delay),
		)
		if err := sleep(ctx, delay); err != nil {
			return c.stop(result, models.StopCanceled, StateIdle), nil
		}
	}
}

func (c *Controller) record(result *models.RunResult, attempt models.Attempt) {
	c.mu.Lock()
	last := attempt
	c.last = &last
	c.mu.Unlock()

	result.Attempts++
	result.Last = &last
	result.OutcomeCounts[attempt.Outcome]++

	c.metrics.IncAttempt(string(attempt.Outcome))
	c.metrics.ObserveDuration(attempt.Duration)
	if attempt.Err != nil {
		label := ErrorTypeLabel(attempt.Err)
		result.ErrorsByType[label]++
		c.metrics.IncError(label)
		c.logger.Debug("attempt error", slog.Int("attempt", attempt.Number), slog.String("category", label), slog.Any("error", attempt.Err))
	}
}

func (c *Controller) runProbe(ctx context.Context) {
	if c.prober == nil {
		return
	}
	res, err := c.prober.Check(ctx, c.creds)
	if err != nil {
		label := probe.ErrorTypeLabel(err)
		c.metrics.IncProbe(label)
		var rejected probe.ErrCandidateRejected
		if errors.As(err, &rejected) {
			c.logger.Error("validation api rejected the identifiers, check N1 and N2",
				slog.Int("status", rejected.Status), slog.Any("credentials", c.creds))
			return
		}
		c.logger.Warn("candidate pre-check failed", slog.String("category", label), slog.Any("error", err))
		return
	}
	c.metrics.IncProbe("ok")
	c.logger.Info("candidate pre-check", slog.Any("result", res))
}

func (c *Controller) stop(result *models.RunResult, reason models.StopReason, state State) *models.RunResult {
	result.Reason = reason
	c.setState(state)
	c.logger.Info("polling stopped",
		slog.String("reason", string(reason)),
		slog.Int("attempts", result.Attempts),
		slog.Int("retries", result.Retries),
	)
	return result
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
	c.metrics.SetState(s)
}

func (c *Controller) backoff(failures int) time.Duration {
	if failures <= 0 {
		failures = 1
	}

	base := c.cfg.RetryDelay
	if base <= 0 {
		base = time.Second
	}

	if failures > 20 {
		failures = 20
	}
	delay := base * time.Duration(1<<(failures-1))
	if max := c.cfg.RetryDelayMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
