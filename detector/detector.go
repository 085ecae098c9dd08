// Package detector classifies the page reached after the form is submitted.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/anemwatch/browser"
	"github.com/aluiziolira/anemwatch/config"
	"github.com/aluiziolira/anemwatch/models"
	"github.com/aluiziolira/anemwatch/parser"
)

// ErrIndeterminate indicates the landing page could not be classified.
type ErrIndeterminate struct {
	Reason string
}

func (e ErrIndeterminate) Error() string {
	return fmt.Sprintf("indeterminate: %s", e.Reason)
}

// Detector looks for the no-slots message on the landing page.
type Detector struct {
	site          config.Site
	readyTimeout  time.Duration
	settleTimeout time.Duration
	interval      time.Duration
	logger        *slog.Logger
}

// New builds a detector from cfg.
func New(cfg *config.Config, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		site:          cfg.Site,
		readyTimeout:  cfg.ReadyTimeout,
		settleTimeout: cfg.SettleTimeout,
		interval:      cfg.PollInterval,
		logger:        logger.With(slog.String("component", "detector")),
	}
}

// Detect waits for the redirect to finish and scans the rendered text.
// It never returns an error; anything it cannot read is Indeterminate.
func (d *Detector) Detect(ctx context.Context, page browser.Page) models.Detection {
	res, err := browser.WaitUntil(ctx, d.readyTimeout, d.interval, d.landed(page))
	location, _ := page.URL(ctx)
	if err != nil {
		return indeterminate(location, err.Error())
	}
	if res == browser.TimedOut {
		if onForm, _ := page.Present(ctx, d.site.WassitSelector); onForm {
			return indeterminate(location, "still on the form page")
		}
		return indeterminate(location, fmt.Sprintf("page not ready after %s", d.readyTimeout))
	}
	d.logger.Debug("landing page reached", slog.String("url", location))

	phrase := func(ctx context.Context) (bool, error) {
		text, err := page.Text(ctx)
		if err != nil {
			return false, err
		}
		return parser.ContainsPhrase(text, d.site.NoSlotsPhrase), nil
	}
	res, err = browser.WaitUntil(ctx, d.settleTimeout, d.interval, phrase)
	if err != nil {
		return indeterminate(location, err.Error())
	}
	if res == browser.Found {
		return models.Detection{Result: models.DetectionNoSlots, URL: location}
	}

	// The verdict is taken on one final read.
	text, err := page.Text(ctx)
	if err != nil {
		return indeterminate(location, fmt.Sprintf("read page text: %v", err))
	}
	if parser.ContainsPhrase(text, d.site.NoSlotsPhrase) {
		return models.Detection{Result: models.DetectionNoSlots, URL: location}
	}
	if parser.CollapseWhitespace(text) == "" {
		return indeterminate(location, "page has no text")
	}
	return models.Detection{Result: models.DetectionSlotsAvailable, URL: location}
}

// landed holds once the document is complete and the form inputs are gone.
func (d *Detector) landed(page browser.Page) browser.Condition {
	ready := browser.DocumentReady(page)
	gone := browser.ElementAbsent(page, d.site.WassitSelector)
	return func(ctx context.Context) (bool, error) {
		ok, err := ready(ctx)
		if err != nil || !ok {
			return false, err
		}
		return gone(ctx)
	}
}

func indeterminate(location, reason string) models.Detection {
	return models.Detection{Result: models.DetectionIndeterminate, URL: location, Reason: reason}
}
