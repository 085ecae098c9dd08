// Package form fills and submits the pre-inscription form.
package form

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aluiziolira/anemwatch/browser"
	"github.com/aluiziolira/anemwatch/config"
	"github.com/aluiziolira/anemwatch/models"
)

// Driver performs the fill, submit and confirm steps on an already loaded form.
type Driver struct {
	site           config.Site
	elementTimeout time.Duration
	dialogTimeout  time.Duration
	spinnerTimeout time.Duration
	interval       time.Duration
	logger         *slog.Logger
}

// NewDriver builds a driver from cfg.
func NewDriver(cfg *config.Config, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		site:           cfg.Site,
		elementTimeout: cfg.ElementTimeout,
		dialogTimeout:  cfg.DialogTimeout,
		spinnerTimeout: cfg.SpinnerTimeout,
		interval:       cfg.PollInterval,
		logger:         logger.With(slog.String("component", "form")),
	}
}

// FillAndSubmit types both identifiers, clicks submit once and, when the
// portal shows its confirmation dialog, clicks its confirm button once.
func (d *Driver) FillAndSubmit(ctx context.Context, page browser.Page, creds config.Credentials) (models.PostSubmitState, error) {
	if err := d.fill(ctx, page, d.site.WassitSelector, creds.Wassit()); err != nil {
		return models.PostSubmitUnknown, err
	}
	if err := d.fill(ctx, page, d.site.IdentitySelector, creds.Identity()); err != nil {
		return models.PostSubmitUnknown, err
	}

	if err := d.clickWhenReady(ctx, page, d.site.SubmitSelector); err != nil {
		return models.PostSubmitUnknown, err
	}
	d.logger.Debug("form submitted")

	if err := d.waitSpinner(ctx, page); err != nil {
		return models.PostSubmitUnknown, err
	}

	state, err := d.awaitReaction(ctx, page)
	if err != nil {
		return models.PostSubmitUnknown, err
	}
	if state == models.PostSubmitDirectRedirect {
		return state, nil
	}

	if err := d.clickWhenReady(ctx, page, d.site.DialogConfirmSelector); err != nil {
		return state, err
	}
	d.logger.Debug("dialog confirmed")
	return state, nil
}

func (d *Driver) fill(ctx context.Context, page browser.Page, selector, value string) error {
	res, err := browser.WaitUntil(ctx, d.elementTimeout, d.interval, browser.ElementClickable(page, selector))
	if err != nil {
		return err
	}
	if res == browser.TimedOut {
		return browser.ErrElementNotFound{Selector: selector, Err: fmt.Errorf("not interactable after %s", d.elementTimeout)}
	}
	if err := page.SetValue(ctx, selector, value); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return browser.ErrElementNotFound{Selector: selector, Err: err}
	}
	return nil
}

func (d *Driver) clickWhenReady(ctx context.Context, page browser.Page, selector string) error {
	res, err := browser.WaitUntil(ctx, d.elementTimeout, d.interval, browser.ElementClickable(page, selector))
	if err != nil {
		return err
	}
	if res == browser.TimedOut {
		return browser.ErrElementNotFound{Selector: selector, Err: fmt.Errorf("not clickable after %s", d.elementTimeout)}
	}
	if err := page.Click(ctx, selector); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return browser.ErrElementNotFound{Selector: selector, Err: err}
	}
	return nil
}

// waitSpinner lets the portal finish its loading indicator. A spinner that
// never clears is logged and left to the dialog race to resolve.
func (d *Driver) waitSpinner(ctx context.Context, page browser.Page) error {
	res, err := browser.WaitUntil(ctx, d.spinnerTimeout, d.interval, browser.ElementAbsent(page, d.site.SpinnerSelector))
	if err != nil {
		return err
	}
	if res == browser.TimedOut {
		d.logger.Warn("loading spinner still visible", slog.Duration("waited", d.spinnerTimeout))
	}
	return nil
}

// awaitReaction races the confirmation dialog against a redirect. Neither
// showing up within the dialog timeout is treated as a redirect.
func (d *Driver) awaitReaction(ctx context.Context, page browser.Page) (models.PostSubmitState, error) {
	idx, err := browser.WaitFirst(ctx, d.dialogTimeout, d.interval,
		browser.ElementPresent(page, d.site.DialogConfirmSelector),
		browser.ElementPresent(page, d.site.DialogSelector),
		d.leftForm(page),
	)
	if err != nil {
		return models.PostSubmitUnknown, err
	}

	switch idx {
	case 0, 1:
		return models.PostSubmitDialogShown, nil
	case 2:
		return models.PostSubmitDirectRedirect, nil
	default:
		d.logger.Debug("no dialog after submit", slog.Duration("waited", d.dialogTimeout))
		return models.PostSubmitDirectRedirect, nil
	}
}

func (d *Driver) leftForm(page browser.Page) browser.Condition {
	formURL := strings.TrimRight(d.site.URL, "/")
	return func(ctx context.Context) (bool, error) {
		present, err := page.Present(ctx, d.site.WassitSelector)
		if err != nil {
			return false, err
		}
		if !present {
			return true, nil
		}
		current, err := page.URL(ctx)
		if err != nil {
			return false, err
		}
		return current != "" && strings.TrimRight(current, "/") != formURL, nil
	}
}
