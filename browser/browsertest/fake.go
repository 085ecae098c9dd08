// Package browsertest provides scriptable in-memory pages for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/anemwatch/browser"
	"github.com/aluiziolira/anemwatch/config"
)

// Element is the state of one selector on a fake page.
type Element struct {
	Present   bool
	Clickable bool
	Value     string
}

// Page is an in-memory browser.Page. Hooks run with the page lock released so
// they may mutate the page through its exported helpers.
type Page struct {
	mu          sync.Mutex
	elements    map[string]*Element
	readyState  string
	url         string
	text        string
	clicks      map[string]int
	navigations []string

	// NavigateErr is returned from every Navigate call when set.
	NavigateErr error
	// TextErr is returned from every Text call when set.
	TextErr error
	// OnNavigate runs after a successful Navigate.
	OnNavigate func(p *Page, url string)
	// OnClick runs after a click on the given selector.
	OnClick map[string]func(p *Page)
	// PanicOn makes a click on the selector panic.
	PanicOn string
}

// NewPage returns an empty page in the complete ready state.
func NewPage() *Page {
	return &Page{
		elements:   make(map[string]*Element),
		readyState: "complete",
		clicks:     make(map[string]int),
		OnClick:    make(map[string]func(p *Page)),
	}
}

// SetElement replaces the state of selector.
func (p *Page) SetElement(selector string, el Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := el
	p.elements[selector] = &cp
}

// Remove makes selector absent.
func (p *Page) Remove(selectors ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sel := range selectors {
		delete(p.elements, sel)
	}
}

// Load simulates arriving on a new document.
func (p *Page) Load(url, text, readyState string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	p.text = text
	p.readyState = readyState
}

// SetReadyState changes document.readyState.
func (p *Page) SetReadyState(state string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readyState = state
}

// SetText replaces the body text.
func (p *Page) SetText(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.text = text
}

// Clicks returns how often selector was clicked.
func (p *Page) Clicks(selector string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clicks[selector]
}

// Value returns the current value of selector.
func (p *Page) Value(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.elements[selector]; ok {
		return el.Value
	}
	return ""
}

// Navigations returns every URL passed to Navigate.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.navigations))
	copy(out, p.navigations)
	return out
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.navigations = append(p.navigations, url)
	err := p.NavigateErr
	hook := p.OnNavigate
	if err == nil {
		p.url = url
	}
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(p, url)
	}
	return nil
}

func (p *Page) Present(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.elements[selector]
	return ok && el.Present, nil
}

func (p *Page) Clickable(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.elements[selector]
	return ok && el.Present && el.Clickable, nil
}

func (p *Page) SetValue(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.elements[selector]
	if !ok || !el.Present {
		return fmt.Errorf("no node matches %q", selector)
	}
	el.Value = value
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	el, ok := p.elements[selector]
	if !ok || !el.Present || !el.Clickable {
		p.mu.Unlock()
		return fmt.Errorf("node %q is not clickable", selector)
	}
	p.clicks[selector]++
	hook := p.OnClick[selector]
	panicOn := p.PanicOn
	p.mu.Unlock()

	if panicOn == selector {
		panic("browsertest: click on " + selector)
	}
	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *Page) ReadyState(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readyState, nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.TextErr != nil {
		return "", p.TextErr
	}
	return p.text, nil
}

// Session wraps a Page and counts Close calls.
type Session struct {
	*Page

	mu     sync.Mutex
	closes int
	onExit func()
}

// Close records the call. The first call releases the session from its opener.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closes++
	first := s.closes == 1
	s.mu.Unlock()
	if first && s.onExit != nil {
		s.onExit()
	}
	return nil
}

// Closes returns how often Close was called.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Opener hands out fake sessions and tracks their lifetimes.
type Opener struct {
	// NewPage builds the page for each session. Defaults to NewPage.
	NewPage func(n int) *Page
	// OpenErr fails every Open call when set.
	OpenErr error

	mu       sync.Mutex
	sessions []*Session
	live     int
	overlap  bool
}

// Open implements browser.Opener.
func (o *Opener) Open(ctx context.Context) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.OpenErr != nil {
		return nil, o.OpenErr
	}

	o.mu.Lock()
	n := len(o.sessions) + 1
	o.mu.Unlock()

	page := NewPage()
	if o.NewPage != nil {
		page = o.NewPage(n)
	}

	s := &Session{Page: page}
	s.onExit = func() {
		o.mu.Lock()
		o.live--
		o.mu.Unlock()
	}

	o.mu.Lock()
	if o.live > 0 {
		o.overlap = true
	}
	o.live++
	o.sessions = append(o.sessions, s)
	o.mu.Unlock()
	return s, nil
}

// Sessions returns every session opened so far.
func (o *Opener) Sessions() []*Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Session, len(o.sessions))
	copy(out, o.sessions)
	return out
}

// Live returns how many sessions are open right now.
func (o *Opener) Live() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.live
}

// Overlapped reports whether two sessions were ever open at once.
func (o *Opener) Overlapped() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.overlap
}

// ErrEngine is a canned engine start failure.
var ErrEngine = browser.ErrEngineUnavailable{Err: errors.New("chrome not found")}

// PortalOptions shapes the simulated portal behaviour.
type PortalOptions struct {
	Site config.Site
	// Dialog shows the confirmation dialog after submit instead of redirecting.
	Dialog bool
	// ConfirmDisabled keeps the dialog confirm button unclickable.
	ConfirmDisabled bool
	// SubmitDisabled keeps the submit button unclickable.
	SubmitDisabled bool
	// MissingInputs leaves the form inputs off the page.
	MissingInputs bool
	// StayOnForm keeps the form on screen after submission.
	StayOnForm bool
	// LandingURL defaults to Site.URL with a /rendezvous suffix.
	LandingURL string
	// LandingText is the body text after the redirect.
	LandingText string
	// LandingState is document.readyState after the redirect. Defaults to complete.
	LandingState string
}

// NewPortal builds a page that behaves like the pre-inscription form: it loads
// the inputs on navigation and reacts to submit and confirm clicks.
func NewPortal(opts PortalOptions) *Page {
	site := opts.Site
	if site.URL == "" {
		site = config.DefaultSite()
	}
	landingURL := opts.LandingURL
	if landingURL == "" {
		landingURL = site.URL + "/rendezvous"
	}
	landingState := opts.LandingState
	if landingState == "" {
		landingState = "complete"
	}

	redirect := func(p *Page) {
		if !opts.StayOnForm {
			p.Remove(site.WassitSelector, site.IdentitySelector, site.SubmitSelector, site.DialogSelector, site.DialogConfirmSelector)
			p.Load(landingURL, opts.LandingText, landingState)
		}
	}

	page := NewPage()
	page.OnNavigate = func(p *Page, url string) {
		p.Load(url, "التسجيل المسبق", "complete")
		if !opts.MissingInputs {
			p.SetElement(site.WassitSelector, Element{Present: true, Clickable: true})
			p.SetElement(site.IdentitySelector, Element{Present: true, Clickable: true})
		}
		p.SetElement(site.SubmitSelector, Element{Present: true, Clickable: !opts.SubmitDisabled})
	}
	page.OnClick[site.SubmitSelector] = func(p *Page) {
		if opts.Dialog {
			p.SetElement(site.DialogSelector, Element{Present: true})
			p.SetElement(site.DialogConfirmSelector, Element{Present: true, Clickable: !opts.ConfirmDisabled})
			return
		}
		redirect(p)
	}
	page.OnClick[site.DialogConfirmSelector] = redirect
	return page
}
