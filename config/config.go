package config

import (
	"fmt"
	"net/url"
	"time"
)

// Site describes the fixed contract of the appointment portal.
type Site struct {
	URL                   string
	WassitSelector        string
	IdentitySelector      string
	SubmitSelector        string
	DialogSelector        string
	DialogConfirmSelector string
	SpinnerSelector       string
	NoSlotsPhrase         string
}

// Config holds watcher configuration.
type Config struct {
	N1 string
	N2 string

	Site Site

	ChromePath   string
	RemoteURL    string
	UserAgent    string
	WindowWidth  int
	WindowHeight int

	NavigationTimeout time.Duration
	ElementTimeout    time.Duration
	DialogTimeout     time.Duration
	SpinnerTimeout    time.Duration
	ReadyTimeout      time.Duration
	SettleTimeout     time.Duration
	PollInterval      time.Duration

	Watch         bool
	MaxAttempts   int
	MaxDuration   time.Duration
	RetryDelay    time.Duration
	RetryDelayMax time.Duration
	WatchInterval time.Duration

	SoundFile    string
	SoundPlayer  string
	ReportFormat string // text or json
	ReportFile   string // optional JSON-lines copy of every attempt

	ProbeEnabled  bool
	ProbeEndpoint string
	ProbeTimeout  time.Duration
	ProbeInsecure bool
	ProbeCacheTTL time.Duration

	MetricsAddr string
	Verbose     bool
	WaitOnExit  bool
}

// DefaultSite returns the locators and phrase used by the pre-inscription form.
func DefaultSite() Site {
	return Site{
		URL:                   "https://minha.anem.dz/pre_inscription",
		WassitSelector:        "input#numeroWassit",
		IdentitySelector:      "input#numeroPieceIdentite",
		SubmitSelector:        "button#mui-6",
		DialogSelector:        ".MuiDialog-root, [role=\"dialog\"]",
		DialogConfirmSelector: "button.muirtl-1om64lz",
		SpinnerSelector:       ".MuiDialogContent-root .MuiCircularProgress-root, .MuiCircularProgress-indeterminate",
		NoSlotsPhrase:         "نعتذر منكم ! لا يوجد أي موعد متاح حاليا.",
	}
}

// DefaultConfig returns conservative defaults for the portal.
func DefaultConfig() *Config {
	return &Config{
		Site:              DefaultSite(),
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		WindowWidth:       1280,
		WindowHeight:      900,
		NavigationTimeout: 30 * time.Second,
		ElementTimeout:    15 * time.Second,
		DialogTimeout:     8 * time.Second,
		SpinnerTimeout:    30 * time.Second,
		ReadyTimeout:      20 * time.Second,
		SettleTimeout:     5 * time.Second,
		PollInterval:      250 * time.Millisecond,
		Watch:             false,
		MaxAttempts:       30,
		MaxDuration:       2 * time.Hour,
		RetryDelay:        60 * time.Second,
		RetryDelayMax:     5 * time.Minute,
		WatchInterval:     5 * time.Minute,
		SoundFile:         "sound.mp3",
		ReportFormat:      "text",
		ProbeEnabled:      false,
		ProbeEndpoint:     "https://ac-controle.anem.dz/AllocationChomage/api/validateCandidate/query",
		ProbeTimeout:      15 * time.Second,
		ProbeCacheTTL:     30 * time.Minute,
	}
}

// Credentials builds the validated identifier pair from N1 and N2.
func (c *Config) Credentials() (Credentials, error) {
	return NewCredentials(c.N1, c.N2)
}

// Validate ensures all non-credential values are coherent.
func (c *Config) Validate() error {
	if err := c.Site.Validate(); err != nil {
		return err
	}
	if c.RemoteURL != "" {
		if _, err := url.Parse(c.RemoteURL); err != nil {
			return fmt.Errorf("invalid remote url: %w", err)
		}
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.WindowWidth <= 0 || c.WindowHeight <= 0 {
		return fmt.Errorf("window size must be positive")
	}

	timeouts := []struct {
		name  string
		value time.Duration
	}{
		{"navigation timeout", c.NavigationTimeout},
		{"element timeout", c.ElementTimeout},
		{"dialog timeout", c.DialogTimeout},
		{"spinner timeout", c.SpinnerTimeout},
		{"ready timeout", c.ReadyTimeout},
		{"settle timeout", c.SettleTimeout},
		{"poll interval", c.PollInterval},
	}
	for _, t := range timeouts {
		if t.value <= 0 {
			return fmt.Errorf("%s must be positive", t.name)
		}
	}

	if c.MaxAttempts < 0 {
		return fmt.Errorf("max attempts cannot be negative")
	}
	if c.MaxDuration < 0 {
		return fmt.Errorf("max duration cannot be negative")
	}
	if c.MaxAttempts == 0 && c.MaxDuration == 0 {
		return fmt.Errorf("max attempts or max duration must be set")
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("retry delay must be positive")
	}
	if c.RetryDelayMax > 0 && c.RetryDelay > c.RetryDelayMax {
		return fmt.Errorf("retry delay (%s) cannot exceed retry delay max (%s)", c.RetryDelay, c.RetryDelayMax)
	}
	if c.Watch && c.WatchInterval <= 0 {
		return fmt.Errorf("watch interval must be positive in watch mode")
	}

	if c.ReportFormat != "text" && c.ReportFormat != "json" {
		return fmt.Errorf("report format must be text or json")
	}

	if c.ProbeEnabled {
		parsed, err := url.Parse(c.ProbeEndpoint)
		if err != nil {
			return fmt.Errorf("invalid probe endpoint: %w", err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("probe endpoint must include a host")
		}
		if c.ProbeTimeout <= 0 {
			return fmt.Errorf("probe timeout must be positive")
		}
		if c.ProbeCacheTTL < 0 {
			return fmt.Errorf("probe cache ttl cannot be negative")
		}
	}

	return nil
}

// Validate checks the portal contract for obviously broken values.
func (s Site) Validate() error {
	if s.URL == "" {
		return fmt.Errorf("site URL cannot be empty")
	}
	parsed, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("invalid site URL: %w", err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("site URL must include a host")
	}

	selectors := []struct {
		name  string
		value string
	}{
		{"wassit selector", s.WassitSelector},
		{"identity selector", s.IdentitySelector},
		{"submit selector", s.SubmitSelector},
		{"dialog selector", s.DialogSelector},
		{"dialog confirm selector", s.DialogConfirmSelector},
		{"spinner selector", s.SpinnerSelector},
	}
	for _, sel := range selectors {
		if sel.value == "" {
			return fmt.Errorf("%s cannot be empty", sel.name)
		}
	}
	if s.NoSlotsPhrase == "" {
		return fmt.Errorf("no-slots phrase cannot be empty")
	}
	return nil
}
