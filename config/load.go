package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Keys understood by the loader. Flags share the same names; environment
// variables use the ANEMWATCH_ prefix with dashes turned into underscores,
// except for N1 and N2 which are read unprefixed.
const (
	KeyN1                = "n1"
	KeyN2                = "n2"
	KeySiteURL           = "site-url"
	KeyChromePath        = "chrome-path"
	KeyRemoteURL         = "remote-url"
	KeyUserAgent         = "user-agent"
	KeyNavigationTimeout = "navigation-timeout"
	KeyElementTimeout    = "element-timeout"
	KeyDialogTimeout     = "dialog-timeout"
	KeySpinnerTimeout    = "spinner-timeout"
	KeyReadyTimeout      = "ready-timeout"
	KeySettleTimeout     = "settle-timeout"
	KeyWatch             = "watch"
	KeyMaxAttempts       = "max-attempts"
	KeyMaxDuration       = "max-duration"
	KeyRetryDelay        = "retry-delay"
	KeyRetryDelayMax     = "retry-delay-max"
	KeyWatchInterval     = "watch-interval"
	KeySoundFile         = "sound-file"
	KeySoundPlayer       = "sound-player"
	KeyReportFormat      = "report-format"
	KeyReportFile        = "report-file"
	KeyProbe             = "probe"
	KeyProbeEndpoint     = "probe-endpoint"
	KeyProbeTimeout      = "probe-timeout"
	KeyProbeInsecure     = "probe-insecure"
	KeyProbeCacheTTL     = "probe-cache-ttl"
	KeyMetricsAddr       = "metrics-addr"
	KeyVerbose           = "verbose"
	KeyWaitOnExit        = "wait-on-exit"

	// Locator overrides are only read from a config file.
	keySiteWassit        = "site.wassit_selector"
	keySiteIdentity      = "site.identity_selector"
	keySiteSubmit        = "site.submit_selector"
	keySiteDialog        = "site.dialog_selector"
	keySiteDialogConfirm = "site.dialog_confirm_selector"
	keySiteSpinner       = "site.spinner_selector"
	keySitePhrase        = "site.no_slots_phrase"
)

// DefaultEnvFile is read when no explicit config file is given and it exists.
const DefaultEnvFile = ".env"

// RegisterFlags declares every tunable on fs with defaults from DefaultConfig.
func RegisterFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()
	fs.String(KeyN1, "", "Wassit number (prefer the N1 environment variable)")
	fs.String(KeyN2, "", "Identity-document number (prefer the N2 environment variable)")
	fs.String(KeySiteURL, d.Site.URL, "Pre-inscription form URL")
	fs.String(KeyChromePath, d.ChromePath, "Path to the Chrome/Chromium executable (auto-detected when empty)")
	fs.String(KeyRemoteURL, d.RemoteURL, "DevTools URL of an already running browser instead of launching one")
	fs.String(KeyUserAgent, d.UserAgent, "User-Agent presented by the browser")
	fs.Duration(KeyNavigationTimeout, d.NavigationTimeout, "Maximum time for the form page to load")
	fs.Duration(KeyElementTimeout, d.ElementTimeout, "Maximum wait for a form element to become usable")
	fs.Duration(KeyDialogTimeout, d.DialogTimeout, "Maximum wait for the confirmation dialog after submit")
	fs.Duration(KeySpinnerTimeout, d.SpinnerTimeout, "Maximum wait for the loading spinner to go away")
	fs.Duration(KeyReadyTimeout, d.ReadyTimeout, "Maximum wait for the redirect to finish loading")
	fs.Duration(KeySettleTimeout, d.SettleTimeout, "How long the landing page text is watched for the no-slots message")
	fs.Bool(KeyWatch, d.Watch, "Keep polling after a no-slots result")
	fs.Int(KeyMaxAttempts, d.MaxAttempts, "Maximum attempts before giving up (0 = bounded by --max-duration only)")
	fs.Duration(KeyMaxDuration, d.MaxDuration, "Maximum wall-clock run time (0 = bounded by --max-attempts only)")
	fs.Duration(KeyRetryDelay, d.RetryDelay, "Delay before retrying a failed attempt")
	fs.Duration(KeyRetryDelayMax, d.RetryDelayMax, "Upper bound for the growing retry delay")
	fs.Duration(KeyWatchInterval, d.WatchInterval, "Delay between checks in watch mode")
	fs.String(KeySoundFile, d.SoundFile, "Audio file played when slots may be available")
	fs.String(KeySoundPlayer, d.SoundPlayer, "Audio player command (auto-detected when empty)")
	fs.String(KeyReportFormat, d.ReportFormat, "Attempt report format: text or json")
	fs.String(KeyReportFile, d.ReportFile, "Also append every attempt as JSON lines to this file")
	fs.Bool(KeyProbe, d.ProbeEnabled, "Query the candidate validation API before each attempt")
	fs.String(KeyProbeEndpoint, d.ProbeEndpoint, "Candidate validation API endpoint")
	fs.Duration(KeyProbeTimeout, d.ProbeTimeout, "Candidate validation request timeout")
	fs.Bool(KeyProbeInsecure, d.ProbeInsecure, "Skip TLS verification for the candidate validation API")
	fs.Duration(KeyProbeCacheTTL, d.ProbeCacheTTL, "How long a candidate validation result is reused")
	fs.String(KeyMetricsAddr, d.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	fs.BoolP(KeyVerbose, "v", d.Verbose, "Enable verbose logging")
	fs.Bool(KeyWaitOnExit, d.WaitOnExit, "Wait for Enter before exiting so the final report stays visible")
}

// NewViper returns a viper instance wired to defaults and the environment.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("ANEMWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv(KeyN1, "N1", "ANEMWATCH_N1")
	_ = v.BindEnv(KeyN2, "N2", "ANEMWATCH_N2")
	return v
}

// ReadFile merges a settings file into v. An empty path falls back to
// DefaultEnvFile when present; a missing default file is not an error.
func ReadFile(v *viper.Viper, path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config file: %w", err)
	}

	v.SetConfigFile(path)
	if isEnvFile(path) {
		v.SetConfigType("env")
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	return nil
}

// Load builds a Config from every source merged into v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	cfg.N1 = v.GetString(KeyN1)
	cfg.N2 = v.GetString(KeyN2)

	cfg.Site.URL = v.GetString(KeySiteURL)
	cfg.Site.WassitSelector = v.GetString(keySiteWassit)
	cfg.Site.IdentitySelector = v.GetString(keySiteIdentity)
	cfg.Site.SubmitSelector = v.GetString(keySiteSubmit)
	cfg.Site.DialogSelector = v.GetString(keySiteDialog)
	cfg.Site.DialogConfirmSelector = v.GetString(keySiteDialogConfirm)
	cfg.Site.SpinnerSelector = v.GetString(keySiteSpinner)
	cfg.Site.NoSlotsPhrase = v.GetString(keySitePhrase)

	cfg.ChromePath = v.GetString(KeyChromePath)
	cfg.RemoteURL = v.GetString(KeyRemoteURL)
	cfg.UserAgent = v.GetString(KeyUserAgent)

	cfg.NavigationTimeout = v.GetDuration(KeyNavigationTimeout)
	cfg.ElementTimeout = v.GetDuration(KeyElementTimeout)
	cfg.DialogTimeout = v.GetDuration(KeyDialogTimeout)
	cfg.SpinnerTimeout = v.GetDuration(KeySpinnerTimeout)
	cfg.ReadyTimeout = v.GetDuration(KeyReadyTimeout)
	cfg.SettleTimeout = v.GetDuration(KeySettleTimeout)

	cfg.Watch = v.GetBool(KeyWatch)
	cfg.MaxAttempts = v.GetInt(KeyMaxAttempts)
	cfg.MaxDuration = v.GetDuration(KeyMaxDuration)
	cfg.RetryDelay = v.GetDuration(KeyRetryDelay)
	cfg.RetryDelayMax = v.GetDuration(KeyRetryDelayMax)
	cfg.WatchInterval = v.GetDuration(KeyWatchInterval)

	cfg.SoundFile = v.GetString(KeySoundFile)
	cfg.SoundPlayer = v.GetString(KeySoundPlayer)
	cfg.ReportFormat = strings.ToLower(v.GetString(KeyReportFormat))
	cfg.ReportFile = v.GetString(KeyReportFile)

	cfg.ProbeEnabled = v.GetBool(KeyProbe)
	cfg.ProbeEndpoint = v.GetString(KeyProbeEndpoint)
	cfg.ProbeTimeout = v.GetDuration(KeyProbeTimeout)
	cfg.ProbeInsecure = v.GetBool(KeyProbeInsecure)
	cfg.ProbeCacheTTL = v.GetDuration(KeyProbeCacheTTL)

	cfg.MetricsAddr = v.GetString(KeyMetricsAddr)
	cfg.Verbose = v.GetBool(KeyVerbose)
	cfg.WaitOnExit = v.GetBool(KeyWaitOnExit)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault(KeySiteURL, d.Site.URL)
	v.SetDefault(keySiteWassit, d.Site.WassitSelector)
	v.SetDefault(keySiteIdentity, d.Site.IdentitySelector)
	v.SetDefault(keySiteSubmit, d.Site.SubmitSelector)
	v.SetDefault(keySiteDialog, d.Site.DialogSelector)
	v.SetDefault(keySiteDialogConfirm, d.Site.DialogConfirmSelector)
	v.SetDefault(keySiteSpinner, d.Site.SpinnerSelector)
	v.SetDefault(keySitePhrase, d.Site.NoSlotsPhrase)
	v.SetDefault(KeyUserAgent, d.UserAgent)
	v.SetDefault(KeyNavigationTimeout, d.NavigationTimeout)
	v.SetDefault(KeyElementTimeout, d.ElementTimeout)
	v.SetDefault(KeyDialogTimeout, d.DialogTimeout)
	v.SetDefault(KeySpinnerTimeout, d.SpinnerTimeout)
	v.SetDefault(KeyReadyTimeout, d.ReadyTimeout)
	v.SetDefault(KeySettleTimeout, d.SettleTimeout)
	v.SetDefault(KeyWatch, d.Watch)
	v.SetDefault(KeyMaxAttempts, d.MaxAttempts)
	v.SetDefault(KeyMaxDuration, d.MaxDuration)
	v.SetDefault(KeyRetryDelay, d.RetryDelay)
	v.SetDefault(KeyRetryDelayMax, d.RetryDelayMax)
	v.SetDefault(KeyWatchInterval, d.WatchInterval)
	v.SetDefault(KeySoundFile, d.SoundFile)
	v.SetDefault(KeyReportFormat, d.ReportFormat)
	v.SetDefault(KeyProbe, d.ProbeEnabled)
	v.SetDefault(KeyProbeEndpoint, d.ProbeEndpoint)
	v.SetDefault(KeyProbeTimeout, d.ProbeTimeout)
	v.SetDefault(KeyProbeCacheTTL, d.ProbeCacheTTL)
}

func isEnvFile(path string) bool {
	base := filepath.Base(path)
	return base == ".env" || strings.HasSuffix(base, ".env")
}
