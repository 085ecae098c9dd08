package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/anemwatch/browser"
	"github.com/aluiziolira/anemwatch/config"
	"github.com/aluiziolira/anemwatch/detector"
	"github.com/aluiziolira/anemwatch/form"
	"github.com/aluiziolira/anemwatch/models"
	"github.com/aluiziolira/anemwatch/notify"
	"github.com/aluiziolira/anemwatch/poller"
	"github.com/aluiziolira/anemwatch/probe"
)

var (
	Version   = "dev"
	CommitSHA = "none"
)

// reportedError has already been shown to the operator by RunE.
type reportedError struct {
	err error
}

func (e reportedError) Error() string { return e.err.Error() }

func (e reportedError) Unwrap() error { return e.err }

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var reported reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "anemwatch",
		Short:         "Watch the ANEM pre-inscription portal for free appointment slots",
		Version:       fmt.Sprintf("%s (%s)", Version, CommitSHA),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := config.NewViper()
			err := execute(cmd, v, configFile)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
				err = reportedError{err: err}
			}
			if v.GetBool(config.KeyWaitOnExit) {
				waitForEnter(cmd.OutOrStdout(), cmd.InOrStdin())
			}
			return err
		},
	}

	root.Flags().StringVar(&configFile, "config", "", "Settings file (.env, yaml, toml or json); defaults to ./.env when present")
	config.RegisterFlags(root.Flags())
	return root
}

func execute(cmd *cobra.Command, v *viper.Viper, configFile string) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	if err := config.ReadFile(v, configFile); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return run(cmd.Context(), cfg, cmd.OutOrStdout())
}

func run(parent context.Context, cfg *config.Config, stdout io.Writer) error {
	logger := newLogger(cfg.Verbose)
	slog.SetDefault(logger)

	creds, err := cfg.Credentials()
	if err != nil {
		slog.Error("credentials are not usable", slog.Any("error", err))
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	colorize := false
	if f, ok := stdout.(*os.File); ok {
		colorize = isTerminal(f)
	}
	writer, err := newReportWriter(cfg, stdout, colorize)
	if err != nil {
		return err
	}

	var cues *notify.Dispatcher
	player, err := notify.NewExecPlayer(cfg.SoundPlayer)
	if err != nil {
		slog.Warn("audio cue disabled", slog.Any("error", err))
	} else {
		slog.Debug("audio player selected", slog.String("command", player.Command()))
		cues = notify.NewDispatcher(player, 4, logger)
		cues.Start()
	}
	sink := notify.NewSink(writer, cues, cfg.SoundFile, logger)
	defer func() {
		if err := sink.Close(); err != nil {
			slog.Error("close reporter", slog.Any("error", err))
		}
	}()

	var prober poller.Prober
	if cfg.ProbeEnabled {
		client, err := probe.New(cfg, logger)
		if err != nil {
			return fmt.Errorf("candidate pre-check: %w", err)
		}
		prober = client
	}

	metrics := poller.NewMetrics()
	ctrl, err := poller.New(poller.Options{
		Config:      cfg,
		Credentials: creds,
		Opener: browser.NewManager(browser.Options{
			ExecPath:     cfg.ChromePath,
			RemoteURL:    cfg.RemoteURL,
			UserAgent:    cfg.UserAgent,
			WindowWidth:  cfg.WindowWidth,
			WindowHeight: cfg.WindowHeight,
			Logger:       logger,
		}),
		Form:     form.NewDriver(cfg, logger),
		Detector: detector.New(cfg, logger),
		Reporter: sink,
		Prober:   prober,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
		case <-finished:
			return
		}
		attrs := []any{}
		if last, ok := ctrl.Last(); ok {
			attrs = append(attrs, slog.Int("last_attempt", last.Number), slog.String("last_outcome", string(last.Outcome)))
		}
		slog.Info("shutdown signal received, finishing the current attempt", attrs...)
	}()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	var result *models.RunResult
	g.Go(func() error {
		defer cancelRun()
		var runErr error
		result, runErr = ctrl.Run(gctx)
		return runErr
	})

	if cfg.MetricsAddr != "" {
		server := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
			return nil
		})
	}

	err = g.Wait()
	if result != nil {
		printSummary(stdout, result)
	}
	if err != nil {
		slog.Error("polling failed", slog.String("category", poller.ErrorTypeLabel(err)), slog.Any("error", err))
		return err
	}
	return nil
}

// newReportWriter renders attempts on stdout and, when ReportFile is set,
// appends them as JSON lines to that file too.
func newReportWriter(cfg *config.Config, stdout io.Writer, colorize bool) (notify.ReportWriter, error) {
	console, err := notify.NewWriter(cfg.ReportFormat, stdout, colorize)
	if err != nil {
		return nil, err
	}
	if cfg.ReportFile == "" {
		return console, nil
	}
	file, err := notify.OpenJSONFile(cfg.ReportFile)
	if err != nil {
		return nil, err
	}
	return notify.NewMultiWriter(console, file), nil
}

func printSummary(w io.Writer, result *models.RunResult) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	if result.SlotsFound() {
		fmt.Fprintln(w, "Slots may be available: book now")
	} else {
		fmt.Fprintln(w, "Polling finished")
	}

	fmt.Fprintf(w, "  Stop reason:   %s\n", result.Reason)
	fmt.Fprintf(w, "  Attempts:      %d\n", result.Attempts)
	fmt.Fprintf(w, "  Retries:       %d\n", result.Retries)
	if len(result.OutcomeCounts) > 0 {
		fmt.Fprintf(w, "  Outcomes:      %v\n", result.OutcomeCounts)
	}
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(w, "  Error types:   %v\n", result.ErrorsByType)
	}
	if result.Last != nil {
		fmt.Fprintf(w, "  Last outcome:  %s\n", result.Last.Outcome)
		if result.Last.URL != "" {
			fmt.Fprintf(w, "  Last URL:      %s\n", result.Last.URL)
		}
	}
	fmt.Fprintf(w, "  Duration:      %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Fprintln(w, separator)
}

func waitForEnter(w io.Writer, r io.Reader) {
	fmt.Fprint(w, "Press Enter to exit...")
	_, _ = bufio.NewReader(r).ReadString('\n')
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
