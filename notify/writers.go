// Package notify reports attempt outcomes to the operator.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/aluiziolira/anemwatch/models"
)

// ReportWriter renders one attempt per call.
type ReportWriter interface {
	Write(a models.Attempt) error
	Close() error
}

// TextWriter writes one human-readable line per attempt.
type TextWriter struct {
	out    io.Writer
	colors map[models.Outcome]*color.Color
	mu     sync.Mutex
}

// NewTextWriter builds a text writer. Outcomes are coloured when colorize is set.
func NewTextWriter(out io.Writer, colorize bool) *TextWriter {
	colors := map[models.Outcome]*color.Color{
		models.OutcomeNoSlots:        color.New(color.FgYellow),
		models.OutcomeSlotsAvailable: color.New(color.FgGreen, color.Bold),
		models.OutcomeIndeterminate:  color.New(color.FgMagenta),
		models.OutcomeFailed:         color.New(color.FgRed),
	}
	for _, c := range colors {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return &TextWriter{out: out, colors: colors}
}

// Write appends the attempt line.
func (tw *TextWriter) Write(a models.Attempt) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	outcome := string(a.Outcome)
	if c, ok := tw.colors[a.Outcome]; ok {
		outcome = c.Sprint(outcome)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] attempt #%d %s (%s)",
		a.StartedAt.Format("2006-01-02 15:04:05"),
		a.Number,
		outcome,
		a.Duration.Round(100*time.Millisecond),
	)
	if a.URL != "" {
		fmt.Fprintf(&b, " url=%s", a.URL)
	}
	if detail := a.ErrorDetail(); detail != "" {
		fmt.Fprintf(&b, " error=%q", detail)
	}
	b.WriteByte('\n')

	if _, err := io.WriteString(tw.out, b.String()); err != nil {
		return fmt.Errorf("write report line: %w", err)
	}
	return nil
}

// Close is a no-op; the output stream is owned by the caller.
func (tw *TextWriter) Close() error {
	return nil
}

type jsonRecord struct {
	ID         string                 `json:"id"`
	Attempt    int                    `json:"attempt"`
	StartedAt  time.Time              `json:"started_at"`
	Outcome    models.Outcome         `json:"outcome"`
	DurationMS int64                  `json:"duration_ms"`
	URL        string                 `json:"url,omitempty"`
	PostSubmit models.PostSubmitState `json:"post_submit,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	encoder *json.Encoder
	closer  io.Closer
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(out io.Writer) *JSONWriter {
	return &JSONWriter{encoder: json.NewEncoder(out)}
}

// Write appends the attempt in JSONL format.
func (jw *JSONWriter) Write(a models.Attempt) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	rec := jsonRecord{
		ID:         a.ID,
		Attempt:    a.Number,
		StartedAt:  a.StartedAt,
		Outcome:    a.Outcome,
		DurationMS: a.Duration.Milliseconds(),
		URL:        a.URL,
		PostSubmit: a.PostSubmit,
		Error:      a.ErrorDetail(),
	}
	if err := jw.encoder.Encode(rec); err != nil {
		return fmt.Errorf("encode json record: %w", err)
	}
	return nil
}

// OpenJSONFile appends JSON lines to path, creating it when missing. The
// returned writer owns the file and closes it on Close.
func OpenJSONFile(path string) (*JSONWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open report file: %w", err)
	}
	return &JSONWriter{encoder: json.NewEncoder(f), closer: f}, nil
}

// Close closes the file opened by OpenJSONFile. Streams passed to
// NewJSONWriter are left to the caller.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	if jw.closer == nil {
		return nil
	}
	err := jw.closer.Close()
	jw.closer = nil
	if err != nil {
		return fmt.Errorf("close report file: %w", err)
	}
	return nil
}

// MultiWriter fans every attempt out to several writers.
type MultiWriter struct {
	writers []ReportWriter
	mu      sync.Mutex
}

// NewMultiWriter combines writers; nil entries are skipped.
func NewMultiWriter(writers ...ReportWriter) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range writers {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// Write forwards to every writer and reports all failures.
func (mw *MultiWriter) Write(a models.Attempt) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for _, w := range mw.writers {
		if err := w.Write(a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer.
func (mw *MultiWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for _, w := range mw.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewWriter returns the writer for a configured report format.
func NewWriter(format string, out io.Writer, colorize bool) (ReportWriter, error) {
	switch format {
	case "", "text":
		return NewTextWriter(out, colorize), nil
	case "json":
		return NewJSONWriter(out), nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}
