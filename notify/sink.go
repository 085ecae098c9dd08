package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aluiziolira/anemwatch/models"
)

const closeTimeout = 30 * time.Second

// Sink reports attempts and raises the audible alert when slots may be open.
// Report never fails or blocks on audio.
type Sink struct {
	writer    ReportWriter
	cues      *Dispatcher
	soundFile string
	logger    *slog.Logger
}

// NewSink builds a sink. cues may be nil to disable the audible alert.
func NewSink(writer ReportWriter, cues *Dispatcher, soundFile string, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		writer:    writer,
		cues:      cues,
		soundFile: soundFile,
		logger:    logger.With(slog.String("component", "notify")),
	}
}

// Report writes the attempt line and queues the alert on SlotsAvailable.
func (s *Sink) Report(a models.Attempt) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("report panic", slog.Any("panic", r))
		}
	}()

	if err := s.writer.Write(a); err != nil {
		s.logger.Warn("report write failed", slog.Any("error", err))
	}
	if a.Outcome != models.OutcomeSlotsAvailable {
		return
	}

	if s.cues == nil || s.soundFile == "" {
		s.logger.Warn("audio cue disabled")
		return
	}
	if err := s.cues.Enqueue(Cue{Attempt: a.Number, File: s.soundFile}); err != nil {
		s.logger.Warn("audio cue not queued", slog.Any("error", err))
	}
}

// Close lets queued cues finish, bounded, logs the cue counters and closes
// the writer.
func (s *Sink) Close() error {
	var errs []error
	if s.cues != nil {
		if err := s.cues.Close(closeTimeout); err != nil {
			errs = append(errs, err)
		}
		stats := s.cues.Stats()
		level := slog.LevelInfo
		if stats["failed"] > 0 || stats["dropped"] > 0 {
			level = slog.LevelWarn
		}
		s.logger.Log(context.Background(), level, "audio cues",
			slog.Int64("played", stats["played"]),
			slog.Int64("failed", stats["failed"]),
			slog.Int64("dropped", stats["dropped"]),
		)
	}
	if err := s.writer.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
