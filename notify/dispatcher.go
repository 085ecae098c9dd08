package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"
)

var (
	// ErrDispatcherClosed is returned when Enqueue is called after shutdown.
	ErrDispatcherClosed = errors.New("notify: dispatcher closed")
	// ErrQueueFull is returned when a cue is dropped because the queue is full.
	ErrQueueFull = errors.New("notify: cue queue full")
)

// Cue is one request to play the alert sound.
type Cue struct {
	Attempt int
	File    string
}

// Dispatcher plays cues on a background worker so callers never wait on audio.
type Dispatcher struct {
	player      Player
	queue       chan Cue
	playTimeout time.Duration
	logger      *slog.Logger

	wg sync.WaitGroup

	stats stats

	mu      sync.Mutex // guards closed/started
	closed  bool
	started bool

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewDispatcher builds a dispatcher with a small buffer. A nil player turns
// every cue into a warning.
func NewDispatcher(player Player, buffer int, logger *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		player:      player,
		queue:       make(chan Cue, buffer),
		playTimeout: time.Minute,
		logger:      logger.With(slog.String("component", "notify")),
		shutdown:    make(chan struct{}),
	}
}

// Start launches the worker goroutine. Further calls are ignored.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.started {
		return
	}
	d.started = true
	d.wg.Add(1)
	go d.worker()
}

// Enqueue hands a cue to the worker without blocking.
func (d *Dispatcher) Enqueue(cue Cue) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrDispatcherClosed
		}
	}()

	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return ErrDispatcherClosed
	}

	select {
	case <-d.shutdown:
		return ErrDispatcherClosed
	case d.queue <- cue:
		return nil
	default:
		d.stats.add(&d.stats.dropped)
		return ErrQueueFull
	}
}

// Close stops accepting cues and waits up to timeout for queued ones to play.
func (d *Dispatcher) Close(timeout time.Duration) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.signalShutdown()
	d.closeOnce.Do(func() {
		close(d.queue)
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("notify: close timed out after %s", timeout)
	}
}

// Stats returns counters for played, failed and dropped cues.
func (d *Dispatcher) Stats() map[string]int64 {
	return d.stats.snapshot()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for cue := range d.queue {
		d.play(cue)
	}
}

func (d *Dispatcher) play(cue Cue) {
	defer func() {
		if r := recover(); r != nil {
			d.stats.add(&d.stats.failed)
			d.logger.Error("audio cue panic", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()

	if d.player == nil {
		d.stats.add(&d.stats.failed)
		d.logger.Warn("audio cue skipped", slog.Any("error", ErrNoPlayer))
		return
	}
	if _, err := os.Stat(cue.File); err != nil {
		d.stats.add(&d.stats.failed)
		d.logger.Warn("audio asset unavailable", slog.String("file", cue.File), slog.Any("error", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.playTimeout)
	defer cancel()
	if err := d.player.Play(ctx, cue.File); err != nil {
		d.stats.add(&d.stats.failed)
		d.logger.Warn("audio cue failed", slog.Int("attempt", cue.Attempt), slog.Any("error", err))
		return
	}
	d.stats.add(&d.stats.played)
}

func (d *Dispatcher) signalShutdown() {
	d.shutdownOnce.Do(func() {
		close(d.shutdown)
	})
}

type stats struct {
	mu      sync.Mutex
	played  int64
	failed  int64
	dropped int64
}

func (s *stats) add(counter *int64) {
	s.mu.Lock()
	*counter++
	s.mu.Unlock()
}

func (s *stats) snapshot() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]int64{
		"played":  s.played,
		"failed":  s.failed,
		"dropped": s.dropped,
	}
}
