package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/couchcryptid/quake-watch/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Dialer opens a push connection.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Conn delivers whole payloads, one JSON array per Read.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Handler receives every successfully parsed payload.
type Handler interface {
	OnStreamMessage(events []domain.Event)
}

// Options configures reconnect backoff.
type Options struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Clock      clockwork.Clock
}

// Session owns one push-stream lifecycle: dial once, dispatch payloads, and
// redial with exponential backoff when the connection drops.
type Session struct {
	dialer    Dialer
	handler   Handler
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	minDelay  time.Duration
	maxDelay  time.Duration
	connected atomic.Bool
}

// NewSession creates a Session. Zero backoff options default to 200ms doubling to 5s.
func NewSession(d Dialer, h Handler, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Session {
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 200 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = max(5*time.Second, opts.MinBackoff)
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Session{
		dialer:   d,
		handler:  h,
		logger:   logger,
		metrics:  metrics,
		clock:    opts.Clock,
		minDelay: opts.MinBackoff,
		maxDelay: opts.MaxBackoff,
	}
}

// CheckReadiness returns nil while a stream connection is open.
func (s *Session) CheckReadiness(_ context.Context) error {
	if !s.connected.Load() {
		return errors.New("stream is not connected")
	}
	return nil
}

// Run dials and reads until ctx is cancelled. It always returns nil; dial and
// read failures are logged and retried.
func (s *Session) Run(ctx context.Context) error {
	s.logger.Info("stream session started")
	backoff := s.minDelay

	for {
		if ctx.Err() != nil {
			s.logger.Info("stream session stopping", "reason", ctx.Err())
			return nil
		}

		conn, err := s.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			s.logger.Error("stream dial failed", "error", err, "retry_in", backoff)
			s.waitBackoff(ctx, &backoff)
			continue
		}

		s.setConnected(true)
		s.logger.Info("stream connected")
		delivered := s.readLoop(ctx, conn)
		s.setConnected(false)

		if ctx.Err() != nil {
			continue
		}
		if delivered {
			backoff = s.minDelay
		}
		s.logger.Warn("stream connection dropped", "retry_in", backoff)
		s.waitBackoff(ctx, &backoff)
	}
}

// readLoop dispatches payloads from conn until it fails or ctx is cancelled.
// It reports whether at least one payload was read.
func (s *Session) readLoop(ctx context.Context, conn Conn) bool {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer func() {
		if stop() {
			_ = conn.Close()
		}
	}()

	delivered := false
	for {
		payload, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("stream read failed", "error", err)
			}
			return delivered
		}
		delivered = true
		s.dispatch(payload)
	}
}

// dispatch parses one payload and hands it to the handler. Malformed payloads
// are dropped and the displayed set is left alone.
func (s *Session) dispatch(payload []byte) {
	events, err := domain.ParseEvents(payload)
	if err != nil {
		s.logger.Warn("discarding malformed stream payload", "error", err, "bytes", len(payload))
		s.metrics.StreamMalformed.Inc()
		return
	}
	s.metrics.StreamMessages.Inc()
	s.handler.OnStreamMessage(events)
}

func (s *Session) setConnected(v bool) {
	s.connected.Store(v)
	if v {
		s.metrics.StreamConnected.Set(1)
	} else {
		s.metrics.StreamConnected.Set(0)
	}
}

// waitBackoff sleeps for the current backoff on the session clock and
// advances it. The backoff is left as is if ctx is cancelled while waiting.
func (s *Session) waitBackoff(ctx context.Context, backoff *time.Duration) {
	s.metrics.StreamReconnects.Inc()
	if sleepWithContext(ctx, s.clock, *backoff) {
		*backoff = nextBackoff(*backoff, s.maxDelay)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
