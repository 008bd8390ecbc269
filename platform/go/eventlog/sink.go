package eventlog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-payroll/platform/go/requesttrace"
)

var (
	// ErrBufferFull is returned by Emit when the queue cannot take another event.
	ErrBufferFull = errors.New("event buffer full")
	// ErrClosed is returned by Emit after Drain started.
	ErrClosed = errors.New("event sink closed")
)

// Writer persists a single event.
type Writer interface {
	WriteEvent(ctx context.Context, event Event) error
}

// Config tunes the sink queue.
type Config struct {
	BufferSize   int
	WriteTimeout time.Duration
}

const (
	defaultBufferSize   = 1024
	defaultWriteTimeout = 5 * time.Second
)

// Stats are cumulative counters since the sink started.
type Stats struct {
	Accepted uint64
	Written  uint64
	Dropped  uint64
	Failed   uint64
}

// Sink accepts events without blocking and writes them from a single background goroutine.
type Sink struct {
	writer Writer
	logger *zap.Logger
	cfg    Config

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	flush  chan chan struct{}
	done   chan struct{}

	accepted atomic.Uint64
	written  atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
}

// NewSink starts the background writer. Call Drain to stop it.
func NewSink(writer Writer, logger *zap.Logger, cfg Config) *Sink {
	if writer == nil {
		panic("eventlog.NewSink: writer must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	s := &Sink{
		writer: writer,
		logger: logger,
		cfg:    cfg,
		queue:  make(chan Event, cfg.BufferSize),
		flush:  make(chan chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Emit validates and enqueues the event. The actor and request id are taken from the request trace on ctx
// when the event does not carry them already. Emit never waits for the write.
func (s *Sink) Emit(ctx context.Context, event Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.ActorKind == "" {
		audit := requesttrace.FromContextOrAnonymous(ctx)
		event.ActorKind = string(audit.ActorKind)
		event.ActorID = audit.UserID
		if event.RequestID == "" {
			event.RequestID = audit.RequestID
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	select {
	case s.queue <- event:
		s.accepted.Add(1)
		return nil
	default:
		s.dropped.Add(1)
		s.logger.Warn("event dropped, buffer full",
			zap.String("family", string(event.Family)),
			zap.String("type", event.Type),
		)
		return ErrBufferFull
	}
}

// Flush blocks until every event accepted before the call has been written or failed.
func (s *Sink) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case s.flush <- ack:
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain stops accepting events and waits for the queue to empty.
func (s *Sink) Drain(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the counters.
func (s *Sink) Stats() Stats {
	return Stats{
		Accepted: s.accepted.Load(),
		Written:  s.written.Load(),
		Dropped:  s.dropped.Load(),
		Failed:   s.failed.Load(),
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for {
		select {
		case event, ok := <-s.queue:
			if !ok {
				return
			}
			s.write(event)
		case ack := <-s.flush:
			s.drainPending()
			close(ack)
		}
	}
}

func (s *Sink) drainPending() {
	for {
		select {
		case event, ok := <-s.queue:
			if !ok {
				return
			}
			s.write(event)
		default:
			return
		}
	}
}

func (s *Sink) write(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()

	if err := s.writer.WriteEvent(ctx, event); err != nil {
		s.failed.Add(1)
		s.logger.Error("write event",
			zap.String("family", string(event.Family)),
			zap.String("type", event.Type),
			zap.Stringer("event_id", event.ID),
			zap.Error(err),
		)
		return
	}
	s.written.Add(1)
}
