package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hszk-dev/typereel/internal/domain/model"
	"github.com/hszk-dev/typereel/internal/infrastructure/metrics"
)

// ErrPoolClosed is returned by WithSession after Close.
var ErrPoolClosed = errors.New("session pool closed")

// Stats is a point-in-time view of the pool.
type Stats struct {
	Size  int `json:"size"`
	Idle  int `json:"idle"`
	InUse int `json:"in_use"`
}

// Pool hands out at most size sessions at a time. Sessions are created on
// first use, reused across callers, and discarded when a caller's work on
// them fails.
type Pool struct {
	engine Engine
	size   int
	sem    *semaphore.Weighted

	mu     sync.Mutex
	idle   []Session
	inUse  int
	closed bool
}

// NewPool creates a pool of size sessions backed by engine. No session is
// created until the first WithSession call.
func NewPool(engine Engine, size int) (*Pool, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if size < 1 {
		return nil, fmt.Errorf("pool size must be at least 1, got %d", size)
	}
	return &Pool{
		engine: engine,
		size:   size,
		sem:    semaphore.NewWeighted(int64(size)),
	}, nil
}

// WithSession runs fn with exclusive use of one session. The session is
// returned to the pool when fn succeeds and discarded when fn returns an error
// or panics.
//
// If no idle session exists a new one is created, retrying once on failure.
// When both attempts fail the returned error wraps model.ErrSessionUnavailable.
func (p *Pool) WithSession(ctx context.Context, fn func(ctx context.Context, s Session) error) error {
	start := time.Now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for session: %w", err)
	}
	defer p.sem.Release(1)
	metrics.StageDuration.WithLabelValues(metrics.StageSessionWait).Observe(time.Since(start).Seconds())

	s, err := p.checkout(ctx)
	if err != nil {
		return err
	}

	healthy := false
	defer func() { p.checkin(s, healthy) }()

	if err := fn(ctx, s); err != nil {
		return err
	}
	healthy = true
	return nil
}

// Stats reports the current pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Size: p.size, Idle: len(p.idle), InUse: p.inUse}
}

// Close closes idle sessions and makes later WithSession calls fail. Sessions
// currently in use are closed when their callers finish.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var errs []error
	for _, s := range idle {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pool) checkout(ctx context.Context) (Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if n := len(p.idle); n > 0 {
		s := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.inUse++
		p.mu.Unlock()
		return s, nil
	}
	p.inUse++
	p.mu.Unlock()

	s, err := p.create(ctx)
	if err != nil {
		p.mu.Lock()
		p.inUse--
		p.mu.Unlock()
		return nil, err
	}
	return s, nil
}

func (p *Pool) create(ctx context.Context) (Session, error) {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		s, err := p.engine.NewSession(ctx)
		if err == nil {
			metrics.SessionEventsTotal.WithLabelValues(metrics.SessionCreated).Inc()
			return s, nil
		}
		lastErr = err
		metrics.SessionEventsTotal.WithLabelValues(metrics.SessionCreateFailed).Inc()
		slog.Warn("failed to create rendering session",
			"attempt", attempt,
			"error", err,
		)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", model.ErrSessionUnavailable, lastErr)
}

func (p *Pool) checkin(s Session, healthy bool) {
	p.mu.Lock()
	p.inUse--
	if healthy && !p.closed {
		p.idle = append(p.idle, s)
		p.mu.Unlock()
		return
	}
	closed := p.closed
	p.mu.Unlock()

	if !healthy {
		metrics.SessionEventsTotal.WithLabelValues(metrics.SessionDiscarded).Inc()
		slog.Info("discarding rendering session after failure")
	}
	if err := s.Close(); err != nil && !closed {
		slog.Warn("failed to close rendering session", "error", err)
	}
}
