// Package session runs encounters concurrently, one goroutine per encounter,
// and routes snapshots and summaries to their collaborators.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cory-johannsen/skirmish/internal/game/catalog"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/encounter"
)

var (
	// ErrUnknownEncounter is returned for handles the supervisor does not run.
	ErrUnknownEncounter = errors.New("unknown encounter")
	// ErrShutdown is returned by Create after Shutdown has begun.
	ErrShutdown = errors.New("supervisor shut down")
	// ErrCapacity is returned by Create when MaxEncounters are already running.
	ErrCapacity = errors.New("encounter capacity reached")
)

// Emitter delivers snapshots to presentation. A non-nil error abandons the
// encounter.
type Emitter interface {
	Emit(ctx context.Context, snap encounter.Snapshot) error
}

// SummarySink persists terminal summaries.
type SummarySink interface {
	RecordSummary(ctx context.Context, s *encounter.Summary) error
}

// Sinks fans each summary out to every sink in order. A failing sink does
// not stop the others; their errors are joined.
type Sinks []SummarySink

// RecordSummary implements SummarySink.
func (s Sinks) RecordSummary(ctx context.Context, sum *encounter.Summary) error {
	var errs []error
	for _, sink := range s {
		if err := sink.RecordSummary(ctx, sum); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config tunes the supervisor.
type Config struct {
	// TickInterval is the wall-clock period between ticks.
	TickInterval time.Duration
	// NotifyInterval is the minimum spacing of non-terminal snapshots.
	// Zero emits every tick.
	NotifyInterval time.Duration
	// MaxEncounters caps concurrently running encounters; 0 is unlimited.
	MaxEncounters int
	// SinkTimeout bounds one RecordSummary call.
	SinkTimeout time.Duration
}

// Stats is a point-in-time copy of the supervisor counters.
type Stats struct {
	Created   uint64
	Active    int
	Won       uint64
	Lost      uint64
	TimedOut  uint64
	Cancelled uint64
	Abandoned uint64
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithSummarySink routes terminal summaries to sink.
func WithSummarySink(sink SummarySink) Option { return func(s *Supervisor) { s.sink = sink } }

// WithBehaviorScript hands script to every encounter for scripted hostiles.
func WithBehaviorScript(script encounter.BehaviorScript) Option {
	return func(s *Supervisor) { s.script = script }
}

type run struct {
	handle    uuid.UUID
	enc       *encounter.Encounter
	emitter   Emitter
	limiter   *rate.Limiter
	cancelled atomic.Bool
	// emitFailed is only touched by the run goroutine.
	emitFailed bool
}

// Supervisor owns the set of running encounters.
//
// Invariant: each encounter is ticked by exactly one goroutine and ticks never
// overlap.
type Supervisor struct {
	cfg    Config
	store  *catalog.Store
	script encounter.BehaviorScript
	sink   SummarySink
	logger *zap.Logger

	mu     sync.Mutex
	runs   map[uuid.UUID]*run
	closed bool
	wg     sync.WaitGroup

	created   atomic.Uint64
	won       atomic.Uint64
	lost      atomic.Uint64
	timedOut  atomic.Uint64
	cancelled atomic.Uint64
	abandoned atomic.Uint64
}

// NewSupervisor returns an idle Supervisor.
//
// Precondition: store and logger must be non-nil; cfg.TickInterval must be > 0.
func NewSupervisor(store *catalog.Store, cfg Config, logger *zap.Logger, opts ...Option) *Supervisor {
	if cfg.TickInterval <= 0 {
		panic("session.NewSupervisor: tick interval must be > 0")
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 5 * time.Second
	}
	s := &Supervisor{
		cfg:    cfg,
		store:  store,
		logger: logger,
		runs:   make(map[uuid.UUID]*run),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create constructs an encounter from setup and starts ticking it.
//
// Precondition: emitter must be non-nil.
// Postcondition: on success the encounter is running under the returned
// handle; construction errors from encounter.New are returned wrapped.
func (s *Supervisor) Create(setup encounter.Setup, emitter Emitter) (uuid.UUID, error) {
	handle := uuid.New()
	logger := s.logger.With(zap.String("encounter", handle.String()))
	opts := []encounter.Option{encounter.WithID(handle.String()), encounter.WithLogger(logger)}
	if s.script != nil {
		opts = append(opts, encounter.WithScript(s.script))
	}
	enc, err := encounter.New(s.store, setup, opts...)
	if err != nil {
		return uuid.Nil, fmt.Errorf("creating encounter: %w", err)
	}

	r := &run{handle: handle, enc: enc, emitter: emitter, limiter: newLimiter(s.cfg.NotifyInterval)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return uuid.Nil, ErrShutdown
	}
	if s.cfg.MaxEncounters > 0 && len(s.runs) >= s.cfg.MaxEncounters {
		s.mu.Unlock()
		return uuid.Nil, fmt.Errorf("%w: %d", ErrCapacity, s.cfg.MaxEncounters)
	}
	s.runs[handle] = r
	s.wg.Add(1)
	s.mu.Unlock()

	s.created.Add(1)
	logger.Info("encounter created",
		zap.Int("participants", len(setup.Participants)),
		zap.Int("hostiles", len(setup.Hostiles)),
	)
	go s.loop(r, logger)
	return handle, nil
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Submit forwards a human action to the encounter's pending slot.
//
// Postcondition: returns ErrUnknownEncounter for unknown or finished handles,
// otherwise the encounter's own Submit error.
func (s *Supervisor) Submit(handle uuid.UUID, actorID string, action combat.Action) error {
	r, ok := s.lookup(handle)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEncounter, handle)
	}
	return r.enc.Submit(actorID, action)
}

// Cancel requests that the encounter stop at the top of its next tick.
// Cancelling twice, or cancelling a finished encounter, is a no-op.
func (s *Supervisor) Cancel(handle uuid.UUID) {
	r, ok := s.lookup(handle)
	if !ok {
		return
	}
	r.cancelled.Store(true)
	r.enc.Cancel()
}

// Active returns the number of running encounters.
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// Stats returns a copy of the supervisor counters.
func (s *Supervisor) Stats() Stats {
	return Stats{
		Created:   s.created.Load(),
		Active:    s.Active(),
		Won:       s.won.Load(),
		Lost:      s.lost.Load(),
		TimedOut:  s.timedOut.Load(),
		Cancelled: s.cancelled.Load(),
		Abandoned: s.abandoned.Load(),
	}
}

// Shutdown refuses new encounters, cancels every running one, and waits for
// their goroutines to exit or ctx to end.
//
// Postcondition: returns ctx.Err() if the wait was cut short.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	handles := make([]uuid.UUID, 0, len(s.runs))
	for h := range s.runs {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		s.Cancel(h)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("supervisor stopped", zap.Int("cancelled", len(handles)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) lookup(handle uuid.UUID) (*run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[handle]
	return r, ok
}

// loop drives one encounter until it terminates.
func (s *Supervisor) loop(r *run, logger *zap.Logger) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.runs, r.handle)
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	ctx := context.Background()
	for range ticker.C {
		out := r.enc.Tick()
		if out.Terminal() {
			s.finish(ctx, r, out, logger)
			return
		}
		if !r.limiter.Allow() {
			continue
		}
		if err := r.emitter.Emit(ctx, out.Snapshot); err != nil {
			logger.Info("snapshot delivery failed; abandoning encounter", zap.Error(err))
			r.emitFailed = true
			r.enc.Cancel()
		}
	}
}

// finish delivers the terminal snapshot, routes the summary, and counts the
// outcome.
func (s *Supervisor) finish(ctx context.Context, r *run, out encounter.TickOutcome, logger *zap.Logger) {
	if !r.emitFailed {
		if err := r.emitter.Emit(ctx, out.Snapshot); err != nil {
			logger.Info("terminal snapshot delivery failed", zap.Error(err))
		}
	}

	switch out.Snapshot.Outcome {
	case encounter.OutcomeWin:
		s.won.Add(1)
	case encounter.OutcomeLose:
		s.lost.Add(1)
	case encounter.OutcomeTimeout:
		s.timedOut.Add(1)
	case encounter.OutcomeAbandoned:
		if r.emitFailed && !r.cancelled.Load() {
			s.abandoned.Add(1)
		} else {
			s.cancelled.Add(1)
		}
	}

	if out.Summary == nil || s.sink == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, s.cfg.SinkTimeout)
	defer cancel()
	if err := s.sink.RecordSummary(sctx, out.Summary); err != nil {
		logger.Error("recording summary", zap.Error(err))
	}
}
