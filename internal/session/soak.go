package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/encounter"
)

// SoakScenario is one named setup in a soak rotation.
type SoakScenario struct {
	Name  string
	Setup encounter.Setup
}

// SoakConfig tunes a Soak runner.
type SoakConfig struct {
	// Interval is how often the runner tops up running encounters.
	Interval time.Duration
	// Concurrency is the number of encounters kept running.
	Concurrency int
	// NewEmitter returns the emitter for one soak encounter.
	NewEmitter func(name string) Emitter
}

// Soak keeps a fixed number of scenario encounters running on a Supervisor,
// cycling through its rotation. It exercises the engine under sustained load
// without a client.
type Soak struct {
	sup       *Supervisor
	scenarios []SoakScenario
	cfg       SoakConfig
	logger    *zap.Logger
	next      int
}

// NewSoak returns a Soak over scenarios.
//
// Precondition: scenarios must be non-empty; cfg.Interval > 0;
// cfg.Concurrency >= 1; cfg.NewEmitter non-nil.
func NewSoak(sup *Supervisor, scenarios []SoakScenario, cfg SoakConfig, logger *zap.Logger) *Soak {
	if len(scenarios) == 0 {
		panic("session.NewSoak: no scenarios")
	}
	if cfg.Interval <= 0 || cfg.Concurrency < 1 || cfg.NewEmitter == nil {
		panic("session.NewSoak: invalid config")
	}
	return &Soak{sup: sup, scenarios: scenarios, cfg: cfg, logger: logger}
}

// Run tops up the running encounters every Interval until ctx ends or the
// supervisor shuts down.
//
// Postcondition: returns nil on ctx end or supervisor shutdown.
func (s *Soak) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		if err := s.topUp(); errors.Is(err, ErrShutdown) {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Soak) topUp() error {
	for s.sup.Active() < s.cfg.Concurrency {
		sc := s.scenarios[s.next%len(s.scenarios)]
		s.next++
		handle, err := s.sup.Create(sc.Setup, s.cfg.NewEmitter(sc.Name))
		switch {
		case errors.Is(err, ErrShutdown):
			return err
		case errors.Is(err, ErrCapacity):
			return nil
		case err != nil:
			// A scenario that no longer builds against the live catalog would
			// fail every round; skip it this round only.
			s.logger.Warn("soak scenario rejected", zap.String("scenario", sc.Name), zap.Error(err))
			return nil
		}
		s.logger.Debug("soak encounter started",
			zap.String("scenario", sc.Name),
			zap.String("encounter", handle.String()),
		)
	}
	return nil
}
