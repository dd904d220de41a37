package session_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/encounter"
	"github.com/cory-johannsen/skirmish/internal/session"
)

type countingEmitter struct{ n *atomic.Int64 }

func (c countingEmitter) Emit(context.Context, encounter.Snapshot) error {
	c.n.Add(1)
	return nil
}

func quickWin() session.SoakScenario {
	return session.SoakScenario{
		Name:  "quick",
		Setup: setupVs(time.Minute, ally("p1", combat.ControllerBot, 100), "goblin"),
	}
}

func TestNewSoak_PanicsOnBadConfig(t *testing.T) {
	sup, _ := newSupervisor(t, session.Config{})
	emit := func(string) session.Emitter { return countingEmitter{n: new(atomic.Int64)} }
	assert.Panics(t, func() {
		session.NewSoak(sup, nil, session.SoakConfig{Interval: time.Millisecond, Concurrency: 1, NewEmitter: emit}, zap.NewNop())
	})
	assert.Panics(t, func() {
		session.NewSoak(sup, []session.SoakScenario{quickWin()}, session.SoakConfig{Concurrency: 1, NewEmitter: emit}, zap.NewNop())
	})
	assert.Panics(t, func() {
		session.NewSoak(sup, []session.SoakScenario{quickWin()}, session.SoakConfig{Interval: time.Millisecond, Concurrency: 1}, zap.NewNop())
	})
}

func TestSoak_KeepsEncountersRunning(t *testing.T) {
	sup, _ := newSupervisor(t, session.Config{})
	var names atomic.Int64
	emitted := new(atomic.Int64)
	soak := session.NewSoak(sup, []session.SoakScenario{quickWin()}, session.SoakConfig{
		Interval:    5 * time.Millisecond,
		Concurrency: 2,
		NewEmitter: func(name string) session.Emitter {
			if name == "quick" {
				names.Add(1)
			}
			return countingEmitter{n: emitted}
		},
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- soak.Run(ctx) }()

	require.Eventually(t, func() bool { return sup.Stats().Won >= 5 }, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, names.Load(), int64(5))
	assert.Positive(t, emitted.Load())
}

func TestSoak_StopsOnSupervisorShutdown(t *testing.T) {
	sup, _ := newSupervisor(t, session.Config{})
	soak := session.NewSoak(sup, []session.SoakScenario{quickWin()}, session.SoakConfig{
		Interval:    time.Millisecond,
		Concurrency: 1,
		NewEmitter:  func(string) session.Emitter { return countingEmitter{n: new(atomic.Int64)} },
	}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sup.Shutdown(ctx))

	done := make(chan error, 1)
	go func() { done <- soak.Run(context.Background()) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("soak did not stop after shutdown")
	}
}

func TestSoak_SkipsRejectedScenario(t *testing.T) {
	sup, _ := newSupervisor(t, session.Config{})
	core, logs := observer.New(zap.WarnLevel)
	bad := session.SoakScenario{
		Name:  "bad",
		Setup: setupVs(time.Minute, ally("p1", combat.ControllerBot, 100), "dragon"),
	}
	soak := session.NewSoak(sup, []session.SoakScenario{bad, quickWin()}, session.SoakConfig{
		Interval:    time.Millisecond,
		Concurrency: 1,
		NewEmitter:  func(string) session.Emitter { return countingEmitter{n: new(atomic.Int64)} },
	}, zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- soak.Run(ctx) }()
	require.Eventually(t, func() bool { return sup.Stats().Won >= 1 }, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Positive(t, logs.FilterMessage("soak scenario rejected").Len())
}
