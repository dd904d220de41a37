package notify

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/encounter"
)

var (
	// ErrClosed is returned by Emit after the consumer has closed the emitter.
	ErrClosed = errors.New("notify: emitter closed")
	// ErrSlowConsumer is returned when the consumer's buffer is full.
	ErrSlowConsumer = errors.New("notify: consumer buffer full")
)

// ChannelEmitter hands snapshots to an in-process consumer over a buffered
// channel. Emit never blocks.
type ChannelEmitter struct {
	mu     sync.Mutex
	ch     chan encounter.Snapshot
	closed bool
}

// NewChannelEmitter returns an emitter with the given buffer size.
//
// Precondition: buffer must be >= 1.
func NewChannelEmitter(buffer int) *ChannelEmitter {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelEmitter{ch: make(chan encounter.Snapshot, buffer)}
}

// C is the receive side for the consumer. It is closed once the terminal
// snapshot has been delivered.
func (e *ChannelEmitter) C() <-chan encounter.Snapshot { return e.ch }

// Emit queues snap.
//
// Postcondition: returns ErrClosed after Close, ErrSlowConsumer if the
// buffer is full, nil otherwise.
func (e *ChannelEmitter) Emit(ctx context.Context, snap encounter.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	select {
	case e.ch <- snap:
	default:
		return ErrSlowConsumer
	}
	if snap.Phase == encounter.PhaseTerminated {
		e.closed = true
		close(e.ch)
	}
	return nil
}

// Close detaches the consumer. Subsequent Emit calls fail, which abandons the
// encounter. Close is idempotent.
func (e *ChannelEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}

// LogEmitter writes each snapshot's newest log lines to a zap logger. It is
// the presentation used by headless runs.
type LogEmitter struct {
	logger *zap.Logger
	mu     sync.Mutex
	seen   int
	total  int
}

// NewLogEmitter returns a LogEmitter writing to logger.
func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

// Emit logs the lines of snap.Log that were not in the previous snapshot,
// followed by one line of HP state at debug level.
func (e *LogEmitter) Emit(_ context.Context, snap encounter.Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, line := range NewLines(e.total, snap) {
		e.logger.Info(line, zap.String("encounter", snap.EncounterID), zap.Uint64("tick", snap.Tick))
	}
	e.total = snap.LogTotal
	e.seen++
	if ce := e.logger.Check(zap.DebugLevel, "snapshot"); ce != nil {
		hp := make(map[string]int, len(snap.Combatants))
		for _, c := range snap.Combatants {
			hp[c.ID] = c.HP
		}
		ce.Write(
			zap.String("encounter", snap.EncounterID),
			zap.Uint64("tick", snap.Tick),
			zap.Stringer("phase", snap.Phase),
			zap.Any("hp", hp),
		)
	}
	return nil
}

// Seen returns the number of snapshots emitted so far.
func (e *LogEmitter) Seen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seen
}

// NewLines returns the lines of snap.Log recorded after the first prevTotal
// lines of the encounter log. Lines that already scrolled out of the window
// are lost; the whole window is returned in that case.
func NewLines(prevTotal int, snap encounter.Snapshot) []string {
	n := snap.LogTotal - prevTotal
	switch {
	case n <= 0:
		return nil
	case n >= len(snap.Log):
		return snap.Log
	default:
		return snap.Log[len(snap.Log)-n:]
	}
}
