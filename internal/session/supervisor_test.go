package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/skirmish/internal/game/catalog"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/encounter"
	"github.com/cory-johannsen/skirmish/internal/session"
)

func flat(v float64) catalog.Formula { return catalog.Formula{Base: v} }

func testStore(t testing.TB) *catalog.Store {
	t.Helper()
	abilities := []*catalog.AbilityDef{
		{ID: "pistol", Name: "Pistol", Slot: catalog.SlotWeapon, Category: catalog.CategorySingleTarget,
			Effect: catalog.EffectDamage, Formula: flat(30)},
		{ID: "claw", Name: "Claw", Slot: catalog.SlotWeapon, Category: catalog.CategorySingleTarget,
			Effect: catalog.EffectDamage, Formula: flat(10)},
		{ID: "feather", Name: "Feather", Slot: catalog.SlotWeapon, Category: catalog.CategorySingleTarget,
			Effect: catalog.EffectDamage, Formula: flat(0)},
	}
	monsters := []*catalog.MonsterDef{
		{ID: "goblin", Name: "Goblin", Level: 1, HP: flat(30), Weapon: "claw",
			Behavior: catalog.Behavior{Kind: catalog.BehaviorBasic}},
		{ID: "dummy", Name: "Dummy", Level: 1, HP: flat(1e6), Weapon: "feather",
			Behavior: catalog.Behavior{Kind: catalog.BehaviorBasic}},
	}
	cat, err := catalog.Build(abilities, monsters)
	require.NoError(t, err)
	return catalog.NewStore(cat)
}

func ally(id string, controller combat.Controller, hp int) encounter.Participant {
	return encounter.Participant{
		ID: id, Name: id, Controller: controller, Level: 1, MaxHP: hp,
		Loadout: combat.Loadout{Weapon: combat.Item{AbilityID: "pistol", Level: 1}},
	}
}

func setupVs(budget time.Duration, p encounter.Participant, monster string) encounter.Setup {
	return encounter.Setup{
		Participants: []encounter.Participant{p},
		Hostiles:     []encounter.HostileSpec{{MonsterID: monster}},
		Step:         time.Second,
		TimeBudget:   budget,
		Seed:         1,
	}
}

// recorder collects snapshots and signals when the terminal one arrives.
type recorder struct {
	mu    sync.Mutex
	snaps []encounter.Snapshot
	fail  error
	done  chan encounter.Snapshot
}

func newRecorder() *recorder { return &recorder{done: make(chan encounter.Snapshot, 1)} }

func (r *recorder) Emit(_ context.Context, snap encounter.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.snaps = append(r.snaps, snap)
	if snap.Phase == encounter.PhaseTerminated {
		r.done <- snap
	}
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recorder) wait(t *testing.T) encounter.Snapshot {
	t.Helper()
	select {
	case snap := <-r.done:
		return snap
	case <-time.After(5 * time.Second):
		t.Fatal("terminal snapshot not delivered")
		return encounter.Snapshot{}
	}
}

type sink struct {
	mu        sync.Mutex
	summaries []*encounter.Summary
	err       error
}

func (s *sink) RecordSummary(_ context.Context, sum *encounter.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, sum)
	return s.err
}

func (s *sink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.summaries)
}

func newSupervisor(t *testing.T, cfg session.Config, opts ...session.Option) (*session.Supervisor, *observer.ObservedLogs) {
	t.Helper()
	if cfg.TickInterval == 0 {
		cfg.TickInterval = time.Millisecond
	}
	core, logs := observer.New(zap.InfoLevel)
	sup := session.NewSupervisor(testStore(t), cfg, zap.New(core), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sup.Shutdown(ctx)
	})
	return sup, logs
}

func waitIdle(t *testing.T, sup *session.Supervisor) {
	t.Helper()
	require.Eventually(t, func() bool { return sup.Active() == 0 }, 5*time.Second, time.Millisecond)
}

func TestNewSupervisor_ZeroInterval_Panics(t *testing.T) {
	assert.Panics(t, func() {
		session.NewSupervisor(testStore(t), session.Config{}, zap.NewNop())
	})
}

func TestSupervisor_Win_DeliversTerminalAndSummary(t *testing.T) {
	s := &sink{}
	sup, _ := newSupervisor(t, session.Config{}, session.WithSummarySink(s))
	rec := newRecorder()

	handle, err := sup.Create(setupVs(time.Minute, ally("bot", combat.ControllerBot, 100), "goblin"), rec)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, handle)

	snap := rec.wait(t)
	assert.Equal(t, encounter.OutcomeWin, snap.Outcome)
	assert.Equal(t, handle.String(), snap.EncounterID)
	waitIdle(t, sup)

	require.Equal(t, 1, s.len())
	assert.Equal(t, encounter.OutcomeWin, s.summaries[0].Outcome)
	stats := sup.Stats()
	assert.Equal(t, uint64(1), stats.Created)
	assert.Equal(t, uint64(1), stats.Won)
	assert.Equal(t, 0, stats.Active)
}

func TestSupervisor_Lose(t *testing.T) {
	sup, _ := newSupervisor(t, session.Config{})
	rec := newRecorder()
	_, err := sup.Create(setupVs(time.Minute, ally("p1", combat.ControllerHuman, 10), "goblin"), rec)
	require.NoError(t, err)
	assert.Equal(t, encounter.OutcomeLose, rec.wait(t).Outcome)
	waitIdle(t, sup)
	assert.Equal(t, uint64(1), sup.Stats().Lost)
}

func TestSupervisor_Timeout(t *testing.T) {
	s := &sink{}
	sup, _ := newSupervisor(t, session.Config{}, session.WithSummarySink(s))
	rec := newRecorder()
	_, err := sup.Create(setupVs(3*time.Second, ally("p1", combat.ControllerHuman, 100), "dummy"), rec)
	require.NoError(t, err)
	snap := rec.wait(t)
	assert.Equal(t, encounter.OutcomeTimeout, snap.Outcome)
	waitIdle(t, sup)
	assert.Equal(t, uint64(1), sup.Stats().TimedOut)
	assert.Equal(t, 1, s.len())
}

func TestSupervisor_Cancel_AbandonsWithoutSummary(t *testing.T) {
	s := &sink{}
	sup, _ := newSupervisor(t, session.Config{TickInterval: 5 * time.Millisecond}, session.WithSummarySink(s))
	rec := newRecorder()
	handle, err := sup.Create(setupVs(time.Hour, ally("p1", combat.ControllerHuman, 100), "dummy"), rec)
	require.NoError(t, err)

	sup.Cancel(handle)
	sup.Cancel(handle)
	snap := rec.wait(t)
	assert.Equal(t, encounter.OutcomeAbandoned, snap.Outcome)
	waitIdle(t, sup)

	sup.Cancel(handle)
	assert.Equal(t, 0, s.len())
	stats := sup.Stats()
	assert.Equal(t, uint64(1), stats.Cancelled)
	assert.Equal(t, uint64(0), stats.Abandoned)
}

func TestSupervisor_EmitterFailure_Abandons(t *testing.T) {
	s := &sink{}
	sup, logs := newSupervisor(t, session.Config{}, session.WithSummarySink(s))
	rec := newRecorder()
	rec.fail = errors.New("client gone")
	_, err := sup.Create(setupVs(time.Hour, ally("p1", combat.ControllerHuman, 100), "dummy"), rec)
	require.NoError(t, err)

	waitIdle(t, sup)
	stats := sup.Stats()
	assert.Equal(t, uint64(1), stats.Abandoned)
	assert.Equal(t, uint64(0), stats.Cancelled)
	assert.Equal(t, 0, s.len())
	assert.Equal(t, 1, logs.FilterMessage("snapshot delivery failed; abandoning encounter").Len())
}

func TestSupervisor_Throttle_TerminalAlwaysDelivered(t *testing.T) {
	sup, _ := newSupervisor(t, session.Config{NotifyInterval: time.Hour})
	rec := newRecorder()
	_, err := sup.Create(setupVs(20*time.Second, ally("p1", combat.ControllerHuman, 100), "dummy"), rec)
	require.NoError(t, err)
	assert.Equal(t, encounter.OutcomeTimeout, rec.wait(t).Outcome)
	assert.Equal(t, 2, rec.count(), "one burst snapshot plus the terminal one")
}

func TestSupervisor_Unthrottled_EmitsEveryTick(t *testing.T) {
	sup, _ := newSupervisor(t, session.Config{})
	rec := newRecorder()
	_, err := sup.Create(setupVs(5*time.Second, ally("p1", combat.ControllerHuman, 100), "dummy"), rec)
	require.NoError(t, err)
	snap := rec.wait(t)
	assert.Equal(t, int(snap.Tick), rec.count())
}

func TestSupervisor_SinkError_Logged(t *testing.T) {
	s := &sink{err: errors.New("db down")}
	sup, logs := newSupervisor(t, session.Config{}, session.WithSummarySink(s))
	rec := newRecorder()
	_, err := sup.Create(setupVs(time.Minute, ally("bot", combat.ControllerBot, 100), "goblin"), rec)
	require.NoError(t, err)
	assert.Equal(t, encounter.OutcomeWin, rec.wait(t).Outcome)
	waitIdle(t, sup)
	assert.Equal(t, 1, logs.FilterMessage("recording summary").Len())
	assert.Equal(t, uint64(1), sup.Stats().Won)
}

func TestSupervisor_Create_InvalidSetup(t *testing.T) {
	sup, _ := newSupervisor(t, session.Config{})
	_, err := sup.Create(setupVs(time.Minute, ally("p1", combat.ControllerHuman, 100), "dragon"), newRecorder())
	assert.True(t, errors.Is(err, encounter.ErrInvalidHostile))
	assert.Equal(t, uint64(0), sup.Stats().Created)
}

func TestSupervisor_Create_Capacity(t *testing.T) {
	sup, _ := newSupervisor(t, session.Config{TickInterval: 20 * time.Millisecond, MaxEncounters: 1})
	_, err := sup.Create(setupVs(time.Hour, ally("p1", combat.ControllerHuman, 100), "dummy"), newRecorder())
	require.NoError(t, err)
	_, err = sup.Create(setupVs(time.Hour, ally("p1", combat.ControllerHuman, 100), "dummy"), newRecorder())
	assert.True(t, errors.Is(err, session.ErrCapacity))
}

func TestSupervisor_Submit(t *testing.T) {
	sup, _ := newSupervisor(t, session.Config{TickInterval: 20 * time.Millisecond})
	handle, err := sup.Create(setupVs(time.Hour, ally("p1", combat.ControllerHuman, 100), "dummy"), newRecorder())
	require.NoError(t, err)

	assert.NoError(t, sup.Submit(handle, "p1", combat.Action{Kind: combat.ActionAttack}))
	assert.True(t, errors.Is(sup.Submit(handle, "nobody", combat.Action{Kind: combat.ActionAttack}), encounter.ErrUnknownActor))
	assert.True(t, errors.Is(sup.Submit(uuid.New(), "p1", combat.Action{Kind: combat.ActionAttack}), session.ErrUnknownEncounter))
}

func TestSupervisor_Shutdown_CancelsAndRefuses(t *testing.T) {
	core, _ := observer.New(zap.InfoLevel)
	sup := session.NewSupervisor(testStore(t), session.Config{TickInterval: time.Millisecond}, zap.New(core))
	recs := make([]*recorder, 3)
	for i := range recs {
		recs[i] = newRecorder()
		_, err := sup.Create(setupVs(time.Hour, ally("p1", combat.ControllerHuman, 100), "dummy"), recs[i])
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sup.Shutdown(ctx))
	assert.Equal(t, 0, sup.Active())
	for _, rec := range recs {
		assert.Equal(t, encounter.OutcomeAbandoned, rec.wait(t).Outcome)
	}
	assert.Equal(t, uint64(3), sup.Stats().Cancelled)

	_, err := sup.Create(setupVs(time.Hour, ally("p1", combat.ControllerHuman, 100), "dummy"), newRecorder())
	assert.True(t, errors.Is(err, session.ErrShutdown))
}

func TestSupervisor_ManyConcurrentEncounters(t *testing.T) {
	sup, _ := newSupervisor(t, session.Config{})
	const n = 25
	recs := make([]*recorder, n)
	for i := range recs {
		recs[i] = newRecorder()
		_, err := sup.Create(setupVs(time.Minute, ally("bot", combat.ControllerBot, 100), "goblin"), recs[i])
		require.NoError(t, err)
	}
	for _, rec := range recs {
		assert.Equal(t, encounter.OutcomeWin, rec.wait(t).Outcome)
	}
	waitIdle(t, sup)
	stats := sup.Stats()
	assert.Equal(t, uint64(n), stats.Created)
	assert.Equal(t, uint64(n), stats.Won)
}

func TestSinks_FanOutJoinsErrors(t *testing.T) {
	ok := &sink{}
	bad := &sink{err: errors.New("db down")}
	also := &sink{}
	sum := &encounter.Summary{EncounterID: "e1", Outcome: encounter.OutcomeWin}

	err := session.Sinks{ok, bad, also}.RecordSummary(context.Background(), sum)
	assert.ErrorContains(t, err, "db down")
	assert.Equal(t, 1, ok.len())
	assert.Equal(t, 1, bad.len())
	assert.Equal(t, 1, also.len(), "later sinks still run")

	assert.NoError(t, session.Sinks{ok}.RecordSummary(context.Background(), sum))
}
