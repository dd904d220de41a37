// Package main runs one practice scenario headlessly and prints its combat
// log and summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/config"
	"github.com/cory-johannsen/skirmish/internal/game/catalog"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/encounter"
	"github.com/cory-johannsen/skirmish/internal/game/scenario"
	"github.com/cory-johannsen/skirmish/internal/notify"
	"github.com/cory-johannsen/skirmish/internal/observability"
	"github.com/cory-johannsen/skirmish/internal/scripting"
	"github.com/cory-johannsen/skirmish/internal/session"
	"github.com/cory-johannsen/skirmish/internal/storage/postgres"
)

// lastSummary keeps the summary the supervisor hands back.
type lastSummary struct {
	mu  sync.Mutex
	sum *encounter.Summary
}

func (l *lastSummary) RecordSummary(_ context.Context, s *encounter.Summary) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sum = s
	return nil
}

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "optional path to configuration file")
	scenarioID := flag.String("scenario", "ghoul_patrol", "scenario id to run")
	scenariosDir := flag.String("scenarios", "", "scenario directory (default <catalog.dir>/scenarios)")
	seed := flag.Uint64("seed", 0, "override the scenario seed (0 keeps it)")
	difficulty := flag.String("difficulty", "", "override difficulty: normal, hard, nightmare")
	tick := flag.Duration("tick", time.Millisecond, "wall-clock tick interval")
	asJSON := flag.Bool("json", false, "print the terminal snapshot as JSON")
	flag.Parse()

	v := config.New(*configPath)
	if *configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			log.Fatalf("reading config: %v", err)
		}
	}
	cfg, err := config.LoadFromViper(v)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	cat, err := catalog.LoadDirectory(cfg.Catalog.Dir)
	if err != nil {
		logger.Fatal("loading catalog", zap.Error(err))
	}
	store := catalog.NewStore(cat)
	if err := config.ApplyTuning(v, store); err != nil {
		logger.Fatal("applying tuning", zap.Error(err))
	}

	scripts := scripting.NewManager(logger, cfg.Engine.ScriptInstructionLimit)
	defer scripts.Close()
	if err := scripts.Load(filepath.Join(cfg.Catalog.Dir, "scripts", "behaviors")); err != nil {
		logger.Fatal("loading behavior scripts", zap.Error(err))
	}

	dir := *scenariosDir
	if dir == "" {
		dir = filepath.Join(cfg.Catalog.Dir, "scenarios")
	}
	all, err := scenario.LoadDirectory(dir)
	if err != nil {
		logger.Fatal("loading scenarios", zap.Error(err))
	}
	sc, ok := scenario.Find(all, *scenarioID)
	if !ok {
		logger.Fatal("unknown scenario", zap.String("scenario", *scenarioID))
	}

	setup := sc.Setup(encounter.Setup{
		Step:       cfg.Engine.Step,
		GraceTicks: cfg.Engine.GraceTicks,
		TimeBudget: cfg.Engine.TimeBudget,
		LogWindow:  cfg.Engine.LogWindow,
	})
	if *seed != 0 {
		setup.Seed = *seed
	}
	if *difficulty != "" {
		setup.Difficulty = combat.Difficulty(*difficulty)
	}

	result := &lastSummary{}
	sinks := session.Sinks{result}
	if cfg.Database.Enabled {
		pool, err := postgres.NewPool(context.Background(), cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		defer pool.Close()
		sinks = append(sinks, pool.Summaries())
	}

	sup := session.NewSupervisor(store, session.Config{TickInterval: *tick}, logger,
		session.WithSummarySink(sinks),
		session.WithBehaviorScript(scripts),
	)
	emitter := notify.NewChannelEmitter(4096)
	if _, err := sup.Create(setup, emitter); err != nil {
		logger.Fatal("creating encounter", zap.Error(err))
	}

	var (
		seen     int
		terminal encounter.Snapshot
	)
	for snap := range emitter.C() {
		for _, line := range notify.NewLines(seen, snap) {
			fmt.Fprintf(os.Stdout, "[%6s] %s\n", snap.Elapsed, line)
		}
		seen = snap.LogTotal
		terminal = snap
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sup.Shutdown(ctx); err != nil {
		logger.Warn("supervisor shutdown", zap.Error(err))
	}

	if *asJSON {
		raw, err := notify.EncodeJSON(terminal)
		if err != nil {
			logger.Fatal("encoding snapshot", zap.Error(err))
		}
		fmt.Fprintln(os.Stdout, string(raw))
	}

	result.mu.Lock()
	sum := result.sum
	result.mu.Unlock()
	if sum == nil {
		fmt.Fprintf(os.Stdout, "encounter %s ended without a summary (%s) [%s]\n",
			terminal.EncounterID, terminal.Outcome, time.Since(start))
		return
	}
	printSummary(sum)
	fmt.Fprintf(os.Stdout, "scenario %s: %s after %s (%d ticks) [%s]\n",
		sc.ID, sum.Outcome, sum.Duration, sum.Ticks, time.Since(start))
}

func printSummary(s *encounter.Summary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nID\tTEAM\tDAMAGE\tHEALING\tTANKED\tABSORBED\tHP\tDOWN")
	for _, p := range s.Participants {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%v\n",
			p.ID, p.Team, p.Damage, p.Healing, p.Tanked, p.Absorbed, p.FinalHP, p.Defeated)
	}
	fmt.Fprintln(w, "\nSOURCE\tABILITY\tDAMAGE\tHEALING\tHITS")
	for _, a := range s.Attribution {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", a.SourceID, a.AbilityID, a.Damage, a.Healing, a.Hits)
	}
	_ = w.Flush()
}
