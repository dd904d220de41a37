package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/encounter"
)

// ErrSummaryNotFound is returned when no summary exists for an encounter id.
var ErrSummaryNotFound = errors.New("summary not found")

// ErrSummaryExists is returned when a summary for the encounter was already recorded.
var ErrSummaryExists = errors.New("summary already recorded")

// SummaryRepository persists terminal encounter summaries.
type SummaryRepository struct {
	db *pgxpool.Pool
}

// NewSummaryRepository creates a SummaryRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewSummaryRepository(db *pgxpool.Pool) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// RecordSummary writes s and its participant and attribution rows in one
// transaction.
//
// Precondition: s must be non-nil with a non-empty EncounterID.
// Postcondition: either every row is written or none is. Returns
// ErrSummaryExists if the encounter was already recorded.
func (r *SummaryRepository) RecordSummary(ctx context.Context, s *encounter.Summary) error {
	if s == nil || s.EncounterID == "" {
		return errors.New("recording summary: encounter id is required")
	}
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO encounter_summaries
			   (encounter_id, outcome, difficulty, duration_ms, ticks, started_at, ended_at, tuning_version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			s.EncounterID, string(s.Outcome), string(s.Difficulty), s.Duration.Milliseconds(),
			int64(s.Ticks), s.StartedAt, s.EndedAt, int64(s.TuningVersion),
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return ErrSummaryExists
			}
			return fmt.Errorf("inserting summary: %w", err)
		}

		batch := &pgx.Batch{}
		for i, p := range s.Participants {
			batch.Queue(
				`INSERT INTO encounter_participants
				   (encounter_id, position, participant_id, name, team, controller,
				    damage, healing, tanked, absorbed, final_hp, defeated)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				s.EncounterID, i, p.ID, p.Name, string(p.Team), string(p.Controller),
				p.Damage, p.Healing, p.Tanked, p.Absorbed, p.FinalHP, p.Defeated,
			)
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("inserting participants: %w", err)
			}
		}
		if len(s.Attribution) == 0 {
			return nil
		}

		rows := make([][]any, 0, len(s.Attribution))
		for _, a := range s.Attribution {
			rows = append(rows, []any{s.EncounterID, a.SourceID, a.AbilityID, a.Damage, a.Healing, a.Hits})
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"encounter_attribution"},
			[]string{"encounter_id", "source_id", "ability_id", "damage", "healing", "hits"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("copying attribution: %w", err)
		}
		return nil
	})
}

// Get loads the summary recorded for encounterID.
//
// Postcondition: Returns ErrSummaryNotFound if none was recorded.
func (r *SummaryRepository) Get(ctx context.Context, encounterID string) (*encounter.Summary, error) {
	s := &encounter.Summary{EncounterID: encounterID}
	var (
		outcome, difficulty     string
		durationMs, ticks, tver int64
	)
	err := r.db.QueryRow(ctx,
		`SELECT outcome, difficulty, duration_ms, ticks, started_at, ended_at, tuning_version
		 FROM encounter_summaries WHERE encounter_id = $1`,
		encounterID,
	).Scan(&outcome, &difficulty, &durationMs, &ticks, &s.StartedAt, &s.EndedAt, &tver)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSummaryNotFound
		}
		return nil, fmt.Errorf("querying summary: %w", err)
	}
	s.Outcome = encounter.Outcome(outcome)
	s.Difficulty = combat.Difficulty(difficulty)
	s.Duration = time.Duration(durationMs) * time.Millisecond
	s.Ticks = uint64(ticks)
	s.TuningVersion = uint64(tver)

	prow, err := r.db.Query(ctx,
		`SELECT participant_id, name, team, controller, damage, healing, tanked, absorbed, final_hp, defeated
		 FROM encounter_participants WHERE encounter_id = $1 ORDER BY position`,
		encounterID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying participants: %w", err)
	}
	s.Participants, err = pgx.CollectRows(prow, func(row pgx.CollectableRow) (encounter.ParticipantStats, error) {
		var p encounter.ParticipantStats
		var team, controller string
		err := row.Scan(&p.ID, &p.Name, &team, &controller, &p.Damage, &p.Healing, &p.Tanked, &p.Absorbed, &p.FinalHP, &p.Defeated)
		p.Team = combat.Team(team)
		p.Controller = combat.Controller(controller)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning participants: %w", err)
	}

	arow, err := r.db.Query(ctx,
		`SELECT source_id, ability_id, damage, healing, hits
		 FROM encounter_attribution WHERE encounter_id = $1 ORDER BY source_id, ability_id`,
		encounterID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying attribution: %w", err)
	}
	s.Attribution, err = pgx.CollectRows(arow, pgx.RowToStructByPos[encounter.AttributionEntry])
	if err != nil {
		return nil, fmt.Errorf("scanning attribution: %w", err)
	}
	return s, nil
}

// CountByOutcome returns how many summaries were recorded per outcome.
func (r *SummaryRepository) CountByOutcome(ctx context.Context) (map[encounter.Outcome]int, error) {
	rows, err := r.db.Query(ctx, `SELECT outcome, COUNT(*) FROM encounter_summaries GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("counting summaries: %w", err)
	}
	defer rows.Close()
	counts := make(map[encounter.Outcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[encounter.Outcome(outcome)] = n
	}
	return counts, rows.Err()
}
