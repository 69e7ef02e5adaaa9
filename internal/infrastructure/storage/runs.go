package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"ragresearch/internal/domain"
)

// StartRun opens a pipeline run record and returns its id.
func (s *Store) StartRun(ctx context.Context, startedAt time.Time) (int64, error) {
	query, args, err := s.sb.Insert("pipeline_runs").
		Columns("started_at").
		Values(startedAt.UTC().Unix()).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("start run: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("start run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// FinishRun finalizes the run record. Runs are immutable after this; a
// second finish of the same run is rejected.
func (s *Store) FinishRun(ctx context.Context, run domain.PipelineRun) error {
	query, args, err := s.sb.Update("pipeline_runs").
		Set("finished_at", unixOrZero(run.FinishedAt)).
		Set("status", string(run.Status)).
		Set("error", run.Error).
		Set("papers_stored", run.PapersStored).
		Set("papers_parsed", run.PapersParsed).
		Set("papers_embedded", run.PapersEmbedded).
		Set("papers_summarized", run.PapersSummarized).
		Set("cost_usd", run.CostUSD).
		Where(sq.And{
			sq.Eq{"id": run.ID},
			sq.Eq{"status": ""},
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("finish run %d: %w", run.ID, err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", run.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %d: run missing or already finalized", run.ID)
	}
	return nil
}

// LastRun returns the most recently started run, or nil when none exists.
func (s *Store) LastRun(ctx context.Context) (*domain.PipelineRun, error) {
	query, args, err := s.sb.Select("id", "started_at", "finished_at", "status", "error",
		"papers_stored", "papers_parsed", "papers_embedded", "papers_summarized", "cost_usd").
		From("pipeline_runs").
		OrderBy("started_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("last run: %w", err)
	}

	var (
		run                   domain.PipelineRun
		startedAt, finishedAt int64
		status                string
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&run.ID, &startedAt, &finishedAt, &status, &run.Error,
		&run.PapersStored, &run.PapersParsed, &run.PapersEmbedded,
		&run.PapersSummarized, &run.CostUSD)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last run: %w", err)
	}
	run.StartedAt = timeOrZero(startedAt)
	run.FinishedAt = timeOrZero(finishedAt)
	run.Status = domain.RunStatus(status)
	return &run, nil
}

// AddCost accumulates the persisted cumulative spend for one call kind.
// Spend already incurred is never reversed, even for failed attempts.
func (s *Store) AddCost(ctx context.Context, kind string, units int64, usd float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cost_totals (kind, units, usd) VALUES (?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET
			units = units + excluded.units,
			usd = usd + excluded.usd`,
		kind, units, usd)
	if err != nil {
		return fmt.Errorf("add cost %s: %w", kind, err)
	}
	return nil
}

// ResetCumulativeCost clears the persisted ledger. Administrative only.
func (s *Store) ResetCumulativeCost(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cost_totals"); err != nil {
		return fmt.Errorf("reset cumulative cost: %w", err)
	}
	return nil
}

// Status aggregates the corpus counters with single COUNT queries rather
// than scanning rows in the application.
func (s *Store) Status(ctx context.Context) (domain.CorpusStatus, error) {
	var st domain.CorpusStatus

	counters := []struct {
		dest  *int
		query string
	}{
		{&st.TotalPapers, "SELECT COUNT(1) FROM papers"},
		{&st.ProcessedPapers, fmt.Sprintf("SELECT COUNT(1) FROM papers WHERE stage >= %d", int(domain.StageParsed))},
		{&st.PapersWithVectors, fmt.Sprintf("SELECT COUNT(1) FROM papers WHERE stage >= %d", int(domain.StageEmbedded))},
		{&st.TotalChunks, "SELECT COUNT(1) FROM chunks"},
		{&st.TotalSummaries, "SELECT COUNT(1) FROM summaries"},
	}
	for _, c := range counters {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return domain.CorpusStatus{}, fmt.Errorf("status counters: %w", err)
		}
	}

	var avgScore sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		"SELECT AVG(structure_score) FROM summaries").Scan(&avgScore); err != nil {
		return domain.CorpusStatus{}, fmt.Errorf("status avg score: %w", err)
	}
	if avgScore.Valid {
		st.AvgStructureScore = avgScore.Float64
	}

	var totalUSD sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		"SELECT SUM(usd) FROM cost_totals").Scan(&totalUSD); err != nil {
		return domain.CorpusStatus{}, fmt.Errorf("status cost: %w", err)
	}
	if totalUSD.Valid {
		st.CumulativeCostUSD = totalUSD.Float64
	}

	lastRun, err := s.LastRun(ctx)
	if err != nil {
		return domain.CorpusStatus{}, err
	}
	st.LastRun = lastRun

	return st, nil
}
