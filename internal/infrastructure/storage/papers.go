package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"ragresearch/internal/domain"
)

const authorsSeparator = "; "

var paperColumns = []string{
	"arxiv_id", "title", "abstract", "authors", "url", "pdf_url",
	"published_at", "full_text", "pdf_path", "stage", "created_at", "updated_at",
}

// UpsertPaper inserts a new paper or merges non-empty metadata into the
// existing row. The stage never regresses and identical input is a no-op,
// so repeated fetches of the same feed page are safe.
func (s *Store) UpsertPaper(ctx context.Context, p domain.Paper) (bool, error) {
	if p.ArxivID == "" {
		return false, fmt.Errorf("upsert paper: empty identifier")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("upsert paper %s: %w", p.ArxivID, err)
	}
	defer tx.Rollback()

	existing, err := s.getPaperTx(ctx, tx, p.ArxivID)
	now := time.Now().UTC()

	switch {
	case errors.Is(err, domain.ErrPaperNotFound):
		query, args, buildErr := s.sb.Insert("papers").
			Columns(paperColumns...).
			Values(p.ArxivID, p.Title, p.Abstract, joinAuthors(p.Authors), p.URL, p.PDFURL,
				unixOrZero(p.PublishedAt), p.FullText, p.PDFPath, int(p.Stage), now.Unix(), now.Unix()).
			ToSql()
		if buildErr != nil {
			return false, fmt.Errorf("upsert paper %s: %w", p.ArxivID, buildErr)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return false, fmt.Errorf("upsert paper %s: %w", p.ArxivID, err)
		}
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("upsert paper %s: %w", p.ArxivID, err)
		}
		return true, nil

	case err != nil:
		return false, err

	default:
		merged, changed := mergePaper(existing, p)
		if !changed {
			return false, tx.Commit()
		}
		query, args, buildErr := s.sb.Update("papers").
			Set("title", merged.Title).
			Set("abstract", merged.Abstract).
			Set("authors", joinAuthors(merged.Authors)).
			Set("url", merged.URL).
			Set("pdf_url", merged.PDFURL).
			Set("published_at", unixOrZero(merged.PublishedAt)).
			Set("updated_at", now.Unix()).
			Where(sq.Eq{"arxiv_id": p.ArxivID}).
			ToSql()
		if buildErr != nil {
			return false, fmt.Errorf("upsert paper %s: %w", p.ArxivID, buildErr)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return false, fmt.Errorf("upsert paper %s: %w", p.ArxivID, err)
		}
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("upsert paper %s: %w", p.ArxivID, err)
		}
		return false, nil
	}
}

// mergePaper overlays non-empty incoming metadata onto the stored row.
// Text and processing state are owned by the pipeline stages, not the
// fetcher, so they are never touched here.
func mergePaper(existing, incoming domain.Paper) (domain.Paper, bool) {
	changed := false
	if incoming.Title != "" && incoming.Title != existing.Title {
		existing.Title = incoming.Title
		changed = true
	}
	if incoming.Abstract != "" && incoming.Abstract != existing.Abstract {
		existing.Abstract = incoming.Abstract
		changed = true
	}
	if len(incoming.Authors) > 0 && joinAuthors(incoming.Authors) != joinAuthors(existing.Authors) {
		existing.Authors = incoming.Authors
		changed = true
	}
	if incoming.URL != "" && incoming.URL != existing.URL {
		existing.URL = incoming.URL
		changed = true
	}
	if incoming.PDFURL != "" && incoming.PDFURL != existing.PDFURL {
		existing.PDFURL = incoming.PDFURL
		changed = true
	}
	if !incoming.PublishedAt.IsZero() && !incoming.PublishedAt.Equal(existing.PublishedAt) {
		existing.PublishedAt = incoming.PublishedAt
		changed = true
	}
	return existing, changed
}

// GetPaper returns the paper or domain.ErrPaperNotFound.
func (s *Store) GetPaper(ctx context.Context, id string) (domain.Paper, error) {
	return s.getPaperTx(ctx, nil, id)
}

func (s *Store) getPaperTx(ctx context.Context, tx *sql.Tx, id string) (domain.Paper, error) {
	query, args, err := s.sb.Select(paperColumns...).
		From("papers").
		Where(sq.Eq{"arxiv_id": id}).
		ToSql()
	if err != nil {
		return domain.Paper{}, fmt.Errorf("get paper %s: %w", id, err)
	}

	var row *sql.Row
	if tx != nil {
		row = tx.QueryRowContext(ctx, query, args...)
	} else {
		row = s.db.QueryRowContext(ctx, query, args...)
	}

	p, err := scanPaper(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Paper{}, fmt.Errorf("paper %s: %w", id, domain.ErrPaperNotFound)
	}
	if err != nil {
		return domain.Paper{}, fmt.Errorf("get paper %s: %w", id, err)
	}
	return p, nil
}

// ListRecent returns up to limit papers, newest published first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]domain.Paper, error) {
	if limit <= 0 {
		limit = 50
	}
	builder := s.sb.Select(paperColumns...).
		From("papers").
		OrderBy("published_at DESC", "arxiv_id DESC").
		Limit(uint64(limit))
	return s.queryPapers(ctx, builder)
}

// ListInStageRange returns papers whose stage is in [min, below), oldest
// published first so backlogs drain in order.
func (s *Store) ListInStageRange(ctx context.Context, min, below domain.Stage) ([]domain.Paper, error) {
	builder := s.sb.Select(paperColumns...).
		From("papers").
		Where(sq.And{
			sq.GtOrEq{"stage": int(min)},
			sq.Lt{"stage": int(below)},
		}).
		OrderBy("published_at ASC", "arxiv_id ASC")
	return s.queryPapers(ctx, builder)
}

func (s *Store) queryPapers(ctx context.Context, builder sq.SelectBuilder) ([]domain.Paper, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build paper query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query papers: %w", err)
	}
	defer rows.Close()

	var papers []domain.Paper
	for rows.Next() {
		p, err := scanPaper(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan paper: %w", err)
		}
		papers = append(papers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate papers: %w", err)
	}
	return papers, nil
}

// AdvanceStage moves the paper monotonically forward. A stage that is
// already reached fails with domain.ErrInvalidTransition unless forced;
// a forced re-advance is a no-op rather than a regression.
func (s *Store) AdvanceStage(ctx context.Context, id string, stage domain.Stage, force bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("advance %s to %s: %w", id, stage, err)
	}
	defer tx.Rollback()

	current, err := s.getPaperTx(ctx, tx, id)
	if err != nil {
		return err
	}

	if current.Stage >= stage {
		if !force {
			return fmt.Errorf("paper %s already %s: %w", id, stage, domain.ErrInvalidTransition)
		}
		return tx.Commit()
	}

	query, args, err := s.sb.Update("papers").
		Set("stage", int(stage)).
		Set("updated_at", time.Now().UTC().Unix()).
		Where(sq.Eq{"arxiv_id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("advance %s to %s: %w", id, stage, err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("advance %s to %s: %w", id, stage, err)
	}
	return tx.Commit()
}

func scanPaper(scan func(dest ...any) error) (domain.Paper, error) {
	var (
		p                           domain.Paper
		authors                     string
		published, created, updated int64
		stage                       int
	)
	err := scan(&p.ArxivID, &p.Title, &p.Abstract, &authors, &p.URL, &p.PDFURL,
		&published, &p.FullText, &p.PDFPath, &stage, &created, &updated)
	if err != nil {
		return domain.Paper{}, err
	}
	p.Authors = splitAuthors(authors)
	p.PublishedAt = timeOrZero(published)
	p.CreatedAt = timeOrZero(created)
	p.UpdatedAt = timeOrZero(updated)
	p.Stage = domain.Stage(stage)
	return p, nil
}

func joinAuthors(authors []string) string {
	return strings.Join(authors, authorsSeparator)
}

func splitAuthors(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, authorsSeparator)
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().Unix()
}

func timeOrZero(unix int64) time.Time {
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}
