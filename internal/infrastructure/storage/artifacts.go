package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	sq "github.com/Masterminds/squirrel"

	"ragresearch/internal/domain"
)

// StoreParsedText persists extraction results in one transaction: the full
// text and pdf path on the paper row, plus a wholesale replacement of the
// chunk set. Prior chunks are superseded, never mutated in place.
func (s *Store) StoreParsedText(ctx context.Context, id, text, pdfPath string, chunks []domain.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store parsed text %s: %w", id, err)
	}
	defer tx.Rollback()

	update, args, err := s.sb.Update("papers").
		Set("full_text", text).
		Set("pdf_path", pdfPath).
		Set("updated_at", time.Now().UTC().Unix()).
		Where(sq.Eq{"arxiv_id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("store parsed text %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, update, args...)
	if err != nil {
		return fmt.Errorf("store parsed text %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("paper %s: %w", id, domain.ErrPaperNotFound)
	}

	del, args, err := s.sb.Delete("chunks").Where(sq.Eq{"paper_id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("store parsed text %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		return fmt.Errorf("store parsed text %s: %w", id, err)
	}

	for _, chunk := range chunks {
		insert, args, err := s.sb.Insert("chunks").
			Columns("paper_id", "seq", "content").
			Values(id, chunk.Seq, chunk.Content).
			ToSql()
		if err != nil {
			return fmt.Errorf("store chunk %s/%d: %w", id, chunk.Seq, err)
		}
		if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
			return fmt.Errorf("store chunk %s/%d: %w", id, chunk.Seq, err)
		}
	}

	return tx.Commit()
}

// ChunksForPaper returns the paper's chunks in sequence order.
func (s *Store) ChunksForPaper(ctx context.Context, id string) ([]domain.Chunk, error) {
	query, args, err := s.sb.Select("paper_id", "seq", "content").
		From("chunks").
		Where(sq.Eq{"paper_id": id}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("chunks for %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("chunks for %s: %w", id, err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.PaperID, &c.Seq, &c.Content); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// GetChunk returns one chunk by paper id and sequence index.
func (s *Store) GetChunk(ctx context.Context, id string, seq int) (domain.Chunk, error) {
	query, args, err := s.sb.Select("paper_id", "seq", "content").
		From("chunks").
		Where(sq.Eq{"paper_id": id, "seq": seq}).
		ToSql()
	if err != nil {
		return domain.Chunk{}, fmt.Errorf("get chunk %s/%d: %w", id, seq, err)
	}

	var c domain.Chunk
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&c.PaperID, &c.Seq, &c.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Chunk{}, fmt.Errorf("chunk %s/%d not found", id, seq)
	}
	if err != nil {
		return domain.Chunk{}, fmt.Errorf("get chunk %s/%d: %w", id, seq, err)
	}
	return c, nil
}

// SaveVectors persists the chunk embeddings for one paper under the model
// tag, replacing any stale vectors left from a prior parse of that paper.
func (s *Store) SaveVectors(ctx context.Context, model string, vectors []domain.ChunkVector) error {
	if len(vectors) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save vectors: %w", err)
	}
	defer tx.Rollback()

	del, args, err := s.sb.Delete("embeddings").
		Where(sq.Eq{"paper_id": vectors[0].PaperID, "model": model}).
		ToSql()
	if err != nil {
		return fmt.Errorf("save vectors: %w", err)
	}
	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		return fmt.Errorf("save vectors: %w", err)
	}

	for _, v := range vectors {
		insert, args, err := s.sb.Insert("embeddings").
			Columns("paper_id", "seq", "model", "vector").
			Values(v.PaperID, v.Seq, model, encodeVector(v.Vector)).
			ToSql()
		if err != nil {
			return fmt.Errorf("save vector %s/%d: %w", v.PaperID, v.Seq, err)
		}
		if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
			return fmt.Errorf("save vector %s/%d: %w", v.PaperID, v.Seq, err)
		}
	}

	return tx.Commit()
}

// LoadVectors returns every vector stored under the model tag together
// with the owning paper's published date for tie-breaking.
func (s *Store) LoadVectors(ctx context.Context, model string) ([]domain.ChunkVector, error) {
	query, args, err := s.sb.Select("e.paper_id", "e.seq", "e.vector", "p.published_at").
		From("embeddings e").
		Join("papers p ON p.arxiv_id = e.paper_id").
		Where(sq.Eq{"e.model": model}).
		OrderBy("e.paper_id", "e.seq").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}
	defer rows.Close()

	var vectors []domain.ChunkVector
	for rows.Next() {
		var (
			v         domain.ChunkVector
			blob      []byte
			published int64
		)
		if err := rows.Scan(&v.PaperID, &v.Seq, &blob, &published); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		v.Vector = decodeVector(blob)
		v.PublishedAt = timeOrZero(published)
		vectors = append(vectors, v)
	}
	return vectors, rows.Err()
}

// IndexModels lists the distinct embedding model tags present.
func (s *Store) IndexModels(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT model FROM embeddings ORDER BY model")
	if err != nil {
		return nil, fmt.Errorf("index models: %w", err)
	}
	defer rows.Close()

	var models []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

// ReplaceSummary swaps the paper's summary in a single transaction, so a
// concurrent reader sees either the old record or the new one, never a
// partially written mix.
func (s *Store) ReplaceSummary(ctx context.Context, sum domain.Summary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace summary %s: %w", sum.PaperID, err)
	}
	defer tx.Rollback()

	del, args, err := s.sb.Delete("summaries").Where(sq.Eq{"paper_id": sum.PaperID}).ToSql()
	if err != nil {
		return fmt.Errorf("replace summary %s: %w", sum.PaperID, err)
	}
	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		return fmt.Errorf("replace summary %s: %w", sum.PaperID, err)
	}

	insert, args, err := s.sb.Insert("summaries").
		Columns("paper_id", "abstract_summary", "methodology", "results", "related_work",
			"authors", "published_at", "structure_score", "generated_at").
		Values(sum.PaperID, sum.AbstractSummary, sum.Methodology, sum.Results, sum.RelatedWork,
			sum.Authors, unixOrZero(sum.PublishedAt), sum.StructureScore, unixOrZero(sum.GeneratedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("replace summary %s: %w", sum.PaperID, err)
	}
	if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
		return fmt.Errorf("replace summary %s: %w", sum.PaperID, err)
	}

	return tx.Commit()
}

// GetSummary returns (summary, true, nil) when one exists.
func (s *Store) GetSummary(ctx context.Context, id string) (domain.Summary, bool, error) {
	query, args, err := s.sb.Select("paper_id", "abstract_summary", "methodology", "results",
		"related_work", "authors", "published_at", "structure_score", "generated_at").
		From("summaries").
		Where(sq.Eq{"paper_id": id}).
		ToSql()
	if err != nil {
		return domain.Summary{}, false, fmt.Errorf("get summary %s: %w", id, err)
	}

	var (
		sum                  domain.Summary
		published, generated int64
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&sum.PaperID, &sum.AbstractSummary, &sum.Methodology, &sum.Results,
		&sum.RelatedWork, &sum.Authors, &published, &sum.StructureScore, &generated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Summary{}, false, nil
	}
	if err != nil {
		return domain.Summary{}, false, fmt.Errorf("get summary %s: %w", id, err)
	}
	sum.PublishedAt = timeOrZero(published)
	sum.GeneratedAt = timeOrZero(generated)
	return sum, true, nil
}

// HasSummary reports whether a summary exists for the paper.
func (s *Store) HasSummary(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM summaries WHERE paper_id = ?", id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("has summary %s: %w", id, err)
	}
	return count > 0, nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
