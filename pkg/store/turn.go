package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/memhub/memoryd/pkg/apperr"
)

// uniqueViolation is the Postgres SQLSTATE for a unique-constraint
// violation (23505).
const uniqueViolation = "23505"

// FindTurnByExternalID looks up a turn by (thread_id, external_turn_id)
// for idempotent ingestion.
func (s *Store) FindTurnByExternalID(ctx context.Context, threadID, externalTurnID string) (*Turn, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT turn_id, thread_id, role, text, ts, meta, branch_id, external_turn_id, embedding::text
		FROM turns WHERE thread_id = $1 AND external_turn_id = $2`, threadID, externalTurnID)
	return scanTurn(row)
}

// InsertTurn inserts a new turn row. Callers are expected to have
// already checked FindTurnByExternalID, but a concurrent submitter can
// still race past that check: when the (thread_id, external_turn_id)
// unique index rejects the insert, InsertTurn re-fetches and returns
// the row the winner committed, collapsing both submitters onto a
// single turn instead of surfacing a raw constraint-violation error.
func (s *Store) InsertTurn(ctx context.Context, t *Turn) (*Turn, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	if t.Ts.IsZero() {
		t.Ts = time.Now()
	}
	metaJSON, err := marshalMeta(t.Meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal turn meta: %w", err)
	}
	var embeddingArg any
	if t.Embedding != nil {
		embeddingArg = encodeVector(t.Embedding)
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO turns (turn_id, thread_id, role, text, ts, meta, branch_id, external_turn_id, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::vector)
		RETURNING turn_id`,
		t.ID, t.ThreadID, t.Role, t.Text, t.Ts, metaJSON, t.BranchID, t.ExternalTurnID, embeddingArg)
	if err := row.Scan(&t.ID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && t.ExternalTurnID != nil {
			existing, findErr := s.FindTurnByExternalID(ctx, t.ThreadID, *t.ExternalTurnID)
			if findErr != nil {
				return nil, fmt.Errorf("failed to re-fetch turn after conflicting insert: %w", findErr)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("failed to insert turn: %w", err)
	}
	return t, nil
}

// GetTurn loads a turn by id.
func (s *Store) GetTurn(ctx context.Context, id string) (*Turn, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT turn_id, thread_id, role, text, ts, meta, branch_id, external_turn_id, embedding::text
		FROM turns WHERE turn_id = $1`, id)
	return scanTurn(row)
}

// SetTurnEmbedding writes the embedding vector for a turn.
func (s *Store) SetTurnEmbedding(ctx context.Context, id string, embedding []float32) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE turns SET embedding = $1::vector WHERE turn_id = $2`, encodeVector(embedding), id)
	if err != nil {
		return fmt.Errorf("failed to set turn embedding: %w", err)
	}
	return requireAffected(res)
}

// RecentTurns returns up to limit turns in thread, ordered by ts desc.
func (s *Store) RecentTurns(ctx context.Context, threadID string, limit int) ([]*Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT turn_id, thread_id, role, text, ts, meta, branch_id, external_turn_id, embedding::text
		FROM turns WHERE thread_id = $1 ORDER BY ts DESC LIMIT $2`, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent turns: %w", err)
	}
	defer rows.Close()

	var turns []*Turn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// VectorTurnCandidate is a turn ranked by cosine distance to a query
// vector.
type VectorTurnCandidate struct {
	Turn     *Turn
	Distance float64
}

// VectorSearchTurns returns up to topK turns in thread with a non-null
// embedding, ordered by ascending cosine distance to vector.
func (s *Store) VectorSearchTurns(ctx context.Context, threadID string, vector []float32, topK int) ([]VectorTurnCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT turn_id, thread_id, role, text, ts, meta, branch_id, external_turn_id, embedding::text,
		       (embedding <=> $2::vector) AS distance
		FROM turns
		WHERE thread_id = $1 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2::vector
		LIMIT $3`, threadID, encodeVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to vector search turns: %w", err)
	}
	defer rows.Close()

	var out []VectorTurnCandidate
	for rows.Next() {
		var t Turn
		var metaJSON []byte
		var embeddingText sql.NullString
		var distance float64
		if err := rows.Scan(&t.ID, &t.ThreadID, &t.Role, &t.Text, &t.Ts, &metaJSON,
			&t.BranchID, &t.ExternalTurnID, &embeddingText, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan turn candidate: %w", err)
		}
		meta, err := unmarshalMeta(metaJSON)
		if err != nil {
			return nil, err
		}
		t.Meta = meta
		if embeddingText.Valid {
			t.Embedding, err = decodeVector(embeddingText.String)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, VectorTurnCandidate{Turn: &t, Distance: distance})
	}
	return out, rows.Err()
}

// KeywordSearchTurns returns up to topK turns in thread whose derived
// tsvector matches query, ordered by ts desc.
func (s *Store) KeywordSearchTurns(ctx context.Context, threadID, query string, topK int) ([]*Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT turn_id, thread_id, role, text, ts, meta, branch_id, external_turn_id, embedding::text
		FROM turns
		WHERE thread_id = $1 AND tsv @@ plainto_tsquery('english', $2)
		ORDER BY ts DESC
		LIMIT $3`, threadID, query, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to keyword search turns: %w", err)
	}
	defer rows.Close()

	var turns []*Turn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// DeleteTurnsOlderThan deletes turns with ts before cutoff, returning
// the number of rows removed.
func (s *Store) DeleteTurnsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old turns: %w", err)
	}
	return res.RowsAffected()
}

func scanTurn(row rowScanner) (*Turn, error) {
	var t Turn
	var metaJSON []byte
	var embeddingText sql.NullString
	if err := row.Scan(&t.ID, &t.ThreadID, &t.Role, &t.Text, &t.Ts, &metaJSON,
		&t.BranchID, &t.ExternalTurnID, &embeddingText); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan turn: %w", err)
	}
	meta, err := unmarshalMeta(metaJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal turn meta: %w", err)
	}
	t.Meta = meta
	if embeddingText.Valid {
		t.Embedding, err = decodeVector(embeddingText.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decode turn embedding: %w", err)
		}
	}
	return &t, nil
}
