package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/recallchat/internal/domain"
)

// TurnRepository handles chat thread persistence
type TurnRepository struct {
	db *DB
}

// NewTurnRepository creates a new turn repository
func NewTurnRepository(db *DB) *TurnRepository {
	return &TurnRepository{db: db}
}

// SaveTurn stores a turn at the end of its thread and returns the message id.
// ID and CreatedAt are filled in when empty.
func (r *TurnRepository) SaveTurn(ctx context.Context, turn *domain.ChatTurn) (string, error) {
	if turn.ThreadID == "" {
		return "", fmt.Errorf("%w: thread id is required", domain.ErrInvalidRequest)
	}
	if turn.ID == "" {
		turn.ID = uuid.New().String()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	var metadata sql.NullString
	if turn.Metadata != nil {
		raw, err := json.Marshal(turn.Metadata)
		if err != nil {
			return "", fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO threads (id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at
	`, turn.ThreadID, turn.CreatedAt, turn.CreatedAt); err != nil {
		return "", err
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE thread_id = ?`, turn.ThreadID,
	).Scan(&seq); err != nil {
		return "", err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO turns (id, thread_id, seq, role, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, turn.ID, turn.ThreadID, seq, string(turn.Role), turn.Content, metadata, turn.CreatedAt); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return turn.ID, nil
}

// GetTurns returns the most recent limit turns of a thread in chronological order.
// A limit <= 0 returns the whole thread.
func (r *TurnRepository) GetTurns(ctx context.Context, threadID string, limit int) ([]*domain.ChatTurn, error) {
	query := `
		SELECT id, thread_id, role, content, metadata, created_at
		FROM turns WHERE thread_id = ?
		ORDER BY seq DESC`
	args := []any{threadID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	turns, err := r.queryTurns(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Deduplicate removes turns that repeat an earlier turn of the same thread
// (same role, content, metadata and second) and returns how many were removed.
// The earliest copy is kept, so a second run removes nothing.
func (r *TurnRepository) Deduplicate(ctx context.Context, threadID string) (int, error) {
	turns, err := r.queryTurns(ctx, `
		SELECT id, thread_id, role, content, metadata, created_at
		FROM turns WHERE thread_id = ?
		ORDER BY seq ASC`, threadID)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool, len(turns))
	var duplicates []string
	for _, turn := range turns {
		hash := hashTurn(turn)
		if seen[hash] {
			duplicates = append(duplicates, turn.ID)
			continue
		}
		seen[hash] = true
	}
	if len(duplicates) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(duplicates)), ",")
	args := make([]any, len(duplicates))
	for i, id := range duplicates {
		args[i] = id
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(removed), nil
}

// ClearThread deletes a thread and all of its turns
func (r *TurnRepository) ClearThread(ctx context.Context, threadID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE thread_id = ?`, threadID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, threadID); err != nil {
		return err
	}
	return tx.Commit()
}

// ListThreads returns stored threads, most recently updated first
func (r *TurnRepository) ListThreads(ctx context.Context) ([]*domain.ThreadSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, COUNT(m.id), t.updated_at
		FROM threads t LEFT JOIN turns m ON m.thread_id = t.id
		GROUP BY t.id, t.updated_at
		ORDER BY t.updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []*domain.ThreadSummary
	for rows.Next() {
		thread := &domain.ThreadSummary{}
		if err := rows.Scan(&thread.ThreadID, &thread.TurnCount, &thread.UpdatedAt); err != nil {
			return nil, err
		}
		threads = append(threads, thread)
	}
	return threads, rows.Err()
}

// Stats returns thread and turn counts
func (r *TurnRepository) Stats(ctx context.Context) (*domain.Stats, error) {
	stats := &domain.Stats{}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM threads`).Scan(&stats.TotalThreads); err != nil {
		return nil, err
	}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM turns`).Scan(&stats.TotalTurns); err != nil {
		return nil, err
	}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM turns WHERE role = 'user'`).Scan(&stats.TotalChats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *TurnRepository) queryTurns(ctx context.Context, query string, args ...any) ([]*domain.ChatTurn, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []*domain.ChatTurn
	for rows.Next() {
		turn := &domain.ChatTurn{}
		var role string
		var metadata sql.NullString

		if err := rows.Scan(&turn.ID, &turn.ThreadID, &role,
			&turn.Content, &metadata, &turn.CreatedAt); err != nil {
			return nil, err
		}
		turn.Role = domain.Role(role)

		if metadata.Valid && metadata.String != "" {
			meta := &domain.SearchMetadata{}
			if err := json.Unmarshal([]byte(metadata.String), meta); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of turn %s: %w", turn.ID, err)
			}
			turn.Metadata = meta
		}
		turns = append(turns, turn)
	}

	return turns, rows.Err()
}

// hashTurn creates a content-based hash for a turn
func hashTurn(turn *domain.ChatTurn) string {
	h := sha256.New()

	h.Write([]byte(turn.Role))
	h.Write([]byte{0})
	h.Write([]byte(turn.Content))
	h.Write([]byte{0})
	if turn.Metadata != nil {
		raw, _ := json.Marshal(turn.Metadata)
		h.Write(raw)
	}
	h.Write([]byte{0})
	h.Write([]byte(turn.CreatedAt.UTC().Truncate(time.Second).Format(time.RFC3339)))

	return hex.EncodeToString(h.Sum(nil))
}
