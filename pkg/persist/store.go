// Package persist stores room snapshots in PostgreSQL so reaped and
// restarted rooms can be restored on the next join. State is kept as
// one JSONB document per interaction id; the server, not the database,
// is the source of truth while a room is live.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/encounterlive/encounterd/pkg/models"
	"github.com/encounterlive/encounterd/pkg/room"
)

// PGStore implements room.SnapshotStore over a pgx connection pool.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects to the database, verifies the connection, and
// applies pending migrations.
func NewPGStore(ctx context.Context, databaseURL string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := Migrate(databaseURL); err != nil {
		pool.Close()
		return nil, err
	}
	slog.Info("Snapshot store connected")
	return &PGStore{pool: pool}, nil
}

// SaveSnapshot upserts a room's state document.
func (s *PGStore) SaveSnapshot(ctx context.Context, state *models.GameState) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO room_snapshots (interaction_id, state, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (interaction_id)
		DO UPDATE SET state = EXCLUDED.state, updated_at = now()`,
		state.InteractionID, doc)
	if err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", state.InteractionID, err)
	}
	return nil
}

// LoadSnapshot fetches a room's state document, returning
// room.ErrSnapshotNotFound when none exists.
func (s *PGStore) LoadSnapshot(ctx context.Context, interactionID string) (*models.GameState, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM room_snapshots WHERE interaction_id = $1`,
		interactionID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, room.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot for %s: %w", interactionID, err)
	}

	var state models.GameState
	if err := json.Unmarshal(doc, &state); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot for %s: %w", interactionID, err)
	}
	return &state, nil
}

// DeleteSnapshot removes a room's state document.
func (s *PGStore) DeleteSnapshot(ctx context.Context, interactionID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM room_snapshots WHERE interaction_id = $1`, interactionID)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot for %s: %w", interactionID, err)
	}
	if tag.RowsAffected() == 0 {
		return room.ErrSnapshotNotFound
	}
	return nil
}

// Close releases the connection pool.
func (s *PGStore) Close() {
	s.pool.Close()
}
