package stoploss

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoSnapshot is returned by Latest when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no stop snapshot")

// SnapshotStore persists encoded Book snapshots in the stop_snapshots table.
type SnapshotStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSnapshotStore creates a snapshot store
func NewSnapshotStore(db *sql.DB, log zerolog.Logger) *SnapshotStore {
	return &SnapshotStore{
		db:  db,
		log: log.With().Str("component", "stop_snapshots").Logger(),
	}
}

// Save stores one snapshot and returns its row id.
func (s *SnapshotStore) Save(ctx context.Context, stopCount int, payload []byte) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO stop_snapshots (taken_at, stop_count, payload) VALUES (?, ?, ?)`,
		time.Now().UnixMilli(), stopCount, payload)
	if err != nil {
		return 0, fmt.Errorf("failed to save stop snapshot: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read snapshot id: %w", err)
	}
	return id, nil
}

// Latest returns the most recent payload and when it was taken.
func (s *SnapshotStore) Latest(ctx context.Context) ([]byte, time.Time, error) {
	var (
		takenAt int64
		payload []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT taken_at, payload FROM stop_snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&takenAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrNoSnapshot
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to load stop snapshot: %w", err)
	}
	return payload, time.UnixMilli(takenAt), nil
}

// Prune keeps the newest keep snapshots and deletes the rest.
func (s *SnapshotStore) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM stop_snapshots
		WHERE id NOT IN (SELECT id FROM stop_snapshots ORDER BY id DESC LIMIT ?)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune stop snapshots: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned snapshots: %w", err)
	}
	if n > 0 {
		s.log.Debug().Int64("deleted", n).Int("kept", keep).Msg("Pruned stop snapshots")
	}
	return n, nil
}

// SaveBook encodes the book and stores it.
func SaveBook(ctx context.Context, store *SnapshotStore, book *Book) (int, error) {
	data, count, err := book.snapshot()
	if err != nil {
		return 0, err
	}
	if _, err := store.Save(ctx, count, data); err != nil {
		return 0, err
	}
	return count, nil
}

// RestoreBook loads the latest snapshot into book. A store with no snapshots restores nothing.
func RestoreBook(ctx context.Context, store *SnapshotStore, book *Book) (int, error) {
	data, takenAt, err := store.Latest(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	n, err := book.Restore(data)
	if err != nil {
		return 0, err
	}
	store.log.Info().Int("stops", n).Time("taken_at", takenAt).Msg("Restored stops from snapshot")
	return n, nil
}
