package limits

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Repository persists limit configuration in the risk_limits table.
// Thresholds are stored as decimal text so they round-trip exactly.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a limit repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "risk_limits").Logger(),
	}
}

// Upsert inserts or replaces a limit.
func (r *Repository) Upsert(ctx context.Context, limit RiskLimit) error {
	limit, err := validateLimit(limit)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO risk_limits (level, entity_id, metric, threshold, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (level, entity_id, metric)
		DO UPDATE SET threshold = excluded.threshold, updated_at = excluded.updated_at
	`, string(limit.Level), limit.EntityID, limit.Metric, limit.Threshold.String(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert risk limit: %w", err)
	}
	return nil
}

// Delete removes a limit. Deleting a missing limit returns ErrLimitNotFound.
func (r *Repository) Delete(ctx context.Context, level Level, entityID, metric string) error {
	level = canonicalLevel(level)
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM risk_limits WHERE level = ? AND entity_id = ? AND metric = ?`,
		string(level), entityID, metric)
	if err != nil {
		return fmt.Errorf("failed to delete risk limit: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete risk limit: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s/%s", ErrLimitNotFound, level, entityID, metric)
	}
	return nil
}

// List returns every stored limit.
func (r *Repository) List(ctx context.Context) ([]RiskLimit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT level, entity_id, metric, threshold
		FROM risk_limits
		ORDER BY level, entity_id, metric
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk limits: %w", err)
	}
	defer rows.Close()

	var out []RiskLimit
	for rows.Next() {
		var level, entityID, metric, threshold string
		if err := rows.Scan(&level, &entityID, &metric, &threshold); err != nil {
			return nil, fmt.Errorf("failed to scan risk limit: %w", err)
		}

		value, err := decimal.NewFromString(threshold)
		if err != nil {
			return nil, fmt.Errorf("failed to parse threshold %q for %s/%s/%s: %w", threshold, level, entityID, metric, err)
		}

		out = append(out, RiskLimit{
			Level:     Level(level),
			EntityID:  entityID,
			Metric:    metric,
			Threshold: value,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate risk limits: %w", err)
	}
	return out, nil
}

// LoadInto replays every stored limit into the manager and returns how many were loaded.
func LoadInto(ctx context.Context, repo *Repository, manager *Manager) (int, error) {
	stored, err := repo.List(ctx)
	if err != nil {
		return 0, err
	}

	for _, limit := range stored {
		if err := manager.SetLimit(limit.Level, limit.EntityID, limit.Metric, limit.Threshold); err != nil {
			return 0, fmt.Errorf("failed to load limit %s/%s/%s: %w", limit.Level, limit.EntityID, limit.Metric, err)
		}
	}

	repo.log.Info().Int("limits", len(stored)).Msg("Risk limits loaded")
	return len(stored), nil
}
