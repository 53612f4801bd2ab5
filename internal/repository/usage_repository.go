package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UsageRepository is the hourly usage ledger. Rows are keyed by
// (user_id, usage_date, usage_hour) and never deleted.
type UsageRepository struct {
	db *sql.DB
}

func NewUsageRepository(db *sql.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Increment adds one unit to the bucket in a single statement so concurrent
// calls for the same bucket merge instead of racing.
func (r *UsageRepository) Increment(ctx context.Context, userID int64, day time.Time, hour int) error {
	const query = `
INSERT INTO usage_events (user_id, usage_date, usage_hour, analysis_count)
VALUES (?, ?, ?, 1)
ON DUPLICATE KEY UPDATE analysis_count = analysis_count + 1`
	if _, err := r.db.ExecContext(ctx, query, userID, day.Format(time.DateOnly), hour); err != nil {
		if isMissingReference(err) {
			return ErrUnknownUser
		}
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

func (r *UsageRepository) HourCount(ctx context.Context, userID int64, day time.Time, hour int) (int, error) {
	const query = `
SELECT COALESCE(SUM(analysis_count), 0) FROM usage_events
WHERE user_id = ? AND usage_date = ? AND usage_hour = ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, day.Format(time.DateOnly), hour).Scan(&count); err != nil {
		return 0, fmt.Errorf("count hourly usage: %w", err)
	}
	return count, nil
}

// SumBetween totals usage for dates in [from, to).
func (r *UsageRepository) SumBetween(ctx context.Context, userID int64, from, to time.Time) (int, error) {
	const query = `
SELECT COALESCE(SUM(analysis_count), 0) FROM usage_events
WHERE user_id = ? AND usage_date >= ? AND usage_date < ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, from.Format(time.DateOnly), to.Format(time.DateOnly)).Scan(&count); err != nil {
		return 0, fmt.Errorf("sum usage: %w", err)
	}
	return count, nil
}
