package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/payraan/narmoonai-test-sub000/internal/models"
)

// ReportRepository answers read-only admin aggregates.
type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) UsersByPlan(ctx context.Context) (map[string]int, error) {
	const query = `SELECT plan_type, COUNT(*) FROM users GROUP BY plan_type`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("users by plan: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			plan  string
			count int
		)
		if err := rows.Scan(&plan, &count); err != nil {
			return nil, fmt.Errorf("scan plan count: %w", err)
		}
		counts[plan] = count
	}
	return counts, rows.Err()
}

func (r *ReportRepository) ActivePlans(ctx context.Context, now time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM users WHERE plan_type <> ? AND (plan_end IS NULL OR plan_end >= ?)`
	var count int
	if err := r.db.QueryRowContext(ctx, query, models.PlanFree, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active plans: %w", err)
	}
	return count, nil
}

func (r *ReportRepository) CommissionTotals(ctx context.Context) (pending, paid float64, err error) {
	const query = `
SELECT
    COALESCE(SUM(CASE WHEN status = ? THEN total_amount END), 0),
    COALESCE(SUM(CASE WHEN status = ? THEN total_amount END), 0)
FROM commissions`
	if err := r.db.QueryRowContext(ctx, query, models.CommissionStatusPending, models.CommissionStatusPaid).Scan(&pending, &paid); err != nil {
		return 0, 0, fmt.Errorf("commission totals: %w", err)
	}
	return pending, paid, nil
}

func (r *ReportRepository) TopReferrers(ctx context.Context, limit int) ([]models.ReferrerStat, error) {
	const query = `
SELECT u.id, COALESCE(u.username, ''), COUNT(rf.id), u.total_earned
FROM users u
JOIN referrals rf ON rf.referrer_id = u.id
GROUP BY u.id, u.username, u.total_earned
ORDER BY u.total_earned DESC, COUNT(rf.id) DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("top referrers: %w", err)
	}
	defer rows.Close()

	var out []models.ReferrerStat
	for rows.Next() {
		var s models.ReferrerStat
		if err := rows.Scan(&s.ReferrerID, &s.Username, &s.Referrals, &s.TotalEarned); err != nil {
			return nil, fmt.Errorf("scan referrer stat: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
