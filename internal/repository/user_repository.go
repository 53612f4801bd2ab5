package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/payraan/narmoonai-test-sub000/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, COALESCE(username, ''), COALESCE(first_name, ''), plan_type, plan_start, plan_end,
monthly_limit, hourly_limit, referral_code, custom_commission_rate, total_earned, total_paid, created_at, updated_at`

func scanUser(row scanner) (*models.User, error) {
	var (
		u          models.User
		planStart  sql.NullTime
		planEnd    sql.NullTime
		code       sql.NullString
		customRate sql.NullFloat64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.PlanType, &planStart, &planEnd,
		&u.MonthlyLimit, &u.HourlyLimit, &code, &customRate, &u.TotalEarned, &u.TotalPaid, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if planStart.Valid {
		u.PlanStart = &planStart.Time
	}
	if planEnd.Valid {
		u.PlanEnd = &planEnd.Time
	}
	if code.Valid {
		u.ReferralCode = &code.String
	}
	if customRate.Valid {
		u.CustomCommissionRate = &customRate.Float64
	}
	return &u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// Ensure creates the user on first contact and refreshes the profile otherwise.
// INSERT IGNORE keeps two concurrent first contacts from failing each other.
func (r *UserRepository) Ensure(ctx context.Context, id int64, username, firstName string) (*models.User, bool, error) {
	const insert = `
INSERT IGNORE INTO users (id, username, first_name, plan_type)
VALUES (?, NULLIF(?, ''), NULLIF(?, ''), ?)`
	res, err := r.db.ExecContext(ctx, insert, id, username, firstName, models.PlanFree)
	if err != nil {
		return nil, false, fmt.Errorf("insert user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert user rows affected: %w", err)
	}
	created := affected > 0
	if !created {
		const update = `UPDATE users SET username = NULLIF(?, ''), first_name = NULLIF(?, '') WHERE id = ?`
		if _, err := r.db.ExecContext(ctx, update, username, firstName, id); err != nil {
			return nil, false, fmt.Errorf("update profile: %w", err)
		}
	}
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if user == nil {
		return nil, false, fmt.Errorf("user %d vanished after ensure", id)
	}
	return user, created, nil
}

// AssignPlan overwrites the plan fields with a fresh snapshot.
func (r *UserRepository) AssignPlan(ctx context.Context, id int64, a models.PlanAssignment) error {
	const query = `
UPDATE users SET plan_type = ?, plan_start = ?, plan_end = ?, monthly_limit = ?, hourly_limit = ?
WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, a.PlanType, a.PlanStart, a.PlanEnd, a.MonthlyLimit, a.HourlyLimit, id)
	if err != nil {
		return fmt.Errorf("assign plan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("assign plan rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *UserRepository) SetReferralCode(ctx context.Context, id int64, code string) error {
	const query = `UPDATE users SET referral_code = ? WHERE id = ? AND referral_code IS NULL`
	if _, err := r.db.ExecContext(ctx, query, code, id); err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("set referral code: %w", err)
	}
	return nil
}

func (r *UserRepository) SetCustomCommissionRate(ctx context.Context, id int64, rate *float64) error {
	const query = `UPDATE users SET custom_commission_rate = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, rate, id)
	if err != nil {
		return fmt.Errorf("set commission rate: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("commission rate rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *UserRepository) ListIDs(ctx context.Context) ([]int64, error) {
	const query = `SELECT id FROM users`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
