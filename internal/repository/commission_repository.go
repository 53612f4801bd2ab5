package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/payraan/narmoonai-test-sub000/internal/models"
)

// CommissionRepository owns the commission ledger and the cached
// total_earned/total_paid projections on users.
type CommissionRepository struct {
	db *sql.DB
}

func NewCommissionRepository(db *sql.DB) *CommissionRepository {
	return &CommissionRepository{db: db}
}

const commissionColumns = `id, referrer_id, referred_id, transaction_id, plan_type, commission_amount, bonus_amount, total_amount, status, created_at, paid_at`

func scanCommission(row scanner) (*models.Commission, error) {
	var (
		c      models.Commission
		paidAt sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.ReferrerID, &c.ReferredID, &c.TransactionID, &c.PlanType, &c.CommissionAmount,
		&c.BonusAmount, &c.TotalAmount, &c.Status, &c.CreatedAt, &paidAt); err != nil {
		return nil, err
	}
	if paidAt.Valid {
		c.PaidAt = &paidAt.Time
	}
	return &c, nil
}

func (r *CommissionRepository) GetByTransaction(ctx context.Context, transactionID string) (*models.Commission, error) {
	query := `SELECT ` + commissionColumns + ` FROM commissions WHERE transaction_id = ?`
	c, err := scanCommission(r.db.QueryRowContext(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get commission: %w", err)
	}
	return c, nil
}

// Credit inserts the commission, bumps the referrer's total_earned and marks
// the referral completed in one transaction. A second credit for the same
// transaction id fails on the unique key with ErrDuplicate and changes nothing.
func (r *CommissionRepository) Credit(ctx context.Context, c *models.Commission) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const insert = `
INSERT INTO commissions (referrer_id, referred_id, transaction_id, plan_type, commission_amount, bonus_amount, total_amount, status, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, insert, c.ReferrerID, c.ReferredID, c.TransactionID, c.PlanType,
		c.CommissionAmount, c.BonusAmount, c.TotalAmount, c.Status, c.CreatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert commission: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("commission last insert id: %w", err)
	}

	const earn = `UPDATE users SET total_earned = total_earned + ? WHERE id = ?`
	res, err = tx.ExecContext(ctx, earn, c.TotalAmount, c.ReferrerID)
	if err != nil {
		return fmt.Errorf("add total earned: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("total earned rows affected: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("add total earned: referrer %d not found", c.ReferrerID)
	}

	const complete = `
UPDATE referrals SET status = ?, completed_at = ?
WHERE referred_id = ? AND status = ?`
	if _, err := tx.ExecContext(ctx, complete, models.ReferralStatusCompleted, c.CreatedAt, c.ReferredID, models.ReferralStatusPending); err != nil {
		return fmt.Errorf("complete referral: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit commission tx: %w", err)
	}
	c.ID = id
	return nil
}

func (r *CommissionRepository) SumByStatus(ctx context.Context, referrerID int64, status models.CommissionStatus) (float64, error) {
	const query = `SELECT COALESCE(SUM(total_amount), 0) FROM commissions WHERE referrer_id = ? AND status = ?`
	var sum float64
	if err := r.db.QueryRowContext(ctx, query, referrerID, status).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum commissions: %w", err)
	}
	return sum, nil
}

// Payout marks every pending commission of the referrer as paid and moves the
// amount into total_paid. minAmount is checked under the row locks, so two
// concurrent payouts cannot both pass the gate.
func (r *CommissionRepository) Payout(ctx context.Context, referrerID int64, minAmount float64, at time.Time) (float64, int, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const lock = `
SELECT COUNT(*), COALESCE(SUM(total_amount), 0) FROM commissions
WHERE referrer_id = ? AND status = ? FOR UPDATE`
	var (
		count int
		total float64
	)
	if err := tx.QueryRowContext(ctx, lock, referrerID, models.CommissionStatusPending).Scan(&count, &total); err != nil {
		return 0, 0, fmt.Errorf("lock pending commissions: %w", err)
	}
	if count == 0 || total < minAmount {
		return total, 0, nil
	}

	const markPaid = `
UPDATE commissions SET status = ?, paid_at = ?
WHERE referrer_id = ? AND status = ?`
	if _, err := tx.ExecContext(ctx, markPaid, models.CommissionStatusPaid, at, referrerID, models.CommissionStatusPending); err != nil {
		return 0, 0, fmt.Errorf("mark commissions paid: %w", err)
	}

	const addPaid = `UPDATE users SET total_paid = total_paid + ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, addPaid, total, referrerID); err != nil {
		return 0, 0, fmt.Errorf("add total paid: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit payout tx: %w", err)
	}
	return total, count, nil
}

// Reconcile rebuilds total_earned from the ledger and returns the new value.
func (r *CommissionRepository) Reconcile(ctx context.Context, referrerID int64) (float64, error) {
	const query = `
UPDATE users SET total_earned = (
    SELECT COALESCE(SUM(total_amount), 0) FROM commissions WHERE referrer_id = ?
) WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, referrerID, referrerID); err != nil {
		return 0, fmt.Errorf("reconcile total earned: %w", err)
	}
	var earned float64
	if err := r.db.QueryRowContext(ctx, `SELECT total_earned FROM users WHERE id = ?`, referrerID).Scan(&earned); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, sql.ErrNoRows
		}
		return 0, fmt.Errorf("read total earned: %w", err)
	}
	return earned, nil
}

func (r *CommissionRepository) ListByReferrer(ctx context.Context, referrerID int64, limit int) ([]models.Commission, error) {
	query := `SELECT ` + commissionColumns + ` FROM commissions WHERE referrer_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, referrerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list commissions: %w", err)
	}
	defer rows.Close()

	var out []models.Commission
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan commission: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
