package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/payraan/narmoonai-test-sub000/internal/models"
)

type ReferralRepository struct {
	db *sql.DB
}

func NewReferralRepository(db *sql.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

const referralColumns = `id, referrer_id, referred_id, status, created_at, completed_at`

func scanReferral(row scanner) (*models.Referral, error) {
	var (
		ref         models.Referral
		completedAt sql.NullTime
	)
	if err := row.Scan(&ref.ID, &ref.ReferrerID, &ref.ReferredID, &ref.Status, &ref.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		ref.CompletedAt = &completedAt.Time
	}
	return &ref, nil
}

// Create inserts the attribution. The unique key on referred_id is what
// decides concurrent attempts; the loser gets ErrDuplicate.
func (r *ReferralRepository) Create(ctx context.Context, ref *models.Referral) error {
	const query = `
INSERT INTO referrals (referrer_id, referred_id, status, created_at)
VALUES (?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, ref.ReferrerID, ref.ReferredID, ref.Status, ref.CreatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert referral: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("referral last insert id: %w", err)
	}
	ref.ID = id
	return nil
}

func (r *ReferralRepository) GetByReferred(ctx context.Context, referredID int64) (*models.Referral, error) {
	query := `SELECT ` + referralColumns + ` FROM referrals WHERE referred_id = ?`
	ref, err := scanReferral(r.db.QueryRowContext(ctx, query, referredID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get referral: %w", err)
	}
	return ref, nil
}

func (r *ReferralRepository) CountByStatus(ctx context.Context, referrerID int64, status models.ReferralStatus) (int, error) {
	const query = `SELECT COUNT(*) FROM referrals WHERE referrer_id = ? AND status = ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, referrerID, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("count referrals: %w", err)
	}
	return count, nil
}

func (r *ReferralRepository) ListByReferrer(ctx context.Context, referrerID int64) ([]models.Referral, error) {
	query := `SELECT ` + referralColumns + ` FROM referrals WHERE referrer_id = ? ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, query, referrerID)
	if err != nil {
		return nil, fmt.Errorf("list referrals: %w", err)
	}
	defer rows.Close()

	var refs []models.Referral
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, fmt.Errorf("scan referral: %w", err)
		}
		refs = append(refs, *ref)
	}
	return refs, rows.Err()
}
