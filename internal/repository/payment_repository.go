package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/payraan/narmoonai-test-sub000/internal/models"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	const query = `
INSERT INTO payments (user_id, plan_name, provider, transaction_id, currency, amount, status, raw_payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, payment.UserID, payment.PlanName, payment.Provider, payment.TransactionID,
		payment.Currency, payment.Amount, payment.Status, payment.RawPayload)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	payment.ID = id
	return nil
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, paymentID int64, status models.PaymentStatus) error {
	const query = `UPDATE payments SET status = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, status, paymentID); err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByTransaction(ctx context.Context, provider, transactionID string) (*models.Payment, error) {
	const query = `
SELECT id, user_id, plan_name, provider, transaction_id, currency, amount, status, COALESCE(raw_payload, ''), created_at, updated_at
FROM payments WHERE provider = ? AND transaction_id = ?`
	var p models.Payment
	err := r.db.QueryRowContext(ctx, query, provider, transactionID).Scan(&p.ID, &p.UserID, &p.PlanName, &p.Provider,
		&p.TransactionID, &p.Currency, &p.Amount, &p.Status, &p.RawPayload, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return &p, nil
}
