package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/payraan/narmoonai-test-sub000/internal/models"
	"github.com/payraan/narmoonai-test-sub000/internal/repository"
)

const (
	ProviderTelegram = "telegram"
	ProviderManual   = "manual"
)

type PurchaseInput struct {
	UserID        int64
	PlanName      string
	DurationDays  int
	Provider      string
	TransactionID string
	Amount        float64
	Currency      string
	Payload       string
}

// PurchaseResult reports what ConfirmPurchase did. Plan is nil when the
// payment had already been applied; Commission is nil for users without a
// referrer.
type PurchaseResult struct {
	Plan             *PlanResult   `json:"plan,omitempty"`
	Commission       *CreditResult `json:"commission,omitempty"`
	AlreadyProcessed bool          `json:"already_processed"`
}

// PaymentService turns a confirmed payment into a plan activation and, for
// referred users, a commission.
type PaymentService struct {
	payments      PaymentStore
	referrals     ReferralStore
	subscriptions *SubscriptionService
	commissions   *CommissionService
	logger        *slog.Logger
}

func NewPaymentService(payments PaymentStore, referrals ReferralStore, subscriptions *SubscriptionService, commissions *CommissionService, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		payments:      payments,
		referrals:     referrals,
		subscriptions: subscriptions,
		commissions:   commissions,
		logger:        logger,
	}
}

// ConfirmPurchase is safe to retry with the same provider and transaction
// id. The plan is activated once; the commission step is idempotent on its
// own, so a retry after a failed credit completes the purchase.
func (s *PaymentService) ConfirmPurchase(ctx context.Context, in PurchaseInput) (*PurchaseResult, error) {
	in.TransactionID = strings.TrimSpace(in.TransactionID)
	if in.TransactionID == "" {
		return nil, ErrMissingTransaction
	}
	if in.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if in.Provider == "" {
		in.Provider = ProviderManual
	}
	in.PlanName = NormalizePlanName(in.PlanName)

	payment, err := s.payments.GetByTransaction(ctx, in.Provider, in.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if payment == nil {
		payment = &models.Payment{
			UserID:        in.UserID,
			PlanName:      in.PlanName,
			Provider:      in.Provider,
			TransactionID: in.TransactionID,
			Currency:      in.Currency,
			Amount:        round2(in.Amount),
			Status:        models.PaymentStatusPending,
			RawPayload:    in.Payload,
		}
		err := s.payments.Create(ctx, payment)
		if errors.Is(err, repository.ErrDuplicate) {
			payment, err = s.payments.GetByTransaction(ctx, in.Provider, in.TransactionID)
			if err == nil && payment == nil {
				err = fmt.Errorf("payment %s/%s vanished after duplicate insert", in.Provider, in.TransactionID)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("record payment: %w", err)
		}
	}
	if payment.UserID != in.UserID || payment.PlanName != in.PlanName {
		return nil, ErrTransactionConflict
	}

	result := &PurchaseResult{AlreadyProcessed: payment.Status == models.PaymentStatusPaid}
	if !result.AlreadyProcessed {
		plan, err := s.subscriptions.ActivatePlan(ctx, in.UserID, in.PlanName, in.DurationDays)
		if err != nil {
			return nil, fmt.Errorf("activate plan: %w", err)
		}
		// Not atomic with the activation. If this fails the payment stays
		// pending and a retry activates again, restarting the period from
		// the retry time. The plan end never moves backwards.
		if err := s.payments.UpdateStatus(ctx, payment.ID, models.PaymentStatusPaid); err != nil {
			return nil, fmt.Errorf("mark payment paid: %w", err)
		}
		result.Plan = plan
	}

	ref, err := s.referrals.GetByReferred(ctx, in.UserID)
	if err != nil {
		return result, fmt.Errorf("get referral: %w", err)
	}
	if ref != nil {
		credit, err := s.commissions.CreditCommission(ctx, CreditInput{
			TransactionID: commissionTransactionID(in.Provider, in.TransactionID),
			ReferrerID:    ref.ReferrerID,
			ReferredID:    in.UserID,
			PlanType:      in.PlanName,
			PaidAmount:    payment.Amount,
		})
		if err != nil {
			s.logger.Error("commission credit failed", "transaction_id", in.TransactionID, "user_id", in.UserID, "err", err)
			return result, fmt.Errorf("credit commission: %w", err)
		}
		result.Commission = credit
	}

	s.logger.Info("purchase confirmed",
		"user_id", in.UserID,
		"plan", in.PlanName,
		"provider", in.Provider,
		"transaction_id", in.TransactionID,
		"already_processed", result.AlreadyProcessed,
	)
	return result, nil
}

// commissionTransactionID scopes a provider's transaction id so that two
// providers reusing the same id never share a commission row.
func commissionTransactionID(provider, transactionID string) string {
	return provider + ":" + transactionID
}
