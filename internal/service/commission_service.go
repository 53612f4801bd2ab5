package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/payraan/narmoonai-test-sub000/internal/metrics"
	"github.com/payraan/narmoonai-test-sub000/internal/models"
	"github.com/payraan/narmoonai-test-sub000/internal/repository"
)

type CreditInput struct {
	TransactionID string
	ReferrerID    int64
	ReferredID    int64
	PlanType      string
	PaidAmount    float64
}

// CreditResult carries the commission row. AlreadyCredited is set when the
// transaction had been credited before and nothing changed.
type CreditResult struct {
	Commission      *models.Commission `json:"commission"`
	AlreadyCredited bool               `json:"already_credited"`
}

type PayoutResult struct {
	ReferrerID  int64   `json:"referrer_id"`
	Amount      float64 `json:"amount"`
	Commissions int     `json:"commissions"`
}

// CommissionService credits referral commissions exactly once per
// transaction and runs the administrative payout.
type CommissionService struct {
	users       UserStore
	referrals   ReferralStore
	commissions CommissionStore
	settings    SettingsStore
	bonus       BonusPolicy
	logger      *slog.Logger
	now         func() time.Time
}

// NewCommissionService wires the calculator. A nil bonus policy selects
// TieredBonusPolicy.
func NewCommissionService(users UserStore, referrals ReferralStore, commissions CommissionStore, settings SettingsStore, bonus BonusPolicy, logger *slog.Logger) *CommissionService {
	if bonus == nil {
		bonus = TieredBonusPolicy{}
	}
	return &CommissionService{
		users:       users,
		referrals:   referrals,
		commissions: commissions,
		settings:    settings,
		bonus:       bonus,
		logger:      logger,
		now:         time.Now,
	}
}

// CreditCommission records the commission for one completed transaction and
// adds it to the referrer's total_earned atomically. Repeating the call with
// the same transaction id returns the existing row with AlreadyCredited set.
func (s *CommissionService) CreditCommission(ctx context.Context, in CreditInput) (*CreditResult, error) {
	in.TransactionID = strings.TrimSpace(in.TransactionID)
	if in.TransactionID == "" {
		return nil, ErrMissingTransaction
	}
	if in.PaidAmount <= 0 {
		return nil, ErrInvalidAmount
	}

	existing, err := s.commissions.GetByTransaction(ctx, in.TransactionID)
	if err != nil {
		return nil, unavailable("get_commission", err)
	}
	if existing != nil {
		return s.alreadyCredited(in, existing)
	}

	ref, err := s.referrals.GetByReferred(ctx, in.ReferredID)
	if err != nil {
		return nil, unavailable("get_referral", err)
	}
	if ref == nil || ref.ReferrerID != in.ReferrerID {
		return nil, ErrReferralMismatch
	}
	referrer, err := s.users.GetByID(ctx, in.ReferrerID)
	if err != nil {
		return nil, unavailable("get_referrer", err)
	}
	if referrer == nil {
		return nil, ErrUserNotFound
	}
	settings, err := s.settings.All(ctx)
	if err != nil {
		return nil, unavailable("load_settings", err)
	}

	rate, err := effectiveRate(referrer, settings)
	if err != nil {
		return nil, err
	}
	commissionAmount := round2(in.PaidAmount * rate / 100)

	successful, err := s.referrals.CountByStatus(ctx, in.ReferrerID, models.ReferralStatusCompleted)
	if err != nil {
		return nil, unavailable("count_referrals", err)
	}
	if ref.Status == models.ReferralStatusPending {
		successful++
	}
	bonusAmount := round2(s.bonus.Bonus(BonusInput{
		CommissionAmount:    commissionAmount,
		SuccessfulReferrals: successful,
		TotalEarned:         referrer.TotalEarned,
		Settings:            settings,
	}))

	c := &models.Commission{
		ReferrerID:       in.ReferrerID,
		ReferredID:       in.ReferredID,
		TransactionID:    in.TransactionID,
		PlanType:         in.PlanType,
		CommissionAmount: commissionAmount,
		BonusAmount:      bonusAmount,
		TotalAmount:      round2(commissionAmount + bonusAmount),
		Status:           models.CommissionStatusPending,
		CreatedAt:        s.now().UTC(),
	}
	if err := s.commissions.Credit(ctx, c); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			metrics.Commissions.WithLabelValues("error").Inc()
			return nil, unavailable("credit_commission", err)
		}
		// Lost the race to a concurrent credit of the same transaction.
		existing, err := s.commissions.GetByTransaction(ctx, in.TransactionID)
		if err != nil {
			return nil, unavailable("get_commission", err)
		}
		if existing == nil {
			return nil, fmt.Errorf("commission %s vanished after duplicate insert", in.TransactionID)
		}
		return s.alreadyCredited(in, existing)
	}

	metrics.Commissions.WithLabelValues("credited").Inc()
	metrics.CommissionAmount.Add(c.TotalAmount)
	s.logger.Info("commission credited",
		"transaction_id", c.TransactionID,
		"referrer_id", c.ReferrerID,
		"referred_id", c.ReferredID,
		"rate", rate,
		"commission", c.CommissionAmount,
		"bonus", c.BonusAmount,
	)
	return &CreditResult{Commission: c}, nil
}

// alreadyCredited answers a replay. A stored row for a different pair means
// the transaction id was reused and nothing is credited.
func (s *CommissionService) alreadyCredited(in CreditInput, c *models.Commission) (*CreditResult, error) {
	if c.ReferrerID != in.ReferrerID || c.ReferredID != in.ReferredID {
		metrics.Commissions.WithLabelValues("conflict").Inc()
		s.logger.Warn("commission transaction reused",
			"transaction_id", c.TransactionID,
			"stored_referrer_id", c.ReferrerID,
			"referrer_id", in.ReferrerID,
		)
		return nil, ErrTransactionConflict
	}
	metrics.Commissions.WithLabelValues("already_credited").Inc()
	s.logger.Info("commission already credited", "transaction_id", c.TransactionID, "referrer_id", c.ReferrerID)
	return &CreditResult{Commission: c, AlreadyCredited: true}, nil
}

func effectiveRate(referrer *models.User, settings map[string]string) (float64, error) {
	if referrer.CustomCommissionRate != nil {
		return *referrer.CustomCommissionRate, nil
	}
	raw, ok := settings[models.SettingDefaultCommissionRate]
	if !ok {
		return 0, fmt.Errorf("%w: %s is not set", ErrInvalidSetting, models.SettingDefaultCommissionRate)
	}
	rate, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidSetting, models.SettingDefaultCommissionRate, raw)
	}
	return rate, nil
}

// Payout marks all pending commissions of the referrer as paid when their
// sum reaches min_withdrawal_amount.
func (s *CommissionService) Payout(ctx context.Context, referrerID int64) (*PayoutResult, error) {
	user, err := s.users.GetByID(ctx, referrerID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	settings, err := s.settings.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load referral settings: %w", err)
	}
	minAmount := 0.0
	if raw, ok := settings[models.SettingMinWithdrawalAmount]; ok {
		minAmount, err = strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidSetting, models.SettingMinWithdrawalAmount, raw)
		}
	}

	total, count, err := s.commissions.Payout(ctx, referrerID, minAmount, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("payout: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: pending %.2f, minimum %.2f", ErrBelowMinimumWithdrawal, total, minAmount)
	}
	s.logger.Info("commissions paid out", "referrer_id", referrerID, "amount", total, "commissions", count)
	return &PayoutResult{ReferrerID: referrerID, Amount: round2(total), Commissions: count}, nil
}

// Reconcile rebuilds total_earned from the commission ledger.
func (s *CommissionService) Reconcile(ctx context.Context, referrerID int64) (float64, error) {
	earned, err := s.commissions.Reconcile(ctx, referrerID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	s.logger.Info("total earned reconciled", "referrer_id", referrerID, "total_earned", earned)
	return earned, nil
}

// SetCustomRate overrides the default rate for one referrer; nil clears it.
func (s *CommissionService) SetCustomRate(ctx context.Context, userID int64, rate *float64) error {
	if rate != nil && (*rate < 0 || *rate > 100) {
		return ErrInvalidRate
	}
	err := s.users.SetCustomCommissionRate(ctx, userID, rate)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	return err
}

func (s *CommissionService) History(ctx context.Context, referrerID int64, limit int) ([]models.Commission, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.commissions.ListByReferrer(ctx, referrerID, limit)
}
