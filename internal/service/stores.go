package service

import (
	"context"
	"time"

	"github.com/payraan/narmoonai-test-sub000/internal/models"
)

// The interfaces below are satisfied by the MySQL repositories in
// internal/repository. Lookups return nil, nil when the row is missing and
// inserts return repository.ErrDuplicate when a unique key rejects the row.

type UserStore interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	Ensure(ctx context.Context, id int64, username, firstName string) (*models.User, bool, error)
	AssignPlan(ctx context.Context, id int64, a models.PlanAssignment) error
	SetReferralCode(ctx context.Context, id int64, code string) error
	SetCustomCommissionRate(ctx context.Context, id int64, rate *float64) error
	ListIDs(ctx context.Context) ([]int64, error)
}

type PlanStore interface {
	List(ctx context.Context) ([]models.PlanDefinition, error)
	GetByName(ctx context.Context, name string) (*models.PlanDefinition, error)
	Create(ctx context.Context, plan *models.PlanDefinition) (*models.PlanDefinition, error)
	Update(ctx context.Context, plan *models.PlanDefinition) (*models.PlanDefinition, error)
}

type UsageStore interface {
	Increment(ctx context.Context, userID int64, day time.Time, hour int) error
	HourCount(ctx context.Context, userID int64, day time.Time, hour int) (int, error)
	SumBetween(ctx context.Context, userID int64, from, to time.Time) (int, error)
}

type ReferralStore interface {
	Create(ctx context.Context, ref *models.Referral) error
	GetByReferred(ctx context.Context, referredID int64) (*models.Referral, error)
	CountByStatus(ctx context.Context, referrerID int64, status models.ReferralStatus) (int, error)
	ListByReferrer(ctx context.Context, referrerID int64) ([]models.Referral, error)
}

type CommissionStore interface {
	GetByTransaction(ctx context.Context, transactionID string) (*models.Commission, error)
	Credit(ctx context.Context, c *models.Commission) error
	SumByStatus(ctx context.Context, referrerID int64, status models.CommissionStatus) (float64, error)
	Payout(ctx context.Context, referrerID int64, minAmount float64, at time.Time) (float64, int, error)
	Reconcile(ctx context.Context, referrerID int64) (float64, error)
	ListByReferrer(ctx context.Context, referrerID int64, limit int) ([]models.Commission, error)
}

type SettingsStore interface {
	All(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
}

type PaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	UpdateStatus(ctx context.Context, paymentID int64, status models.PaymentStatus) error
	GetByTransaction(ctx context.Context, provider, transactionID string) (*models.Payment, error)
}

type ReportStore interface {
	UsersByPlan(ctx context.Context) (map[string]int, error)
	ActivePlans(ctx context.Context, now time.Time) (int, error)
	CommissionTotals(ctx context.Context) (pending, paid float64, err error)
	TopReferrers(ctx context.Context, limit int) ([]models.ReferrerStat, error)
}
