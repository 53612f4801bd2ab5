package service

import (
	"errors"
	"fmt"

	"github.com/payraan/narmoonai-test-sub000/internal/metrics"
)

// Quota denials. CheckQuota reports these through Decision; Decision.Err
// converts them for callers that prefer an error.
var (
	ErrPlanRequired        = errors.New("plan required")
	ErrPlanExpired         = errors.New("plan expired")
	ErrMonthlyLimitReached = errors.New("monthly limit reached")
	ErrHourlyLimitReached  = errors.New("hourly limit reached")
)

// Caller and input errors. Retrying with the same input fails the same way.
var (
	ErrPlanNotFound           = errors.New("plan not found")
	ErrPlanExists             = errors.New("plan already exists")
	ErrInvalidPlan            = errors.New("invalid plan definition")
	ErrInvalidCode            = errors.New("invalid referral code")
	ErrSelfReferral           = errors.New("self referral is not allowed")
	ErrAlreadyReferred        = errors.New("user already referred")
	ErrUserNotFound           = errors.New("user not found")
	ErrInvalidDuration        = errors.New("invalid plan duration")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInvalidRate            = errors.New("commission rate must be between 0 and 100")
	ErrInvalidSetting         = errors.New("invalid setting")
	ErrMissingTransaction     = errors.New("transaction id is required")
	ErrTransactionConflict    = errors.New("transaction belongs to another purchase")
	ErrReferralMismatch       = errors.New("no referral links referrer and referred user")
	ErrBelowMinimumWithdrawal = errors.New("pending amount below minimum withdrawal")
	ErrStorageDisabled        = errors.New("report storage is not configured")
)

// ErrUnavailable marks store failures. It is never folded into a denial.
var ErrUnavailable = errors.New("quota engine unavailable")

func unavailable(op string, err error) error {
	metrics.StoreErrors.WithLabelValues(op).Inc()
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
