package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/payraan/narmoonai-test-sub000/internal/metrics"
	"github.com/payraan/narmoonai-test-sub000/internal/models"
	"github.com/payraan/narmoonai-test-sub000/internal/repository"
)

type DenyReason string

const (
	ReasonPlanRequired        DenyReason = "plan_required"
	ReasonPlanExpired         DenyReason = "plan_expired"
	ReasonMonthlyLimitReached DenyReason = "monthly_limit_reached"
	ReasonHourlyLimitReached  DenyReason = "hourly_limit_reached"
)

// Decision is the outcome of a quota check. Used and Limit describe the
// ceiling that was hit on a limit denial.
type Decision struct {
	Allowed          bool       `json:"allowed"`
	Reason           DenyReason `json:"reason,omitempty"`
	Used             int        `json:"used,omitempty"`
	Limit            int        `json:"limit,omitempty"`
	RemainingMonthly int        `json:"remaining_monthly"`
	RemainingHourly  int        `json:"remaining_hourly"`
	PlanType         string     `json:"plan_type"`
	PlanEnd          *time.Time `json:"plan_end,omitempty"`
}

// Err returns the sentinel for a denial and nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonPlanExpired:
		return ErrPlanExpired
	case ReasonMonthlyLimitReached:
		return ErrMonthlyLimitReached
	case ReasonHourlyLimitReached:
		return ErrHourlyLimitReached
	default:
		return ErrPlanRequired
	}
}

// UsageSnapshot is the consumption in the current windows, for display.
type UsageSnapshot struct {
	MonthlyUsed  int `json:"monthly_used"`
	MonthlyLimit int `json:"monthly_limit"`
	HourlyUsed   int `json:"hourly_used"`
	HourlyLimit  int `json:"hourly_limit"`
}

// QuotaService evaluates quota and records usage. Windows are calendar
// hour and calendar month in loc.
type QuotaService struct {
	users  UserStore
	usage  UsageStore
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

func NewQuotaService(users UserStore, usage UsageStore, loc *time.Location, logger *slog.Logger) *QuotaService {
	if loc == nil {
		loc = time.UTC
	}
	return &QuotaService{
		users:  users,
		usage:  usage,
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}
}

// CheckQuota decides whether the user may consume one unit now. It has no
// side effects. A store failure returns an error matching ErrUnavailable and
// never a denial.
func (s *QuotaService) CheckQuota(ctx context.Context, userID int64) (Decision, error) {
	now := s.now()
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return Decision{}, unavailable("get_user", err)
	}
	if user == nil {
		return s.deny(userID, Decision{Reason: ReasonPlanRequired, PlanType: models.PlanFree}), nil
	}

	d := Decision{PlanType: user.PlanType, PlanEnd: user.PlanEnd}
	switch user.PlanState(now) {
	case models.PlanStateFree:
		d.Reason = ReasonPlanRequired
		return s.deny(userID, d), nil
	case models.PlanStateExpired:
		d.Reason = ReasonPlanExpired
		return s.deny(userID, d), nil
	}

	monthly, hourly, err := s.windowUsage(ctx, userID, now)
	if err != nil {
		return Decision{}, err
	}

	// Monthly first: the longer horizon is the more useful message.
	if monthly >= user.MonthlyLimit {
		d.Reason, d.Used, d.Limit = ReasonMonthlyLimitReached, monthly, user.MonthlyLimit
		return s.deny(userID, d), nil
	}
	if hourly >= user.HourlyLimit {
		d.Reason, d.Used, d.Limit = ReasonHourlyLimitReached, hourly, user.HourlyLimit
		d.RemainingMonthly = user.MonthlyLimit - monthly
		return s.deny(userID, d), nil
	}

	d.Allowed = true
	d.RemainingMonthly = user.MonthlyLimit - monthly
	d.RemainingHourly = user.HourlyLimit - hourly
	metrics.QuotaDecisions.WithLabelValues("allowed").Inc()
	return d, nil
}

// RecordUsage adds one unit to the (user, date, hour) bucket containing at.
// A zero at means now.
func (s *QuotaService) RecordUsage(ctx context.Context, userID int64, at time.Time) error {
	if at.IsZero() {
		at = s.now()
	}
	day, hour := s.bucket(at)
	if err := s.usage.Increment(ctx, userID, day, hour); err != nil {
		if errors.Is(err, repository.ErrUnknownUser) {
			return ErrUserNotFound
		}
		return unavailable("record_usage", err)
	}
	metrics.UsageRecorded.Inc()
	s.logger.Debug("usage recorded", "user_id", userID, "date", day.Format(time.DateOnly), "hour", hour)
	return nil
}

func (s *QuotaService) Usage(ctx context.Context, userID int64) (*UsageSnapshot, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, unavailable("get_user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	monthly, hourly, err := s.windowUsage(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}
	return &UsageSnapshot{
		MonthlyUsed:  monthly,
		MonthlyLimit: user.MonthlyLimit,
		HourlyUsed:   hourly,
		HourlyLimit:  user.HourlyLimit,
	}, nil
}

func (s *QuotaService) windowUsage(ctx context.Context, userID int64, now time.Time) (monthly, hourly int, err error) {
	day, hour := s.bucket(now)
	monthStart := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, s.loc)

	monthly, err = s.usage.SumBetween(ctx, userID, monthStart, monthStart.AddDate(0, 1, 0))
	if err != nil {
		return 0, 0, unavailable("monthly_usage", err)
	}
	hourly, err = s.usage.HourCount(ctx, userID, day, hour)
	if err != nil {
		return 0, 0, unavailable("hourly_usage", err)
	}
	return monthly, hourly, nil
}

func (s *QuotaService) bucket(t time.Time) (time.Time, int) {
	local := t.In(s.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	return day, local.Hour()
}

func (s *QuotaService) deny(userID int64, d Decision) Decision {
	metrics.QuotaDecisions.WithLabelValues(string(d.Reason)).Inc()
	s.logger.Info("quota denied", "user_id", userID, "reason", d.Reason, "used", d.Used, "limit", d.Limit)
	return d
}
