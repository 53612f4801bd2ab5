package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/payraan/narmoonai-test-sub000/internal/metrics"
	"github.com/payraan/narmoonai-test-sub000/internal/models"
)

// PlanResult is returned by ActivatePlan. A nil EndDate is a permanent grant.
type PlanResult struct {
	PlanName     string     `json:"plan_name"`
	EndDate      *time.Time `json:"end_date"`
	MonthlyLimit int        `json:"monthly_limit"`
	HourlyLimit  int        `json:"hourly_limit"`
}

type PlanStatus struct {
	State        models.PlanState `json:"state"`
	PlanType     string           `json:"plan_type"`
	PlanStart    *time.Time       `json:"plan_start,omitempty"`
	PlanEnd      *time.Time       `json:"plan_end,omitempty"`
	MonthlyLimit int              `json:"monthly_limit"`
	HourlyLimit  int              `json:"hourly_limit"`
	VIPAccess    bool             `json:"vip_access"`
}

// SubscriptionService owns the plan fields of users. Expiry is derived on
// read; nothing sweeps expired plans.
type SubscriptionService struct {
	users  UserStore
	plans  *PlanService
	logger *slog.Logger
	now    func() time.Time
}

func NewSubscriptionService(users UserStore, plans *PlanService, logger *slog.Logger) *SubscriptionService {
	return &SubscriptionService{users: users, plans: plans, logger: logger, now: time.Now}
}

// ActivatePlan assigns planName to the user and snapshots the catalog limits.
// durationDays of zero grants the plan permanently. Activating while a plan
// is still running restarts the period from now; remaining time is not
// carried over.
func (s *SubscriptionService) ActivatePlan(ctx context.Context, userID int64, planName string, durationDays int) (*PlanResult, error) {
	if durationDays < 0 {
		return nil, ErrInvalidDuration
	}
	plan, err := s.plans.Get(ctx, planName)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, unavailable("get_user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	start := s.now().UTC().Truncate(time.Second)
	var end *time.Time
	if durationDays > 0 {
		e := start.AddDate(0, 0, durationDays)
		end = &e
	}
	assignment := models.PlanAssignment{
		PlanType:     plan.PlanName,
		PlanStart:    &start,
		PlanEnd:      end,
		MonthlyLimit: plan.MonthlyLimit,
		HourlyLimit:  plan.HourlyLimit,
	}
	if err := s.users.AssignPlan(ctx, userID, assignment); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, unavailable("assign_plan", err)
	}

	metrics.PlanActivations.WithLabelValues(plan.PlanName).Inc()
	s.logger.Info("plan activated",
		"user_id", userID,
		"plan", plan.PlanName,
		"previous_plan", user.PlanType,
		"renewal", user.IsPlanActive(start),
		"plan_end", end,
	)
	return &PlanResult{
		PlanName:     plan.PlanName,
		EndDate:      end,
		MonthlyLimit: plan.MonthlyLimit,
		HourlyLimit:  plan.HourlyLimit,
	}, nil
}

// RevokePlan returns the user to FREE.
func (s *SubscriptionService) RevokePlan(ctx context.Context, userID int64) error {
	err := s.users.AssignPlan(ctx, userID, models.PlanAssignment{PlanType: models.PlanFree})
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("revoke plan: %w", err)
	}
	s.logger.Info("plan revoked", "user_id", userID)
	return nil
}

func (s *SubscriptionService) Status(ctx context.Context, userID int64) (*PlanStatus, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	status := &PlanStatus{
		State:        user.PlanState(s.now()),
		PlanType:     user.PlanType,
		PlanStart:    user.PlanStart,
		PlanEnd:      user.PlanEnd,
		MonthlyLimit: user.MonthlyLimit,
		HourlyLimit:  user.HourlyLimit,
	}
	if status.State == models.PlanStateActive {
		plan, err := s.plans.Get(ctx, user.PlanType)
		switch {
		case err == nil:
			status.VIPAccess = plan.VIPAccess
		case !errors.Is(err, ErrPlanNotFound):
			return nil, err
		}
	}
	return status, nil
}
