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

// PlanCache is an optional read-through cache for active catalog entries.
// Get returns nil, nil on a miss.
type PlanCache interface {
	Get(ctx context.Context, name string) (*models.PlanDefinition, error)
	Set(ctx context.Context, plan *models.PlanDefinition) error
	Delete(ctx context.Context, name string) error
}

// PlanService is the plan catalog. Edits never touch limits already
// snapshotted onto users.
type PlanService struct {
	plans  PlanStore
	cache  PlanCache
	logger *slog.Logger
}

type CreatePlanInput struct {
	PlanName     string
	DisplayName  string
	Price        float64
	MonthlyLimit int
	HourlyLimit  int
	VIPAccess    bool
	IsActive     *bool
}

type UpdatePlanInput struct {
	DisplayName  *string
	Price        *float64
	MonthlyLimit *int
	HourlyLimit  *int
	VIPAccess    *bool
	IsActive     *bool
}

// NewPlanService builds the catalog; cache may be nil.
func NewPlanService(plans PlanStore, cache PlanCache, logger *slog.Logger) *PlanService {
	return &PlanService{plans: plans, cache: cache, logger: logger}
}

// DefaultCatalog is the catalog installed on an empty database.
func DefaultCatalog() []models.PlanDefinition {
	return []models.PlanDefinition{
		{PlanName: "TNT_MINI", DisplayName: "TNT Mini", Price: 10, MonthlyLimit: 60, HourlyLimit: 2, IsActive: true},
		{PlanName: "TNT_PLUS", DisplayName: "TNT Plus", Price: 18, MonthlyLimit: 150, HourlyLimit: 4, IsActive: true},
		{PlanName: "TNT_MAX", DisplayName: "TNT Max", Price: 39, MonthlyLimit: 400, HourlyLimit: 8, VIPAccess: true, IsActive: true},
	}
}

func (s *PlanService) EnsureDefaultCatalog(ctx context.Context) error {
	plans, err := s.plans.List(ctx)
	if err != nil {
		return err
	}
	if len(plans) > 0 {
		return nil
	}
	for _, plan := range DefaultCatalog() {
		if _, err := s.plans.Create(ctx, &plan); err != nil && !errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("create default plan %s: %w", plan.PlanName, err)
		}
	}
	s.logger.Info("default plan catalog installed")
	return nil
}

func (s *PlanService) List(ctx context.Context) ([]models.PlanDefinition, error) {
	return s.plans.List(ctx)
}

func (s *PlanService) ListActive(ctx context.Context) ([]models.PlanDefinition, error) {
	plans, err := s.plans.List(ctx)
	if err != nil {
		return nil, err
	}
	active := plans[:0]
	for _, plan := range plans {
		if plan.IsActive {
			active = append(active, plan)
		}
	}
	return active, nil
}

// Get resolves an active plan by name, case-insensitively.
func (s *PlanService) Get(ctx context.Context, name string) (*models.PlanDefinition, error) {
	name = NormalizePlanName(name)
	if name == "" {
		return nil, ErrPlanNotFound
	}
	if s.cache != nil {
		plan, err := s.cache.Get(ctx, name)
		if err != nil {
			s.logger.Warn("plan cache get failed", "plan", name, "err", err)
		} else if plan != nil {
			return plan, nil
		}
	}

	plan, err := s.plans.GetByName(ctx, name)
	if err != nil {
		return nil, unavailable("get_plan", err)
	}
	if plan == nil || !plan.IsActive {
		return nil, ErrPlanNotFound
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, plan); err != nil {
			s.logger.Warn("plan cache set failed", "plan", name, "err", err)
		}
	}
	return plan, nil
}

func (s *PlanService) Create(ctx context.Context, input CreatePlanInput) (*models.PlanDefinition, error) {
	name := NormalizePlanName(input.PlanName)
	if name == "" || name == models.PlanFree {
		return nil, fmt.Errorf("%w: name is required and cannot be %s", ErrInvalidPlan, models.PlanFree)
	}
	if input.Price <= 0 {
		return nil, ErrInvalidAmount
	}
	if input.MonthlyLimit <= 0 || input.HourlyLimit <= 0 {
		return nil, fmt.Errorf("%w: limits must be positive", ErrInvalidPlan)
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = name
	}
	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}
	plan, err := s.plans.Create(ctx, &models.PlanDefinition{
		PlanName:     name,
		DisplayName:  displayName,
		Price:        round2(input.Price),
		MonthlyLimit: input.MonthlyLimit,
		HourlyLimit:  input.HourlyLimit,
		VIPAccess:    input.VIPAccess,
		IsActive:     isActive,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, ErrPlanExists
	}
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, name)
	return plan, nil
}

func (s *PlanService) Update(ctx context.Context, name string, input UpdatePlanInput) (*models.PlanDefinition, error) {
	name = NormalizePlanName(name)
	existing, err := s.plans.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrPlanNotFound
	}
	if input.DisplayName != nil && strings.TrimSpace(*input.DisplayName) != "" {
		existing.DisplayName = strings.TrimSpace(*input.DisplayName)
	}
	if input.Price != nil && *input.Price > 0 {
		existing.Price = round2(*input.Price)
	}
	if input.MonthlyLimit != nil && *input.MonthlyLimit > 0 {
		existing.MonthlyLimit = *input.MonthlyLimit
	}
	if input.HourlyLimit != nil && *input.HourlyLimit > 0 {
		existing.HourlyLimit = *input.HourlyLimit
	}
	if input.VIPAccess != nil {
		existing.VIPAccess = *input.VIPAccess
	}
	if input.IsActive != nil {
		existing.IsActive = *input.IsActive
	}
	plan, err := s.plans.Update(ctx, existing)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, name)
	return plan, nil
}

func (s *PlanService) invalidate(ctx context.Context, name string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, name); err != nil {
		s.logger.Warn("plan cache delete failed", "plan", name, "err", err)
	}
}

func NormalizePlanName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
