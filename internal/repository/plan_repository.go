package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/payraan/narmoonai-test-sub000/internal/models"
)

type PlanRepository struct {
	db *sql.DB
}

func NewPlanRepository(db *sql.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `id, plan_name, display_name, price, monthly_limit, hourly_limit, vip_access, is_active, created_at, updated_at`

func scanPlan(row scanner) (*models.PlanDefinition, error) {
	var plan models.PlanDefinition
	if err := row.Scan(&plan.ID, &plan.PlanName, &plan.DisplayName, &plan.Price, &plan.MonthlyLimit, &plan.HourlyLimit,
		&plan.VIPAccess, &plan.IsActive, &plan.CreatedAt, &plan.UpdatedAt); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *PlanRepository) List(ctx context.Context) ([]models.PlanDefinition, error) {
	query := `SELECT ` + planColumns + ` FROM plan_definitions ORDER BY price ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []models.PlanDefinition
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, *plan)
	}
	return plans, rows.Err()
}

func (r *PlanRepository) GetByName(ctx context.Context, name string) (*models.PlanDefinition, error) {
	query := `SELECT ` + planColumns + ` FROM plan_definitions WHERE plan_name = ?`
	plan, err := scanPlan(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return plan, nil
}

func (r *PlanRepository) Create(ctx context.Context, plan *models.PlanDefinition) (*models.PlanDefinition, error) {
	const query = `
INSERT INTO plan_definitions (plan_name, display_name, price, monthly_limit, hourly_limit, vip_access, is_active)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, plan.PlanName, plan.DisplayName, plan.Price, plan.MonthlyLimit, plan.HourlyLimit, plan.VIPAccess, plan.IsActive); err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("create plan: %w", err)
	}
	return r.GetByName(ctx, plan.PlanName)
}

func (r *PlanRepository) Update(ctx context.Context, plan *models.PlanDefinition) (*models.PlanDefinition, error) {
	const query = `
UPDATE plan_definitions
SET display_name = ?, price = ?, monthly_limit = ?, hourly_limit = ?, vip_access = ?, is_active = ?
WHERE plan_name = ?`
	if _, err := r.db.ExecContext(ctx, query, plan.DisplayName, plan.Price, plan.MonthlyLimit, plan.HourlyLimit, plan.VIPAccess, plan.IsActive, plan.PlanName); err != nil {
		return nil, fmt.Errorf("update plan: %w", err)
	}
	return r.GetByName(ctx, plan.PlanName)
}
