package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/payraan/narmoonai-test-sub000/internal/models"
)

const topReferrersLimit = 10

// ReportArchive stores an exported report and returns its URL.
type ReportArchive interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

type Summary struct {
	GeneratedAt        time.Time             `json:"generated_at"`
	UsersByPlan        map[string]int        `json:"users_by_plan"`
	ActivePlans        int                   `json:"active_plans"`
	PendingCommissions float64               `json:"pending_commissions"`
	PaidCommissions    float64               `json:"paid_commissions"`
	TopReferrers       []models.ReferrerStat `json:"top_referrers"`
}

// ReportService reads ledger aggregates; it has no write path into the ledgers.
type ReportService struct {
	reports ReportStore
	archive ReportArchive
	logger  *slog.Logger
	now     func() time.Time
}

// NewReportService builds the reporter; archive may be nil, which disables Export.
func NewReportService(reports ReportStore, archive ReportArchive, logger *slog.Logger) *ReportService {
	return &ReportService{reports: reports, archive: archive, logger: logger, now: time.Now}
}

func (s *ReportService) Summary(ctx context.Context) (*Summary, error) {
	now := s.now().UTC()
	byPlan, err := s.reports.UsersByPlan(ctx)
	if err != nil {
		return nil, err
	}
	active, err := s.reports.ActivePlans(ctx, now)
	if err != nil {
		return nil, err
	}
	pending, paid, err := s.reports.CommissionTotals(ctx)
	if err != nil {
		return nil, err
	}
	top, err := s.reports.TopReferrers(ctx, topReferrersLimit)
	if err != nil {
		return nil, err
	}
	return &Summary{
		GeneratedAt:        now,
		UsersByPlan:        byPlan,
		ActivePlans:        active,
		PendingCommissions: round2(pending),
		PaidCommissions:    round2(paid),
		TopReferrers:       top,
	}, nil
}

// Export uploads the current summary as JSON and returns its URL.
func (s *ReportService) Export(ctx context.Context) (string, error) {
	if s.archive == nil {
		return "", ErrStorageDisabled
	}
	summary, err := s.Summary(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	url, err := s.archive.Upload(ctx, data, "application/json")
	if err != nil {
		return "", fmt.Errorf("upload summary: %w", err)
	}
	s.logger.Info("report exported", "url", url)
	return url, nil
}
