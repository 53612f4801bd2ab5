package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/payraan/narmoonai-test-sub000/internal/metrics"
	"github.com/payraan/narmoonai-test-sub000/internal/models"
	"github.com/payraan/narmoonai-test-sub000/internal/repository"
)

const (
	referralCodePrefix   = "ref_"
	referralSuffixLength = 6
	referralCodeAttempts = 5
)

// FormatReferralCode renders ref_<referrer id>_<suffix>.
func FormatReferralCode(userID int64, suffix string) string {
	return referralCodePrefix + strconv.FormatInt(userID, 10) + "_" + suffix
}

// ParseReferralCode extracts the referrer id from a code.
func ParseReferralCode(code string) (int64, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(code), referralCodePrefix)
	if !ok {
		return 0, false
	}
	idPart, suffix, ok := strings.Cut(rest, "_")
	if !ok || suffix == "" || strings.Contains(suffix, "_") {
		return 0, false
	}
	for _, r := range suffix {
		if !('0' <= r && r <= '9' || 'a' <= r && r <= 'z' || 'A' <= r && r <= 'Z') {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:referralSuffixLength]
}

type ReferralStats struct {
	Code          string  `json:"code"`
	Total         int     `json:"total"`
	Pending       int     `json:"pending"`
	Completed     int     `json:"completed"`
	TotalEarned   float64 `json:"total_earned"`
	TotalPaid     float64 `json:"total_paid"`
	PendingPayout float64 `json:"pending_payout"`
}

// ReferralService records who referred whom. Attribution happens once per
// referred user and never changes.
type ReferralService struct {
	users       UserStore
	referrals   ReferralStore
	commissions CommissionStore
	logger      *slog.Logger
	now         func() time.Time
	newSuffix   func() string
}

func NewReferralService(users UserStore, referrals ReferralStore, commissions CommissionStore, logger *slog.Logger) *ReferralService {
	return &ReferralService{
		users:       users,
		referrals:   referrals,
		commissions: commissions,
		logger:      logger,
		now:         time.Now,
		newSuffix:   randomSuffix,
	}
}

// ReferralCode returns the user's code, generating it on first use.
func (s *ReferralService) ReferralCode(ctx context.Context, userID int64) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return "", ErrUserNotFound
	}
	if user.ReferralCode != nil {
		return *user.ReferralCode, nil
	}

	for range referralCodeAttempts {
		code := FormatReferralCode(userID, s.newSuffix())
		err := s.users.SetReferralCode(ctx, userID, code)
		if errors.Is(err, repository.ErrDuplicate) {
			continue
		}
		if err != nil {
			return "", err
		}
		// A concurrent call may have set a different code first.
		user, err = s.users.GetByID(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("reload user: %w", err)
		}
		if user != nil && user.ReferralCode != nil {
			return *user.ReferralCode, nil
		}
	}
	return "", fmt.Errorf("generate referral code for user %d: exhausted attempts", userID)
}

// CreateReferralRelationship attributes newUserID to the owner of code.
// The unique key on referred_id decides concurrent attempts; the loser gets
// ErrAlreadyReferred.
func (s *ReferralService) CreateReferralRelationship(ctx context.Context, code string, newUserID int64) (*models.Referral, error) {
	ref, err := s.createReferral(ctx, code, newUserID)
	switch {
	case err == nil:
		metrics.Referrals.WithLabelValues("created").Inc()
		s.logger.Info("referral created", "referrer_id", ref.ReferrerID, "referred_id", newUserID)
	case errors.Is(err, ErrInvalidCode):
		metrics.Referrals.WithLabelValues("invalid_code").Inc()
	case errors.Is(err, ErrSelfReferral):
		metrics.Referrals.WithLabelValues("self_referral").Inc()
	case errors.Is(err, ErrAlreadyReferred):
		metrics.Referrals.WithLabelValues("already_referred").Inc()
	default:
		metrics.Referrals.WithLabelValues("error").Inc()
	}
	return ref, err
}

func (s *ReferralService) createReferral(ctx context.Context, code string, newUserID int64) (*models.Referral, error) {
	referrerID, ok := ParseReferralCode(code)
	if !ok {
		return nil, ErrInvalidCode
	}
	referrer, err := s.users.GetByID(ctx, referrerID)
	if err != nil {
		return nil, unavailable("get_referrer", err)
	}
	if referrer == nil {
		return nil, ErrInvalidCode
	}
	// Once a code is issued, only that exact code is honoured.
	if referrer.ReferralCode != nil && *referrer.ReferralCode != strings.TrimSpace(code) {
		return nil, ErrInvalidCode
	}
	if referrerID == newUserID {
		return nil, ErrSelfReferral
	}

	referred, err := s.users.GetByID(ctx, newUserID)
	if err != nil {
		return nil, unavailable("get_referred", err)
	}
	if referred == nil {
		return nil, ErrUserNotFound
	}
	existing, err := s.referrals.GetByReferred(ctx, newUserID)
	if err != nil {
		return nil, unavailable("get_referral", err)
	}
	if existing != nil {
		return nil, ErrAlreadyReferred
	}

	ref := &models.Referral{
		ReferrerID: referrerID,
		ReferredID: newUserID,
		Status:     models.ReferralStatusPending,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.referrals.Create(ctx, ref); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadyReferred
		}
		return nil, unavailable("create_referral", err)
	}
	return ref, nil
}

func (s *ReferralService) Stats(ctx context.Context, referrerID int64) (*ReferralStats, error) {
	user, err := s.users.GetByID(ctx, referrerID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	pending, err := s.referrals.CountByStatus(ctx, referrerID, models.ReferralStatusPending)
	if err != nil {
		return nil, err
	}
	completed, err := s.referrals.CountByStatus(ctx, referrerID, models.ReferralStatusCompleted)
	if err != nil {
		return nil, err
	}
	pendingPayout, err := s.commissions.SumByStatus(ctx, referrerID, models.CommissionStatusPending)
	if err != nil {
		return nil, err
	}
	stats := &ReferralStats{
		Total:         pending + completed,
		Pending:       pending,
		Completed:     completed,
		TotalEarned:   user.TotalEarned,
		TotalPaid:     user.TotalPaid,
		PendingPayout: pendingPayout,
	}
	if user.ReferralCode != nil {
		stats.Code = *user.ReferralCode
	}
	return stats, nil
}

func (s *ReferralService) List(ctx context.Context, referrerID int64) ([]models.Referral, error) {
	return s.referrals.ListByReferrer(ctx, referrerID)
}
