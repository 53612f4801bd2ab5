package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/payraan/narmoonai-test-sub000/internal/models"
)

// SettingsService edits referral settings. Values are read per computation,
// so changes apply to the next commission without a restart.
type SettingsService struct {
	settings SettingsStore
}

func NewSettingsService(settings SettingsStore) *SettingsService {
	return &SettingsService{settings: settings}
}

func (s *SettingsService) All(ctx context.Context) (map[string]string, error) {
	return s.settings.All(ctx)
}

func (s *SettingsService) Set(ctx context.Context, key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)
	if err := validateSetting(key, value); err != nil {
		return err
	}
	return s.settings.Set(ctx, key, value)
}

func validateSetting(key, value string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty key", ErrInvalidSetting)
	case key == models.SettingDefaultCommissionRate:
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil || rate < 0 || rate > 100 {
			return fmt.Errorf("%w: %s must be a number between 0 and 100", ErrInvalidSetting, key)
		}
	case key == models.SettingBonusBasis:
		if value != BonusBasisReferrals && value != BonusBasisEarnings {
			return fmt.Errorf("%w: %s must be %s or %s", ErrInvalidSetting, key, BonusBasisReferrals, BonusBasisEarnings)
		}
	case key == models.SettingBonusMode:
		if value != BonusModeFlat && value != BonusModePercent {
			return fmt.Errorf("%w: %s must be %s or %s", ErrInvalidSetting, key, BonusModeFlat, BonusModePercent)
		}
	case key == models.SettingMinWithdrawalAmount,
		strings.HasPrefix(key, models.SettingBonusThresholdPrefix),
		strings.HasPrefix(key, models.SettingBonusValuePrefix):
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || v < 0 {
			return fmt.Errorf("%w: %s must be a non-negative number", ErrInvalidSetting, key)
		}
	}
	return nil
}
