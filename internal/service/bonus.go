package service

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/payraan/narmoonai-test-sub000/internal/models"
)

// BonusInput is what a bonus policy may look at. SuccessfulReferrals
// includes the referral being credited.
type BonusInput struct {
	CommissionAmount    float64
	SuccessfulReferrals int
	TotalEarned         float64
	Settings            map[string]string
}

// BonusPolicy computes the volume bonus added on top of a commission.
type BonusPolicy interface {
	Bonus(in BonusInput) float64
}

const (
	BonusBasisReferrals = "referrals"
	BonusBasisEarnings  = "earnings"
	BonusModeFlat       = "flat"
	BonusModePercent    = "percent"
)

// TieredBonusPolicy applies the highest bonus_threshold_N met by the
// referrer. bonus_basis picks the measure (successful referrals or total
// earned before this credit) and bonus_mode picks whether bonus_value_N is
// a flat amount or a percentage of the commission.
type TieredBonusPolicy struct{}

func (TieredBonusPolicy) Bonus(in BonusInput) float64 {
	measure := float64(in.SuccessfulReferrals)
	if in.Settings[models.SettingBonusBasis] == BonusBasisEarnings {
		measure = in.TotalEarned
	}

	value, ok := 0.0, false
	for _, tier := range parseBonusTiers(in.Settings) {
		if measure >= tier.threshold {
			value, ok = tier.value, true
		}
	}
	if !ok {
		return 0
	}
	if in.Settings[models.SettingBonusMode] == BonusModePercent {
		return round2(in.CommissionAmount * value / 100)
	}
	return round2(value)
}

type bonusTier struct {
	threshold float64
	value     float64
}

// parseBonusTiers pairs bonus_threshold_N with bonus_value_N, skipping
// incomplete or malformed pairs, sorted by threshold.
func parseBonusTiers(settings map[string]string) []bonusTier {
	var tiers []bonusTier
	for key, raw := range settings {
		n, ok := strings.CutPrefix(key, models.SettingBonusThresholdPrefix)
		if !ok {
			continue
		}
		threshold, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || threshold < 0 {
			continue
		}
		rawValue, ok := settings[models.SettingBonusValuePrefix+n]
		if !ok {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(rawValue), 64)
		if err != nil || value < 0 {
			continue
		}
		tiers = append(tiers, bonusTier{threshold: threshold, value: value})
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].threshold < tiers[j].threshold })
	return tiers
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
