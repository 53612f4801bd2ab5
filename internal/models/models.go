package models

import "time"

// PlanFree is the plan type of users without a purchased plan.
const PlanFree = "FREE"

type PlanState string

const (
	PlanStateFree    PlanState = "FREE"
	PlanStateActive  PlanState = "ACTIVE"
	PlanStateExpired PlanState = "EXPIRED"
)

type User struct {
	ID                   int64
	Username             string
	FirstName            string
	PlanType             string
	PlanStart            *time.Time
	PlanEnd              *time.Time
	MonthlyLimit         int
	HourlyLimit          int
	ReferralCode         *string
	CustomCommissionRate *float64
	TotalEarned          float64
	TotalPaid            float64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// PlanState derives the lifecycle state on read; nothing sweeps expired plans.
// A nil PlanEnd is a permanent grant.
func (u *User) PlanState(now time.Time) PlanState {
	if u.PlanType == "" || u.PlanType == PlanFree {
		return PlanStateFree
	}
	if u.PlanEnd != nil && now.After(*u.PlanEnd) {
		return PlanStateExpired
	}
	return PlanStateActive
}

func (u *User) IsPlanActive(now time.Time) bool {
	return u.PlanState(now) == PlanStateActive
}

// PlanAssignment is the snapshot written onto a user by plan activation.
type PlanAssignment struct {
	PlanType     string
	PlanStart    *time.Time
	PlanEnd      *time.Time
	MonthlyLimit int
	HourlyLimit  int
}

type PlanDefinition struct {
	ID           int64     `json:"id"`
	PlanName     string    `json:"plan_name"`
	DisplayName  string    `json:"display_name"`
	Price        float64   `json:"price"`
	MonthlyLimit int       `json:"monthly_limit"`
	HourlyLimit  int       `json:"hourly_limit"`
	VIPAccess    bool      `json:"vip_access"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PriceMinorUnits converts the catalog price into invoice units (cents).
func (p *PlanDefinition) PriceMinorUnits() int {
	return int(p.Price*100 + 0.5)
}

type UsageEvent struct {
	UserID        int64
	UsageDate     time.Time
	UsageHour     int
	AnalysisCount int
}

type ReferralStatus string

const (
	ReferralStatusPending   ReferralStatus = "pending"
	ReferralStatusCompleted ReferralStatus = "completed"
)

type Referral struct {
	ID          int64          `json:"id"`
	ReferrerID  int64          `json:"referrer_id"`
	ReferredID  int64          `json:"referred_id"`
	Status      ReferralStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

type CommissionStatus string

const (
	CommissionStatusPending CommissionStatus = "pending"
	CommissionStatusPaid    CommissionStatus = "paid"
)

type Commission struct {
	ID               int64            `json:"id"`
	ReferrerID       int64            `json:"referrer_id"`
	ReferredID       int64            `json:"referred_id"`
	TransactionID    string           `json:"transaction_id"`
	PlanType         string           `json:"plan_type"`
	CommissionAmount float64          `json:"commission_amount"`
	BonusAmount      float64          `json:"bonus_amount"`
	TotalAmount      float64          `json:"total_amount"`
	Status           CommissionStatus `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
	PaidAt           *time.Time       `json:"paid_at,omitempty"`
}

// Referral setting keys.
const (
	SettingDefaultCommissionRate = "default_commission_rate"
	SettingMinWithdrawalAmount   = "min_withdrawal_amount"
	SettingBonusBasis            = "bonus_basis"
	SettingBonusMode             = "bonus_mode"
	SettingBonusThresholdPrefix  = "bonus_threshold_"
	SettingBonusValuePrefix      = "bonus_value_"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

type Payment struct {
	ID            int64
	UserID        int64
	PlanName      string
	Provider      string
	TransactionID string
	Currency      string
	Amount        float64
	Status        PaymentStatus
	RawPayload    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ReferrerStat is one row of the top referrers report.
type ReferrerStat struct {
	ReferrerID  int64   `json:"referrer_id"`
	Username    string  `json:"username"`
	Referrals   int     `json:"referrals"`
	TotalEarned float64 `json:"total_earned"`
}
