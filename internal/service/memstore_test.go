package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/payraan/narmoonai-test-sub000/internal/models"
	"github.com/payraan/narmoonai-test-sub000/internal/repository"
)

// memDB is an in-memory stand-in for the MySQL schema. It enforces the same
// unique keys so the services' duplicate handling is exercised.
type memDB struct {
	mu          sync.Mutex
	err         error
	seq         int64
	users       map[int64]*models.User
	plans       map[string]*models.PlanDefinition
	usage       map[usageKey]int
	referrals   []*models.Referral
	commissions []*models.Commission
	settings    map[string]string
	payments    []*models.Payment
}

type usageKey struct {
	userID int64
	day    string
	hour   int
}

func newMemDB() *memDB {
	db := &memDB{
		users:    make(map[int64]*models.User),
		plans:    make(map[string]*models.PlanDefinition),
		usage:    make(map[usageKey]int),
		settings: make(map[string]string),
	}
	for _, p := range DefaultCatalog() {
		db.seq++
		p.ID = db.seq
		db.plans[p.PlanName] = &p
	}
	for k, v := range map[string]string{
		models.SettingDefaultCommissionRate:       "35.00",
		models.SettingMinWithdrawalAmount:         "10.00",
		models.SettingBonusBasis:                  BonusBasisReferrals,
		models.SettingBonusMode:                   BonusModeFlat,
		models.SettingBonusThresholdPrefix + "1":  "10",
		models.SettingBonusValuePrefix + "1":      "5.00",
		models.SettingBonusThresholdPrefix + "2":  "25",
		models.SettingBonusValuePrefix + "2":      "15.00",
	} {
		db.settings[k] = v
	}
	return db
}

func (db *memDB) fail(err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.err = err
}

func (db *memDB) addUser(id int64) *models.User {
	db.mu.Lock()
	defer db.mu.Unlock()
	u := &models.User{ID: id, PlanType: models.PlanFree}
	db.users[id] = u
	return u
}

func (db *memDB) user(id int64) models.User {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.users[id]
}

func (db *memDB) countCommissions() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.commissions)
}

func (db *memDB) countReferrals() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.referrals)
}

func (db *memDB) next() int64 {
	db.seq++
	return db.seq
}

type memUsers struct{ *memDB }

func (s memUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s memUsers) Ensure(ctx context.Context, id int64, username, firstName string) (*models.User, bool, error) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return nil, false, s.err
	}
	u, ok := s.users[id]
	if !ok {
		u = &models.User{ID: id, PlanType: models.PlanFree}
		s.users[id] = u
	}
	u.Username, u.FirstName = username, firstName
	s.mu.Unlock()
	user, err := s.GetByID(ctx, id)
	return user, !ok, err
}

func (s memUsers) AssignPlan(_ context.Context, id int64, a models.PlanAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	u, ok := s.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.PlanType, u.PlanStart, u.PlanEnd = a.PlanType, a.PlanStart, a.PlanEnd
	u.MonthlyLimit, u.HourlyLimit = a.MonthlyLimit, a.HourlyLimit
	return nil
}

func (s memUsers) SetReferralCode(_ context.Context, id int64, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for _, other := range s.users {
		if other.ReferralCode != nil && *other.ReferralCode == code {
			return repository.ErrDuplicate
		}
	}
	if u, ok := s.users[id]; ok && u.ReferralCode == nil {
		u.ReferralCode = &code
	}
	return nil
}

func (s memUsers) SetCustomCommissionRate(_ context.Context, id int64, rate *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	u, ok := s.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.CustomCommissionRate = rate
	return nil
}

func (s memUsers) ListIDs(context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	ids := make([]int64, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type memPlans struct{ *memDB }

func (s memPlans) List(context.Context) ([]models.PlanDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []models.PlanDefinition
	for _, p := range s.plans {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out, nil
}

func (s memPlans) GetByName(_ context.Context, name string) (*models.PlanDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.plans[name]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s memPlans) Create(ctx context.Context, plan *models.PlanDefinition) (*models.PlanDefinition, error) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return nil, s.err
	}
	if _, ok := s.plans[plan.PlanName]; ok {
		s.mu.Unlock()
		return nil, repository.ErrDuplicate
	}
	cp := *plan
	cp.ID = s.next()
	s.plans[plan.PlanName] = &cp
	s.mu.Unlock()
	return s.GetByName(ctx, plan.PlanName)
}

func (s memPlans) Update(ctx context.Context, plan *models.PlanDefinition) (*models.PlanDefinition, error) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return nil, s.err
	}
	cp := *plan
	s.plans[plan.PlanName] = &cp
	s.mu.Unlock()
	return s.GetByName(ctx, plan.PlanName)
}

type memUsage struct{ *memDB }

func (s memUsage) Increment(_ context.Context, userID int64, day time.Time, hour int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.users[userID] == nil {
		return repository.ErrUnknownUser
	}
	s.usage[usageKey{userID, day.Format(time.DateOnly), hour}]++
	return nil
}

func (s memUsage) HourCount(_ context.Context, userID int64, day time.Time, hour int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return s.usage[usageKey{userID, day.Format(time.DateOnly), hour}], nil
}

func (s memUsage) SumBetween(_ context.Context, userID int64, from, to time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	lo, hi := from.Format(time.DateOnly), to.Format(time.DateOnly)
	total := 0
	for k, n := range s.usage {
		if k.userID == userID && k.day >= lo && k.day < hi {
			total += n
		}
	}
	return total, nil
}

type memReferrals struct{ *memDB }

func (s memReferrals) Create(_ context.Context, ref *models.Referral) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for _, r := range s.referrals {
		if r.ReferredID == ref.ReferredID {
			return repository.ErrDuplicate
		}
	}
	ref.ID = s.next()
	cp := *ref
	s.referrals = append(s.referrals, &cp)
	return nil
}

func (s memReferrals) GetByReferred(_ context.Context, referredID int64) (*models.Referral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, r := range s.referrals {
		if r.ReferredID == referredID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s memReferrals) CountByStatus(_ context.Context, referrerID int64, status models.ReferralStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	n := 0
	for _, r := range s.referrals {
		if r.ReferrerID == referrerID && r.Status == status {
			n++
		}
	}
	return n, nil
}

func (s memReferrals) ListByReferrer(_ context.Context, referrerID int64) ([]models.Referral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []models.Referral
	for _, r := range s.referrals {
		if r.ReferrerID == referrerID {
			out = append(out, *r)
		}
	}
	return out, nil
}

type memCommissions struct{ *memDB }

func (s memCommissions) GetByTransaction(_ context.Context, transactionID string) (*models.Commission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, c := range s.commissions {
		if c.TransactionID == transactionID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s memCommissions) Credit(_ context.Context, c *models.Commission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for _, existing := range s.commissions {
		if existing.TransactionID == c.TransactionID {
			return repository.ErrDuplicate
		}
	}
	referrer, ok := s.users[c.ReferrerID]
	if !ok {
		return fmt.Errorf("referrer %d not found", c.ReferrerID)
	}
	c.ID = s.next()
	cp := *c
	s.commissions = append(s.commissions, &cp)
	referrer.TotalEarned = round2(referrer.TotalEarned + c.TotalAmount)
	for _, r := range s.referrals {
		if r.ReferredID == c.ReferredID && r.Status == models.ReferralStatusPending {
			at := c.CreatedAt
			r.Status, r.CompletedAt = models.ReferralStatusCompleted, &at
		}
	}
	return nil
}

func (s memCommissions) SumByStatus(_ context.Context, referrerID int64, status models.CommissionStatus) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	total := 0.0
	for _, c := range s.commissions {
		if c.ReferrerID == referrerID && c.Status == status {
			total += c.TotalAmount
		}
	}
	return round2(total), nil
}

func (s memCommissions) Payout(_ context.Context, referrerID int64, minAmount float64, at time.Time) (float64, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, 0, s.err
	}
	var pending []*models.Commission
	total := 0.0
	for _, c := range s.commissions {
		if c.ReferrerID == referrerID && c.Status == models.CommissionStatusPending {
			pending = append(pending, c)
			total += c.TotalAmount
		}
	}
	total = round2(total)
	if len(pending) == 0 || total < minAmount {
		return total, 0, nil
	}
	for _, c := range pending {
		paidAt := at
		c.Status, c.PaidAt = models.CommissionStatusPaid, &paidAt
	}
	s.users[referrerID].TotalPaid = round2(s.users[referrerID].TotalPaid + total)
	return total, len(pending), nil
}

func (s memCommissions) Reconcile(_ context.Context, referrerID int64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	u, ok := s.users[referrerID]
	if !ok {
		return 0, sql.ErrNoRows
	}
	total := 0.0
	for _, c := range s.commissions {
		if c.ReferrerID == referrerID {
			total += c.TotalAmount
		}
	}
	u.TotalEarned = round2(total)
	return u.TotalEarned, nil
}

func (s memCommissions) ListByReferrer(_ context.Context, referrerID int64, limit int) ([]models.Commission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []models.Commission
	for i := len(s.commissions) - 1; i >= 0 && len(out) < limit; i-- {
		if s.commissions[i].ReferrerID == referrerID {
			out = append(out, *s.commissions[i])
		}
	}
	return out, nil
}

type memSettings struct{ *memDB }

func (s memSettings) All(context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]string, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out, nil
}

func (s memSettings) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.settings[key] = value
	return nil
}

type memPayments struct{ *memDB }

func (s memPayments) Create(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for _, existing := range s.payments {
		if existing.Provider == p.Provider && existing.TransactionID == p.TransactionID {
			return repository.ErrDuplicate
		}
	}
	p.ID = s.next()
	cp := *p
	s.payments = append(s.payments, &cp)
	return nil
}

func (s memPayments) UpdateStatus(_ context.Context, id int64, status models.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for _, p := range s.payments {
		if p.ID == id {
			p.Status = status
			return nil
		}
	}
	return errors.New("payment not found")
}

func (s memPayments) GetByTransaction(_ context.Context, provider, transactionID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, p := range s.payments {
		if p.Provider == provider && p.TransactionID == transactionID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

type memReports struct{ *memDB }

func (s memReports) UsersByPlan(context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int)
	for _, u := range s.users {
		out[u.PlanType]++
	}
	return out, nil
}

func (s memReports) ActivePlans(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.users {
		if u.IsPlanActive(now) {
			n++
		}
	}
	return n, nil
}

func (s memReports) CommissionTotals(context.Context) (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending, paid float64
	for _, c := range s.commissions {
		if c.Status == models.CommissionStatusPaid {
			paid += c.TotalAmount
		} else {
			pending += c.TotalAmount
		}
	}
	return pending, paid, nil
}

func (s memReports) TopReferrers(_ context.Context, limit int) ([]models.ReferrerStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[int64]int)
	for _, r := range s.referrals {
		counts[r.ReferrerID]++
	}
	var out []models.ReferrerStat
	for id, n := range counts {
		u := s.users[id]
		out = append(out, models.ReferrerStat{ReferrerID: id, Username: u.Username, Referrals: n, TotalEarned: u.TotalEarned})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalEarned > out[j].TotalEarned })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// engine bundles every service over one memDB with a shared, movable clock.
type engine struct {
	db            *memDB
	clock         time.Time
	plans         *PlanService
	quota         *QuotaService
	subscriptions *SubscriptionService
	referrals     *ReferralService
	commissions   *CommissionService
	payments      *PaymentService
	settings      *SettingsService
}

var testNow = time.Date(2026, 10, 19, 14, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine() *engine {
	db := newMemDB()
	logger := discardLogger()
	e := &engine{db: db, clock: testNow}
	now := func() time.Time { return e.clock }

	e.plans = NewPlanService(memPlans{db}, nil, logger)
	e.quota = NewQuotaService(memUsers{db}, memUsage{db}, time.UTC, logger)
	e.quota.now = now
	e.subscriptions = NewSubscriptionService(memUsers{db}, e.plans, logger)
	e.subscriptions.now = now
	e.referrals = NewReferralService(memUsers{db}, memReferrals{db}, memCommissions{db}, logger)
	e.referrals.now = now
	e.commissions = NewCommissionService(memUsers{db}, memReferrals{db}, memCommissions{db}, memSettings{db}, nil, logger)
	e.commissions.now = now
	e.payments = NewPaymentService(memPayments{db}, memReferrals{db}, e.subscriptions, e.commissions, logger)
	e.settings = NewSettingsService(memSettings{db})
	return e
}

func (e *engine) advance(d time.Duration) {
	e.clock = e.clock.Add(d)
}
