package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckQuotaFreeUserAlwaysNeedsPlan(t *testing.T) {
	e := newEngine()
	e.db.addUser(1)
	for range 5 {
		require.NoError(t, e.quota.RecordUsage(t.Context(), 1, time.Time{}))
	}

	d, err := e.quota.CheckQuota(t.Context(), 1)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonPlanRequired, d.Reason)
	assert.ErrorIs(t, d.Err(), ErrPlanRequired)
}

func TestCheckQuotaUnknownUserNeedsPlan(t *testing.T) {
	e := newEngine()

	d, err := e.quota.CheckQuota(t.Context(), 404)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonPlanRequired, d.Reason)
}

func TestCheckQuotaMonthlyCeiling(t *testing.T) {
	e := newEngine()
	e.db.addUser(1)
	_, err := e.subscriptions.ActivatePlan(t.Context(), 1, "TNT_MINI", 30)
	require.NoError(t, err)

	monthStart := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	for i := range 59 {
		require.NoError(t, e.quota.RecordUsage(t.Context(), 1, monthStart.Add(time.Duration(i)*time.Hour)))
	}
	d, err := e.quota.CheckQuota(t.Context(), 1)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.RemainingMonthly)
	assert.Equal(t, 2, d.RemainingHourly)

	require.NoError(t, e.quota.RecordUsage(t.Context(), 1, monthStart.Add(59*time.Hour)))
	d, err = e.quota.CheckQuota(t.Context(), 1)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonMonthlyLimitReached, d.Reason)
	assert.Equal(t, 60, d.Used)
	assert.Equal(t, 60, d.Limit)
	assert.ErrorIs(t, d.Err(), ErrMonthlyLimitReached)
}

func TestCheckQuotaHourlyCeiling(t *testing.T) {
	e := newEngine()
	e.db.addUser(1)
	_, err := e.subscriptions.ActivatePlan(t.Context(), 1, "TNT_MAX", 30)
	require.NoError(t, err)

	for range 9 {
		require.NoError(t, e.quota.RecordUsage(t.Context(), 1, time.Time{}))
	}
	d, err := e.quota.CheckQuota(t.Context(), 1)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonHourlyLimitReached, d.Reason)
	assert.Equal(t, 9, d.Used)
	assert.Equal(t, 8, d.Limit)
	assert.Equal(t, 391, d.RemainingMonthly)

	e.advance(time.Hour)
	d, err = e.quota.CheckQuota(t.Context(), 1)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 8, d.RemainingHourly)
}

func TestCheckQuotaMonthlyCheckedBeforeHourly(t *testing.T) {
	e := newEngine()
	e.db.addUser(1)
	_, err := e.subscriptions.ActivatePlan(t.Context(), 1, "TNT_MINI", 30)
	require.NoError(t, err)

	// Both ceilings are exceeded in the current hour.
	for range 60 {
		require.NoError(t, e.quota.RecordUsage(t.Context(), 1, time.Time{}))
	}
	d, err := e.quota.CheckQuota(t.Context(), 1)
	require.NoError(t, err)
	assert.Equal(t, ReasonMonthlyLimitReached, d.Reason)
}

func TestCheckQuotaPlusScenario(t *testing.T) {
	e := newEngine()
	e.db.addUser(1)
	_, err := e.subscriptions.ActivatePlan(t.Context(), 1, "TNT_PLUS", 30)
	require.NoError(t, err)

	earlier := time.Date(2026, 10, 2, 10, 0, 0, 0, time.UTC)
	for range 149 {
		require.NoError(t, e.quota.RecordUsage(t.Context(), 1, earlier))
	}

	d, err := e.quota.CheckQuota(t.Context(), 1)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.RemainingMonthly)
	assert.Equal(t, 4, d.RemainingHourly)

	require.NoError(t, e.quota.RecordUsage(t.Context(), 1, time.Time{}))
	d, err = e.quota.CheckQuota(t.Context(), 1)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonMonthlyLimitReached, d.Reason)
	assert.Equal(t, 150, d.Used)
	assert.Equal(t, 150, d.Limit)
}

func TestCheckQuotaIgnoresPreviousMonth(t *testing.T) {
	e := newEngine()
	e.db.addUser(1)
	_, err := e.subscriptions.ActivatePlan(t.Context(), 1, "TNT_MINI", 60)
	require.NoError(t, err)

	september := time.Date(2026, 9, 30, 23, 0, 0, 0, time.UTC)
	for range 60 {
		require.NoError(t, e.quota.RecordUsage(t.Context(), 1, september))
	}
	d, err := e.quota.CheckQuota(t.Context(), 1)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 60, d.RemainingMonthly)
}

func TestCheckQuotaExpiredPlan(t *testing.T) {
	e := newEngine()
	e.db.addUser(1)
	res, err := e.subscriptions.ActivatePlan(t.Context(), 1, "TNT_PLUS", 1)
	require.NoError(t, err)

	e.clock = *res.EndDate
	d, err := e.quota.CheckQuota(t.Context(), 1)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "plan is still active at plan_end")

	e.advance(time.Second)
	d, err = e.quota.CheckQuota(t.Context(), 1)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonPlanExpired, d.Reason)
	assert.ErrorIs(t, d.Err(), ErrPlanExpired)
}

func TestCheckQuotaPermanentPlanNeverExpires(t *testing.T) {
	e := newEngine()
	e.db.addUser(1)
	res, err := e.subscriptions.ActivatePlan(t.Context(), 1, "TNT_MAX", 0)
	require.NoError(t, err)
	assert.Nil(t, res.EndDate)

	e.advance(5 * 365 * 24 * time.Hour)
	d, err := e.quota.CheckQuota(t.Context(), 1)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Nil(t, d.PlanEnd)
}

func TestCheckQuotaStoreFailureIsUnavailable(t *testing.T) {
	e := newEngine()
	e.db.addUser(1)
	_, err := e.subscriptions.ActivatePlan(t.Context(), 1, "TNT_PLUS", 30)
	require.NoError(t, err)

	dbErr := errors.New("dial tcp: connection refused")
	e.db.fail(dbErr)

	d, err := e.quota.CheckQuota(t.Context(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, dbErr)
	assert.NotErrorIs(t, err, ErrPlanRequired)
	assert.Equal(t, Decision{}, d)

	err = e.quota.RecordUsage(t.Context(), 1, time.Time{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRecordUsageConcurrentIncrementsMerge(t *testing.T) {
	e := newEngine()
	e.db.addUser(1)
	_, err := e.subscriptions.ActivatePlan(t.Context(), 1, "TNT_MAX", 30)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.quota.RecordUsage(t.Context(), 1, time.Time{}))
		}()
	}
	wg.Wait()

	usage, err := e.quota.Usage(t.Context(), 1)
	require.NoError(t, err)
	assert.Equal(t, 20, usage.HourlyUsed)
	assert.Equal(t, 20, usage.MonthlyUsed)
	assert.Equal(t, 400, usage.MonthlyLimit)
}

func TestUsageBucketsFollowLocation(t *testing.T) {
	e := newEngine()
	e.db.addUser(1)
	tehran := time.FixedZone("IRST", 3*3600+1800)
	q := NewQuotaService(memUsers{e.db}, memUsage{e.db}, tehran, discardLogger())
	q.now = func() time.Time { return time.Date(2026, 11, 1, 1, 0, 0, 0, time.UTC) }

	// 21:00 UTC on Oct 31 is already November 1st in Tehran.
	require.NoError(t, q.RecordUsage(t.Context(), 1, time.Date(2026, 10, 31, 21, 0, 0, 0, time.UTC)))

	usage, err := q.Usage(t.Context(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.MonthlyUsed)
	assert.Equal(t, 0, usage.HourlyUsed)
}

func TestUsageUnknownUser(t *testing.T) {
	e := newEngine()
	_, err := e.quota.Usage(t.Context(), 9)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRecordUsageUnknownUser(t *testing.T) {
	e := newEngine()
	err := e.quota.RecordUsage(t.Context(), 9, time.Time{})
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Empty(t, e.db.usage)
}
