package service

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payraan/narmoonai-test-sub000/internal/models"
)

func TestParseReferralCode(t *testing.T) {
	tests := []struct {
		code   string
		wantID int64
		wantOK bool
	}{
		{"ref_42_a1b2c3", 42, true},
		{"  ref_7_ffffff ", 7, true},
		{FormatReferralCode(123456789, "abc123"), 123456789, true},
		{"ref_42_", 0, false},
		{"ref_42", 0, false},
		{"ref__abc123", 0, false},
		{"ref_-5_abc123", 0, false},
		{"ref_0_abc123", 0, false},
		{"ref_x1_abc123", 0, false},
		{"ref_42_ab_cd", 0, false},
		{"ref_42_ab-cd", 0, false},
		{"invite_42_abc123", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			id, ok := ParseReferralCode(tt.code)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestReferralCodeGeneratedOnce(t *testing.T) {
	e := newEngine()
	e.db.addUser(42)
	e.referrals.newSuffix = func() string { return "a1b2c3" }

	code, err := e.referrals.ReferralCode(t.Context(), 42)
	require.NoError(t, err)
	assert.Equal(t, "ref_42_a1b2c3", code)

	e.referrals.newSuffix = func() string { return "zzzzzz" }
	again, err := e.referrals.ReferralCode(t.Context(), 42)
	require.NoError(t, err)
	assert.Equal(t, code, again)

	_, err = e.referrals.ReferralCode(t.Context(), 43)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestReferralCodeRetriesOnCollision(t *testing.T) {
	e := newEngine()
	e.db.addUser(42)
	taken := "ref_42_aaaaaa"
	e.db.addUser(7).ReferralCode = &taken

	suffixes := []string{"aaaaaa", "bbbbbb"}
	e.referrals.newSuffix = func() string {
		s := suffixes[0]
		suffixes = suffixes[1:]
		return s
	}

	code, err := e.referrals.ReferralCode(t.Context(), 42)
	require.NoError(t, err)
	assert.Equal(t, "ref_42_bbbbbb", code)
}

func TestCreateReferralRelationship(t *testing.T) {
	e := newEngine()
	e.db.addUser(1)
	e.db.addUser(2)

	ref, err := e.referrals.CreateReferralRelationship(t.Context(), FormatReferralCode(1, "abc123"), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ref.ReferrerID)
	assert.Equal(t, int64(2), ref.ReferredID)
	assert.Equal(t, models.ReferralStatusPending, ref.Status)
	assert.True(t, testNow.Equal(ref.CreatedAt))
}

func TestCreateReferralRelationshipErrors(t *testing.T) {
	e := newEngine()
	e.db.addUser(1)
	e.db.addUser(2)
	e.db.addUser(3)
	issued := "ref_3_c0ffee"
	e.db.users[3].ReferralCode = &issued
	_, err := e.referrals.CreateReferralRelationship(t.Context(), FormatReferralCode(1, "abc123"), 2)
	require.NoError(t, err)

	tests := []struct {
		name      string
		code      string
		newUserID int64
		want      error
	}{
		{"unparsable", "hello", 2, ErrInvalidCode},
		{"unknown referrer", FormatReferralCode(99, "abc123"), 2, ErrInvalidCode},
		{"stale suffix", "ref_3_deadbe", 1, ErrInvalidCode},
		{"self referral", FormatReferralCode(1, "abc123"), 1, ErrSelfReferral},
		{"already referred by same referrer", FormatReferralCode(1, "abc123"), 2, ErrAlreadyReferred},
		{"already referred by someone else", issued, 2, ErrAlreadyReferred},
		{"unknown referred user", FormatReferralCode(1, "abc123"), 50, ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.referrals.CreateReferralRelationship(t.Context(), tt.code, tt.newUserID)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 1, e.db.countReferrals())
}

func TestCreateReferralRelationshipConcurrent(t *testing.T) {
	e := newEngine()
	const referred = int64(100)
	e.db.addUser(referred)
	for id := int64(1); id <= 10; id++ {
		e.db.addUser(id)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		rejected int
	)
	for id := int64(1); id <= 10; id++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.referrals.CreateReferralRelationship(t.Context(), FormatReferralCode(id, "abc123"), referred)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrAlreadyReferred):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 9, rejected)
	assert.Equal(t, 1, e.db.countReferrals())
}

func TestReferralStats(t *testing.T) {
	e := newEngine()
	e.db.addUser(1)
	e.db.addUser(2)
	e.db.addUser(3)
	e.referrals.newSuffix = func() string { return "abc123" }
	code, err := e.referrals.ReferralCode(t.Context(), 1)
	require.NoError(t, err)

	for _, id := range []int64{2, 3} {
		_, err := e.referrals.CreateReferralRelationship(t.Context(), code, id)
		require.NoError(t, err)
	}
	_, err = e.commissions.CreditCommission(t.Context(), CreditInput{
		TransactionID: "tx1", ReferrerID: 1, ReferredID: 2, PlanType: "TNT_PLUS", PaidAmount: 18,
	})
	require.NoError(t, err)

	stats, err := e.referrals.Stats(t.Context(), 1)
	require.NoError(t, err)
	assert.Equal(t, code, stats.Code)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 6.3, stats.TotalEarned)
	assert.Equal(t, 6.3, stats.PendingPayout)
	assert.Zero(t, stats.TotalPaid)

	list, err := e.referrals.List(t.Context(), 1)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
