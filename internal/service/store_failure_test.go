package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreFailuresAreUnavailable(t *testing.T) {
	dbErr := errors.New("dial tcp: i/o timeout")

	tests := []struct {
		name string
		call func(e *engine) error
	}{
		{"activate plan", func(e *engine) error {
			_, err := e.subscriptions.ActivatePlan(t.Context(), 2, "TNT_MINI", 30)
			return err
		}},
		{"create referral", func(e *engine) error {
			_, err := e.referrals.CreateReferralRelationship(t.Context(), FormatReferralCode(1, "abc123"), 3)
			return err
		}},
		{"credit commission", func(e *engine) error {
			_, err := e.commissions.CreditCommission(t.Context(), CreditInput{TransactionID: "tx1", ReferrerID: 1, ReferredID: 2, PlanType: "TNT_MINI", PaidAmount: 10})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine()
			referredPair(t, e, 1, 2)
			e.db.addUser(3)
			e.db.fail(dbErr)

			err := tt.call(e)
			assert.ErrorIs(t, err, ErrUnavailable)
			assert.ErrorIs(t, err, dbErr)
			assert.NotErrorIs(t, err, ErrInvalidCode)
		})
	}
}
