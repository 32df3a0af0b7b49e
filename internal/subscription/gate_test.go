package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/boomcard-redemption/internal/model"
)

type stubStore struct {
	entitlement *model.Entitlement
	err         error
}

func (s stubStore) GetEntitlement(context.Context, string) (*model.Entitlement, error) {
	return s.entitlement, s.err
}

func TestGate_CheckEntitlement(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		e      *model.Entitlement
		reason string
	}{
		{
			name: "active",
			e:    &model.Entitlement{Status: model.SubscriptionStatusActive, ValidUntil: now.Add(time.Hour)},
		},
		{
			name: "active without end date",
			e:    &model.Entitlement{Status: model.SubscriptionStatusActive},
		},
		{
			name:   "active but lapsed",
			e:      &model.Entitlement{Status: model.SubscriptionStatusActive, ValidUntil: now},
			reason: ReasonExpired,
		},
		{
			name:   "expired",
			e:      &model.Entitlement{Status: model.SubscriptionStatusExpired},
			reason: ReasonExpired,
		},
		{
			name:   "suspended",
			e:      &model.Entitlement{Status: model.SubscriptionStatusSuspended, ValidUntil: now.Add(time.Hour)},
			reason: ReasonSuspended,
		},
		{
			name:   "none",
			e:      &model.Entitlement{Status: model.SubscriptionStatusNone},
			reason: ReasonNoSubscription,
		},
		{
			name:   "unknown status",
			e:      &model.Entitlement{Status: "trial"},
			reason: ReasonNoSubscription,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewGate(stubStore{entitlement: tt.e}).CheckEntitlement(context.Background(), "user-1", now)
			if tt.reason == "" {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, ErrNotEntitled)
			var ne *NotEntitledError
			require.True(t, errors.As(err, &ne))
			assert.Equal(t, tt.reason, ne.Reason)
		})
	}
}

func TestGate_StoreFailureIsNotRefusal(t *testing.T) {
	err := NewGate(stubStore{err: errors.New("timeout")}).CheckEntitlement(context.Background(), "user-1", time.Now())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotEntitled)
}
