package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/boomcard-redemption/internal/model"
)

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&pgconn.PgError{Code: pgerrcode.SerializationFailure}))
	assert.True(t, isRetryable(&pgconn.PgError{Code: pgerrcode.DeadlockDetected}))
	assert.False(t, isRetryable(&pgconn.PgError{Code: pgerrcode.UniqueViolation}))
	assert.True(t, isRetryable(errors.New("dial tcp: connection refused")))
	assert.False(t, isRetryable(errors.New("syntax error")))
}

func TestWithRetry(t *testing.T) {
	r := &PostgresRepository{delays: []time.Duration{time.Millisecond, time.Millisecond}}

	calls := 0
	err := r.withRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = r.withRetry(context.Background(), func() error {
		calls++
		return errors.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = r.withRetry(context.Background(), func() error {
		calls++
		return &pgconn.PgError{Code: pgerrcode.DeadlockDetected}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func newIntegrationRepo(t *testing.T) *PostgresRepository {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URI")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URI is not set")
	}

	repo, err := NewPostgresRepository(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestPostgres_OfferAndTransactions(t *testing.T) {
	repo := newIntegrationRepo(t)
	ctx := context.Background()

	offerID := "offer-" + uuid.NewString()
	userID := "user-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)

	_, err := repo.pool.Exec(ctx,
		`INSERT INTO offers (id, venue_id, discount_type, discount_value, min_bill_amount, max_discount_amount,
		                     valid_from, valid_until, allowed_days, window_start_minute, window_end_minute,
		                     excluded_categories, max_redemptions_per_user)
		 VALUES ($1, 'venue-1', 'percentage', 12.5, 5000, 10000, $2, $3, '{1,2,3}', 1320, 120, '{alcohol}', 2)`,
		offerID, now.Add(-time.Hour), now.Add(time.Hour),
	)
	require.NoError(t, err)

	offer, err := repo.GetOffer(ctx, offerID)
	require.NoError(t, err)
	assert.Equal(t, "12.5", offer.DiscountValue.String())
	assert.Equal(t, model.Money(5000), offer.MinBillAmount)
	require.NotNil(t, offer.MaxDiscountAmount)
	assert.Equal(t, model.Money(10000), *offer.MaxDiscountAmount)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday, time.Wednesday}, offer.AllowedDaysOfWeek)
	require.NotNil(t, offer.AllowedTimeWindow)
	assert.Equal(t, 1320, offer.AllowedTimeWindow.StartMinute)
	assert.Nil(t, offer.TotalRedemptionsLimit)

	_, err = repo.GetOffer(ctx, "missing-"+offerID)
	require.ErrorIs(t, err, ErrOfferNotFound)

	tx := model.Transaction{
		ID:             uuid.NewString(),
		UserID:         userID,
		OfferID:        offerID,
		VenueID:        "venue-1",
		RedemptionCode: "CODE-" + uuid.NewString(),
		OriginalAmount: 30000,
		DiscountAmount: 3750,
		FinalAmount:    26250,
		Status:         model.TransactionStatusCompleted,
		CreatedAt:      now,
	}

	first, err := repo.CreateTransaction(ctx, tx)
	require.NoError(t, err)

	retry := tx
	retry.ID = uuid.NewString()
	second, err := repo.CreateTransaction(ctx, retry)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "retry must return the stored transaction")

	perUser, total, err := repo.CountCompleted(ctx, userID, offerID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, perUser)
	assert.EqualValues(t, 1, total)

	history, err := repo.GetTransactionsByUser(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.Money(3750), history[0].DiscountAmount)
}
