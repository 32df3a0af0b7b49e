package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/boomcard-redemption/internal/model"
)

// GetOffer возвращает предложение по идентификатору.
func (r *PostgresRepository) GetOffer(ctx context.Context, id string) (*model.Offer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, venue_id, title, discount_type, discount_value::text,
		        min_bill_amount, max_discount_amount, valid_from, valid_until,
		        allowed_days, window_start_minute, window_end_minute, timezone,
		        excluded_categories, max_redemptions_per_user, total_redemptions_limit, is_active
		 FROM offers
		 WHERE id = $1`,
		id,
	)

	var (
		o             model.Offer
		discountType  string
		discountValue string
		minBill       int64
		maxDiscount   *int64
		days          []int16
		windowStart   *int32
		windowEnd     *int32
	)

	err := row.Scan(
		&o.ID, &o.VenueID, &o.Title, &discountType, &discountValue,
		&minBill, &maxDiscount, &o.ValidFrom, &o.ValidUntil,
		&days, &windowStart, &windowEnd, &o.Timezone,
		&o.ExcludedCategories, &o.MaxRedemptionsPerUser, &o.TotalRedemptionsLimit, &o.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOfferNotFound
		}
		return nil, fmt.Errorf("get offer: %w", err)
	}

	o.DiscountType = model.DiscountType(discountType)
	o.DiscountValue, err = decimal.NewFromString(discountValue)
	if err != nil {
		return nil, fmt.Errorf("parse discount value: %w", err)
	}

	o.MinBillAmount = model.Money(minBill)
	if maxDiscount != nil {
		v := model.Money(*maxDiscount)
		o.MaxDiscountAmount = &v
	}

	o.AllowedDaysOfWeek = make([]time.Weekday, 0, len(days))
	for _, d := range days {
		o.AllowedDaysOfWeek = append(o.AllowedDaysOfWeek, time.Weekday(d))
	}

	if windowStart != nil && windowEnd != nil {
		o.AllowedTimeWindow = &model.TimeWindow{
			StartMinute: int(*windowStart),
			EndMinute:   int(*windowEnd),
		}
	}

	return &o, nil
}
