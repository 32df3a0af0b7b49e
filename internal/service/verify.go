package service

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mmeshcher/boomcard-redemption/internal/model"
	"github.com/mmeshcher/boomcard-redemption/internal/rules"
	"github.com/mmeshcher/boomcard-redemption/internal/tokenstore"
	"github.com/mmeshcher/boomcard-redemption/internal/validation"
)

// Preview содержит необязывающий расчёт скидки для экрана подтверждения на терминале.
type Preview struct {
	OfferID        string
	UserID         string
	VenueID        string
	OriginalAmount model.Money
	DiscountAmount model.Money
	FinalAmount    model.Money
	ExpiresAt      time.Time
}

// Verify находит код и рассчитывает скидку для суммы счёта, не погашая код.
// Вызов можно повторять сколько угодно раз в течение жизни кода.
func (s *Service) Verify(ctx context.Context, code, venueID string, bill model.Money, category string, now time.Time) (*Preview, error) {
	venueID = strings.TrimSpace(venueID)
	if venueID == "" || bill < 0 {
		return nil, errors.Wrap(ErrInvalidRequest, "venueId and a non-negative billAmount are required")
	}

	normalized, err := validation.ParseCode(code)
	if err != nil {
		return nil, ErrTokenNotFound
	}

	token, err := s.tokens.Get(ctx, normalized)
	if err != nil {
		if errors.Is(err, tokenstore.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, errors.Wrap(err, "get token")
	}
	if token.Expired(now) {
		return nil, ErrTokenNotFound
	}
	if token.VenueID != venueID {
		return nil, ErrVenueMismatch
	}

	offer, err := s.loadOffer(ctx, token.OfferID)
	if err != nil {
		return nil, err
	}
	if offer.VenueID != token.VenueID {
		return nil, ErrVenueMismatch
	}

	res, err := rules.Evaluate(offer, bill, category, now)
	if err != nil {
		return nil, errors.Mark(err, ErrRuleViolation)
	}

	return &Preview{
		OfferID:        token.OfferID,
		UserID:         token.UserID,
		VenueID:        token.VenueID,
		OriginalAmount: res.OriginalAmount,
		DiscountAmount: res.DiscountAmount,
		FinalAmount:    res.FinalAmount,
		ExpiresAt:      token.ExpiresAt,
	}, nil
}
