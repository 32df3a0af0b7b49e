package service

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/mmeshcher/boomcard-redemption/internal/model"
	"github.com/mmeshcher/boomcard-redemption/internal/repository"
	"github.com/mmeshcher/boomcard-redemption/internal/rules"
	"github.com/mmeshcher/boomcard-redemption/internal/subscription"
	"github.com/mmeshcher/boomcard-redemption/internal/tokenstore"
)

// Issue проверяет право пользователя на предложение и выпускает одноразовый код погашения.
// Единственный побочный эффект: запись кода в хранилище токенов.
func (s *Service) Issue(ctx context.Context, userID, offerID string, now time.Time) (*model.RedemptionToken, error) {
	userID = strings.TrimSpace(userID)
	offerID = strings.TrimSpace(offerID)
	if userID == "" || offerID == "" {
		return nil, errors.Wrap(ErrInvalidRequest, "userId and offerId are required")
	}

	offer, err := s.loadOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if !offer.IsActive {
		return nil, ErrOfferInactive
	}

	if err := s.gate.CheckEntitlement(ctx, userID, now); err != nil {
		if errors.Is(err, subscription.ErrNotEntitled) {
			return nil, errors.Mark(err, ErrNotEntitled)
		}
		return nil, errors.Wrap(err, "check entitlement")
	}

	if err := rules.CheckSchedule(offer, now); err != nil {
		return nil, errors.Mark(err, ErrRuleViolation)
	}

	if err := s.precheckQuota(ctx, userID, offer); err != nil {
		return nil, err
	}

	token, err := s.mint(ctx, userID, offer, now)
	if err != nil {
		return nil, err
	}

	s.logger.Info("redemption token issued",
		codeField(token.Code),
		zap.String("user_id", userID),
		zap.String("offer_id", offer.ID),
		zap.Time("expires_at", token.ExpiresAt),
	)

	return token, nil
}

func (s *Service) loadOffer(ctx context.Context, offerID string) (*model.Offer, error) {
	offer, err := s.offers.GetOffer(ctx, offerID)
	if err != nil {
		if errors.Is(err, repository.ErrOfferNotFound) {
			return nil, ErrOfferNotFound
		}
		return nil, errors.Wrapf(err, "get offer %s", offerID)
	}
	return offer, nil
}

// precheckQuota отсекает заведомо исчерпанные квоты. Проверка не атомарна,
// окончательное решение принимается при погашении.
func (s *Service) precheckQuota(ctx context.Context, userID string, offer *model.Offer) error {
	if offer.MaxRedemptionsPerUser == nil && offer.TotalRedemptionsLimit == nil {
		return nil
	}

	perUser, total, err := s.txs.CountCompleted(ctx, userID, offer.ID)
	if err != nil {
		return errors.Wrap(err, "count completed redemptions")
	}

	if limit := offer.MaxRedemptionsPerUser; limit != nil && perUser >= *limit {
		return &QuotaExceededError{Scope: tokenstore.QuotaScopePerUser, Limit: *limit}
	}
	if limit := offer.TotalRedemptionsLimit; limit != nil && total >= *limit {
		return &QuotaExceededError{Scope: tokenstore.QuotaScopeTotal, Limit: *limit}
	}
	return nil
}

func (s *Service) mint(ctx context.Context, userID string, offer *model.Offer, now time.Time) (*model.RedemptionToken, error) {
	for attempt := 0; attempt < mintAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, errors.Wrap(err, "generate code")
		}

		token := model.RedemptionToken{
			Code:      code,
			UserID:    userID,
			OfferID:   offer.ID,
			VenueID:   offer.VenueID,
			IssuedAt:  now,
			ExpiresAt: now.Add(s.tokenTTL),
		}

		err = s.tokens.Put(ctx, token, s.tokenTTL)
		if errors.Is(err, tokenstore.ErrCodeExists) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "store token")
		}
		return &token, nil
	}

	return nil, errors.Newf("store token: no free code after %d attempts", mintAttempts)
}
