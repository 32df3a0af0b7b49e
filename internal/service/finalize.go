package service

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/mmeshcher/boomcard-redemption/internal/model"
	"github.com/mmeshcher/boomcard-redemption/internal/rules"
	"github.com/mmeshcher/boomcard-redemption/internal/tokenstore"
	"github.com/mmeshcher/boomcard-redemption/internal/validation"
)

// Причины, с которыми сохраняются отклонённые погашения.
const (
	RejectVenueMismatch = "venue_mismatch"
	RejectOfferNotFound = "offer_not_found"
	RejectOfferFailure  = "offer_unavailable"
	RejectQuotaExceeded = "quota_exceeded"
	RejectCounterError  = "quota_unavailable"
)

// Finalize погашает код ровно один раз: забирает его из хранилища, резервирует квоты,
// применяет правила предложения и сохраняет транзакцию.
//
// После того как код забран, отмена контекста вызывающего не прерывает погашение.
// Если транзакцию не удалось сохранить, она откладывается для досылки и возвращается
// ошибка ErrPersistenceFailure. Повторный Finalize с тем же кодом, заведением и суммой
// досылает отложенную транзакцию, так же как Reconcile.
func (s *Service) Finalize(ctx context.Context, code, venueID string, bill model.Money, category string, now time.Time) (*model.Transaction, error) {
	venueID = strings.TrimSpace(venueID)
	if venueID == "" || bill < 0 {
		return nil, errors.Wrap(ErrInvalidRequest, "venueId and a non-negative billAmount are required")
	}

	normalized, err := validation.ParseCode(code)
	if err != nil {
		return nil, ErrAlreadyConsumedOrExpired
	}

	token, err := s.tokens.Take(ctx, normalized)
	if err != nil {
		if errors.Is(err, tokenstore.ErrNotFound) {
			return s.retryPending(ctx, normalized, venueID, bill)
		}
		return nil, errors.Wrap(err, "take token")
	}

	ctx = context.WithoutCancel(ctx)

	if token.Expired(now) {
		return nil, ErrAlreadyConsumedOrExpired
	}

	base := model.Transaction{
		ID:             s.newID(),
		UserID:         token.UserID,
		OfferID:        token.OfferID,
		VenueID:        token.VenueID,
		RedemptionCode: token.Code,
		OriginalAmount: bill,
		FinalAmount:    bill,
		Category:       strings.TrimSpace(category),
		CreatedAt:      now,
	}

	if token.VenueID != venueID {
		s.reject(ctx, base, RejectVenueMismatch)
		return nil, ErrVenueMismatch
	}

	offer, err := s.loadOffer(ctx, token.OfferID)
	if err != nil {
		if errors.Is(err, ErrOfferNotFound) {
			s.reject(ctx, base, RejectOfferNotFound)
		} else {
			s.reject(ctx, base, RejectOfferFailure)
		}
		return nil, err
	}
	if offer.VenueID != token.VenueID {
		s.reject(ctx, base, RejectVenueMismatch)
		return nil, ErrVenueMismatch
	}

	limits := tokenstore.Limits{PerUser: offer.MaxRedemptionsPerUser, Total: offer.TotalRedemptionsLimit}
	seed := func(ctx context.Context) (int64, int64, error) {
		return s.txs.CountCompleted(ctx, token.UserID, token.OfferID)
	}

	if _, err := s.tokens.ReserveUsage(ctx, token.UserID, token.OfferID, limits, seed); err != nil {
		if errors.Is(err, tokenstore.ErrQuotaExceeded) {
			s.reject(ctx, base, RejectQuotaExceeded)
			return nil, quotaError(err)
		}
		s.reject(ctx, base, RejectCounterError)
		return nil, errors.Wrap(err, "reserve usage")
	}

	res, err := rules.Evaluate(offer, bill, base.Category, now)
	if err != nil {
		if releaseErr := s.tokens.ReleaseUsage(ctx, token.UserID, token.OfferID); releaseErr != nil {
			s.logger.Error("release usage failed",
				codeField(token.Code),
				zap.String("offer_id", token.OfferID),
				zap.Error(releaseErr),
			)
		}
		reason := "rule_violation"
		var v *rules.Violation
		if errors.As(err, &v) {
			reason = string(v.Reason)
		}
		s.reject(ctx, base, reason)
		return nil, errors.Mark(err, ErrRuleViolation)
	}

	tx := base
	tx.Status = model.TransactionStatusCompleted
	tx.OriginalAmount = res.OriginalAmount
	tx.DiscountAmount = res.DiscountAmount
	tx.FinalAmount = res.FinalAmount

	stored, err := s.txs.CreateTransaction(ctx, tx)
	if err != nil {
		if parkErr := s.tokens.SavePending(ctx, tx, s.pendingTTL); parkErr != nil {
			s.logger.Error("park pending redemption failed",
				codeField(tx.RedemptionCode),
				zap.String("transaction_id", tx.ID),
				zap.Error(parkErr),
			)
		}
		s.logger.Error("persist redemption failed",
			codeField(tx.RedemptionCode),
			zap.String("transaction_id", tx.ID),
			zap.Error(err),
		)
		return nil, errors.Mark(errors.Wrap(err, "persist transaction"), ErrPersistenceFailure)
	}

	s.publish(ctx, *stored)

	s.logger.Info("redemption finalized",
		codeField(stored.RedemptionCode),
		zap.String("transaction_id", stored.ID),
		zap.String("offer_id", stored.OfferID),
		zap.Stringer("discount", stored.DiscountAmount),
	)

	return stored, nil
}

// retryPending обрабатывает повтор Finalize после сбоя сохранения: код уже забран,
// но транзакция отложена и досылается по тому же коду.
func (s *Service) retryPending(ctx context.Context, code, venueID string, bill model.Money) (*model.Transaction, error) {
	pending, err := s.tokens.GetPending(ctx, code)
	if err != nil {
		if errors.Is(err, tokenstore.ErrPendingNotFound) {
			return nil, ErrAlreadyConsumedOrExpired
		}
		return nil, errors.Wrap(err, "get pending redemption")
	}
	if pending.VenueID != venueID {
		return nil, ErrVenueMismatch
	}
	if pending.OriginalAmount != bill {
		return nil, errors.Wrapf(ErrInvalidRequest, "billAmount differs from the pending redemption (%s)", pending.OriginalAmount)
	}

	tx, err := s.Reconcile(context.WithoutCancel(ctx), code)
	if errors.Is(err, ErrNoPendingRedemption) {
		return nil, ErrAlreadyConsumedOrExpired
	}
	return tx, err
}

// reject сохраняет отклонённое погашение для аудита. Ошибка записи только логируется.
func (s *Service) reject(ctx context.Context, base model.Transaction, reason string) {
	tx := base
	tx.Status = model.TransactionStatusRejected
	tx.RejectReason = reason
	tx.DiscountAmount = 0
	tx.FinalAmount = tx.OriginalAmount

	if _, err := s.txs.CreateTransaction(ctx, tx); err != nil {
		s.logger.Warn("persist rejected redemption failed",
			codeField(tx.RedemptionCode),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
}
