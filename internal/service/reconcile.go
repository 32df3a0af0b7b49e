package service

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/mmeshcher/boomcard-redemption/internal/model"
	"github.com/mmeshcher/boomcard-redemption/internal/tokenstore"
	"github.com/mmeshcher/boomcard-redemption/internal/validation"
)

// Reconcile повторно сохраняет транзакцию, отложенную после сбоя Finalize.
// Повтор идемпотентен по коду погашения. Событие публикует только тот вызов,
// который удалил отложенную запись.
func (s *Service) Reconcile(ctx context.Context, code string) (*model.Transaction, error) {
	normalized, err := validation.ParseCode(code)
	if err != nil {
		return nil, ErrNoPendingRedemption
	}

	pending, err := s.tokens.GetPending(ctx, normalized)
	if err != nil {
		if errors.Is(err, tokenstore.ErrPendingNotFound) {
			return nil, ErrNoPendingRedemption
		}
		return nil, errors.Wrap(err, "get pending redemption")
	}

	var stored *model.Transaction
	err = retry.Do(
		func() error {
			var createErr error
			stored, createErr = s.txs.CreateTransaction(ctx, *pending)
			return createErr
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(s.reconcileDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "persist pending transaction"), ErrPersistenceFailure)
	}

	deleted, err := s.tokens.DeletePending(ctx, normalized)
	if err != nil {
		s.logger.Warn("delete pending redemption failed", codeField(normalized), zap.Error(err))
		return stored, nil
	}
	if !deleted {
		return stored, nil
	}

	s.publish(ctx, *stored)

	s.logger.Info("pending redemption reconciled",
		codeField(normalized),
		zap.String("transaction_id", stored.ID),
	)

	return stored, nil
}

// ReconcilePending досылает все отложенные транзакции. Если другой экземпляр уже
// выполняет досылку, возвращается 0 без ошибки.
func (s *Service) ReconcilePending(ctx context.Context) (int, error) {
	release, err := s.tokens.Lock(ctx, reconcileLock, 2*s.reconcileInterval)
	if err != nil {
		if errors.Is(err, tokenstore.ErrLocked) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "obtain reconciler lock")
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release reconciler lock failed", zap.Error(err))
		}
	}()

	codes, err := s.tokens.ListPending(ctx, reconcileBatch)
	if err != nil {
		return 0, errors.Wrap(err, "list pending redemptions")
	}

	reconciled := 0
	for _, code := range codes {
		if ctx.Err() != nil {
			return reconciled, ctx.Err()
		}
		if _, err := s.Reconcile(ctx, code); err != nil {
			if !errors.Is(err, ErrNoPendingRedemption) {
				s.logger.Warn("reconcile pending redemption failed", codeField(code), zap.Error(err))
			}
			continue
		}
		reconciled++
	}

	return reconciled, nil
}

// RunReconciler периодически досылает отложенные транзакции до отмены контекста.
func (s *Service) RunReconciler(ctx context.Context) {
	ticker := time.NewTicker(s.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.ReconcilePending(ctx)
			if err != nil && ctx.Err() == nil {
				s.logger.Error("reconcile pending redemptions", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("pending redemptions reconciled", zap.Int("count", n))
			}
		}
	}
}
