package service

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/mmeshcher/boomcard-redemption/internal/model"
)

// ListTransactions возвращает последние погашения пользователя и сумму его экономии
// по завершённым погашениям из выборки.
func (s *Service) ListTransactions(ctx context.Context, userID string) (*model.UserHistory, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.Wrap(ErrInvalidRequest, "userId is required")
	}

	txs, err := s.txs.GetTransactionsByUser(ctx, userID, s.historyLimit)
	if err != nil {
		return nil, errors.Wrap(err, "get transactions")
	}

	savings := lo.SumBy(txs, func(tx model.Transaction) model.Money {
		if tx.Status != model.TransactionStatusCompleted {
			return 0
		}
		return tx.DiscountAmount
	})

	return &model.UserHistory{
		Transactions: txs,
		TotalSavings: savings,
	}, nil
}
