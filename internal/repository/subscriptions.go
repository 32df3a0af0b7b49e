package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/boomcard-redemption/internal/model"
)

// GetEntitlement возвращает статус подписки пользователя из локальной копии хранилища подписок.
// Отсутствие подписки возвращается статусом none, а не ошибкой.
func (r *PostgresRepository) GetEntitlement(ctx context.Context, userID string) (*model.Entitlement, error) {
	var (
		e      model.Entitlement
		status string
	)

	err := r.pool.QueryRow(ctx,
		`SELECT status, valid_until FROM subscriptions WHERE user_id = $1`,
		userID,
	).Scan(&status, &e.ValidUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.Entitlement{Status: model.SubscriptionStatusNone}, nil
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}

	e.Status = model.SubscriptionStatus(status)
	return &e, nil
}
