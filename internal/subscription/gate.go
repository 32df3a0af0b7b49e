package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmeshcher/boomcard-redemption/internal/model"
)

// Причины отказа в праве на скидку.
const (
	ReasonNoSubscription = "no_subscription"
	ReasonExpired        = "expired"
	ReasonSuspended      = "suspended"
)

// ErrNotEntitled служит общим признаком отказа по подписке.
var ErrNotEntitled = errors.New("user is not entitled")

// NotEntitledError уточняет причину отказа.
type NotEntitledError struct {
	Reason string
}

func (e *NotEntitledError) Error() string {
	return "user is not entitled: " + e.Reason
}

// Is позволяет сравнивать ошибку с ErrNotEntitled через errors.Is.
func (e *NotEntitledError) Is(target error) bool {
	return target == ErrNotEntitled
}

// Store отдаёт состояние подписки пользователя.
type Store interface {
	GetEntitlement(ctx context.Context, userID string) (*model.Entitlement, error)
}

// Gate пропускает только пользователей с действующей подпиской.
type Gate struct {
	store Store
}

// NewGate создаёт проверку подписки поверх хранилища.
func NewGate(store Store) *Gate {
	return &Gate{store: store}
}

// CheckEntitlement возвращает nil, если подписка активна на момент now.
// Ошибки хранилища возвращаются обёрнутыми и не означают отказ.
func (g *Gate) CheckEntitlement(ctx context.Context, userID string, now time.Time) error {
	e, err := g.store.GetEntitlement(ctx, userID)
	if err != nil {
		return fmt.Errorf("get entitlement: %w", err)
	}

	switch e.Status {
	case model.SubscriptionStatusActive:
		if !e.ValidUntil.IsZero() && !now.Before(e.ValidUntil) {
			return &NotEntitledError{Reason: ReasonExpired}
		}
		return nil
	case model.SubscriptionStatusExpired:
		return &NotEntitledError{Reason: ReasonExpired}
	case model.SubscriptionStatusSuspended:
		return &NotEntitledError{Reason: ReasonSuspended}
	default:
		return &NotEntitledError{Reason: ReasonNoSubscription}
	}
}
