// Package service реализует погашение скидок: выпуск кода, предварительную проверку
// на терминале и окончательное погашение с учётом квот.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/boomcard-redemption/internal/model"
	"github.com/mmeshcher/boomcard-redemption/internal/tokenstore"
	"github.com/mmeshcher/boomcard-redemption/internal/validation"
)

const (
	DefaultTokenTTL          = 5 * time.Minute
	DefaultPendingTTL        = 24 * time.Hour
	DefaultReconcileInterval = 30 * time.Second
	DefaultHistoryLimit      = 100

	mintAttempts   = 3
	reconcileBatch = 100
	reconcileLock  = "reconciler"
)

// OfferStore отдаёт предложения партнёров только для чтения.
type OfferStore interface {
	GetOffer(ctx context.Context, id string) (*model.Offer, error)
}

// TransactionStore сохраняет транзакции погашения. CreateTransaction идемпотентна по коду погашения.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx model.Transaction) (*model.Transaction, error)
	CountCompleted(ctx context.Context, userID, offerID string) (int64, int64, error)
	GetTransactionsByUser(ctx context.Context, userID string, limit int) ([]model.Transaction, error)
}

// TokenStore хранит выпущенные коды, счётчики использования и отложенные транзакции.
type TokenStore interface {
	Put(ctx context.Context, token model.RedemptionToken, ttl time.Duration) error
	Get(ctx context.Context, code string) (*model.RedemptionToken, error)
	Take(ctx context.Context, code string) (*model.RedemptionToken, error)
	ReserveUsage(ctx context.Context, userID, offerID string, limits tokenstore.Limits, seed tokenstore.SeedFunc) (tokenstore.Usage, error)
	ReleaseUsage(ctx context.Context, userID, offerID string) error
	SavePending(ctx context.Context, tx model.Transaction, ttl time.Duration) error
	GetPending(ctx context.Context, code string) (*model.Transaction, error)
	DeletePending(ctx context.Context, code string) (bool, error)
	ListPending(ctx context.Context, limit int) ([]string, error)
	Lock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error)
}

// EntitlementChecker проверяет право пользователя на скидки.
type EntitlementChecker interface {
	CheckEntitlement(ctx context.Context, userID string, now time.Time) error
}

// Publisher публикует события о завершённых погашениях.
type Publisher interface {
	PublishRedemptionCompleted(ctx context.Context, tx model.Transaction) error
}

// Service содержит бизнес-логику погашения скидок.
type Service struct {
	offers    OfferStore
	txs       TransactionStore
	tokens    TokenStore
	gate      EntitlementChecker
	publisher Publisher
	logger    *zap.Logger

	tokenTTL          time.Duration
	pendingTTL        time.Duration
	reconcileInterval time.Duration
	reconcileDelay    time.Duration
	historyLimit      int

	newCode func() (string, error)
	newID   func() string
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер сервиса.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPublisher задаёт публикатор событий.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithTokenTTL задаёт время жизни кода погашения.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithPendingTTL задаёт, сколько хранится транзакция, которую не удалось сохранить.
func WithPendingTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.pendingTTL = ttl
		}
	}
}

// WithReconcileInterval задаёт период фоновой досылки отложенных транзакций.
func WithReconcileInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.reconcileInterval = d
		}
	}
}

// NewService создаёт сервис погашения поверх хранилищ и проверки подписки.
func NewService(offers OfferStore, txs TransactionStore, tokens TokenStore, gate EntitlementChecker, opts ...Option) *Service {
	s := &Service{
		offers:            offers,
		txs:               txs,
		tokens:            tokens,
		gate:              gate,
		logger:            zap.NewNop(),
		tokenTTL:          DefaultTokenTTL,
		pendingTTL:        DefaultPendingTTL,
		reconcileInterval: DefaultReconcileInterval,
		reconcileDelay:    200 * time.Millisecond,
		historyLimit:      DefaultHistoryLimit,
		newCode:           validation.NewCode,
		newID:             uuid.NewString,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// TokenTTL возвращает время жизни выпускаемых кодов.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}

func (s *Service) publish(ctx context.Context, tx model.Transaction) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishRedemptionCompleted(ctx, tx); err != nil {
		s.logger.Warn("publish redemption event failed",
			zap.String("transaction_id", tx.ID),
			zap.Error(err),
		)
	}
}

// codeField логирует только префикс кода.
func codeField(code string) zap.Field {
	const visible = 6
	if len(code) > visible {
		code = code[:visible] + "…"
	}
	return zap.String("code", code)
}
