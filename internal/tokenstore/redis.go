// Package tokenstore хранит выданные коды погашения и счётчики использования предложений в Redis.
//
// Все операции, требующие упорядочивания между конкурентными вызовами, выполняются одной
// командой Redis (SET NX, GETDEL) или одним Lua-скриптом, поэтому сериализация происходит
// по ключу, а не глобально.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/mmeshcher/boomcard-redemption/internal/model"
)

// DefaultPrefix задаёт префикс ключей по умолчанию.
const DefaultPrefix = "redemption"

var (
	// ErrNotFound возвращается для отсутствующего, истёкшего или уже погашенного кода.
	ErrNotFound = errors.New("token not found")
	// ErrCodeExists возвращается, если код уже занят другим токеном.
	ErrCodeExists = errors.New("token code already exists")
	// ErrPendingNotFound возвращается, если для кода нет отложенной транзакции.
	ErrPendingNotFound = errors.New("pending transaction not found")
	// ErrLocked возвращается, если блокировку держит другой экземпляр сервиса.
	ErrLocked = errors.New("lock held by another instance")
)

// Store реализует хранилище токенов поверх Redis.
type Store struct {
	client redis.UniversalClient
	locker *redislock.Client
	prefix string
}

// NewStore создаёт хранилище с указанным префиксом ключей.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = DefaultPrefix
	}

	return &Store{
		client: client,
		locker: redislock.New(client),
		prefix: trimmed,
	}
}

// Ping проверяет доступность Redis.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) tokenKey(code string) string {
	return s.prefix + ":token:" + code
}

func (s *Store) pendingKey(code string) string {
	return s.prefix + ":pending:" + code
}

// Put сохраняет новый токен с TTL. Существующий ключ не перезаписывается.
func (s *Store) Put(ctx context.Context, token model.RedemptionToken, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("put token: non-positive ttl %s", ttl)
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.tokenKey(token.Code), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("put token: %w", err)
	}
	if !ok {
		return ErrCodeExists
	}
	return nil
}

// Get читает токен, не изменяя его.
func (s *Store) Get(ctx context.Context, code string) (*model.RedemptionToken, error) {
	data, err := s.client.Get(ctx, s.tokenKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return decodeToken(data)
}

// Take атомарно читает и удаляет токен. Для каждого кода успешным будет ровно один вызов.
func (s *Store) Take(ctx context.Context, code string) (*model.RedemptionToken, error) {
	data, err := s.client.GetDel(ctx, s.tokenKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("take token: %w", err)
	}
	return decodeToken(data)
}

func decodeToken(data []byte) (*model.RedemptionToken, error) {
	var t model.RedemptionToken
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &t, nil
}

// SavePending откладывает транзакцию, которую не удалось сохранить, для последующей сверки.
func (s *Store) SavePending(ctx context.Context, tx model.Transaction, ttl time.Duration) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal pending: %w", err)
	}
	if err := s.client.Set(ctx, s.pendingKey(tx.RedemptionCode), data, ttl).Err(); err != nil {
		return fmt.Errorf("save pending: %w", err)
	}
	return nil
}

// GetPending возвращает отложенную транзакцию по коду погашения.
func (s *Store) GetPending(ctx context.Context, code string) (*model.Transaction, error) {
	data, err := s.client.Get(ctx, s.pendingKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPendingNotFound
		}
		return nil, fmt.Errorf("get pending: %w", err)
	}

	var tx model.Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("decode pending: %w", err)
	}
	return &tx, nil
}

// DeletePending удаляет отложенную транзакцию после успешной сверки.
// Возвращает false, если запись уже удалил другой вызов.
func (s *Store) DeletePending(ctx context.Context, code string) (bool, error) {
	n, err := s.client.Del(ctx, s.pendingKey(code)).Result()
	if err != nil {
		return false, fmt.Errorf("delete pending: %w", err)
	}
	return n > 0, nil
}

// ListPending возвращает до limit кодов с отложенными транзакциями.
func (s *Store) ListPending(ctx context.Context, limit int) ([]string, error) {
	prefix := s.pendingKey("")
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()

	var codes []string
	for iter.Next(ctx) {
		codes = append(codes, strings.TrimPrefix(iter.Val(), prefix))
		if limit > 0 && len(codes) >= limit {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan pending: %w", err)
	}
	return codes, nil
}

// Lock пытается захватить распределённую блокировку без ожидания.
// Возвращает функцию освобождения или ErrLocked.
func (s *Store) Lock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := s.locker.Obtain(ctx, s.prefix+":lock:"+name, ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("obtain lock: %w", err)
	}

	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("release lock: %w", err)
		}
		return nil
	}, nil
}
