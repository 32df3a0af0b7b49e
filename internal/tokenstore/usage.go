package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// QuotaScope указывает, какая квота исчерпана.
type QuotaScope string

const (
	QuotaScopePerUser QuotaScope = "per_user"
	QuotaScopeTotal   QuotaScope = "total"
)

// ErrQuotaExceeded позволяет сопоставлять *QuotaError через errors.Is.
var ErrQuotaExceeded = errors.New("quota exceeded")

// QuotaError сообщает об исчерпанной квоте. Инкремент к этому моменту уже откатан.
type QuotaError struct {
	Scope QuotaScope
	Limit int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota of %d exceeded", e.Scope, e.Limit)
}

// Is сопоставляет ошибку с ErrQuotaExceeded.
func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// Limits задаёт квоты предложения; nil означает отсутствие ограничения.
type Limits struct {
	PerUser *int64
	Total   *int64
}

// Usage содержит значения счётчиков после успешного резервирования.
type Usage struct {
	PerUser int64
	Total   int64
}

// SeedFunc возвращает число завершённых транзакций пользователя и предложения. Вызывается,
// только если ключей счётчиков нет в Redis.
type SeedFunc func(ctx context.Context) (perUser, total int64, err error)

const (
	reserveOK        = 0
	reservePerUser   = 1
	reserveTotal     = 2
	reserveNeedsSeed = -1
)

// KEYS[1]: счётчик пользователя, KEYS[2]: общий счётчик предложения.
// ARGV: лимит пользователя, общий лимит (-1 означает отсутствие лимита), флаг затравки, затравка пользователя, общая затравка.
var reserveScript = redis.NewScript(`
local userLimit = tonumber(ARGV[1])
local totalLimit = tonumber(ARGV[2])
if ARGV[3] == "1" then
  redis.call("SET", KEYS[1], ARGV[4], "NX")
  redis.call("SET", KEYS[2], ARGV[5], "NX")
elseif redis.call("EXISTS", KEYS[1]) == 0 or redis.call("EXISTS", KEYS[2]) == 0 then
  return {-1, 0, 0}
end
local used = redis.call("INCR", KEYS[1])
local total = redis.call("INCR", KEYS[2])
if userLimit >= 0 and used > userLimit then
  redis.call("DECR", KEYS[1])
  redis.call("DECR", KEYS[2])
  return {1, used - 1, total - 1}
end
if totalLimit >= 0 and total > totalLimit then
  redis.call("DECR", KEYS[1])
  redis.call("DECR", KEYS[2])
  return {2, used - 1, total - 1}
end
return {0, used, total}
`)

var releaseScript = redis.NewScript(`
for i = 1, #KEYS do
  local v = tonumber(redis.call("GET", KEYS[i]) or "0")
  if v > 0 then
    redis.call("DECR", KEYS[i])
  end
end
return 1
`)

// usageKeys размещает оба счётчика в одном слоте кластера через хеш-тег предложения.
func (s *Store) usageKeys(userID, offerID string) []string {
	tag := "{" + offerID + "}"
	return []string{
		s.prefix + ":usage:" + tag + ":user:" + userID,
		s.prefix + ":usage:" + tag + ":total",
	}
}

// ReserveUsage атомарно увеличивает счётчики пользователя и предложения и сверяет их с квотами.
// При превышении инкремент откатывается в том же скрипте и возвращается *QuotaError.
func (s *Store) ReserveUsage(ctx context.Context, userID, offerID string, limits Limits, seed SeedFunc) (Usage, error) {
	keys := s.usageKeys(userID, offerID)
	args := []interface{}{limitArg(limits.PerUser), limitArg(limits.Total), "0", 0, 0}

	res, err := s.runReserve(ctx, keys, args)
	if err != nil {
		return Usage{}, err
	}

	if res[0] == reserveNeedsSeed {
		var perUser, total int64
		if seed != nil {
			perUser, total, err = seed(ctx)
			if err != nil {
				return Usage{}, fmt.Errorf("seed usage counters: %w", err)
			}
		}
		args[2], args[3], args[4] = "1", perUser, total
		res, err = s.runReserve(ctx, keys, args)
		if err != nil {
			return Usage{}, err
		}
	}

	switch res[0] {
	case reserveOK:
		return Usage{PerUser: res[1], Total: res[2]}, nil
	case reservePerUser:
		return Usage{PerUser: res[1], Total: res[2]}, &QuotaError{Scope: QuotaScopePerUser, Limit: *limits.PerUser}
	case reserveTotal:
		return Usage{PerUser: res[1], Total: res[2]}, &QuotaError{Scope: QuotaScopeTotal, Limit: *limits.Total}
	default:
		return Usage{}, fmt.Errorf("reserve usage: unexpected status %d", res[0])
	}
}

func (s *Store) runReserve(ctx context.Context, keys []string, args []interface{}) ([3]int64, error) {
	var out [3]int64

	raw, err := reserveScript.Run(ctx, s.client, keys, args...).Result()
	if err != nil {
		return out, fmt.Errorf("reserve usage: %w", err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != len(out) {
		return out, fmt.Errorf("reserve usage: unexpected response shape %T", raw)
	}
	for i, v := range values {
		n, ok := v.(int64)
		if !ok {
			return out, fmt.Errorf("reserve usage: unexpected value type %T", v)
		}
		out[i] = n
	}
	return out, nil
}

// ReleaseUsage откатывает ранее успешное резервирование. Счётчики не опускаются ниже нуля.
func (s *Store) ReleaseUsage(ctx context.Context, userID, offerID string) error {
	if err := releaseScript.Run(ctx, s.client, s.usageKeys(userID, offerID)).Err(); err != nil {
		return fmt.Errorf("release usage: %w", err)
	}
	return nil
}

func limitArg(limit *int64) string {
	if limit == nil {
		return "-1"
	}
	return strconv.FormatInt(*limit, 10)
}
