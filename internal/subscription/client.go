// Package subscription проверяет право пользователя на скидки по состоянию его подписки.
package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/boomcard-redemption/internal/model"
)

// RateLimitError возвращается, когда хранилище подписок ответило 429.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("subscription service rate limited, retry after %s", e.RetryAfter)
}

// Client инкапсулирует HTTP-взаимодействие с внешним хранилищем подписок.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт HTTP-клиент хранилища подписок по указанному адресу.
func NewClient(baseURL string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// GetEntitlement запрашивает состояние подписки пользователя.
// Если хранилище не знает пользователя, возвращается статус none.
func (c *Client) GetEntitlement(ctx context.Context, userID string) (*model.Entitlement, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("subscription client not configured")
	}

	endpoint := fmt.Sprintf("%s/api/subscriptions/%s/entitlement", c.baseURL, url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusNoContent:
		return &model.Entitlement{Status: model.SubscriptionStatusNone}, nil
	case http.StatusTooManyRequests:
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, &RateLimitError{RetryAfter: retryAfter}
	default:
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result model.Entitlement
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if result.Status == "" {
		result.Status = model.SubscriptionStatusNone
	}

	return &result, nil
}
