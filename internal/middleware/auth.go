// Package middleware содержит HTTP middleware сервиса погашения скидок.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

type contextKey string

const venueIDKey contextKey = "venueID"

// TerminalTokenHeader задаёт заголовок, в котором терминал партнёра передаёт свой токен.
const TerminalTokenHeader = "X-Terminal-Token"

// TerminalAuth проверяет подписанный токен терминала вида <venueID>.<hmac>.
// С пустым секретом проверка отключена.
type TerminalAuth struct {
	secretKey []byte
}

// NewTerminalAuth создаёт проверку токенов терминалов с указанным секретом.
func NewTerminalAuth(secret string) *TerminalAuth {
	return &TerminalAuth{
		secretKey: []byte(secret),
	}
}

// Enabled сообщает, включена ли проверка.
func (a *TerminalAuth) Enabled() bool {
	return a != nil && len(a.secretKey) > 0
}

// Middleware проверяет заголовок X-Terminal-Token и добавляет идентификатор заведения в контекст запроса.
func (a *TerminalAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		venueID, ok := a.parseToken(r.Header.Get(TerminalTokenHeader))
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), venueIDKey, venueID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Sign выпускает токен терминала для заведения.
func (a *TerminalAuth) Sign(venueID string) string {
	return venueID + "." + hex.EncodeToString(a.mac(venueID))
}

func (a *TerminalAuth) mac(venueID string) []byte {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(venueID))
	return mac.Sum(nil)
}

func (a *TerminalAuth) parseToken(token string) (string, bool) {
	idx := strings.LastIndexByte(token, '.')
	if idx <= 0 || idx == len(token)-1 {
		return "", false
	}

	venueID := token[:idx]
	signature, err := hex.DecodeString(token[idx+1:])
	if err != nil {
		return "", false
	}

	if !hmac.Equal(signature, a.mac(venueID)) {
		return "", false
	}

	return venueID, true
}

// VenueFromContext извлекает идентификатор заведения, прошедшего проверку токена.
func VenueFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(venueIDKey).(string)
	return id, ok
}
