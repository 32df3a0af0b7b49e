// Package model содержит доменные сущности сервиса погашения скидок.
package model

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType описывает способ расчёта скидки по предложению.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// Valid сообщает, известен ли тип скидки.
func (t DiscountType) Valid() bool {
	return t == DiscountTypePercentage || t == DiscountTypeFixed
}

// TimeWindow задаёт разрешённый интервал времени суток [Start, End) в минутах от полуночи.
// Если Start > End, интервал переходит через полночь. Start == End означает весь день.
type TimeWindow struct {
	StartMinute int
	EndMinute   int
}

// Contains проверяет, попадает ли минута суток в окно.
func (w TimeWindow) Contains(minute int) bool {
	switch {
	case w.StartMinute == w.EndMinute:
		return true
	case w.StartMinute < w.EndMinute:
		return minute >= w.StartMinute && minute < w.EndMinute
	default:
		return minute >= w.StartMinute || minute < w.EndMinute
	}
}

// Offer описывает набор правил скидки партнёра, привязанный к заведению.
type Offer struct {
	ID           string
	VenueID      string
	Title        string
	DiscountType DiscountType
	// DiscountValue хранит процент для percentage и сумму в основных единицах валюты для fixed.
	DiscountValue         decimal.Decimal
	MinBillAmount         Money
	MaxDiscountAmount     *Money
	ValidFrom             time.Time
	ValidUntil            time.Time
	AllowedDaysOfWeek     []time.Weekday
	AllowedTimeWindow     *TimeWindow
	Timezone              string
	ExcludedCategories    []string
	MaxRedemptionsPerUser *int64
	TotalRedemptionsLimit *int64
	IsActive              bool
}

// locations хранит уже загруженные часовые пояса по имени.
var locations sync.Map

// Location возвращает часовой пояс заведения; при ошибке используется UTC.
// Каждый пояс загружается из базы tzdata один раз на процесс.
func (o *Offer) Location() *time.Location {
	if o.Timezone == "" {
		return time.UTC
	}
	if loc, ok := locations.Load(o.Timezone); ok {
		return loc.(*time.Location)
	}
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		loc = time.UTC
	}
	actual, _ := locations.LoadOrStore(o.Timezone, loc)
	return actual.(*time.Location)
}

// RedemptionToken описывает одноразовый краткоживущий код, связывающий пользователя с предложением.
type RedemptionToken struct {
	Code      string    `json:"code"`
	UserID    string    `json:"user_id"`
	OfferID   string    `json:"offer_id"`
	VenueID   string    `json:"venue_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired сообщает, истёк ли срок действия кода к моменту now.
func (t *RedemptionToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TransactionStatus описывает итог погашения.
type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusRejected  TransactionStatus = "rejected"
)

// Transaction хранит запись о погашении скидки.
type Transaction struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	OfferID        string            `json:"offer_id"`
	VenueID        string            `json:"venue_id"`
	RedemptionCode string            `json:"redemption_code"`
	OriginalAmount Money             `json:"original_amount"`
	DiscountAmount Money             `json:"discount_amount"`
	FinalAmount    Money             `json:"final_amount"`
	Category       string            `json:"category,omitempty"`
	Status         TransactionStatus `json:"status"`
	RejectReason   string            `json:"reject_reason,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// DiscountResult содержит результат применения правил предложения к сумме счёта.
type DiscountResult struct {
	OriginalAmount Money
	DiscountAmount Money
	FinalAmount    Money
}

// SubscriptionStatus описывает состояние подписки пользователя во внешнем хранилище.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusSuspended SubscriptionStatus = "suspended"
	SubscriptionStatusNone      SubscriptionStatus = "none"
)

// Entitlement описывает ответ хранилища подписок для пользователя.
type Entitlement struct {
	Status     SubscriptionStatus `json:"status"`
	ValidUntil time.Time          `json:"valid_until"`
}

// UserHistory содержит транзакции пользователя и сумму его экономии.
type UserHistory struct {
	Transactions []Transaction
	TotalSavings Money
}
