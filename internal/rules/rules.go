// Package rules вычисляет скидку по правилам предложения. Пакет не выполняет ввода-вывода
// и безопасен для конкурентного использования.
package rules

import (
	"errors"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/boomcard-redemption/internal/model"
)

// Reason задаёт машиночитаемую причину отказа в применении скидки.
type Reason string

const (
	ReasonInactive          Reason = "inactive"
	ReasonNotStarted        Reason = "not_started"
	ReasonExpired           Reason = "expired"
	ReasonMinAmount         Reason = "min_amount"
	ReasonDayNotAllowed     Reason = "day_not_allowed"
	ReasonOutsideTimeWindow Reason = "outside_time_window"
	ReasonExcludedCategory  Reason = "excluded_category"
	ReasonInvalidOffer      Reason = "invalid_offer"
)

// ErrViolation позволяет сопоставлять любые нарушения правил через errors.Is.
var ErrViolation = errors.New("rule violation")

// Violation описывает нарушенное правило предложения.
type Violation struct {
	Reason Reason
}

func (v *Violation) Error() string {
	return "rule violation: " + string(v.Reason)
}

// Is сопоставляет нарушение с ErrViolation.
func (v *Violation) Is(target error) bool {
	return target == ErrViolation
}

func violation(r Reason) *Violation {
	return &Violation{Reason: r}
}

var hundred = decimal.NewFromInt(100)

// CheckSchedule проверяет правила, не зависящие от суммы счёта: активность, период действия,
// день недели и окно времени в часовом поясе заведения.
func CheckSchedule(offer *model.Offer, now time.Time) error {
	if !offer.IsActive {
		return violation(ReasonInactive)
	}
	if !offer.ValidFrom.IsZero() && now.Before(offer.ValidFrom) {
		return violation(ReasonNotStarted)
	}
	if !offer.ValidUntil.IsZero() && now.After(offer.ValidUntil) {
		return violation(ReasonExpired)
	}

	local := now.In(offer.Location())

	if len(offer.AllowedDaysOfWeek) > 0 && !lo.Contains(offer.AllowedDaysOfWeek, local.Weekday()) {
		return violation(ReasonDayNotAllowed)
	}

	if w := offer.AllowedTimeWindow; w != nil {
		if !w.Contains(local.Hour()*60 + local.Minute()) {
			return violation(ReasonOutsideTimeWindow)
		}
	}

	return nil
}

// Evaluate применяет правила предложения к сумме счёта и возвращает итоговую скидку
// либо *Violation.
func Evaluate(offer *model.Offer, bill model.Money, category string, now time.Time) (model.DiscountResult, error) {
	if err := CheckSchedule(offer, now); err != nil {
		return model.DiscountResult{}, err
	}

	if bill < offer.MinBillAmount {
		return model.DiscountResult{}, violation(ReasonMinAmount)
	}

	if category != "" && lo.ContainsBy(offer.ExcludedCategories, func(c string) bool {
		return strings.EqualFold(c, category)
	}) {
		return model.DiscountResult{}, violation(ReasonExcludedCategory)
	}

	discount, err := rawDiscount(offer, bill)
	if err != nil {
		return model.DiscountResult{}, err
	}

	if offer.MaxDiscountAmount != nil && discount > *offer.MaxDiscountAmount {
		discount = *offer.MaxDiscountAmount
	}
	if discount > bill {
		discount = bill
	}
	if discount < 0 {
		discount = 0
	}

	return model.DiscountResult{
		OriginalAmount: bill,
		DiscountAmount: discount,
		FinalAmount:    bill - discount,
	}, nil
}

// rawDiscount округляет вниз до минимальной единицы валюты.
func rawDiscount(offer *model.Offer, bill model.Money) (model.Money, error) {
	if offer.DiscountValue.IsNegative() {
		return 0, violation(ReasonInvalidOffer)
	}

	switch offer.DiscountType {
	case model.DiscountTypePercentage:
		v := decimal.NewFromInt(int64(bill)).Mul(offer.DiscountValue).Div(hundred).Floor()
		return model.Money(v.IntPart()), nil
	case model.DiscountTypeFixed:
		v := offer.DiscountValue.Shift(model.MinorUnitExponent).Floor()
		return model.Money(v.IntPart()), nil
	default:
		return 0, violation(ReasonInvalidOffer)
	}
}
