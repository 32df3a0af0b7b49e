package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// MinorUnitExponent задаёт число знаков дробной части валюты расчётов.
const MinorUnitExponent = 2

// ErrInvalidAmount возвращается для отрицательных сумм, сумм с лишними знаками после запятой
// и сумм, не помещающихся в Money.
var ErrInvalidAmount = errors.New("invalid amount")

var (
	minorUnitsPerMajor = decimal.New(1, MinorUnitExponent)
	maxMinorUnits      = decimal.NewFromInt(math.MaxInt64)
)

// Money представляет денежную сумму в минимальных единицах валюты (копейках, центах).
type Money int64

// MoneyFromDecimal переводит сумму в основных единицах в минимальные без округления.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %s is negative", ErrInvalidAmount, d.String())
	}
	minor := d.Mul(minorUnitsPerMajor)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: %s has more than %d fraction digits", ErrInvalidAmount, d.String(), MinorUnitExponent)
	}
	if minor.GreaterThan(maxMinorUnits) {
		return 0, fmt.Errorf("%w: %s is out of range", ErrInvalidAmount, d.String())
	}
	return Money(minor.IntPart()), nil
}

// Decimal возвращает сумму в основных единицах.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -MinorUnitExponent)
}

// String форматирует сумму с фиксированным числом знаков после запятой.
func (m Money) String() string {
	return m.Decimal().StringFixed(MinorUnitExponent)
}

// MarshalJSON кодирует сумму строкой, чтобы не терять точность у клиентов.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON принимает сумму числом или строкой в основных единицах.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	v, err := MoneyFromDecimal(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
