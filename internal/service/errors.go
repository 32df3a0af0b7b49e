package service

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/mmeshcher/boomcard-redemption/internal/rules"
	"github.com/mmeshcher/boomcard-redemption/internal/subscription"
	"github.com/mmeshcher/boomcard-redemption/internal/tokenstore"
)

// Ошибки сервиса погашения. Сравнивать следует через errors.Is из github.com/cockroachdb/errors:
// часть ошибок помечается sentinel-значением через errors.Mark.
var (
	ErrOfferNotFound            = errors.New("offer does not exist")
	ErrOfferInactive            = errors.New("offer is inactive")
	ErrNotEntitled              = errors.New("not entitled")
	ErrTokenNotFound            = errors.New("redemption token not found")
	ErrVenueMismatch            = errors.New("venue mismatch")
	ErrAlreadyConsumedOrExpired = errors.New("redemption token already consumed or expired")
	ErrQuotaExceeded            = errors.New("redemption quota exceeded")
	ErrPersistenceFailure       = errors.New("transaction persistence failed")
	ErrRuleViolation            = errors.New("offer rule violation")
	ErrInvalidRequest           = errors.New("invalid request")
	ErrNoPendingRedemption      = errors.New("no pending redemption")
)

// Kind задаёт класс ошибки, определяющий реакцию вызывающей стороны.
type Kind string

const (
	KindEligibility    Kind = "eligibility"
	KindBinding        Kind = "binding"
	KindConcurrency    Kind = "concurrency"
	KindInfrastructure Kind = "infrastructure"
	KindValidation     Kind = "validation"
	KindUnknown        Kind = "unknown"
)

// QuotaExceededError уточняет, какая квота исчерпана.
type QuotaExceededError struct {
	Scope tokenstore.QuotaScope
	Limit int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("redemption quota exceeded: %s limit %d", e.Scope, e.Limit)
}

// Is сопоставляет ошибку с ErrQuotaExceeded.
func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

func quotaError(err error) *QuotaExceededError {
	var qe *tokenstore.QuotaError
	if errors.As(err, &qe) {
		return &QuotaExceededError{Scope: qe.Scope, Limit: qe.Limit}
	}
	return &QuotaExceededError{}
}

// KindOf классифицирует ошибку сервиса.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPersistenceFailure):
		return KindInfrastructure
	case errors.IsAny(err, ErrNotEntitled, ErrOfferNotFound, ErrOfferInactive):
		return KindEligibility
	case errors.IsAny(err, ErrVenueMismatch, ErrTokenNotFound):
		return KindBinding
	case errors.IsAny(err, ErrAlreadyConsumedOrExpired, ErrQuotaExceeded):
		return KindConcurrency
	case errors.IsAny(err, ErrRuleViolation, ErrInvalidRequest, ErrNoPendingRedemption):
		return KindValidation
	default:
		return KindUnknown
	}
}

// IsRetryable сообщает, можно ли повторить вызов с тем же кодом погашения.
func IsRetryable(err error) bool {
	return KindOf(err) == KindInfrastructure
}

// CodeOf возвращает машиночитаемый код ошибки для внешних клиентов.
func CodeOf(err error) string {
	switch {
	case errors.Is(err, ErrPersistenceFailure):
		return "persistence_failure"
	case errors.Is(err, ErrNotEntitled):
		return "not_entitled"
	case errors.Is(err, ErrOfferNotFound):
		return "offer_not_found"
	case errors.Is(err, ErrOfferInactive):
		return "offer_inactive"
	case errors.Is(err, ErrVenueMismatch):
		return "venue_mismatch"
	case errors.Is(err, ErrTokenNotFound):
		return "token_not_found"
	case errors.Is(err, ErrAlreadyConsumedOrExpired):
		return "already_consumed_or_expired"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrRuleViolation):
		return "rule_violation"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrNoPendingRedemption):
		return "no_pending_redemption"
	default:
		return "internal_error"
	}
}

// ReasonOf возвращает уточнение причины отказа, если оно есть.
func ReasonOf(err error) string {
	var ne *subscription.NotEntitledError
	if errors.As(err, &ne) {
		return ne.Reason
	}

	var v *rules.Violation
	if errors.As(err, &v) {
		return string(v.Reason)
	}

	var qe *QuotaExceededError
	if errors.As(err, &qe) {
		return string(qe.Scope)
	}

	return ""
}
