package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/boomcard-redemption/internal/service"
)

type operation string

const (
	opIssue     operation = "issue"
	opVerify    operation = "verify"
	opFinalize  operation = "finalize"
	opReconcile operation = "reconcile"
	opHistory   operation = "history"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// statusFor сопоставляет ошибку сервиса HTTP-статусу. Исчерпанная квота при выпуске кода
// считается конфликтом предварительной проверки (409), при погашении возвращается 422.
func statusFor(op operation, code string) int {
	switch code {
	case "invalid_request":
		return http.StatusBadRequest
	case "not_entitled", "venue_mismatch":
		return http.StatusForbidden
	case "offer_not_found", "token_not_found", "no_pending_redemption":
		return http.StatusNotFound
	case "already_consumed_or_expired":
		return http.StatusConflict
	case "quota_exceeded":
		if op == opIssue {
			return http.StatusConflict
		}
		return http.StatusUnprocessableEntity
	case "offer_inactive", "rule_violation":
		return http.StatusUnprocessableEntity
	case "persistence_failure":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, op operation, err error) {
	code := service.CodeOf(err)
	status := statusFor(op, code)

	resp := errorResponse{
		Error:   code,
		Message: err.Error(),
		Reason:  service.ReasonOf(err),
	}

	switch {
	case status >= http.StatusInternalServerError && code != "persistence_failure":
		h.logger.Error(string(op)+" error", zap.Error(err))
		resp.Message = http.StatusText(status)
	case code == "persistence_failure":
		h.logger.Error(string(op)+" persistence failure", zap.Error(err))
		resp.Message = service.ErrPersistenceFailure.Error()
	}

	h.writeJSON(w, status, resp)
}
