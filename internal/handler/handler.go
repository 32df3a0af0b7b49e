// Package handler содержит HTTP-обработчики API погашения скидок.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/boomcard-redemption/internal/middleware"
	"github.com/mmeshcher/boomcard-redemption/internal/model"
	"github.com/mmeshcher/boomcard-redemption/internal/service"
	"github.com/mmeshcher/boomcard-redemption/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Issue(ctx context.Context, userID, offerID string, now time.Time) (*model.RedemptionToken, error)
	Verify(ctx context.Context, code, venueID string, bill model.Money, category string, now time.Time) (*service.Preview, error)
	Finalize(ctx context.Context, code, venueID string, bill model.Money, category string, now time.Time) (*model.Transaction, error)
	Reconcile(ctx context.Context, code string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, userID string) (*model.UserHistory, error)
}

// Handler реализует HTTP-обработчики API погашения скидок.
type Handler struct {
	service      Service
	logger       *zap.Logger
	terminalAuth *middleware.TerminalAuth
	corsOrigins  []string
	now          func() time.Time
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.TerminalAuth, corsOrigins []string) *Handler {
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	return &Handler{
		service:      s,
		logger:       logger,
		terminalAuth: auth,
		corsOrigins:  corsOrigins,
		now:          time.Now,
	}
}

type issueRequest struct {
	UserID  string `json:"userId"`
	OfferID string `json:"offerId"`
}

type issueResponse struct {
	Code      string    `json:"code"`
	QRPayload string    `json:"qrPayload"`
	OfferID   string    `json:"offerId"`
	VenueID   string    `json:"venueId"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Issue выпускает код погашения для пользователя.
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, opIssue, service.ErrInvalidRequest)
		return
	}

	token, err := h.service.Issue(r.Context(), req.UserID, req.OfferID, h.now())
	if err != nil {
		h.writeError(w, opIssue, err)
		return
	}

	h.writeJSON(w, http.StatusOK, issueResponse{
		Code:      token.Code,
		QRPayload: validation.EncodePayload(token.Code),
		OfferID:   token.OfferID,
		VenueID:   token.VenueID,
		IssuedAt:  token.IssuedAt,
		ExpiresAt: token.ExpiresAt,
	})
}

type terminalRequest struct {
	Code       string       `json:"code"`
	VenueID    string       `json:"venueId"`
	BillAmount *model.Money `json:"billAmount"`
	Category   string       `json:"category"`
}

func (h *Handler) decodeTerminalRequest(r *http.Request) (*terminalRequest, error) {
	var req terminalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, service.ErrInvalidRequest
	}
	if strings.TrimSpace(req.Code) == "" || req.BillAmount == nil {
		return nil, service.ErrInvalidRequest
	}

	venueID, err := resolveVenue(r.Context(), req.VenueID)
	if err != nil {
		return nil, err
	}
	req.VenueID = venueID

	return &req, nil
}

// resolveVenue сверяет заведение из тела запроса с заведением терминала, если терминал аутентифицирован.
func resolveVenue(ctx context.Context, bodyVenue string) (string, error) {
	bodyVenue = strings.TrimSpace(bodyVenue)

	venue, ok := middleware.VenueFromContext(ctx)
	if !ok {
		return bodyVenue, nil
	}
	if bodyVenue != "" && bodyVenue != venue {
		return "", service.ErrVenueMismatch
	}
	return venue, nil
}

type verifyResponse struct {
	OfferID        string      `json:"offerId"`
	UserID         string      `json:"userId"`
	VenueID        string      `json:"venueId"`
	OriginalAmount model.Money `json:"originalAmount"`
	DiscountAmount model.Money `json:"discountAmount"`
	FinalAmount    model.Money `json:"finalAmount"`
	ExpiresAt      time.Time   `json:"expiresAt"`
}

// Verify возвращает предварительный расчёт скидки, не погашая код.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeTerminalRequest(r)
	if err != nil {
		h.writeError(w, opVerify, err)
		return
	}

	preview, err := h.service.Verify(r.Context(), req.Code, req.VenueID, *req.BillAmount, req.Category, h.now())
	if err != nil {
		h.writeError(w, opVerify, err)
		return
	}

	h.writeJSON(w, http.StatusOK, verifyResponse{
		OfferID:        preview.OfferID,
		UserID:         preview.UserID,
		VenueID:        preview.VenueID,
		OriginalAmount: preview.OriginalAmount,
		DiscountAmount: preview.DiscountAmount,
		FinalAmount:    preview.FinalAmount,
		ExpiresAt:      preview.ExpiresAt,
	})
}

type transactionResponse struct {
	ID             string      `json:"id"`
	UserID         string      `json:"userId"`
	OfferID        string      `json:"offerId"`
	VenueID        string      `json:"venueId"`
	RedemptionCode string      `json:"redemptionCode"`
	OriginalAmount model.Money `json:"originalAmount"`
	DiscountAmount model.Money `json:"discountAmount"`
	FinalAmount    model.Money `json:"finalAmount"`
	Category       string      `json:"category,omitempty"`
	Status         string      `json:"status"`
	RejectReason   string      `json:"rejectReason,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

func newTransactionResponse(tx model.Transaction) transactionResponse {
	return transactionResponse{
		ID:             tx.ID,
		UserID:         tx.UserID,
		OfferID:        tx.OfferID,
		VenueID:        tx.VenueID,
		RedemptionCode: tx.RedemptionCode,
		OriginalAmount: tx.OriginalAmount,
		DiscountAmount: tx.DiscountAmount,
		FinalAmount:    tx.FinalAmount,
		Category:       tx.Category,
		Status:         string(tx.Status),
		RejectReason:   tx.RejectReason,
		CreatedAt:      tx.CreatedAt,
	}
}

// Finalize погашает код и возвращает сохранённую транзакцию.
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeTerminalRequest(r)
	if err != nil {
		h.writeError(w, opFinalize, err)
		return
	}

	tx, err := h.service.Finalize(r.Context(), req.Code, req.VenueID, *req.BillAmount, req.Category, h.now())
	if err != nil {
		h.writeError(w, opFinalize, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newTransactionResponse(*tx))
}

type reconcileRequest struct {
	Code string `json:"code"`
}

// Reconcile повторно сохраняет транзакцию, отложенную после сбоя погашения.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		h.writeError(w, opReconcile, service.ErrInvalidRequest)
		return
	}

	tx, err := h.service.Reconcile(r.Context(), req.Code)
	if err != nil {
		h.writeError(w, opReconcile, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newTransactionResponse(*tx))
}

type historyResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	TotalSavings model.Money           `json:"totalSavings"`
}

// GetTransactions возвращает историю погашений пользователя.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	history, err := h.service.ListTransactions(r.Context(), userID)
	if err != nil {
		h.writeError(w, opHistory, err)
		return
	}

	if len(history.Transactions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := historyResponse{
		Transactions: make([]transactionResponse, 0, len(history.Transactions)),
		TotalSavings: history.TotalSavings,
	}
	for _, tx := range history.Transactions {
		resp.Transactions = append(resp.Transactions, newTransactionResponse(tx))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}
