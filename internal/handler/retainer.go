package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"mizan/internal/models"
	"mizan/internal/retainer"
)

// lawyerHeader carries the authenticated principal. Authentication itself is
// handled upstream of this service.
const lawyerHeader = "X-Lawyer-ID"

// RetainerHandler handles retainer account endpoints.
type RetainerHandler struct {
	engine *retainer.Engine
}

// NewRetainerHandler creates a new retainer handler.
func NewRetainerHandler(engine *retainer.Engine) *RetainerHandler {
	return &RetainerHandler{engine: engine}
}

func principal(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get(lawyerHeader))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func accountID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	return id, err == nil
}

// CreateRetainerRequest represents an account creation request.
type CreateRetainerRequest struct {
	ClientID           uuid.UUID  `json:"clientId"`
	CaseID             *uuid.UUID `json:"caseId,omitempty"`
	RetainerType       string     `json:"retainerType"`
	InitialAmount      string     `json:"initialAmount"`
	MinimumBalance     string     `json:"minimumBalance,omitempty"`
	AutoReplenish      bool       `json:"autoReplenish,omitempty"`
	ReplenishThreshold *string    `json:"replenishThreshold,omitempty"`
	ReplenishAmount    *string    `json:"replenishAmount,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	SeedPaymentID      *uuid.UUID `json:"paymentId,omitempty"`
}

// Create opens a retainer account.
// POST /api/v1/retainers
func (h *RetainerHandler) Create(w http.ResponseWriter, r *http.Request) {
	lawyerID, ok := principal(r)
	if !ok {
		BadRequest(w, "missing or invalid "+lawyerHeader+" header")
		return
	}

	var req CreateRetainerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	initialAmount, err := decimal.NewFromString(req.InitialAmount)
	if err != nil {
		BadRequest(w, "invalid initialAmount")
		return
	}

	minimumBalance := decimal.Zero
	if req.MinimumBalance != "" {
		minimumBalance, err = decimal.NewFromString(req.MinimumBalance)
		if err != nil {
			BadRequest(w, "invalid minimumBalance")
			return
		}
	}

	threshold, ok := parseOptionalDecimal(req.ReplenishThreshold)
	if !ok {
		BadRequest(w, "invalid replenishThreshold")
		return
	}
	replenishAmount, ok := parseOptionalDecimal(req.ReplenishAmount)
	if !ok {
		BadRequest(w, "invalid replenishAmount")
		return
	}

	acct, err := h.engine.Create(r.Context(), lawyerID, retainer.CreateParams{
		ClientID:           req.ClientID,
		CaseID:             req.CaseID,
		RetainerType:       models.RetainerType(req.RetainerType),
		InitialAmount:      initialAmount,
		MinimumBalance:     minimumBalance,
		AutoReplenish:      req.AutoReplenish,
		ReplenishThreshold: threshold,
		ReplenishAmount:    replenishAmount,
		Notes:              req.Notes,
		SeedPaymentID:      req.SeedPaymentID,
	})
	if err != nil {
		DomainError(w, err)
		return
	}

	JSON(w, http.StatusCreated, acct)
}

// Get returns a single account.
// GET /api/v1/retainers/{id}
func (h *RetainerHandler) Get(w http.ResponseWriter, r *http.Request) {
	lawyerID, ok := principal(r)
	if !ok {
		BadRequest(w, "missing or invalid "+lawyerHeader+" header")
		return
	}
	id, ok := accountID(r)
	if !ok {
		BadRequest(w, "invalid retainer account ID")
		return
	}

	acct, err := h.engine.Get(r.Context(), lawyerID, id)
	if err != nil {
		DomainError(w, err)
		return
	}

	JSON(w, http.StatusOK, acct)
}

// ConsumeRequest represents a consumption request.
type ConsumeRequest struct {
	Amount         string     `json:"amount"`
	InvoiceID      *uuid.UUID `json:"invoiceId,omitempty"`
	Description    string     `json:"description,omitempty"`
	IdempotencyKey string     `json:"idempotencyKey,omitempty"`
}

// Consume debits the account.
// POST /api/v1/retainers/{id}/consume
func (h *RetainerHandler) Consume(w http.ResponseWriter, r *http.Request) {
	lawyerID, ok := principal(r)
	if !ok {
		BadRequest(w, "missing or invalid "+lawyerHeader+" header")
		return
	}
	id, ok := accountID(r)
	if !ok {
		BadRequest(w, "invalid retainer account ID")
		return
	}

	var req ConsumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		BadRequest(w, "invalid amount")
		return
	}

	result, err := h.engine.Consume(r.Context(), lawyerID, id, retainer.ConsumeParams{
		Amount:         amount,
		InvoiceID:      req.InvoiceID,
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		DomainError(w, err)
		return
	}

	JSON(w, http.StatusOK, result)
}

// ReplenishRequest represents a replenishment request.
type ReplenishRequest struct {
	Amount         string     `json:"amount"`
	PaymentID      *uuid.UUID `json:"paymentId,omitempty"`
	IdempotencyKey string     `json:"idempotencyKey,omitempty"`
}

// Replenish credits the account.
// POST /api/v1/retainers/{id}/replenish
func (h *RetainerHandler) Replenish(w http.ResponseWriter, r *http.Request) {
	lawyerID, ok := principal(r)
	if !ok {
		BadRequest(w, "missing or invalid "+lawyerHeader+" header")
		return
	}
	id, ok := accountID(r)
	if !ok {
		BadRequest(w, "invalid retainer account ID")
		return
	}

	var req ReplenishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		BadRequest(w, "invalid amount")
		return
	}

	result, err := h.engine.Replenish(r.Context(), lawyerID, id, retainer.ReplenishParams{
		Amount:         amount,
		PaymentID:      req.PaymentID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		DomainError(w, err)
		return
	}

	JSON(w, http.StatusOK, result)
}

// RefundRequest represents a refund request.
type RefundRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Refund zeroes the account and marks it refunded.
// POST /api/v1/retainers/{id}/refund
func (h *RetainerHandler) Refund(w http.ResponseWriter, r *http.Request) {
	lawyerID, ok := principal(r)
	if !ok {
		BadRequest(w, "missing or invalid "+lawyerHeader+" header")
		return
	}
	id, ok := accountID(r)
	if !ok {
		BadRequest(w, "invalid retainer account ID")
		return
	}

	var req RefundRequest
	if r.Body != nil {
		// Body is optional for refunds.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := h.engine.Refund(r.Context(), lawyerID, id, req.Reason)
	if err != nil {
		DomainError(w, err)
		return
	}

	JSON(w, http.StatusOK, result)
}

// History returns the merged deposit/consumption ledger, newest first.
// GET /api/v1/retainers/{id}/history
func (h *RetainerHandler) History(w http.ResponseWriter, r *http.Request) {
	lawyerID, ok := principal(r)
	if !ok {
		BadRequest(w, "missing or invalid "+lawyerHeader+" header")
		return
	}
	id, ok := accountID(r)
	if !ok {
		BadRequest(w, "invalid retainer account ID")
		return
	}

	view, err := h.engine.History(r.Context(), lawyerID, id)
	if err != nil {
		DomainError(w, err)
		return
	}

	JSON(w, http.StatusOK, view.Entries())
}

// List returns a page of the lawyer's accounts with per-status totals.
// GET /api/v1/retainers
func (h *RetainerHandler) List(w http.ResponseWriter, r *http.Request) {
	lawyerID, ok := principal(r)
	if !ok {
		BadRequest(w, "missing or invalid "+lawyerHeader+" header")
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	page, err := h.engine.List(r.Context(), lawyerID, filter)
	if err != nil {
		DomainError(w, err)
		return
	}

	JSON(w, http.StatusOK, page)
}

// LowBalance returns active accounts at or below their minimum balance.
// GET /api/v1/retainers/alerts/low-balance
func (h *RetainerHandler) LowBalance(w http.ResponseWriter, r *http.Request) {
	lawyerID, ok := principal(r)
	if !ok {
		BadRequest(w, "missing or invalid "+lawyerHeader+" header")
		return
	}

	accounts, err := h.engine.LowBalance(r.Context(), lawyerID)
	if err != nil {
		DomainError(w, err)
		return
	}

	JSON(w, http.StatusOK, accounts)
}

// NeedsReplenishment returns accounts whose auto-replenish signal fires.
// GET /api/v1/retainers/alerts/needs-replenishment
func (h *RetainerHandler) NeedsReplenishment(w http.ResponseWriter, r *http.Request) {
	lawyerID, ok := principal(r)
	if !ok {
		BadRequest(w, "missing or invalid "+lawyerHeader+" header")
		return
	}

	accounts, err := h.engine.NeedsReplenishment(r.Context(), lawyerID)
	if err != nil {
		DomainError(w, err)
		return
	}

	JSON(w, http.StatusOK, accounts)
}

func parseOptionalDecimal(s *string) (*decimal.Decimal, bool) {
	if s == nil {
		return nil, true
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, false
	}
	return &d, true
}

func parseFilter(r *http.Request) (models.RetainerFilter, error) {
	var filter models.RetainerFilter
	q := r.URL.Query()

	if v := q.Get("status"); v != "" {
		status := models.RetainerStatus(v)
		if !status.Valid() {
			return filter, &retainer.ValidationError{Field: "status", Reason: "unknown status"}
		}
		filter.Status = &status
	}
	if v := q.Get("type"); v != "" {
		t := models.RetainerType(v)
		if !t.Valid() {
			return filter, &retainer.ValidationError{Field: "type", Reason: "unknown type"}
		}
		filter.Type = &t
	}
	if v := q.Get("client_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, &retainer.ValidationError{Field: "client_id", Reason: "invalid UUID"}
		}
		filter.ClientID = &id
	}
	if v := q.Get("case_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, &retainer.ValidationError{Field: "case_id", Reason: "invalid UUID"}
		}
		filter.CaseID = &id
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, &retainer.ValidationError{Field: "limit", Reason: "invalid integer"}
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, &retainer.ValidationError{Field: "offset", Reason: "invalid integer"}
		}
		filter.Offset = n
	}

	return filter, nil
}
