package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mizan/internal/handler"
	"mizan/internal/models"
	"mizan/internal/repository"
	"mizan/internal/retainer"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testAPI struct {
	router   chi.Router
	lawyerID uuid.UUID
	payments repository.StaticPayments
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	payments := repository.StaticPayments{}
	engine := retainer.NewEngine(retainer.Config{
		Store:    repository.NewMemory(),
		Payments: payments,
		Cases:    repository.StaticCases{},
	})

	h := handler.NewRetainerHandler(engine)
	r := chi.NewRouter()
	r.Route("/api/v1/retainers", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/alerts/low-balance", h.LowBalance)
		r.Get("/alerts/needs-replenishment", h.NeedsReplenishment)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Get("/history", h.History)
			r.Post("/consume", h.Consume)
			r.Post("/replenish", h.Replenish)
			r.Post("/refund", h.Refund)
		})
	})

	return &testAPI{
		router:   r,
		lawyerID: uuid.New(),
		payments: payments,
	}
}

func (api *testAPI) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Lawyer-ID", api.lawyerID.String())
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func (api *testAPI) createAccount(t *testing.T, initialAmount string) *models.RetainerAccount {
	t.Helper()

	w, env := api.do(t, http.MethodPost, "/api/v1/retainers", map[string]any{
		"clientId":      uuid.New(),
		"retainerType":  "general",
		"initialAmount": initialAmount,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var acct models.RetainerAccount
	require.NoError(t, json.Unmarshal(env.Data, &acct))
	return &acct
}

func TestCreateEndpoint(t *testing.T) {
	api := newTestAPI(t)
	acct := api.createAccount(t, "1000")

	assert.Equal(t, models.RetainerStatusActive, acct.Status)
	assert.Equal(t, "1000", acct.CurrentBalance.String())
	assert.Len(t, acct.Deposits, 1)
	assert.NotEmpty(t, acct.Number)
}

func TestCreateEndpointValidation(t *testing.T) {
	api := newTestAPI(t)

	w, env := api.do(t, http.MethodPost, "/api/v1/retainers", map[string]any{
		"clientId":      uuid.New(),
		"retainerType":  "general",
		"initialAmount": "not-a-number",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)

	w, env = api.do(t, http.MethodPost, "/api/v1/retainers", map[string]any{
		"retainerType":  "general",
		"initialAmount": "100",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
}

func TestMissingPrincipalHeader(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/retainers", nil)
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConsumeEndpoint(t *testing.T) {
	api := newTestAPI(t)
	acct := api.createAccount(t, "1000")

	w, env := api.do(t, http.MethodPost, fmt.Sprintf("/api/v1/retainers/%s/consume", acct.ID), map[string]any{
		"amount":      "400",
		"description": "hearing preparation",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result retainer.MutationResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "600", result.Account.CurrentBalance.String())
	assert.False(t, result.LowBalanceAlert)
}

func TestConsumeInsufficientBalanceEndpoint(t *testing.T) {
	api := newTestAPI(t)
	acct := api.createAccount(t, "100")

	w, env := api.do(t, http.MethodPost, fmt.Sprintf("/api/v1/retainers/%s/consume", acct.ID), map[string]any{
		"amount": "250",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INSUFFICIENT_BALANCE", env.Error.Code)
}

func TestRefundAndInvalidStateEndpoint(t *testing.T) {
	api := newTestAPI(t)
	acct := api.createAccount(t, "250")

	w, env := api.do(t, http.MethodPost, fmt.Sprintf("/api/v1/retainers/%s/refund", acct.ID), map[string]any{
		"reason": "engagement ended",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result retainer.RefundResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "250", result.RefundAmount.String())
	assert.Equal(t, models.RetainerStatusRefunded, result.Account.Status)

	// Consuming after refund is an invalid-state rejection.
	w, env = api.do(t, http.MethodPost, fmt.Sprintf("/api/v1/retainers/%s/consume", acct.ID), map[string]any{
		"amount": "1",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_STATE", env.Error.Code)

	// Replenishing revives the account.
	w, env = api.do(t, http.MethodPost, fmt.Sprintf("/api/v1/retainers/%s/replenish", acct.ID), map[string]any{
		"amount": "100",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var replenished retainer.MutationResult
	require.NoError(t, json.Unmarshal(env.Data, &replenished))
	assert.Equal(t, models.RetainerStatusActive, replenished.Account.Status)
	assert.Equal(t, "100", replenished.Account.CurrentBalance.String())
}

func TestReplenishPaymentNotCompletedEndpoint(t *testing.T) {
	api := newTestAPI(t)
	acct := api.createAccount(t, "100")

	w, env := api.do(t, http.MethodPost, fmt.Sprintf("/api/v1/retainers/%s/replenish", acct.ID), map[string]any{
		"amount":    "50",
		"paymentId": uuid.New(),
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "PAYMENT_NOT_COMPLETED", env.Error.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	api := newTestAPI(t)
	acct := api.createAccount(t, "1000")

	_, _ = api.do(t, http.MethodPost, fmt.Sprintf("/api/v1/retainers/%s/consume", acct.ID), map[string]any{
		"amount": "300",
	})

	w, env := api.do(t, http.MethodGet, fmt.Sprintf("/api/v1/retainers/%s/history", acct.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var entries []retainer.LedgerEntry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.Len(t, entries, 2)

	// Newest first: the consumption precedes the seed deposit.
	assert.Equal(t, models.EntryKindConsumption, entries[0].Kind)
	assert.Equal(t, "-300", entries[0].Amount.String())
	assert.Equal(t, models.EntryKindDeposit, entries[1].Kind)
	assert.Equal(t, "1000", entries[1].Amount.String())
}

func TestNotFoundEndpoint(t *testing.T) {
	api := newTestAPI(t)

	w, env := api.do(t, http.MethodGet, fmt.Sprintf("/api/v1/retainers/%s", uuid.New()), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestListEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.createAccount(t, "300")
	api.createAccount(t, "700")

	w, env := api.do(t, http.MethodGet, "/api/v1/retainers", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page retainer.Page
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Len(t, page.Accounts, 2)
	require.Len(t, page.Totals, 1)
	assert.Equal(t, models.RetainerStatusActive, page.Totals[0].Status)
	assert.EqualValues(t, 2, page.Totals[0].Count)
	assert.Equal(t, "1000", page.Totals[0].Balance.String())

	w, env = api.do(t, http.MethodGet, "/api/v1/retainers?status=closed", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
