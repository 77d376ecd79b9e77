package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/example/pos-ledger/internal/api/middleware"
	"github.com/example/pos-ledger/internal/auth"
	"github.com/example/pos-ledger/internal/command"
	"github.com/example/pos-ledger/internal/domain/inventory"
	"github.com/example/pos-ledger/internal/domain/order"
	"github.com/example/pos-ledger/internal/idempotency"
	"github.com/example/pos-ledger/internal/infrastructure/store"
	"github.com/example/pos-ledger/internal/query"
	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
	authService  *auth.Service
	idempotency  idempotency.Store
}

// NewHandlers builds the HTTP handlers. idem may be nil, in which case Idempotency-Key is ignored.
func NewHandlers(cmdHandler *command.Handler, queryHandler *query.Handler, authService *auth.Service, idem idempotency.Store) *Handlers {
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
		authService:  authService,
		idempotency:  idem,
	}
}

// Auth Handlers

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "Invalid request body")
		return
	}

	session, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

// Order Handlers

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var cmd command.CreateOrder
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		respondBadRequest(w, "Invalid request body")
		return
	}
	cmd.UserID = middleware.GetUserID(r.Context())

	key := idempotency.Key(r)
	if key == "" || h.idempotency == nil {
		o, err := h.cmdHandler.CreateOrder(r.Context(), cmd)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, o)
		return
	}
	if len(key) > idempotency.MaxKeyLength {
		respondBadRequest(w, "Idempotency-Key is too long")
		return
	}
	h.createOrderOnce(w, r, cmd, cmd.UserID+":"+key)
}

// createOrderOnce creates at most one order per key. A repeated key answers with the order
// the first request created.
func (h *Handlers) createOrderOnce(w http.ResponseWriter, r *http.Request, cmd command.CreateOrder, key string) {
	ctx := r.Context()

	orderID, reserved, err := h.idempotency.Reserve(ctx, key)
	if errors.Is(err, idempotency.ErrInProgress) {
		respondJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "IDEMPOTENCY_IN_PROGRESS"})
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !reserved {
		o, err := h.queryHandler.GetOrder(ctx, orderID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		w.Header().Set("Idempotent-Replayed", "true")
		respondJSON(w, http.StatusOK, o)
		return
	}

	o, err := h.cmdHandler.CreateOrder(ctx, cmd)

	// The key must be settled even when the client has gone away.
	settleCtx := context.WithoutCancel(ctx)
	if err != nil {
		if relErr := h.idempotency.Release(settleCtx, key); relErr != nil {
			log.Printf("[API] Failed to release idempotency key: %v", relErr)
		}
		respondError(w, r, err)
		return
	}
	if err := h.idempotency.Complete(settleCtx, key, o.ID); err != nil {
		log.Printf("[API] Failed to store idempotency key for %s: %v", o.Number, err)
	}
	respondJSON(w, http.StatusCreated, o)
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.OrderFilter{
		Status:        order.Status(q.Get("status")),
		PaymentStatus: order.PaymentStatus(q.Get("payment_status")),
		PaymentMethod: order.PaymentMethod(q.Get("payment_method")),
		CustomerID:    q.Get("customer_id"),
		NumberLike:    q.Get("number"),
	}
	var err error
	if filter.Page, err = parsePage(q); err != nil {
		respondBadRequest(w, err.Error())
		return
	}
	if filter.From, err = parseTime(q.Get("from"), false); err != nil {
		respondBadRequest(w, "Invalid from: "+err.Error())
		return
	}
	if filter.To, err = parseTime(q.Get("to"), true); err != nil {
		respondBadRequest(w, "Invalid to: "+err.Error())
		return
	}

	orders, err := h.queryHandler.ListOrders(r.Context(), filter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.queryHandler.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) GetOrderByNumber(w http.ResponseWriter, r *http.Request) {
	o, err := h.queryHandler.GetOrderByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.cmdHandler.ConfirmOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var cmd command.CancelOrder
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		respondBadRequest(w, "Invalid request body")
		return
	}
	cmd.OrderID = chi.URLParam(r, "id")
	cmd.UserID = middleware.GetUserID(r.Context())

	o, err := h.cmdHandler.CancelOrder(r.Context(), cmd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) DeliverOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.cmdHandler.MarkDelivered(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Inventory Handlers

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.queryHandler.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) VerifyLedger(w http.ResponseWriter, r *http.Request) {
	report, err := h.queryHandler.VerifyLedger(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *Handlers) RegisterMovement(w http.ResponseWriter, r *http.Request) {
	var cmd command.RegisterMovement
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		respondBadRequest(w, "Invalid request body")
		return
	}
	cmd.UserID = middleware.GetUserID(r.Context())

	m, err := h.cmdHandler.RegisterMovement(r.Context(), cmd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

func (h *Handlers) ListMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := parsePage(q)
	if err != nil {
		respondBadRequest(w, err.Error())
		return
	}
	movements, err := h.queryHandler.ListMovements(r.Context(), store.MovementFilter{
		Page:      page,
		ProductID: q.Get("product_id"),
		Type:      inventory.MovementType(q.Get("type")),
		UserID:    q.Get("user_id"),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, movements)
}

func (h *Handlers) GetMovement(w http.ResponseWriter, r *http.Request) {
	m, err := h.queryHandler.GetMovement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// parseTime accepts RFC 3339 or a plain date. A plain date used as an upper bound covers the whole day.
// defaultPageSize applies when a list request has no limit.
const defaultPageSize = 50

func parsePage(q url.Values) (store.Page, error) {
	page := store.Page{Limit: defaultPageSize}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return store.Page{}, errors.New("Invalid limit: " + raw)
		}
		page.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return store.Page{}, errors.New("Invalid offset: " + raw)
		}
		page.Offset = n
	}
	return page, nil
}

func parseTime(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
