package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"

	"srwa/internal/chain"
	"srwa/internal/orders/models"
	"srwa/internal/orders/service"
	"srwa/internal/orders/store"
	dErrors "srwa/pkg/domain-errors"
	"srwa/pkg/platform/httputil"
	request "srwa/pkg/platform/middleware/request"
)

// Service defines the order operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (*models.Order, error)
	Approve(ctx context.Context, address solana.PublicKey) (*models.Order, error)
	Reject(ctx context.Context, address solana.PublicKey, reason string) (*models.Order, error)
	Get(ctx context.Context, address solana.PublicKey) (*models.Order, error)
	List(ctx context.Context, filter store.Filter) ([]*models.Order, error)
	Sync(ctx context.Context, address solana.PublicKey) (*models.Order, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts order creation and reads. Creation only succeeds for
// buyers whose keys the server holds.
func (h *Handler) Register(r chi.Router) {
	r.Post("/orders", h.handleCreate)
	r.Get("/orders", h.handleList)
	r.Get("/orders/{address}", h.handleGet)
}

// RegisterAdmin mounts the transitions; r must already enforce admin auth.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/orders/{address}/approve", h.handleApprove)
	r.Post("/orders/{address}/reject", h.handleReject)
	r.Post("/orders/{address}/sync", h.handleSync)
}

// CreateOrderRequest is the JSON body of POST /orders.
type CreateOrderRequest struct {
	Buyer     string `json:"buyer"`
	Mint      string `json:"mint"`
	Quantity  uint64 `json:"quantity"`
	UnitPrice uint64 `json:"unit_price"`
}

func (r *CreateOrderRequest) Validate() error {
	if r.Buyer == "" || r.Mint == "" {
		return dErrors.New(dErrors.CodeValidation, "buyer and mint are required")
	}
	if r.Quantity == 0 {
		return dErrors.New(dErrors.CodeValidation, "quantity must be greater than zero")
	}
	if r.UnitPrice == 0 {
		return dErrors.New(dErrors.CodeValidation, "unit_price must be greater than zero")
	}
	return nil
}

func (r *CreateOrderRequest) toModel() (service.CreateRequest, error) {
	buyer, err := chain.ParsePublicKey("buyer", r.Buyer)
	if err != nil {
		return service.CreateRequest{}, err
	}
	mint, err := chain.ParsePublicKey("mint", r.Mint)
	if err != nil {
		return service.CreateRequest{}, err
	}
	return service.CreateRequest{Buyer: buyer, Mint: mint, Quantity: r.Quantity, UnitPrice: r.UnitPrice}, nil
}

type RejectOrderRequest struct {
	Reason string `json:"reason"`
}

func (r *RejectOrderRequest) Validate() error {
	if len(r.Reason) > models.MaxRejectionReasonLen {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 200 bytes")
	}
	return nil
}

type listResponse struct {
	Orders []*models.Order `json:"orders"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateOrderRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	in, err := req.toModel()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	o, err := h.service.Create(ctx, in)
	if err != nil {
		h.fail(w, r, "order creation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, o)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	orders, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "order listing failed", err)
		return
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Orders: orders})
}

func parseFilter(r *http.Request) (store.Filter, error) {
	var filter store.Filter
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		status, err := models.ParseStatus(v)
		if err != nil {
			return filter, err
		}
		filter.Status = &status
	}
	if v := q.Get("buyer"); v != "" {
		buyer, err := chain.ParsePublicKey("buyer", v)
		if err != nil {
			return filter, err
		}
		filter.Buyer = &buyer
	}
	if v := q.Get("mint"); v != "" {
		mint, err := chain.ParsePublicKey("mint", v)
		if err != nil {
			return filter, err
		}
		filter.Mint = &mint
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 1000 {
			return filter, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and 1000")
		}
		filter.Limit = limit
	}
	return filter, nil
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "order lookup failed", h.service.Get)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "order approval failed", h.service.Approve)
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "order sync failed", h.service.Sync)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	address, ok := h.address(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RejectOrderRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	o, err := h.service.Reject(ctx, address, req.Reason)
	if err != nil {
		h.fail(w, r, "order rejection failed", err, "order", address.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, msg string, fn func(context.Context, solana.PublicKey) (*models.Order, error)) {
	address, ok := h.address(w, r)
	if !ok {
		return
	}
	o, err := fn(r.Context(), address)
	if err != nil {
		h.fail(w, r, msg, err, "order", address.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) address(w http.ResponseWriter, r *http.Request) (solana.PublicKey, bool) {
	address, err := chain.ParsePublicKey("address", chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return solana.PublicKey{}, false
	}
	return address, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error, attrs ...any) {
	ctx := r.Context()
	level := slog.LevelWarn
	if dErrors.CategoryOf(err) == dErrors.CategoryInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg, append([]any{
		"request_id", request.GetRequestID(ctx),
		"error", err,
	}, attrs...)...)
	httputil.WriteError(w, err)
}
