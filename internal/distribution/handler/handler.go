package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"srwa/internal/chain"
	"srwa/internal/distribution/models"
	dErrors "srwa/pkg/domain-errors"
	"srwa/pkg/platform/httputil"
	request "srwa/pkg/platform/middleware/request"
)

type Service interface {
	Distribute(ctx context.Context, req models.Request) (*models.Receipt, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterAdmin mounts the distribution route; r must already enforce admin auth.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/distributions", h.handleDistribute)
}

// DistributeRequest is the JSON body of POST /admin/distributions.
type DistributeRequest struct {
	Mint      string `json:"mint"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Key       string `json:"idempotency_key,omitempty"`
}

func (r *DistributeRequest) Validate() error {
	r.Amount = strings.TrimSpace(r.Amount)
	r.Key = strings.TrimSpace(r.Key)
	if r.Mint == "" || r.Recipient == "" {
		return dErrors.New(dErrors.CodeValidation, "mint and recipient are required")
	}
	if r.Amount == "" {
		return dErrors.New(dErrors.CodeValidation, "amount is required")
	}
	if len(r.Key) > 128 {
		return dErrors.New(dErrors.CodeValidation, "idempotency_key must be at most 128 bytes")
	}
	return nil
}

func (r *DistributeRequest) toModel() (models.Request, error) {
	mint, err := chain.ParsePublicKey("mint", r.Mint)
	if err != nil {
		return models.Request{}, err
	}
	recipient, err := chain.ParsePublicKey("recipient", r.Recipient)
	if err != nil {
		return models.Request{}, err
	}
	return models.Request{Mint: mint, Recipient: recipient, Amount: r.Amount, Key: r.Key}, nil
}

func (h *Handler) handleDistribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[DistributeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	in, err := req.toModel()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	receipt, err := h.service.Distribute(ctx, in)
	if err != nil {
		level := slog.LevelWarn
		if dErrors.CategoryOf(err) == dErrors.CategoryInternal {
			level = slog.LevelError
		}
		h.logger.Log(ctx, level, "distribution failed",
			"request_id", requestID,
			"mint", req.Mint,
			"recipient", req.Recipient,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, receipt)
}
