package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"

	"srwa/internal/chain"
	"srwa/internal/hook/models"
	dErrors "srwa/pkg/domain-errors"
	"srwa/pkg/platform/httputil"
	request "srwa/pkg/platform/middleware/request"
)

// Service exposes mint hook inspection and provisioning.
type Service interface {
	MintState(ctx context.Context, mint solana.PublicKey) (*models.MintState, error)
	EnsureMetaList(ctx context.Context, mint solana.PublicKey) (*models.MintState, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/mints/{mint}/hook", h.handleGet)
}

// RegisterAdmin mounts provisioning; r must already enforce admin auth.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/mints/{mint}/hook/provision", h.handleProvision)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "mint state lookup failed", h.service.MintState)
}

func (h *Handler) handleProvision(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "meta list provisioning failed", h.service.EnsureMetaList)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, msg string, fn func(context.Context, solana.PublicKey) (*models.MintState, error)) {
	ctx := r.Context()
	mint, err := chain.ParsePublicKey("mint", chi.URLParam(r, "mint"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	state, err := fn(ctx, mint)
	if err != nil {
		level := slog.LevelWarn
		if dErrors.CategoryOf(err) == dErrors.CategoryInternal {
			level = slog.LevelError
		}
		h.logger.Log(ctx, level, msg,
			"request_id", request.GetRequestID(ctx),
			"mint", mint.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, state)
}
