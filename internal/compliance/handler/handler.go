package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"

	"srwa/internal/chain"
	"srwa/internal/compliance/models"
	dErrors "srwa/pkg/domain-errors"
	"srwa/pkg/platform/httputil"
	request "srwa/pkg/platform/middleware/request"
)

// Service defines the compliance operations exposed over HTTP.
type Service interface {
	Lookup(ctx context.Context, subject solana.PublicKey) (*models.Record, error)
	Attest(ctx context.Context, subject solana.PublicKey, verified bool) (*models.Record, error)
	Revoke(ctx context.Context, subject solana.PublicKey, reason string) (*models.Record, error)
}

// Handler serves compliance record endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the read-only routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/compliance/{subject}", h.handleGet)
}

// RegisterAdmin mounts the write routes; r must already enforce admin auth.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/compliance/{subject}/attest", h.handleAttest)
	r.Post("/compliance/{subject}/revoke", h.handleRevoke)
}

type recordResponse struct {
	Address      string    `json:"address"`
	Subject      string    `json:"subject"`
	Verified     bool      `json:"verified"`
	Active       bool      `json:"active"`
	Cleared      bool      `json:"cleared"`
	RegisteredAt time.Time `json:"registered_at"`
}

func toResponse(rec *models.Record) recordResponse {
	return recordResponse{
		Address:      rec.Address.String(),
		Subject:      rec.Subject.String(),
		Verified:     rec.Verified,
		Active:       rec.Active,
		Cleared:      rec.Cleared(),
		RegisteredAt: rec.RegisteredAt,
	}
}

// AttestRequest carries the external verification outcome.
type AttestRequest struct {
	Verified *bool `json:"verified"`
}

func (r *AttestRequest) Validate() error {
	if r.Verified == nil {
		return dErrors.New(dErrors.CodeValidation, "verified is required")
	}
	return nil
}

type RevokeRequest struct {
	Reason string `json:"reason"`
}

func (r *RevokeRequest) Validate() error {
	if len(r.Reason) > 200 {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 200 bytes")
	}
	return nil
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	rec, err := h.service.Lookup(r.Context(), subject)
	if err != nil {
		h.fail(w, r, "compliance lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) handleAttest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AttestRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	rec, err := h.service.Attest(ctx, subject, *req.Verified)
	if err != nil {
		h.fail(w, r, "compliance attestation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RevokeRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	rec, err := h.service.Revoke(ctx, subject, req.Reason)
	if err != nil {
		h.fail(w, r, "compliance revocation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) subject(w http.ResponseWriter, r *http.Request) (solana.PublicKey, bool) {
	subject, err := chain.ParsePublicKey("subject", chi.URLParam(r, "subject"))
	if err != nil {
		httputil.WriteError(w, err)
		return solana.PublicKey{}, false
	}
	return subject, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	level := slog.LevelWarn
	if dErrors.CategoryOf(err) == dErrors.CategoryInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", request.GetRequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
