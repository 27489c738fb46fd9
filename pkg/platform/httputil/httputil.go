package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "srwa/pkg/domain-errors"
)

// maxBodyBytes bounds request bodies accepted by DecodeAndPrepare.
const maxBodyBytes = 1 << 20

// Validatable is implemented by request DTOs that normalise and check themselves.
type Validatable[T any] interface {
	*T
	Validate() error
}

type errorResponse struct {
	Error            string `json:"error"`
	Category         string `json:"category,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a domain error to a status code and a JSON error body.
// Internal errors never leak their message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := StatusFor(code)

	resp := errorResponse{Error: string(code)}
	if code != dErrors.CodeInternal {
		resp.Category = string(code.Category())
		resp.ErrorDescription = err.Error()
	}
	WriteJSON(w, status, resp)
}

// StatusFor returns the HTTP status used for a domain error code.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeConfirmationTimeout, dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	}

	switch code.Category() {
	case dErrors.CategoryValidation:
		return http.StatusBadRequest
	case dErrors.CategoryConflict:
		return http.StatusConflict
	case dErrors.CategoryAccountState, dErrors.CategoryCompliance, dErrors.CategoryOnChain:
		return http.StatusUnprocessableEntity
	case dErrors.CategoryHookResolution:
		return http.StatusFailedDependency
	case dErrors.CategorySubmission:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// DecodeAndPrepare decodes a JSON body into T and runs its Validate method.
// On failure it writes the error response and returns false.
func DecodeAndPrepare[T any, PT Validatable[T]](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	req := new(T)
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		logger.WarnContext(ctx, "failed to decode request body",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return nil, false
	}

	if err := PT(req).Validate(); err != nil {
		logger.WarnContext(ctx, "request validation failed",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, err)
		return nil, false
	}
	return req, true
}
