package httpapp

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tonearm/royaltyd/internal/domain"
)

func (h *Handler) respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.Logger.Error("Failed to encode response", "error", err)
	}
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// respondError maps domain errors to HTTP statuses. Internal errors are
// logged with their cause but only a generic message leaves the server.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var validations domain.ValidationErrors
	if errors.As(err, &validations) {
		h.respond(w, http.StatusBadRequest, errorBody{Error: "validation failed", Fields: validations.ToMap()})
		return
	}
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		h.respond(w, http.StatusBadRequest, errorBody{
			Error:  "validation failed",
			Fields: map[string]string{validation.Field: validation.Message},
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.respond(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, domain.ErrConflict):
		h.respond(w, http.StatusConflict, errorBody{Error: "conflict, retry with fresh state"})
	case errors.Is(err, domain.ErrUnauthorized):
		h.respond(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
	case errors.Is(err, domain.ErrForbidden):
		h.respond(w, http.StatusForbidden, errorBody{Error: "forbidden"})
	default:
		var external *domain.ExternalError
		if errors.As(err, &external) {
			h.Logger.Error("External dependency failure", "op", external.Op, "error", err)
			h.respond(w, http.StatusBadGateway, errorBody{Error: "upstream dependency unavailable"})
			return
		}
		h.Logger.Error("Request failed", "error", err)
		h.respond(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func (h *Handler) decode(r *http.Request, into interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return domain.ValidationErrors{{Field: "body", Message: "invalid JSON: " + err.Error()}}
	}
	return nil
}
