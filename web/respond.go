package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/artpar/crmgate/core/convert"
	"github.com/artpar/crmgate/core/schema"
	"github.com/artpar/crmgate/ports"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error  string             `json:"error"`
	Kind   string             `json:"kind"`
	Fields []schema.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine errors onto HTTP statuses. Validation failures
// carry their field detail verbatim; not-found and forbidden stay distinct
// signals.
func writeError(w http.ResponseWriter, err error) {
	var vr schema.ValidationResult
	if errors.As(err, &vr) {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:  vr.Error(),
			Kind:   "validation",
			Fields: vr.Errors,
		})
		return
	}

	var mapErr *convert.MappingError
	if errors.As(err, &mapErr) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: mapErr.Error(), Kind: "conversion_mapping"})
		return
	}

	switch {
	case errors.Is(err, ports.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Kind: "not_found"})
	case errors.Is(err, ports.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error(), Kind: "forbidden"})
	case errors.Is(err, ports.ErrAlreadyConverted):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Kind: "already_converted"})
	case errors.Is(err, ports.ErrDuplicate):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Kind: "duplicate"})
	case errors.Is(err, ports.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Kind: "conflict"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Kind: "internal"})
	}
}

// errKind classifies an error the same way writeError does, for metric
// labels.
func errKind(err error) string {
	var vr schema.ValidationResult
	if errors.As(err, &vr) {
		return "validation"
	}
	var mapErr *convert.MappingError
	if errors.As(err, &mapErr) {
		return "conversion_mapping"
	}
	switch {
	case errors.Is(err, ports.ErrNotFound):
		return "not_found"
	case errors.Is(err, ports.ErrForbidden):
		return "forbidden"
	case errors.Is(err, ports.ErrAlreadyConverted):
		return "already_converted"
	case errors.Is(err, ports.ErrDuplicate):
		return "duplicate"
	case errors.Is(err, ports.ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
