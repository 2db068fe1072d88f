package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/artpar/crmgate/app"
	"github.com/artpar/crmgate/ports"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// reserved query parameters; everything else is treated as a field filter.
var reservedParams = map[string]bool{
	"search": true,
	"page":   true,
	"limit":  true,
}

// handleQuery handles GET /api/{module} with filters, search and pagination.
func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.principal(w, r); !ok {
		return
	}

	moduleName := chi.URLParam(r, "module")
	opts := queryOptions(r.URL.Query())

	page, err := h.engine.Query(r.Context(), moduleName, opts)
	if err != nil {
		h.countOpErr(moduleName, "query", err)
		writeError(w, err)
		return
	}
	h.countOp(moduleName, "query")
	writeJSON(w, http.StatusOK, page)
}

func queryOptions(values url.Values) ports.QueryOptions {
	opts := ports.QueryOptions{
		Search:  values.Get("search"),
		Filters: make(map[string][]any),
	}
	if p, err := strconv.Atoi(values.Get("page")); err == nil {
		opts.Page = p
	}
	if l, err := strconv.Atoi(values.Get("limit")); err == nil {
		opts.Limit = l
	}
	for key, vals := range values {
		if reservedParams[key] {
			continue
		}
		for _, v := range vals {
			opts.Filters[key] = append(opts.Filters[key], v)
		}
	}
	return opts
}

// handleGet handles GET /api/{module}/{id}.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found", Kind: "not_found"})
		return
	}

	moduleName := chi.URLParam(r, "module")
	ent, err := h.engine.Get(r.Context(), p, moduleName, id)
	if err != nil {
		h.countOpErr(moduleName, "view", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

type createRequest struct {
	Name string         `json:"name"`
	Data map[string]any `json:"data"`
}

// handleCreate handles POST /api/{module}.
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req createRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Kind: "bad_request"})
		return
	}

	moduleName := chi.URLParam(r, "module")
	ent, err := h.engine.Create(r.Context(), p, moduleName, req.Name, req.Data)
	if err != nil {
		h.countOpErr(moduleName, "create", err)
		writeError(w, err)
		return
	}
	h.countOp(moduleName, "create")
	writeJSON(w, http.StatusCreated, ent)
}

type updateRequest struct {
	Name string         `json:"name"`
	Data map[string]any `json:"data"`
}

// handleUpdate handles PATCH /api/{module}/{id}.
func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req updateRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Kind: "bad_request"})
		return
	}

	moduleName := chi.URLParam(r, "module")
	ent, err := h.engine.Update(r.Context(), p, moduleName, chi.URLParam(r, "id"), req.Name, req.Data)
	if err != nil {
		h.countOpErr(moduleName, "update", err)
		writeError(w, err)
		return
	}
	h.countOp(ent.ModuleName, "update")
	writeJSON(w, http.StatusOK, ent)
}

type batchDeleteRequest struct {
	IDs []string `json:"ids"`
}

// handleBatchDelete handles POST /api/{module}/delete. The batch is
// all-or-nothing: one disallowed id fails the whole request.
func (h *Handler) handleBatchDelete(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req batchDeleteRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Kind: "bad_request"})
		return
	}

	moduleName := chi.URLParam(r, "module")
	if err := h.engine.Delete(r.Context(), p, moduleName, req.IDs); err != nil {
		h.countOpErr(moduleName, "delete", err)
		writeError(w, err)
		return
	}
	h.countOp(moduleName, "delete")
	writeJSON(w, http.StatusOK, map[string]int{"deleted": len(req.IDs)})
}

type convertRequest struct {
	RuleID    string         `json:"ruleId"`
	Overrides map[string]any `json:"overrides"`
}

// handleConvert handles POST /api/{module}/{id}/convert.
func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req convertRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Kind: "bad_request"})
		return
	}

	moduleName := chi.URLParam(r, "module")
	links, err := h.converter.Convert(r.Context(), p, moduleName, chi.URLParam(r, "id"), req.RuleID, req.Overrides)
	if err != nil {
		h.countOpErr(moduleName, "convert", err)
		if h.metrics != nil {
			h.metrics.ConversionFailures.WithLabelValues(req.RuleID, errKind(err)).Inc()
		}
		writeError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.Conversions.WithLabelValues(req.RuleID).Inc()
	}
	writeJSON(w, http.StatusOK, map[string]any{"links": links})
}

// handleRelations handles GET /api/relations/{module}: the {id, name}
// projection used by relation pickers.
func (h *Handler) handleRelations(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.principal(w, r); !ok {
		return
	}

	refs, err := h.resolver.ResolveRaw(r.Context(), chi.URLParam(r, "module"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refs)
}

// handleWebhookLead handles POST /webhooks/leads/{source}. The signature
// header carries the hex HMAC-SHA256 of the raw body.
func (h *Handler) handleWebhookLead(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unreadable body", Kind: "bad_request"})
		return
	}

	if err := h.ingestor.VerifySignature(body, r.Header.Get("X-Webhook-Signature")); err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid signature", Kind: "unauthenticated"})
		return
	}

	var payload app.LeadPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid payload", Kind: "bad_request"})
		return
	}

	ent, created, err := h.ingestor.Ingest(r.Context(), source, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, ent)
}

func (h *Handler) countOp(module, op string) {
	if h.metrics != nil {
		h.metrics.EntityOps.WithLabelValues(module, op).Inc()
	}
}

// countOpErr records a failed entity operation, and a gate denial when the
// failure was an authorization one.
func (h *Handler) countOpErr(module, op string, err error) {
	if h.metrics == nil {
		return
	}
	h.metrics.EntityOpErrors.WithLabelValues(module, op, errKind(err)).Inc()
	if errors.Is(err, ports.ErrForbidden) {
		h.metrics.AuthzDenials.WithLabelValues(module, op).Inc()
	}
}
