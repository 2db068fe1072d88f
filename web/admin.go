package web

import (
	"net/http"

	"github.com/artpar/crmgate/core/schema"
	"github.com/artpar/crmgate/domain/conversion"
	"github.com/artpar/crmgate/domain/role"
	"github.com/go-chi/chi/v5"
)

// requireAdmin authenticates and checks the global admin action. Module and
// role administration is admin-only.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	p, ok := h.principal(w, r)
	if !ok {
		return false
	}
	if !p.Role.IsAdmin() {
		if h.metrics != nil {
			h.metrics.AuthzDenials.WithLabelValues(role.AdminTarget, "admin").Inc()
		}
		writeJSON(w, http.StatusForbidden, errorBody{Error: "admin required", Kind: "forbidden"})
		return false
	}
	return true
}

// handleListModules handles GET /api/modules.
func (h *Handler) handleListModules(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.principal(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.registry.List())
}

type createModuleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// handleCreateModule handles POST /api/modules.
func (h *Handler) handleCreateModule(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req createModuleRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Kind: "bad_request"})
		return
	}

	mod, err := h.registry.CreateModule(r.Context(), req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mod)
}

type updateModuleRequest struct {
	Description string `json:"description"`
}

// handleUpdateModule handles PATCH /api/modules/{id}.
func (h *Handler) handleUpdateModule(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req updateModuleRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Kind: "bad_request"})
		return
	}

	mod, err := h.registry.UpdateModule(r.Context(), chi.URLParam(r, "id"), req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mod)
}

// handleAddField handles POST /api/modules/{id}/fields.
func (h *Handler) handleAddField(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var f schema.FieldMeta
	if err := decodeBody(r, &f); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Kind: "bad_request"})
		return
	}

	mod, err := h.registry.AddField(r.Context(), chi.URLParam(r, "id"), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mod)
}

// handleListRoles handles GET /api/roles.
func (h *Handler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	roles, err := h.roles.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

type roleRequest struct {
	Name    string        `json:"name"`
	Actions []role.Action `json:"actions"`
}

// handleCreateRole handles POST /api/roles.
func (h *Handler) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req roleRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Kind: "bad_request"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "role name is required", Kind: "bad_request"})
		return
	}
	for i := range req.Actions {
		if !req.Actions[i].Type.Valid() {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown action type", Kind: "bad_request"})
			return
		}
		if req.Actions[i].ID == "" {
			req.Actions[i].ID = h.ids.New()
		}
	}

	newRole := role.Role{ID: h.ids.New(), Name: req.Name, Actions: req.Actions}
	if err := h.roles.Create(r.Context(), newRole); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newRole)
}

type updateRoleRequest struct {
	Name    *string        `json:"name"`
	Actions *[]role.Action `json:"actions"`
}

// handleUpdateRole handles PATCH /api/roles/{id}.
func (h *Handler) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req updateRoleRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Kind: "bad_request"})
		return
	}

	cur, err := h.roles.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	if req.Name != nil {
		cur.Name = *req.Name
	}
	if req.Actions != nil {
		for i := range *req.Actions {
			if !(*req.Actions)[i].Type.Valid() {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown action type", Kind: "bad_request"})
				return
			}
			if (*req.Actions)[i].ID == "" {
				(*req.Actions)[i].ID = h.ids.New()
			}
		}
		cur.Actions = *req.Actions
	}

	if err := h.roles.Update(r.Context(), cur); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cur)
}

// handleListRules handles GET /api/rules.
func (h *Handler) handleListRules(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.principal(w, r); !ok {
		return
	}

	rules, err := h.rules.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// handleCreateRule handles POST /api/rules.
func (h *Handler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var rule conversion.Rule
	if err := decodeBody(r, &rule); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Kind: "bad_request"})
		return
	}
	if rule.ID == "" {
		rule.ID = h.ids.New()
	}
	if err := rule.Check(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Kind: "bad_request"})
		return
	}

	if err := h.rules.Create(r.Context(), rule); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}
