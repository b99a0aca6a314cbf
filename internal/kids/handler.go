// Package kids exposes parent-facing management of kid profiles: creating a
// profile, listing the household's kids and setting a kid's PIN. Access is
// gated by the policy engine's principals rules, not by inline role checks.
package kids

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/choreboard/choreboard/internal/identity"
	"github.com/choreboard/choreboard/internal/platform/httpx"
	"github.com/choreboard/choreboard/internal/policy"
	"github.com/choreboard/choreboard/internal/session"
	"github.com/choreboard/choreboard/internal/shared"
)

// ResourcePrincipals names the principals collection in the policy engine.
const ResourcePrincipals = "principals"

// principalRow adapts a principal to the policy engine's row shape. A
// principal owns its own row.
type principalRow struct {
	id int64
}

func (p principalRow) PolicyOwnerID() int64 {
	return p.id
}

// Handler wires HTTP endpoints for kid profile management.
type Handler struct {
	logger    *slog.Logger
	service   *identity.Service
	engine    *policy.Engine
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *identity.Service, engine *policy.Engine) *Handler {
	return &Handler{logger: logger, service: service, engine: engine, validator: validator.New()}
}

// MountRoutes registers kid management routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/kids", func(r chi.Router) {
		r.Get("/", h.listKids)
		r.Post("/", h.createKid)
		r.Put("/{id}/pin", h.setPIN)
	})
}

type createKidRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Email string `json:"email" validate:"omitempty,email"`
}

type setPINRequest struct {
	PIN string `json:"pin" validate:"required"`
}

type kidResponse struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	HasPIN bool   `json:"hasPin"`
}

func (h *Handler) listKids(w http.ResponseWriter, r *http.Request) {
	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	if scope := h.engine.Scope(claims, ResourcePrincipals, policy.ActionSelect); scope.Kind != policy.ScopeAll {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	items, err := h.service.ListKids(r.Context())
	if err != nil {
		h.fail(w, "list kids", err)
		return
	}
	out := make([]kidResponse, 0, len(items))
	for _, k := range items {
		out = append(out, kidResponse{ID: k.ID, Name: k.Name, Email: k.Email, HasPIN: k.PINHash != ""})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createKid(w http.ResponseWriter, r *http.Request) {
	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var req createKidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.engine.Allow(r.Context(), claims, ResourcePrincipals, policy.ActionInsert, principalRow{}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.CreateKid(r.Context(), req.Name, req.Email)
	if err != nil {
		h.fail(w, "create kid", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, kidResponse{ID: created.ID, Name: created.Name, Email: created.Email})
}

func (h *Handler) setPIN(w http.ResponseWriter, r *http.Request) {
	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	var req setPINRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.engine.Allow(r.Context(), claims, ResourcePrincipals, policy.ActionUpdate, principalRow{id: id}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.SetPIN(r.Context(), id, req.PIN); err != nil {
		h.fail(w, "set pin", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
