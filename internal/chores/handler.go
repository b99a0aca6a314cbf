package chores

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/choreboard/choreboard/internal/platform/httpx"
	"github.com/choreboard/choreboard/internal/session"
	"github.com/choreboard/choreboard/internal/shared"
)

// Handler wires HTTP endpoints for chores and assignments.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers chore routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/chores", func(r chi.Router) {
		r.Get("/", h.listChores)
		r.Post("/", h.createChore)
		r.Put("/{id}", h.updateChore)
		r.Delete("/{id}", h.deleteChore)
	})
	r.Route("/assignments", func(r chi.Router) {
		r.Get("/", h.listAssignments)
		r.Post("/", h.createAssignment)
		r.Get("/summary", h.rewardSummary)
		r.Get("/{id}", h.getAssignment)
		r.Post("/{id}/complete", h.completeAssignment)
		r.Delete("/{id}", h.deleteAssignment)
	})
}

type choreRequest struct {
	Title       string `json:"title" validate:"required,max=120"`
	Description string `json:"description" validate:"max=1000"`
	Points      int    `json:"points" validate:"gte=0,lte=1000"`
}

type choreResponse struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Points      int    `json:"points"`
}

type assignmentRequest struct {
	ChoreID int64  `json:"choreId" validate:"required,gt=0"`
	KidID   int64  `json:"kidId" validate:"required,gt=0"`
	DueOn   string `json:"dueOn" validate:"required,datetime=2006-01-02"`
}

type assignmentResponse struct {
	ID          int64      `json:"id"`
	ChoreID     int64      `json:"choreId"`
	KidID       int64      `json:"kidId"`
	Status      string     `json:"status"`
	Points      int        `json:"points"`
	DueOn       string     `json:"dueOn"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func (h *Handler) listChores(w http.ResponseWriter, r *http.Request) {
	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	items, err := h.service.ListChores(r.Context(), claims)
	if err != nil {
		h.fail(w, "list chores", err)
		return
	}
	out := make([]choreResponse, 0, len(items))
	for _, c := range items {
		out = append(out, choreResponse{ID: c.ID, Title: c.Title, Description: c.Description, Points: c.Points})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createChore(w http.ResponseWriter, r *http.Request) {
	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var req choreRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.CreateChore(r.Context(), claims, req.Title, req.Description, req.Points)
	if err != nil {
		h.fail(w, "create chore", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, choreResponse{ID: created.ID, Title: created.Title, Description: created.Description, Points: created.Points})
}

func (h *Handler) updateChore(w http.ResponseWriter, r *http.Request) {
	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	var req choreRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err = h.service.UpdateChore(r.Context(), claims, Chore{ID: id, Title: req.Title, Description: req.Description, Points: req.Points})
	if err != nil {
		h.fail(w, "update chore", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteChore(w http.ResponseWriter, r *http.Request) {
	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	if err := h.service.DeleteChore(r.Context(), claims, id); err != nil {
		h.fail(w, "delete chore", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listAssignments(w http.ResponseWriter, r *http.Request) {
	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	items, err := h.service.ListAssignments(r.Context(), claims)
	if err != nil {
		h.fail(w, "list assignments", err)
		return
	}
	out := make([]assignmentResponse, 0, len(items))
	for _, a := range items {
		out = append(out, toAssignmentResponse(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getAssignment(w http.ResponseWriter, r *http.Request) {
	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	a, err := h.service.GetAssignment(r.Context(), claims, id)
	if err != nil {
		h.fail(w, "get assignment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAssignmentResponse(a))
}

func (h *Handler) createAssignment(w http.ResponseWriter, r *http.Request) {
	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var req assignmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	dueOn, err := time.Parse("2006-01-02", req.DueOn)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "dueOn must be YYYY-MM-DD")
		return
	}
	created, err := h.service.AssignChore(r.Context(), claims, req.ChoreID, req.KidID, dueOn)
	if err != nil {
		h.fail(w, "create assignment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAssignmentResponse(created))
}

func (h *Handler) completeAssignment(w http.ResponseWriter, r *http.Request) {
	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	a, err := h.service.CompleteAssignment(r.Context(), claims, id)
	if err != nil {
		h.fail(w, "complete assignment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAssignmentResponse(a))
}

func (h *Handler) deleteAssignment(w http.ResponseWriter, r *http.Request) {
	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	if err := h.service.DeleteAssignment(r.Context(), claims, id); err != nil {
		h.fail(w, "delete assignment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rewardSummary(w http.ResponseWriter, r *http.Request) {
	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	summaries, err := h.service.RewardSummaries(r.Context(), claims)
	if err != nil {
		h.fail(w, "reward summary", err)
		return
	}
	if summaries == nil {
		summaries = []RewardSummary{}
	}
	httpx.JSON(w, http.StatusOK, summaries)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func toAssignmentResponse(a Assignment) assignmentResponse {
	return assignmentResponse{
		ID:          a.ID,
		ChoreID:     a.ChoreID,
		KidID:       a.KidID,
		Status:      string(a.Status),
		Points:      a.Points,
		DueOn:       a.DueOn.Format("2006-01-02"),
		CompletedAt: a.CompletedAt,
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
