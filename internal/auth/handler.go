package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/choreboard/choreboard/internal/identity"
	"github.com/choreboard/choreboard/internal/platform/httpx"
	"github.com/choreboard/choreboard/internal/session"
	"github.com/choreboard/choreboard/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows. Both login endpoints
// verify through the identity service first and only then hand the principal
// to the issuer, so the issuer never sees a failed credential.
type Handler struct {
	logger    *slog.Logger
	identity  *identity.Service
	issuer    *session.Issuer
	sessions  *session.Manager
	validator *validator.Validate

	// LoginObserver, when set, receives the outcome of every login attempt.
	LoginObserver func(method, outcome string)
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, ident *identity.Service, issuer *session.Issuer, sessions *session.Manager) *Handler {
	return &Handler{
		logger:    logger,
		identity:  ident,
		issuer:    issuer,
		sessions:  sessions,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router. loginLimiter,
// when non-nil, throttles the credential-bearing endpoints only.
func (h *Handler) MountRoutes(r chi.Router, loginLimiter func(http.Handler) http.Handler) {
	credential := r
	if loginLimiter != nil {
		credential = r.With(loginLimiter)
	}
	credential.Post("/signup", h.handleSignup)
	credential.Post("/login", h.handlePasswordLogin)
	credential.Post("/login/pin", h.handlePINLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
}

type passwordLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type pinLoginRequest struct {
	PrincipalID int64  `json:"principalId" validate:"required,gt=0"`
	PIN         string `json:"pin" validate:"required"`
}

type signupRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	SessionEstablished bool `json:"sessionEstablished"`
}

func (h *Handler) handlePasswordLogin(w http.ResponseWriter, r *http.Request) {
	var req passwordLoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "email and password are required")
		return
	}

	principal, err := h.identity.VerifyPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		h.failLogin(w, "password", "password login", err)
		return
	}
	h.establish(w, r, "password", principal)
}

func (h *Handler) handlePINLogin(w http.ResponseWriter, r *http.Request) {
	var req pinLoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "principalId and pin are required")
		return
	}

	principal, err := h.identity.VerifyPIN(r.Context(), req.PrincipalID, req.PIN)
	if err != nil {
		h.failLogin(w, "pin", "pin login", err)
		return
	}
	h.establishPIN(w, r, principal)
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	principal, err := h.identity.CreateParent(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("signup", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}

	sess, err := h.issuer.IssueFromPassword(r.Context(), principal, requestMeta(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.sessions.WriteCookie(w, sess)
	httpx.JSON(w, http.StatusCreated, loginResponse{SessionEstablished: true})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess != nil {
		if err := h.issuer.Revoke(r.Context(), sess); err != nil && h.logger != nil {
			h.logger.Warn("revoke session", slog.Any("error", err))
		}
	}
	h.sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"principalId": claims.PrincipalID,
		"name":        claims.Name,
		"email":       claims.Email,
		"role":        claims.Role,
		"expiresAt":   claims.ExpiresAt,
	})
}

func (h *Handler) establish(w http.ResponseWriter, r *http.Request, method string, principal *identity.Principal) {
	sess, err := h.issuer.IssueFromPassword(r.Context(), principal, requestMeta(r))
	if err != nil {
		h.failLogin(w, method, "issue session", err)
		return
	}
	h.observeLogin(method, nil)
	h.sessions.WriteCookie(w, sess)
	httpx.JSON(w, http.StatusOK, loginResponse{SessionEstablished: true})
}

func (h *Handler) establishPIN(w http.ResponseWriter, r *http.Request, principal *identity.Principal) {
	sess, err := h.issuer.IssueFromPIN(r.Context(), principal, requestMeta(r))
	if err != nil {
		h.failLogin(w, "pin", "issue session from pin", err)
		return
	}
	h.observeLogin("pin", nil)
	h.sessions.WriteCookie(w, sess)
	httpx.JSON(w, http.StatusOK, loginResponse{SessionEstablished: true})
}

// failLogin logs the internally distinguishable cause and responds with the
// taxonomy bucket. Credential failures all render the same generic body.
func (h *Handler) failLogin(w http.ResponseWriter, method, op string, err error) {
	if h.logger != nil {
		h.logger.Warn(op, slog.Any("error", err))
	}
	h.observeLogin(method, err)
	httpx.RespondError(w, err)
}

func (h *Handler) observeLogin(method string, err error) {
	if h.LoginObserver == nil {
		return
	}
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrInvalidCredentials):
		outcome = "invalid"
	case errors.Is(err, shared.ErrValidation):
		outcome = "malformed"
	case errors.Is(err, shared.ErrSessionEstablish):
		outcome = "establish_failed"
	default:
		outcome = "error"
	}
	h.LoginObserver(method, outcome)
}

func requestMeta(r *http.Request) session.Meta {
	return session.Meta{IP: r.RemoteAddr, UserAgent: r.UserAgent()}
}
