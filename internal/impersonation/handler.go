package impersonation

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-crm/meridian/internal/platform/httpx"
	"github.com/meridian-crm/meridian/internal/shared"
	"github.com/meridian-crm/meridian/internal/tenancy"
)

// Handler exposes the impersonation workflow to platform admins. Every
// route is additionally gated here: a tenant-scoped principal never
// reaches the limiter.
type Handler struct {
	logger   *slog.Logger
	limiter  *Limiter
	sessions *shared.SessionManager
}

func NewHandler(logger *slog.Logger, limiter *Limiter, sessions *shared.SessionManager) *Handler {
	return &Handler{logger: logger, limiter: limiter, sessions: sessions}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/check", h.check)
	r.Get("/status", h.status)
	r.Post("/start", h.start)
	r.Post("/end", h.end)
	r.Post("/reset-quota", h.resetQuota)
	r.Get("/config", h.getConfig)
	r.Put("/config", h.updateConfig)
}

// requireSuperAdmin returns the principal or writes a 401/403.
func (h *Handler) requireSuperAdmin(w http.ResponseWriter, r *http.Request) *tenancy.Principal {
	p := tenancy.PrincipalFromContext(r.Context())
	if p == nil {
		httpx.RespondError(w, shared.ErrNotAuthenticated)
		return nil
	}
	if !p.SuperAdmin {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "impersonation requires platform administrator access")
		return nil
	}
	return p
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	p := h.requireSuperAdmin(w, r)
	if p == nil {
		return
	}
	// On store failure the decision is already the fail-closed denial;
	// render it rather than a 500 so the admin UI shows "unavailable".
	decision, _ := h.limiter.Check(r.Context(), p.ID)
	httpx.JSON(w, http.StatusOK, decision)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	p := h.requireSuperAdmin(w, r)
	if p == nil {
		return
	}
	status, _ := h.limiter.ValidateOperation(r.Context(), p.ID)
	httpx.JSON(w, http.StatusOK, status)
}

type startRequest struct {
	UserID   string `json:"userId"`
	TenantID string `json:"tenantId"`
	Reason   string `json:"reason"`
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	p := h.requireSuperAdmin(w, r)
	if p == nil {
		return
	}
	var req startRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if req.UserID == "" {
		verr := &shared.ValidationError{}
		verr.AddField("userId", "required")
		httpx.RespondError(w, verr)
		return
	}
	sess, err := h.limiter.StartSession(r.Context(), p.ID, req.UserID, req.TenantID, req.Reason)
	if err != nil {
		var limitErr *LimitError
		if errors.As(err, &limitErr) {
			httpx.JSON(w, http.StatusTooManyRequests, limitErr.Decision)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	if authSess := shared.SessionFromContext(r.Context()); authSess != nil {
		authSess.Set(tenancy.SessionKeyImpersonatedUser, req.UserID)
		authSess.Set(tenancy.SessionKeyImpersonationSession, sess.ID)
		if err := h.sessions.Commit(r.Context(), w, authSess); err != nil {
			h.logger.Error("persist impersonation session key", slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusCreated, sess)
}

type endRequest struct {
	SessionID string `json:"sessionId"`
}

func (h *Handler) end(w http.ResponseWriter, r *http.Request) {
	p := h.requireSuperAdmin(w, r)
	if p == nil {
		return
	}
	var req endRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	authSess := shared.SessionFromContext(r.Context())
	if req.SessionID == "" && authSess != nil {
		req.SessionID = authSess.Get(tenancy.SessionKeyImpersonationSession)
	}
	if req.SessionID == "" {
		verr := &shared.ValidationError{}
		verr.AddField("sessionId", "required")
		httpx.RespondError(w, verr)
		return
	}
	sess, err := h.limiter.EndSession(r.Context(), req.SessionID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if authSess != nil {
		authSess.Delete(tenancy.SessionKeyImpersonatedUser)
		authSess.Delete(tenancy.SessionKeyImpersonationSession)
		if err := h.sessions.Commit(r.Context(), w, authSess); err != nil {
			h.logger.Error("clear impersonation session key", slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusOK, sess)
}

type resetRequest struct {
	SuperAdminID string `json:"superAdminId"`
}

func (h *Handler) resetQuota(w http.ResponseWriter, r *http.Request) {
	p := h.requireSuperAdmin(w, r)
	if p == nil {
		return
	}
	var req resetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.limiter.ResetQuota(r.Context(), p, req.SuperAdminID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	if p := h.requireSuperAdmin(w, r); p == nil {
		return
	}
	cfg, err := h.limiter.GetConfig(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cfg)
}

func (h *Handler) updateConfig(w http.ResponseWriter, r *http.Request) {
	p := h.requireSuperAdmin(w, r)
	if p == nil {
		return
	}
	var cfg Config
	if err := httpx.DecodeJSON(r, &cfg); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.limiter.UpdateConfig(r.Context(), p, cfg); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cfg)
}
