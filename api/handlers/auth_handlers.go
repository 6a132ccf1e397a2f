package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"crisishub/config"
	"crisishub/core/auth"
	"crisishub/core/rbac"
	"crisishub/core/store"
	"crisishub/core/utils"
)

const (
	SessionCookieName = "crisishub_session"
	CSRFCookieName    = "crisishub_csrf"
)

type AuthHandler struct {
	cfg            *config.AppConfig
	users          store.UsersStore
	sessions       store.SessionStore
	sessionManager *auth.SessionManager
	policy         *rbac.Policy
	audits         store.AuditStore
	logger         *utils.Logger
}

func NewAuthHandler(cfg *config.AppConfig, users store.UsersStore, sessions store.SessionStore, sm *auth.SessionManager, policy *rbac.Policy, audits store.AuditStore, logger *utils.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, users: users, sessions: sessions, sessionManager: sm, policy: policy, audits: audits, logger: logger}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var cred auth.Credentials
	if err := json.NewDecoder(r.Body).Decode(&cred); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	cred.Username = strings.ToLower(strings.TrimSpace(cred.Username))
	if err := utils.ValidateUsername(cred.Username); err != nil {
		writeError(w, http.StatusBadRequest, "invalid username")
		return
	}
	user, err := h.users.FindByUsername(r.Context(), cred.Username)
	if err != nil || user == nil {
		h.audits.Log(r.Context(), cred.Username, "auth.login_failed", "unknown user")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !auth.VerifyPassword(cred.Password, user.PasswordHash) {
		h.audits.Log(r.Context(), cred.Username, "auth.login_failed", "invalid password")
		if h.logger != nil {
			h.logger.Printf("AUTH fail (password) user=%s", cred.Username)
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !user.Active {
		h.audits.Log(r.Context(), cred.Username, "auth.login_blocked", "account deactivated")
		writeError(w, http.StatusForbidden, "account deactivated")
		return
	}
	sess, err := h.sessionManager.Create(r.Context(), user, clientAddr(r), r.UserAgent())
	if err != nil {
		if h.logger != nil {
			h.logger.Errorf("auth login session create failed for %s: %v", cred.Username, err)
		}
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	h.audits.Log(r.Context(), user.Username, "auth.login_success", "")
	setSessionCookies(w, sess)
	writeJSON(w, http.StatusOK, map[string]any{
		"user":       userDTO(user, h.policy),
		"csrf_token": sess.CSRFToken,
		"expires_at": sess.ExpiresAt,
	})
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Password string `json:"password"`
}

// Register creates a citizen account. The role is always "user"; staff
// accounts are created by an admin.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if err := utils.ValidateUsername(req.Username); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := utils.ValidateEmail(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(strings.TrimSpace(req.FullName)) < 2 {
		writeError(w, http.StatusBadRequest, "full name required")
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user := &store.User{
		Username:     req.Username,
		Email:        req.Email,
		FullName:     strings.TrimSpace(req.FullName),
		Phone:        strings.TrimSpace(req.Phone),
		Address:      strings.TrimSpace(req.Address),
		PasswordHash: hash,
		Role:         store.RoleUser,
		Active:       true,
	}
	if _, err := h.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "username or email already registered")
			return
		}
		if h.logger != nil {
			h.logger.Errorf("register %s: %v", req.Username, err)
		}
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	h.audits.Log(r.Context(), user.Username, "auth.registered", "")
	if h.logger != nil {
		h.logger.Printf("AUTH registered user=%s", user.Username)
	}
	writeJSON(w, http.StatusCreated, userDTO(user, h.policy))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sess := auth.SessionFromContext(r.Context()); sess != nil {
		_ = h.sessions.DeleteSession(r.Context(), sess.ID)
		h.audits.Log(r.Context(), sess.Username, "auth.logout", "")
	}
	clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user, err := h.users.GetByID(r.Context(), sess.UserID)
	if err != nil || user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, userDTO(user, h.policy))
}

func userDTO(u *store.User, policy *rbac.Policy) map[string]any {
	return map[string]any{
		"id":          u.ID,
		"username":    u.Username,
		"email":       u.Email,
		"full_name":   u.FullName,
		"role":        u.Role,
		"active":      u.Active,
		"permissions": policy.Permissions(u.Role),
	}
}

func setSessionCookies(w http.ResponseWriter, sess *store.SessionRecord) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    sess.CSRFToken,
		Path:     "/",
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
}

func clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: SessionCookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	http.SetCookie(w, &http.Cookie{Name: CSRFCookieName, Value: "", Path: "/", MaxAge: -1, SameSite: http.SameSiteLaxMode})
}

func clientAddr(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}
