package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"crisishub/core/auth"
	"crisishub/core/rbac"
	"crisishub/core/store"
	"crisishub/core/utils"
)

const defaultStaffPassword = "defaultpass123"

type AccountsHandler struct {
	users    store.UsersStore
	sessions store.SessionStore
	policy   *rbac.Policy
	audits   store.AuditStore
	logger   *utils.Logger
}

func NewAccountsHandler(users store.UsersStore, sessions store.SessionStore, policy *rbac.Policy, audits store.AuditStore, logger *utils.Logger) *AccountsHandler {
	return &AccountsHandler{users: users, sessions: sessions, policy: policy, audits: audits, logger: logger}
}

func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r, 20)
	filter := store.UserFilter{
		Role:   strings.TrimSpace(r.URL.Query().Get("role")),
		Limit:  limit,
		Offset: offset,
	}
	users, err := h.users.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *AccountsHandler) ListRescueTeams(w http.ResponseWriter, r *http.Request) {
	active := true
	teams, err := h.users.List(r.Context(), store.UserFilter{Role: store.RoleRescueTeam, Active: &active})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rescue_teams": teams})
}

type accountRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

func (h *AccountsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
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
	if !store.ValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}
	password := req.Password
	if password == "" {
		password = defaultStaffPassword
	}
	hash, err := auth.HashPassword(password)
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
		Role:         req.Role,
		Active:       true,
	}
	if _, err := h.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "username or email already taken")
			return
		}
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	actor := auth.SessionFromContext(r.Context())
	h.audits.Log(r.Context(), actor.Username, "accounts.created", "user="+user.Username+" role="+user.Role)
	if h.logger != nil {
		h.logger.Printf("ACCOUNTS created user=%s role=%s by=%s", user.Username, user.Role, actor.Username)
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *AccountsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AccountsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	var req accountRequest
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
	if !store.ValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}
	user.Username = req.Username
	user.Email = req.Email
	user.FullName = strings.TrimSpace(req.FullName)
	user.Phone = strings.TrimSpace(req.Phone)
	user.Address = strings.TrimSpace(req.Address)
	roleChanged := user.Role != req.Role
	user.Role = req.Role
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		user.PasswordHash = hash
	}
	if err := h.users.Update(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "username or email already taken")
			return
		}
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	// Role changes invalidate existing sessions so stale permissions
	// cannot keep acting.
	if roleChanged {
		_ = h.sessions.DeleteUserSessions(r.Context(), user.ID)
	}
	actor := auth.SessionFromContext(r.Context())
	h.audits.Log(r.Context(), actor.Username, "accounts.updated", "user="+user.Username)
	writeJSON(w, http.StatusOK, user)
}

func (h *AccountsHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 200)
	entries, err := h.audits.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *AccountsHandler) ToggleActive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	actor := auth.SessionFromContext(r.Context())
	if actor != nil && actor.UserID == id {
		writeError(w, http.StatusConflict, "cannot deactivate your own account")
		return
	}
	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err := h.users.SetActive(r.Context(), id, !user.Active); err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	user.Active = !user.Active
	if !user.Active {
		_ = h.sessions.DeleteUserSessions(r.Context(), user.ID)
	}
	state := "deactivated"
	if user.Active {
		state = "activated"
	}
	h.audits.Log(r.Context(), actor.Username, "accounts.toggle_active", "user="+user.Username+" "+state)
	if h.logger != nil {
		h.logger.Printf("ACCOUNTS %s user=%s by=%s", state, user.Username, actor.Username)
	}
	writeJSON(w, http.StatusOK, user)
}
