package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"crisishub/config"
	"crisishub/core/auth"
	"crisishub/core/dispatch"
	"crisishub/core/rbac"
	"crisishub/core/store"
	"crisishub/core/utils"
)

type IncidentsHandler struct {
	cfg       *config.AppConfig
	incidents store.IncidentsStore
	users     store.UsersStore
	resources store.ResourcesStore
	engine    *dispatch.Engine
	policy    *rbac.Policy
	audits    store.AuditStore
	logger    *utils.Logger
}

func NewIncidentsHandler(cfg *config.AppConfig, incidents store.IncidentsStore, users store.UsersStore, resources store.ResourcesStore, engine *dispatch.Engine, policy *rbac.Policy, audits store.AuditStore, logger *utils.Logger) *IncidentsHandler {
	return &IncidentsHandler{cfg: cfg, incidents: incidents, users: users, resources: resources, engine: engine, policy: policy, audits: audits, logger: logger}
}

var validIncidentTypes = map[string]struct{}{
	"fire":             {},
	"medical":          {},
	"accident":         {},
	"natural_disaster": {},
	"crime":            {},
	"utility":          {},
	"other":            {},
}

type incidentRequest struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	IncidentType string   `json:"incident_type"`
	Priority     string   `json:"priority"`
	Address      string   `json:"address"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

func (req *incidentRequest) validate() string {
	title := strings.TrimSpace(req.Title)
	if len(title) < 5 || len(title) > 200 {
		return "title must be 5-200 characters"
	}
	desc := strings.TrimSpace(req.Description)
	if len(desc) < 10 || len(desc) > 1000 {
		return "description must be 10-1000 characters"
	}
	if _, ok := validIncidentTypes[req.IncidentType]; !ok {
		return "unknown incident type"
	}
	if req.Priority != "" && !store.ValidPriority(req.Priority) {
		return "unknown priority"
	}
	addr := strings.TrimSpace(req.Address)
	if len(addr) < 5 || len(addr) > 500 {
		return "address must be 5-500 characters"
	}
	return ""
}

// Create accepts either a JSON body or a multipart form with an
// optional image part, mirroring the report form.
func (h *IncidentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())
	var req incidentRequest
	var imagePath *string

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Uploads.MaxBytes)
		if err := r.ParseMultipartForm(h.cfg.Uploads.MaxBytes); err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		req.Title = r.FormValue("title")
		req.Description = r.FormValue("description")
		req.IncidentType = r.FormValue("incident_type")
		req.Priority = r.FormValue("priority")
		req.Address = r.FormValue("address")
		if lat := r.FormValue("latitude"); lat != "" {
			if v, err := strconv.ParseFloat(lat, 64); err == nil {
				req.Latitude = &v
			}
		}
		if lon := r.FormValue("longitude"); lon != "" {
			if v, err := strconv.ParseFloat(lon, 64); err == nil {
				req.Longitude = &v
			}
		}
		if file, header, err := r.FormFile("image"); err == nil {
			defer file.Close()
			saved, err := saveUploadedImage(h.cfg.Uploads, file, header.Filename)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			imagePath = &saved
		}
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad request")
			return
		}
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	inc := &store.Incident{
		Title:        strings.TrimSpace(req.Title),
		Description:  strings.TrimSpace(req.Description),
		IncidentType: req.IncidentType,
		Priority:     req.Priority,
		Status:       store.StatusPending,
		Address:      strings.TrimSpace(req.Address),
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		ImagePath:    imagePath,
		ReportedBy:   sess.UserID,
	}
	if _, err := h.incidents.Create(r.Context(), inc); err != nil {
		if h.logger != nil {
			h.logger.Errorf("incident create by %s: %v", sess.Username, err)
		}
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	h.audits.Log(r.Context(), sess.Username, "incident.reported", "incident="+strconv.FormatInt(inc.ID, 10))
	if h.logger != nil {
		h.logger.Printf("INCIDENT reported id=%d by=%s priority=%s", inc.ID, sess.Username, inc.Priority)
	}
	writeJSON(w, http.StatusCreated, inc)
}

// List is role-scoped: reporters see their own incidents, staff see
// everything.
func (h *IncidentsHandler) List(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())
	limit, offset := pageParams(r, 20)
	filter := store.IncidentFilter{
		Status:   strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))),
		Priority: strings.ToLower(strings.TrimSpace(r.URL.Query().Get("priority"))),
		Limit:    limit,
		Offset:   offset,
	}
	if !h.policy.Allowed(sess.Role, rbac.PermIncidentsViewAll) {
		filter.ReportedBy = sess.UserID
	}
	if r.URL.Query().Get("assigned_to_me") == "1" {
		filter.AssignedTo = sess.UserID
	}
	items, err := h.incidents.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	total, err := h.incidents.Count(r.Context(), store.IncidentFilter{
		Status:     filter.Status,
		Priority:   filter.Priority,
		ReportedBy: filter.ReportedBy,
		AssignedTo: filter.AssignedTo,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": items, "total": total})
}

func (h *IncidentsHandler) ListUnassigned(w http.ResponseWriter, r *http.Request) {
	items, err := h.incidents.List(r.Context(), store.IncidentFilter{Unassigned: true, OpenOnly: true})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": items})
}

// getVisible loads the incident and applies the ownership rule: the
// reporter sees their own, staff see all.
func (h *IncidentsHandler) getVisible(w http.ResponseWriter, r *http.Request) (*store.Incident, bool) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	inc, err := h.incidents.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return nil, false
	}
	if inc == nil {
		writeError(w, http.StatusNotFound, "not found")
		return nil, false
	}
	sess := auth.SessionFromContext(r.Context())
	if !h.policy.Allowed(sess.Role, rbac.PermIncidentsViewAll) && inc.ReportedBy != sess.UserID {
		writeError(w, http.StatusNotFound, "not found")
		return nil, false
	}
	return inc, true
}

func (h *IncidentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	inc, ok := h.getVisible(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (h *IncidentsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	inc, ok := h.getVisible(w, r)
	if !ok {
		return
	}
	events, err := h.incidents.ListEvents(r.Context(), inc.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *IncidentsHandler) ListResources(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	activeOnly := r.URL.Query().Get("active") == "1"
	assignments, err := h.incidents.ListResourceAssignments(r.Context(), id, activeOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignments": assignments})
}

type statusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (h *IncidentsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	if len(req.Notes) > 500 {
		writeError(w, http.StatusBadRequest, "notes too long")
		return
	}
	actor := dispatch.ActorFromSession(auth.SessionFromContext(r.Context()))
	if err := h.engine.UpdateStatus(r.Context(), id, actor, req.Status, req.Notes); err != nil {
		writeDispatchError(w, err)
		return
	}
	inc, err := h.incidents.GetByID(r.Context(), id)
	if err != nil || inc == nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (h *IncidentsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	actor := dispatch.ActorFromSession(auth.SessionFromContext(r.Context()))
	if err := h.engine.AcceptIncident(r.Context(), id, actor); err != nil {
		writeDispatchError(w, err)
		return
	}
	inc, err := h.incidents.GetByID(r.Context(), id)
	if err != nil || inc == nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

type assignTeamRequest struct {
	TeamID int64  `json:"team_id"`
	Notes  string `json:"notes"`
}

func (h *IncidentsHandler) AssignTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req assignTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	if req.TeamID <= 0 {
		writeError(w, http.StatusBadRequest, "team_id required")
		return
	}
	actor := dispatch.ActorFromSession(auth.SessionFromContext(r.Context()))
	if err := h.engine.AssignTeam(r.Context(), id, actor, req.TeamID, req.Notes); err != nil {
		writeDispatchError(w, err)
		return
	}
	inc, err := h.incidents.GetByID(r.Context(), id)
	if err != nil || inc == nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

type assignResourceRequest struct {
	ResourceID int64  `json:"resource_id"`
	Notes      string `json:"notes"`
}

func (h *IncidentsHandler) AssignResource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req assignResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	if req.ResourceID <= 0 {
		writeError(w, http.StatusBadRequest, "resource_id required")
		return
	}
	actor := dispatch.ActorFromSession(auth.SessionFromContext(r.Context()))
	if err := h.engine.AssignResource(r.Context(), id, actor, req.ResourceID, req.Notes); err != nil {
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

func (h *IncidentsHandler) ReleaseResource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req assignResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	if req.ResourceID <= 0 {
		writeError(w, http.StatusBadRequest, "resource_id required")
		return
	}
	actor := dispatch.ActorFromSession(auth.SessionFromContext(r.Context()))
	if err := h.engine.ReleaseResource(r.Context(), id, actor, req.ResourceID, req.Notes); err != nil {
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}
