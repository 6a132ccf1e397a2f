package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"crisishub/core/auth"
	"crisishub/core/store"
	"crisishub/core/utils"
)

type ResourcesHandler struct {
	resources store.ResourcesStore
	audits    store.AuditStore
	logger    *utils.Logger
}

func NewResourcesHandler(resources store.ResourcesStore, audits store.AuditStore, logger *utils.Logger) *ResourcesHandler {
	return &ResourcesHandler{resources: resources, audits: audits, logger: logger}
}

func (h *ResourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r, 20)
	filter := store.ResourceFilter{
		Type:         strings.TrimSpace(r.URL.Query().Get("type")),
		Availability: strings.TrimSpace(r.URL.Query().Get("availability")),
		Limit:        limit,
		Offset:       offset,
	}
	resources, err := h.resources.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": resources})
}

type resourceRequest struct {
	Name               string `json:"name"`
	ResourceType       string `json:"resource_type"`
	Description        string `json:"description"`
	AvailabilityStatus string `json:"availability_status"`
	Location           string `json:"location"`
}

func (req *resourceRequest) validate() string {
	name := strings.TrimSpace(req.Name)
	if len(name) < 2 || len(name) > 100 {
		return "name must be 2-100 characters"
	}
	if !store.ValidResourceType(req.ResourceType) {
		return "unknown resource type"
	}
	if req.AvailabilityStatus != "" && !store.ValidAvailability(req.AvailabilityStatus) {
		return "unknown availability status"
	}
	if len(req.Description) > 500 {
		return "description too long"
	}
	return ""
}

func (h *ResourcesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req resourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	res := &store.Resource{
		Name:               strings.TrimSpace(req.Name),
		ResourceType:       req.ResourceType,
		Description:        strings.TrimSpace(req.Description),
		AvailabilityStatus: req.AvailabilityStatus,
		Location:           strings.TrimSpace(req.Location),
	}
	if _, err := h.resources.Create(r.Context(), res); err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	actor := auth.SessionFromContext(r.Context())
	h.audits.Log(r.Context(), actor.Username, "resources.created", "resource="+res.Name)
	if h.logger != nil {
		h.logger.Printf("RESOURCES created name=%s type=%s by=%s", res.Name, res.ResourceType, actor.Username)
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *ResourcesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	res, err := h.resources.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ResourcesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	res, err := h.resources.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	var req resourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	res.Name = strings.TrimSpace(req.Name)
	res.ResourceType = req.ResourceType
	res.Description = strings.TrimSpace(req.Description)
	if req.AvailabilityStatus != "" {
		res.AvailabilityStatus = req.AvailabilityStatus
	}
	res.Location = strings.TrimSpace(req.Location)
	if err := h.resources.Update(r.Context(), res); err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	actor := auth.SessionFromContext(r.Context())
	h.audits.Log(r.Context(), actor.Username, "resources.updated", "resource="+res.Name)
	writeJSON(w, http.StatusOK, res)
}
