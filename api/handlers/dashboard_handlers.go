package handlers

import (
	"net/http"

	"crisishub/core/auth"
	"crisishub/core/store"
	"crisishub/core/utils"
)

type DashboardHandler struct {
	users     store.UsersStore
	resources store.ResourcesStore
	incidents store.IncidentsStore
	logger    *utils.Logger
}

func NewDashboardHandler(users store.UsersStore, resources store.ResourcesStore, incidents store.IncidentsStore, logger *utils.Logger) *DashboardHandler {
	return &DashboardHandler{users: users, resources: resources, incidents: incidents, logger: logger}
}

// Summary tailors the dashboard counters to the caller's role.
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())
	ctx := r.Context()

	switch sess.Role {
	case store.RoleAdmin:
		total, err := h.incidents.Count(ctx, store.IncidentFilter{})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server error")
			return
		}
		byStatus, err := h.incidents.CountByStatus(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server error")
			return
		}
		high, err := h.incidents.Count(ctx, store.IncidentFilter{Priority: store.PriorityHigh, OpenOnly: true})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server error")
			return
		}
		critical, err := h.incidents.Count(ctx, store.IncidentFilter{Priority: store.PriorityCritical, OpenOnly: true})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server error")
			return
		}
		teams, err := h.users.CountByRole(ctx, store.RoleRescueTeam)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server error")
			return
		}
		resources, err := h.resources.Count(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"role":            sess.Role,
			"total_incidents": total,
			"by_status":       byStatus,
			"open_urgent":     high + critical,
			"rescue_teams":    teams,
			"resources":       resources,
		})

	case store.RoleRescueTeam:
		assigned, err := h.incidents.Count(ctx, store.IncidentFilter{AssignedTo: sess.UserID})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server error")
			return
		}
		active, err := h.incidents.Count(ctx, store.IncidentFilter{AssignedTo: sess.UserID, Status: store.StatusInProgress})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server error")
			return
		}
		resolved, err := h.incidents.Count(ctx, store.IncidentFilter{AssignedTo: sess.UserID, Status: store.StatusResolved})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server error")
			return
		}
		unassigned, err := h.incidents.Count(ctx, store.IncidentFilter{Unassigned: true, OpenOnly: true})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"role":        sess.Role,
			"assigned":    assigned,
			"in_progress": active,
			"resolved":    resolved,
			"unassigned":  unassigned,
		})

	default:
		total, err := h.incidents.Count(ctx, store.IncidentFilter{ReportedBy: sess.UserID})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server error")
			return
		}
		open, err := h.incidents.Count(ctx, store.IncidentFilter{ReportedBy: sess.UserID, OpenOnly: true})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server error")
			return
		}
		resolved, err := h.incidents.Count(ctx, store.IncidentFilter{ReportedBy: sess.UserID, Status: store.StatusResolved})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"role":     sess.Role,
			"reported": total,
			"open":     open,
			"resolved": resolved,
		})
	}
}

func (h *DashboardHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	byStatus, err := h.incidents.CountByStatus(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	byType, err := h.incidents.CountByType(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	byPriority, err := h.incidents.CountByPriority(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	byMonth, err := h.incidents.CountByMonth(ctx, 6)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"by_status":   byStatus,
		"by_type":     byType,
		"by_priority": byPriority,
		"by_month":    byMonth,
	})
}
