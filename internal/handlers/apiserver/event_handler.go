package apiserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"schedle/internal/middleware"
	"schedle/internal/models"
	"schedle/internal/services"

	"github.com/gorilla/mux"
)

// EventHandler serves the calendar of the current user.
type EventHandler struct {
	sessions     *services.Sessions
	eventService services.EventService
}

func NewEventHandler(sessions *services.Sessions, eventService services.EventService) *EventHandler {
	return &EventHandler{sessions: sessions, eventService: eventService}
}

// filtersFromQuery reads ?personal=&friend=&work=. A missing flag shows its category.
func filtersFromQuery(r *http.Request) (models.CalendarFilters, error) {
	filters := models.AllEvents()
	q := r.URL.Query()
	for name, dst := range map[string]*bool{
		"personal": &filters.ShowPersonalEvents,
		"friend":   &filters.ShowFriendEvents,
		"work":     &filters.ShowWorkEvents,
	} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return filters, err
		}
		*dst = v
	}
	return filters, nil
}

// ListEventsHandler handles GET /api/v1/events
func (h *EventHandler) ListEventsHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r, h.sessions)
	if !ok {
		return
	}

	filters, err := filtersFromQuery(r)
	if err != nil {
		writeJSONError(w, "filter flags must be booleans", http.StatusBadRequest)
		return
	}
	list, err := s.Events(r.Context(), filters)
	if err != nil {
		writeServiceError(w, err, "failed to load events")
		return
	}
	writeJSONResponse(w, http.StatusOK, list)
}

// OccurrencesHandler handles GET /api/v1/events/occurrences?from=&to= with RFC 3339 bounds.
func (h *EventHandler) OccurrencesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		writeJSONError(w, "from must be an RFC 3339 timestamp", http.StatusBadRequest)
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		writeJSONError(w, "to must be an RFC 3339 timestamp", http.StatusBadRequest)
		return
	}

	occ, err := h.eventService.Occurrences(r.Context(), userID, from, to)
	if err != nil {
		writeServiceError(w, err, "failed to expand events")
		return
	}
	writeJSONResponse(w, http.StatusOK, occ)
}

// ExportICSHandler handles GET /api/v1/events/export.ics
func (h *EventHandler) ExportICSHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	doc, err := h.eventService.ExportICS(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "failed to export calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="schedle.ics"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(doc))
}

// CreateEventHandler handles POST /api/v1/events
func (h *EventHandler) CreateEventHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r, h.sessions)
	if !ok {
		return
	}

	var event models.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	created, err := s.AddEvent(r.Context(), event)
	if err != nil {
		writeServiceError(w, err, "failed to create event")
		return
	}
	writeJSONResponse(w, http.StatusCreated, created)
}

// UpdateEventHandler handles PUT /api/v1/events/{eventID}
func (h *EventHandler) UpdateEventHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r, h.sessions)
	if !ok {
		return
	}

	var event models.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()
	event.ID = mux.Vars(r)["eventID"]

	updated, err := s.UpdateEvent(r.Context(), event)
	if err != nil {
		writeServiceError(w, err, "failed to update event")
		return
	}
	writeJSONResponse(w, http.StatusOK, updated)
}

// DeleteEventHandler handles DELETE /api/v1/events/{eventID}
func (h *EventHandler) DeleteEventHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r, h.sessions)
	if !ok {
		return
	}

	if err := s.DeleteEvent(r.Context(), mux.Vars(r)["eventID"]); err != nil {
		writeServiceError(w, err, "failed to delete event")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
