// Package httpapi exposes the ingress surface: event submission and the two
// access-flag query endpoints. It validates and enqueues; it never touches
// the rule pipeline.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/zacharyclement/feature-restrictions/internal/event"
	"github.com/zacharyclement/feature-restrictions/internal/monitoring"
	"github.com/zacharyclement/feature-restrictions/internal/publisher"
	"github.com/zacharyclement/feature-restrictions/internal/store"
)

// Register mounts all routes on the router.
func Register(r *mux.Router, pub *publisher.Publisher, users *store.UserStore, metrics *monitoring.Metrics) {
	r.HandleFunc("/event", PostEvent(pub, metrics)).Methods("POST")
	r.HandleFunc("/canmessage", CheckAccess(users, store.FlagCanMessage)).Methods("GET")
	r.HandleFunc("/canpurchase", CheckAccess(users, store.FlagCanPurchase)).Methods("GET")
	r.HandleFunc("/health", Health()).Methods("GET")
}

// PostEvent validates the event envelope and appends it to the stream.
// Fire-and-forget: a 200 means durably appended, not processed.
func PostEvent(pub *publisher.Publisher, metrics *monitoring.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev event.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		if err := ev.Validate(); err != nil {
			writeDetail(w, http.StatusBadRequest, userMessage(err))
			return
		}

		if _, err := pub.Publish(r.Context(), &ev); err != nil {
			slog.Error("[API] Failed to add event to stream", "event", ev.Name, "error", err)
			writeDetail(w, http.StatusInternalServerError, "Failed to add event to the stream")
			return
		}
		metrics.Published(ev.Name)

		writeJSON(w, http.StatusOK, map[string]string{
			"status": fmt.Sprintf("Event '%s' added to the stream.", ev.Name),
		})
	}
}

// CheckAccess reads one access flag off the user aggregate. A user with no
// aggregate is a 404; an aggregate missing the key reads as true.
func CheckAccess(users *store.UserStore, flagKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeDetail(w, http.StatusBadRequest, "query parameter 'user_id' is required")
			return
		}

		u, err := users.Get(r.Context(), userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeDetail(w, http.StatusNotFound, fmt.Sprintf("No user found with ID '%s'", userID))
				return
			}
			slog.Error("[API] User lookup failed", "user_id", userID, "error", err)
			writeDetail(w, http.StatusInternalServerError, "An unexpected error occurred.")
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{flagKey: u.Flag(flagKey)})
	}
}

// Health reports liveness.
func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "feature-restrictions",
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"detail": msg})
}

// userMessage strips the sentinel prefix off validation errors so clients
// see "missing 'name'" rather than "bad event: missing 'name'".
func userMessage(err error) string {
	msg := err.Error()
	prefix := event.ErrBadEvent.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}
