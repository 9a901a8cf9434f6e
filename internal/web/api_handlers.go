package web

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/joestump/slackbridge/internal/config"
)

const maxListLimit = 500

// --- JSON Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// parseLimitOffset extracts limit and offset query params with defaults and validation.
func parseLimitOffset(r *http.Request, defaultLimit int) (limit, offset int, err error) {
	limit = defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			return 0, 0, fmt.Errorf("limit must be a non-negative integer")
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

// --- API Handlers ---

func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIHealthResponse{Status: "ok", Version: config.Version})
}

// handleAPIListDeliveries returns a paginated list of deliveries, newest
// first, optionally filtered by outcome.
func (s *Server) handleAPIListDeliveries(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var outcome *string
	if v := r.URL.Query().Get("outcome"); v != "" {
		outcome = &v
	}

	deliveries, err := s.db.ListDeliveries(limit, offset, outcome)
	if err != nil {
		log.Printf("handleAPIListDeliveries: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, APIDeliveriesResponse{Deliveries: toAPIDeliveries(deliveries)})
}

func (s *Server) handleAPIDeliveryStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.db.CountDeliveries()
	if err != nil {
		log.Printf("handleAPIDeliveryStats: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	var total int
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, APIStatsResponse{Total: total, Outcomes: counts})
}

// handleDeliveryStream streams delivery records as server-sent events until
// the client disconnects or the hub is closed.
func (s *Server) handleDeliveryStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "streaming not available")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-ch:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: delivery\ndata: %s\n\n", line); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
