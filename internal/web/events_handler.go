package web

import (
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/joestump/slackbridge/internal/dispatch"
)

// maxEventBody bounds how much of a callback body is read. Slack payloads are
// far smaller than this.
const maxEventBody = 1 << 20

// handleSlackEvents is the Events API Request URL. Settings are loaded per
// request so that tokens can be rotated without a restart.
func (s *Server) handleSlackEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBody))
	if err != nil {
		log.Printf("web: read slack callback body: %v", err)
		http.Error(w, "Bad Request: Unreadable body", http.StatusBadRequest)
		return
	}

	resp := s.events.Handle(r.Context(), dispatch.Request{
		Header:      r.Header,
		Body:        body,
		ContentType: r.Header.Get("Content-Type"),
	}, s.settings())

	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.Status)
	if _, err := w.Write(resp.Body); err != nil {
		log.Printf("web: write slack response: %v", err)
	}
}
