package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"pecunia/internal/log"
)

const eventsHeartbeat = 30 * time.Second

// handleEvents streams the owner's change events as server-sent events. One
// event per committed write; clients re-fetch what changed. The stream ends
// when the client disconnects or the server shuts down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	logger := log.FromContext(r.Context())
	events, unsubscribe := s.svc.Subscribe(ownerFrom(r), 16)
	defer unsubscribe()
	logger.Debug("Event stream opened")
	defer logger.Debug("Event stream closed")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(eventsHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			// Comment line keeps proxies from closing the idle connection.
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case e, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(e)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: change\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
