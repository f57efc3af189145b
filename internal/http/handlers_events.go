package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/events"
	applog "bilancio/internal/log"
)

const (
	sseKeepAlive  = 25 * time.Second
	sseBufferSize = 16
)

// handleEvents streams the signed-in owner's changes as server-sent events.
// Slow clients drop events rather than block the publisher.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	owner, err := core.OwnerFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if s.hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "events not available"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming unsupported"})
		return
	}

	ch := make(chan events.Change, sseBufferSize)
	unsubscribe := s.hub.Subscribe(owner, func(_ context.Context, c events.Change) {
		select {
		case ch <- c:
		default:
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	log := applog.FromContext(r.Context())
	log.DebugContext(r.Context(), "Event stream opened", applog.FieldOwnerID, owner)

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.DebugContext(r.Context(), "Event stream closed", applog.FieldOwnerID, owner)
			return
		case <-keepAlive.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case c := <-ch:
			payload, err := json.Marshal(struct {
				events.Change
				Month core.MonthKey `json:"month"`
			}{c, c.Date.Month()})
			if err != nil {
				continue
			}
			_, _ = w.Write([]byte("event: transaction:" + string(c.Action) + "\ndata: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
