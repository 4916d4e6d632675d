package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const streamKeepAlive = 15 * time.Second

// handleStream sends each transition as an SSE "motion" event.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.NotFound(w, r)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id, ch := s.hub.Subscribe(8)
	defer s.hub.Unsubscribe(id)

	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()
	s.log.Debug("stream client connected")

	ping := time.NewTicker(streamKeepAlive)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			s.log.Debug("stream client disconnected")
			return
		case <-ping.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b, err := json.Marshal(msg)
			if err != nil {
				s.log.WithError(err).Error("marshal stream message")
				continue
			}
			_, _ = fmt.Fprintf(w, "event: motion\ndata: %s\n\n", b)
			flusher.Flush()
		}
	}
}
