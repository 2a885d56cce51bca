package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ledger/internal/log"
	"ledger/internal/services"
)

// handleStream sends one summary event per ledger snapshot as Server-Sent
// Events until the client disconnects. The event id is the snapshot version.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.live == nil {
		ErrorResponse(http.StatusServiceUnavailable, "stream_disabled", "live updates are not configured").Write(w)
		return
	}
	query := r.URL.Query()
	period, err := ParsePeriod(query, s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	masked := ParseFlag(query, "privacy")
	holder := holderOf(r)
	if holder == "" {
		ErrorResponse(http.StatusUnprocessableEntity, "validation", "invalid holder: missing account holder").Write(w)
		return
	}

	ctx := r.Context()
	snapshots, cancel, err := s.live.Subscribe(ctx, holder)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer cancel()

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	logger := log.FromContext(ctx, s.logger)
	logger.DebugContext(ctx, "Stream opened", log.FieldHolderID, holder)

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.DebugContext(ctx, "Stream closed", log.FieldHolderID, holder)
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			summary := services.Aggregate(snap.Records, period.Month, period.Year)
			data, err := json.Marshal(NewSummaryResponse(summary, masked))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to encode stream event", log.FieldError, err.Error())
				return
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: summary\ndata: %s\n\n", snap.Version, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
