package handler

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"servio/internal/adapters/out/notify"
	usecase "servio/internal/application/usecase"
)

const heartbeatInterval = 25 * time.Second

// EventsHandler streams cart change signals over SSE. A view holds one
// stream per device and re-reads the snapshot whenever a signal for its key
// arrives; this is how a merge or mutation in one view reaches its siblings
// without polling.
type EventsHandler struct {
	notifier notify.Notifier
	log      *zap.Logger
}

func NewEventsHandler(notifier notify.Notifier, log *zap.Logger) *EventsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventsHandler{notifier: notifier, log: log}
}

func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	did, ok := deviceID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid X-Device-Id")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := h.notifier.Subscribe(r.Context())
	defer cancel()

	key := usecase.DeviceKey(did)
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			if ev.Key != key {
				continue
			}
			fmt.Fprintf(w, "event: change\ndata: {\"key\":%q}\n\n", ev.Key)
			flusher.Flush()
		}
	}
}
