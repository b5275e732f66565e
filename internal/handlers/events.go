package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/diewo77/go-quotations/httpx"
	"github.com/diewo77/go-quotations/internal/realtime"
)

// heartbeat keeps idle event streams open through proxies.
const heartbeat = 25 * time.Second

// EventsHandler streams debounced change batches as Server-Sent Events.
type EventsHandler struct {
	bus     *realtime.Bus
	wait    time.Duration
	maxWait time.Duration
}

func NewEventsHandler(bus *realtime.Bus, wait, maxWait time.Duration) *EventsHandler {
	return &EventsHandler{bus: bus, wait: wait, maxWait: maxWait}
}

// Stream subscribes to ?tables=a,b (all watched tables when empty) until
// the client goes away.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		httpx.JSONError(w, http.StatusInternalServerError, "streaming_unsupported", nil)
		return
	}
	rc := http.NewResponseController(w)
	// streams outlive the server write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	var tables []string
	for _, t := range strings.Split(r.URL.Query().Get("tables"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tables = append(tables, t)
		}
	}

	ctx := r.Context()
	batches := realtime.Coalesce(ctx, h.bus.Subscribe(ctx, tables...), h.wait, h.maxWait)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	_ = rc.Flush()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-batches:
			if !ok {
				return
			}
			data, err := json.Marshal(b)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: invalidate\ndata: %s\n\n", data)
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
