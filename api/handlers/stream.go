package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/malbeclabs/biox/indexer/pkg/events"
	"github.com/malbeclabs/biox/ledger/pkg/runtime"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait / 2
	streamBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type subscriber struct {
	name string
	out  chan EventRowResponse
}

// StreamHub fans committed events out to websocket subscribers. It is a runtime.EventSink.
// A subscriber that falls streamBuffer events behind is disconnected.
type StreamHub struct {
	log  *slog.Logger
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func NewStreamHub(log *slog.Logger) *StreamHub {
	return &StreamHub{log: log, subs: make(map[*subscriber]struct{})}
}

func (h *StreamHub) Name() string { return "stream" }

func (h *StreamHub) Publish(ctx context.Context, batch *runtime.EventBatch) error {
	rows, err := events.RowsFromBatch(batch)
	if err != nil {
		return err
	}
	items := newEventsResponse(rows, len(rows)).Items

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		for _, item := range items {
			if sub.name != "" && sub.name != item.EventName {
				continue
			}
			select {
			case sub.out <- item:
			default:
				h.log.Warn("api: dropping slow stream subscriber")
				delete(h.subs, sub)
				close(sub.out)
			}
			if _, ok := h.subs[sub]; !ok {
				break
			}
		}
	}
	return nil
}

// Subscribers is the number of connected clients.
func (h *StreamHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *StreamHub) subscribe(name string) *subscriber {
	sub := &subscriber{name: name, out: make(chan EventRowResponse, streamBuffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *StreamHub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.out)
	}
}

// StreamEvents upgrades to a websocket and pushes every committed event as JSON,
// optionally only those named by ?name=.
func (a *API) StreamEvents(w http.ResponseWriter, r *http.Request) {
	hub := a.cfg.Stream
	if hub == nil {
		writeError(w, http.StatusServiceUnavailable, "stream_unavailable", "event stream is not configured")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Debug("api: websocket upgrade failed", "error", err)
		return
	}
	sub := hub.subscribe(r.URL.Query().Get("name"))
	defer hub.unsubscribe(sub)
	defer conn.Close()

	// The reader only drains control frames and notices the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case item, ok := <-sub.out:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber too slow"))
				return
			}
			if err := conn.WriteJSON(item); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
