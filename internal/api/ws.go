package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/autonoc/autonoc/internal/pipeline"
)

// writeWait bounds every frame write so a stalled client cannot pin
// the hub lock.
const writeWait = 5 * time.Second

// Hub fans stage events out to per-run websocket subscribers. It
// satisfies events.StageSink.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
	mu       sync.RWMutex
	subs     map[uuid.UUID]map[*websocket.Conn]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
		subs:   map[uuid.UUID]map[*websocket.Conn]struct{}{},
	}
}

// BroadcastStage delivers a stage event to every subscriber of its run.
func (h *Hub) BroadcastStage(ev pipeline.StageEvent) {
	// The read lock is held across the writes so Subscribe cannot
	// interleave a registration or its initial writes mid-broadcast.
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.subs[ev.RunID] {
		c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteJSON(ev); err != nil {
			go h.closeSub(ev.RunID, c)
		}
	}
}

// Subscribe upgrades the request and streams the run's stage events.
// The initial events are written first so late subscribers see the
// current stage before any live transition.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, runID uuid.UUID, initial []pipeline.StageEvent) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			slog.String("run_id", runID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	// Registration and the initial writes happen under the write lock:
	// no broadcast can reach the connection until the catch-up events
	// are on the wire, and none can slip through unseen in between.
	h.mu.Lock()
	if h.subs[runID] == nil {
		h.subs[runID] = map[*websocket.Conn]struct{}{}
	}
	h.subs[runID][c] = struct{}{}
	for _, ev := range initial {
		c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteJSON(ev); err != nil {
			h.dropLocked(runID, c)
			h.mu.Unlock()
			c.Close()
			return
		}
	}
	h.mu.Unlock()

	go h.subLoop(runID, c)
}

// SubscriberCount reports how many connections follow a run.
func (h *Hub) SubscriberCount(runID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[runID])
}

// subLoop drains client frames until the connection dies.
func (h *Hub) subLoop(runID uuid.UUID, c *websocket.Conn) {
	defer h.closeSub(runID, c)
	for {
		if _, _, err := c.NextReader(); err != nil {
			return
		}
	}
}

func (h *Hub) closeSub(runID uuid.UUID, c *websocket.Conn) {
	c.Close()
	h.mu.Lock()
	h.dropLocked(runID, c)
	h.mu.Unlock()
}

// dropLocked removes a connection from the run's set. Callers hold the
// write lock.
func (h *Hub) dropLocked(runID uuid.UUID, c *websocket.Conn) {
	if subs, ok := h.subs[runID]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.subs, runID)
		}
	}
}
