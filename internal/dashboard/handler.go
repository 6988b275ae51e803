package dashboard

import (
	"errors"
	"log"
	"sync"

	"github.com/liftlog/liftlog/internal/queue"
	"github.com/liftlog/liftlog/internal/syncer"
)

// Handler formats sync engine events as dashboard messages. It plugs
// into the syncer's success and failure callbacks and the cache layer's
// revalidation subscribers.
type Handler struct {
	server *Server
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData
}

// NewHandler creates an event handler connected to a dashboard server.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		server: server,
		logger: logger,
	}
}

// OnItemSynced handles a confirmed sync. Wire it to syncer.Config.OnSuccess.
func (h *Handler) OnItemSynced(item *queue.Item) {
	h.server.BroadcastEvent(MessageTypeItemSynced, ItemEventData{
		ID:        item.ID,
		Operation: string(item.Operation),
		Table:     item.Table,
		Attempts:  item.Attempts,
	})
	h.mu.Lock()
	if h.stats.QueueLength > 0 {
		h.stats.QueueLength--
	}
	h.stats.LastError = ""
	h.mu.Unlock()
	h.broadcastStats()
}

// OnItemFailed handles a failed attempt or a dead-letter drop. Wire it to
// syncer.Config.OnFailure.
func (h *Handler) OnItemFailed(item *queue.Item, err error) {
	data := ItemEventData{
		ID:        item.ID,
		Operation: string(item.Operation),
		Table:     item.Table,
		Attempts:  item.Attempts,
		Error:     err.Error(),
	}

	if errors.Is(err, syncer.ErrRetryExhausted) {
		h.server.BroadcastEvent(MessageTypeDeadLetter, data)
		h.mu.Lock()
		h.stats.DeadLetters++
		if h.stats.QueueLength > 0 {
			h.stats.QueueLength--
		}
		h.mu.Unlock()
	} else {
		h.server.BroadcastEvent(MessageTypeItemFailed, data)
		h.mu.Lock()
		h.stats.LastError = err.Error()
		h.mu.Unlock()
	}
	h.broadcastStats()
}

// OnRevalidated handles a completed cache revalidation pass.
func (h *Handler) OnRevalidated(table string, rows int, err error) {
	data := RevalidatedData{Table: table, Rows: rows}
	if err != nil {
		data.Error = err.Error()
	}
	h.server.BroadcastEvent(MessageTypeRevalidated, data)
}

// UpdateStats replaces the snapshot from authoritative counts, then
// broadcasts it. Used at startup and on periodic refresh; the
// event-driven deltas keep it roughly current in between.
func (h *Handler) UpdateStats(queueLength, deadLetters int, online bool, lastError string) {
	h.mu.Lock()
	h.stats = StatsData{
		QueueLength: queueLength,
		DeadLetters: deadLetters,
		Online:      online,
		LastError:   lastError,
	}
	h.mu.Unlock()
	h.broadcastStats()
}

// Stats returns the current snapshot.
func (h *Handler) Stats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *Handler) broadcastStats() {
	h.mu.Lock()
	stats := h.stats
	h.mu.Unlock()
	h.server.BroadcastEvent(MessageTypeStats, stats)
}
