package ws

import (
	"encoding/json"
	"sync"

	"jobtrack.gg/internal/protocol"
)

// Hub tracks connected actors' outbound channels. It implements the
// notifier/presence surfaces the core consumes, so the core never sees a
// websocket.
type Hub struct {
	mu    sync.Mutex
	conns map[string]chan []byte
}

func NewHub() *Hub {
	return &Hub{conns: map[string]chan []byte{}}
}

func (h *Hub) attach(actorID string, out chan []byte) {
	h.mu.Lock()
	if prev, ok := h.conns[actorID]; ok {
		close(prev)
	}
	h.conns[actorID] = out
	h.mu.Unlock()
}

// detach removes the actor's outbound channel only when it is still the one
// this session attached; a reconnect has already replaced and closed it
// otherwise. Reports whether this session was the actor's live one.
func (h *Hub) detach(actorID string, out chan []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.conns[actorID]; ok && cur == out {
		delete(h.conns, actorID)
		close(cur)
		return true
	}
	return false
}

// Notify pushes a NOTIFY message; fire-and-forget, dropped if the actor is
// gone or its outbound buffer is full.
func (h *Hub) Notify(actorID, message string) {
	b, err := json.Marshal(protocol.NotifyMsg{Type: protocol.TypeNotify, Message: message})
	if err != nil {
		return
	}
	h.send(actorID, b)
}

func (h *Hub) send(actorID string, b []byte) {
	// Send under the lock: detach closes the channel under the same lock, so
	// a send can never hit a just-closed channel.
	h.mu.Lock()
	defer h.mu.Unlock()
	out, ok := h.conns[actorID]
	if !ok {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func (h *Hub) Reachable(actorID string) bool {
	h.mu.Lock()
	_, ok := h.conns[actorID]
	h.mu.Unlock()
	return ok
}
