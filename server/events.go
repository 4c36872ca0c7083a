package main

import (
	"net/http"
	"sync"
	"time"
)

// Event is published after a card or comment mutation commits.
type Event struct {
	Type    string `json:"type"`
	Entity  string `json:"entity"`
	CardID  int64  `json:"card_id"`
	Payload any    `json:"payload,omitempty"`
}

// EventBus fans events out to subscribers of one card, and to subscribers of
// card 0, which receive every event.
type EventBus struct {
	mu   sync.RWMutex
	subs map[int64]map[chan []byte]struct{}
}

func NewEventBus() *EventBus { return &EventBus{subs: make(map[int64]map[chan []byte]struct{})} }

func (b *EventBus) Subscribe(cardID int64) (ch chan []byte, cancel func()) {
	ch = make(chan []byte, 16)
	b.mu.Lock()
	if b.subs[cardID] == nil {
		b.subs[cardID] = make(map[chan []byte]struct{})
	}
	b.subs[cardID][ch] = struct{}{}
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		if subs, ok := b.subs[cardID]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(b.subs, cardID)
			}
		}
		b.mu.Unlock()
		close(ch)
	}
}

func (b *EventBus) Publish(ev Event) {
	data, err := codec.Marshal(ev)
	if err != nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	b.send(b.subs[0], data)
	if ev.CardID != 0 {
		b.send(b.subs[ev.CardID], data)
	}
}

func (b *EventBus) send(subs map[chan []byte]struct{}, data []byte) {
	for ch := range subs {
		select {
		case ch <- data:
		default: // drop if slow
		}
	}
}

// ServeSSE streams events for cardID (0 for all cards) until the client leaves.
func (b *EventBus) ServeSSE(w http.ResponseWriter, r *http.Request, cardID int64) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := b.Subscribe(cardID)
	defer cancel()

	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			// heartbeat keeps proxies from closing the stream
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(msg)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
