// Package notify relays wallet events to a user's live connections.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const subscriberBuffer = 16

// Message is what a subscriber receives.
type Message struct {
	Event   string          `json:"event"`
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
	SentAt  time.Time       `json:"sent_at"`
}

func newMessage(userID, event string, payload interface{}) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Message{Event: event, UserID: userID, Payload: raw, SentAt: time.Now()}, nil
}

// Hub fans events out to in-process subscribers. A slow subscriber loses
// messages rather than blocking the publisher.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Message]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan Message]struct{})}
}

// Subscribe registers a listener for userID. The returned cancel func
// unregisters it and closes the channel; it is also invoked when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, userID string) (<-chan Message, func()) {
	ch := make(chan Message, subscriberBuffer)

	h.mu.Lock()
	if h.subscribers[userID] == nil {
		h.subscribers[userID] = make(map[chan Message]struct{})
	}
	h.subscribers[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers[userID], ch)
			if len(h.subscribers[userID]) == 0 {
				delete(h.subscribers, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return ch, cancel
}

func (h *Hub) Notify(ctx context.Context, userID, event string, payload interface{}) error {
	msg, err := newMessage(userID, event, payload)
	if err != nil {
		return err
	}
	h.deliver(msg)
	return nil
}

func (h *Hub) deliver(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[msg.UserID] {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribers reports how many listeners userID currently has.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[userID])
}
