// Package sse fans session events out to Server-Sent Events streams.
package sse

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"vtokiosk/internal/infra"
)

const (
	// WriteTimeout bounds a single write to a stream so a stale client cannot
	// hold its handler forever.
	WriteTimeout = 2 * time.Second
	// KeepAlive is the comment-ping interval on idle streams.
	KeepAlive = 15 * time.Second

	subscriberBuffer = 32
)

// Message is one SSE frame.
type Message struct {
	Event string
	Data  []byte
}

// Subscription receives the messages of one topic.
type Subscription struct {
	id    int
	topic string
	ch    chan Message
	done  chan struct{}
	once  sync.Once
	hub   *Hub
}

// C delivers messages until the subscription is closed.
func (s *Subscription) C() <-chan Message { return s.ch }

// Done is closed when the hub drops the subscription.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

func (s *Subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// Hub keeps subscriptions per topic. Topics are session ids.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[int]*Subscription
	nextID int
	logger *infra.Logger
}

func NewHub(logger *infra.Logger) *Hub {
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Hub{topics: make(map[string]map[int]*Subscription), logger: logger}
}

func (h *Hub) Subscribe(topic string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscription{
		id:    h.nextID,
		topic: topic,
		ch:    make(chan Message, subscriberBuffer),
		done:  make(chan struct{}),
		hub:   h,
	}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[int]*Subscription)
		h.topics[topic] = subs
	}
	subs[sub.id] = sub
	h.logger.Debug().Str("topic", topic).Int("subscribers", len(subs)).Msg("sse subscriber added")
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	if subs, ok := h.topics[sub.topic]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(h.topics, sub.topic)
		}
	}
	h.mu.Unlock()
	sub.stop()
}

// Publish encodes v and offers it to every subscriber of topic. A subscriber
// whose buffer is full is dropped; its stream ends and the client reconnects.
func (h *Hub) Publish(topic, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("sse marshal failed")
		return
	}
	msg := Message{Event: event, Data: data}

	h.mu.RLock()
	var slow []*Subscription
	for _, sub := range h.topics[topic] {
		select {
		case sub.ch <- msg:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.logger.Warn().Str("topic", topic).Msg("sse subscriber too slow, dropping")
		h.remove(sub)
	}
}

// CloseTopic ends every stream of topic.
func (h *Hub) CloseTopic(topic string) {
	h.mu.Lock()
	subs := h.topics[topic]
	delete(h.topics, topic)
	h.mu.Unlock()
	for _, sub := range subs {
		sub.stop()
	}
}

// Subscribers returns the number of open subscriptions on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Stream serves topic as an event stream until the client leaves or the
// subscription ends. initial, when set, is written first.
func (h *Hub) Stream(w http.ResponseWriter, r *http.Request, topic string, initial *Message) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	sub := h.Subscribe(topic)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	write := func(frame string) bool {
		_ = rc.SetWriteDeadline(time.Now().Add(WriteTimeout))
		if _, err := fmt.Fprint(w, frame); err != nil {
			h.logger.Debug().Err(err).Str("topic", topic).Msg("sse write failed")
			return false
		}
		return rc.Flush() == nil
	}

	if initial != nil && !write(Frame(*initial)) {
		return
	}

	ping := time.NewTicker(KeepAlive)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			// Deliver what was published before the topic closed.
			for {
				select {
				case msg := <-sub.C():
					if !write(Frame(msg)) {
						return
					}
				default:
					return
				}
			}
		case msg := <-sub.C():
			if !write(Frame(msg)) {
				return
			}
		case <-ping.C:
			if !write(": ping\n\n") {
				return
			}
		}
	}
}

// Frame renders msg in the text/event-stream wire format.
func Frame(msg Message) string {
	if msg.Event == "" {
		return fmt.Sprintf("data: %s\n\n", msg.Data)
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", msg.Event, msg.Data)
}
