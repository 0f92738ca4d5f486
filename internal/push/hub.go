package push

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"chunkq/internal/logging"
	"chunkq/internal/queue"
	"chunkq/internal/services"
)

// Wildcard subscribes to every chunk of every index.
const Wildcard = "*"

// Topic returns the subscription topic for a chunk.
func Topic(index, key string) string {
	return index + ":" + key
}

// Notification is the message delivered to subscribers.
type Notification struct {
	Index     string    `json:"index"`
	ChunkKey  string    `json:"chunk_key"`
	Version   int64     `json:"version"`
	Data      []byte    `json:"data,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subscriber receives notifications on C until it is unsubscribed.
type Subscriber struct {
	ID      string
	C       <-chan Notification
	ch      chan Notification
	topics  map[string]struct{}
	dropped atomic.Int64
}

// Dropped returns how many notifications were discarded for this subscriber.
func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}

// Hub routes notifications to subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	byTopic     map[string]map[string]*Subscriber
	bufferSize  int
	dropped     atomic.Int64
	delivered   atomic.Int64
	logger      *slog.Logger
}

// NewHub creates a hub whose subscribers buffer bufferSize notifications.
func NewHub(bufferSize int, logger *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Hub{
		subscribers: make(map[string]*Subscriber),
		byTopic:     make(map[string]map[string]*Subscriber),
		bufferSize:  bufferSize,
		logger:      logging.NewComponentLogger(logger, "push"),
	}
}

// Subscribe registers a subscriber for the given topics.
func (h *Hub) Subscribe(topics ...string) *Subscriber {
	ch := make(chan Notification, h.bufferSize)
	sub := &Subscriber{ID: uuid.NewString(), C: ch, ch: ch, topics: make(map[string]struct{})}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[sub.ID] = sub
	h.addTopicsLocked(sub, topics)
	return sub
}

// AddTopics extends an existing subscription.
func (h *Hub) AddTopics(sub *Subscriber, topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub.ID]; !ok {
		return
	}
	h.addTopicsLocked(sub, topics)
}

// RemoveTopics narrows an existing subscription.
func (h *Hub) RemoveTopics(sub *Subscriber, topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		delete(sub.topics, topic)
		if subs, ok := h.byTopic[topic]; ok {
			delete(subs, sub.ID)
			if len(subs) == 0 {
				delete(h.byTopic, topic)
			}
		}
	}
}

func (h *Hub) addTopicsLocked(sub *Subscriber, topics []string) {
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		sub.topics[topic] = struct{}{}
		subs, ok := h.byTopic[topic]
		if !ok {
			subs = make(map[string]*Subscriber)
			h.byTopic[topic] = subs
		}
		subs[sub.ID] = sub
	}
}

// Unsubscribe removes sub and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub.ID]; !ok {
		return
	}
	for topic := range sub.topics {
		if subs, ok := h.byTopic[topic]; ok {
			delete(subs, sub.ID)
			if len(subs) == 0 {
				delete(h.byTopic, topic)
			}
		}
	}
	delete(h.subscribers, sub.ID)
	close(sub.ch)
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Dropped returns the total number of discarded notifications.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Delivered returns the total number of buffered notifications.
func (h *Hub) Delivered() int64 {
	return h.delivered.Load()
}

// SendChunks offers each chunk to its subscribers without blocking. When any
// notification is dropped the returned error wraps services.ErrPublishFailure.
func (h *Hub) SendChunks(ctx context.Context, chunks []queue.CompiledChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	var dropped int64
	for _, chunk := range chunks {
		n := Notification{
			Index:     chunk.Index,
			ChunkKey:  chunk.ChunkKey,
			Version:   chunk.Version,
			Data:      chunk.Data,
			UpdatedAt: chunk.UpdatedAt,
		}
		for _, sub := range h.recipientsLocked(chunk.Index, chunk.ChunkKey) {
			select {
			case sub.ch <- n:
				h.delivered.Add(1)
			default:
				sub.dropped.Add(1)
				dropped++
			}
		}
	}
	if dropped == 0 {
		return nil
	}
	h.dropped.Add(dropped)
	logging.WithContext(ctx, h.logger).Debug("subscriber buffers full",
		logging.Int64("dropped", dropped),
		logging.String(logging.FieldEventType, "push_dropped"),
	)
	return services.Wrap(services.ErrPublishFailure, "push", "send chunks",
		fmt.Sprintf("%d notification(s) dropped for slow subscribers", dropped), nil)
}

func (h *Hub) recipientsLocked(index, key string) []*Subscriber {
	seen := make(map[string]struct{})
	var out []*Subscriber
	for _, topic := range []string{Topic(index, key), Topic(index, Wildcard), Wildcard} {
		for id, sub := range h.byTopic[topic] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, sub)
		}
	}
	return out
}
