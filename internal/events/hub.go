package events

import (
	"errors"
	"strings"
	"sync"
)

const (
	DefaultBufferSize       = 50
	DefaultSubscriberBuffer = 16
)

// Hub is the in-process Publisher: a per-topic ring buffer plus live
// subscriber channels.
type Hub struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	buffer []Event
	subs   map[uint64]chan Event
	nextID uint64
}

type Subscription struct {
	hub   *Hub
	topic string
	id    uint64
	ch    chan Event
	once  sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[string]*stream),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

func (h *Hub) Publish(topic string, event Event) {
	if h == nil {
		return
	}
	key := strings.TrimSpace(topic)
	if key == "" {
		return
	}
	h.mu.RLock()
	stream := h.streams[key]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	stream.buffer = append(stream.buffer, event)
	if len(stream.buffer) > h.bufferSize {
		stream.buffer = stream.buffer[len(stream.buffer)-h.bufferSize:]
	}
	subs := make([]chan Event, 0, len(stream.subs))
	for _, ch := range stream.subs {
		subs = append(subs, ch)
	}
	stream.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *Hub) Subscribe(topic string) (*Subscription, []Event, error) {
	if h == nil {
		return nil, nil, errors.New("hub_unavailable")
	}
	key := strings.TrimSpace(topic)
	if key == "" {
		return nil, nil, errors.New("invalid_topic")
	}

	stream := h.ensureStream(key)
	stream.mu.Lock()
	if stream.subs == nil {
		stream.subs = make(map[uint64]chan Event)
	}
	id := stream.nextID
	stream.nextID++
	ch := make(chan Event, h.subscriberBuffer)
	stream.subs[id] = ch
	buffer := append([]Event(nil), stream.buffer...)
	stream.mu.Unlock()

	return &Subscription{
		hub:   h,
		topic: key,
		id:    id,
		ch:    ch,
	}, buffer, nil
}

func (s *Subscription) Events() <-chan Event { return s.ch }

func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.topic, s.id)
	})
}

func (h *Hub) ensureStream(topic string) *stream {
	h.mu.RLock()
	current := h.streams[topic]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[topic]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan Event)}
		h.streams[topic] = current
	}
	return current
}

func (h *Hub) unsubscribe(topic string, id uint64) {
	if h == nil {
		return
	}
	h.mu.RLock()
	stream := h.streams[topic]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	delete(stream.subs, id)
	remaining := len(stream.subs)
	stream.mu.Unlock()
	if remaining != 0 {
		return
	}

	h.mu.Lock()
	current := h.streams[topic]
	if current == stream {
		stream.mu.Lock()
		if len(stream.subs) == 0 {
			delete(h.streams, topic)
		}
		stream.mu.Unlock()
	}
	h.mu.Unlock()
}
