package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/guestwatch/internal/registry"
)

const (
	RealtimeEventStateChanged = "state-change"
	realtimeEventHeartbeat    = "heartbeat"
	realtimeSourceBackend     = "guestwatch-backend"
	realtimeHeartbeatInterval = 25 * time.Second
)

// RealtimeMessage is delivered to every console subscribed to change events.
type RealtimeMessage struct {
	EventType string
	Kinds     []string
	Timestamp time.Time
}

// RealtimeDispatcher fans change events out to subscribed streams. Slow
// subscribers drop events rather than block publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context) (<-chan RealtimeMessage, func()) {
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	d.mu.RLock()
	if len(d.subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// Notify adapts registry change events onto the realtime stream.
func (d *RealtimeDispatcher) Notify(event registry.ChangeEvent) {
	kinds := make([]string, 0, len(event.Kinds))
	for _, kind := range event.Kinds {
		kinds = append(kinds, string(kind))
	}
	d.Publish(RealtimeMessage{
		EventType: RealtimeEventStateChanged,
		Kinds:     kinds,
		Timestamp: event.Timestamp,
	})
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(subscriberID int64) {
	d.mu.Lock()
	delete(d.subscribers, subscriberID)
	d.mu.Unlock()
}
