package events

import (
	"context"
	"strings"
	"sync"
	"time"
)

// TopicStatus carries model readiness and processing gate changes
const TopicStatus = "status"

// Event types published by the service
const (
	TypeModelStatus      = "model_status"
	TypeProcessing       = "processing"
	TypeResultsRefreshed = "results_refreshed"
)

// Event is a server-side notification, delivered best effort
type Event struct {
	Topic   string         `json:"topic"`
	Seq     int64          `json:"seq"`
	Type    string         `json:"type"`
	Ts      string         `json:"ts"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Broker fans events out to subscribers of a topic
type Broker struct {
	mu          sync.RWMutex
	seq         int64
	subscribers map[string]map[chan Event]struct{}
}

func NormalizeTopic(topic string) string {
	return strings.TrimSpace(strings.ToLower(topic))
}

// NewBroker creates a new broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: map[string]map[chan Event]struct{}{},
	}
}

// Subscribe returns a channel of topic events that is closed when ctx is done
func (b *Broker) Subscribe(ctx context.Context, topic string) <-chan Event {
	topic = NormalizeTopic(topic)
	ch := make(chan Event, 16)

	b.mu.Lock()
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = map[chan Event]struct{}{}
	}
	b.subscribers[topic][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if b.subscribers[topic] != nil {
			delete(b.subscribers[topic], ch)
			if len(b.subscribers[topic]) == 0 {
				delete(b.subscribers, topic)
			}
		}
		b.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Publish delivers the event to current subscribers; slow subscribers miss it
func (b *Broker) Publish(topic, eventType string, payload map[string]any) {
	topic = NormalizeTopic(topic)

	b.mu.Lock()
	b.seq++
	event := Event{
		Topic:   topic,
		Seq:     b.seq,
		Type:    eventType,
		Ts:      time.Now().UTC().Format(time.RFC3339Nano),
		Payload: payload,
	}
	subscribers := b.subscribers[topic]
	chans := make([]chan Event, 0, len(subscribers))
	for ch := range subscribers {
		chans = append(chans, ch)
	}
	// sends happen under the lock so an unsubscribing goroutine cannot close a channel mid-send
	for _, ch := range chans {
		select {
		case ch <- event:
		default:
		}
	}
	b.mu.Unlock()
}
