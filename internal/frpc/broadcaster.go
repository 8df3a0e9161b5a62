package frpc

import (
	"sync"
	"time"
)

// Event is one line of frpc output or one internal diagnostic, in emission
// order. Events are immutable once published.
type Event struct {
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Broadcaster fans events out to any number of subscribers and keeps a
// ring buffer of recent events for late joiners.
type Broadcaster struct {
	clients map[chan Event]bool
	history []Event
	maxHist int
	mu      sync.RWMutex
}

// NewBroadcaster creates a broadcaster with the specified history size.
func NewBroadcaster(historySize int) *Broadcaster {
	if historySize <= 0 {
		historySize = 1000 // default
	}
	return &Broadcaster{
		clients: make(map[chan Event]bool),
		history: make([]Event, 0, historySize),
		maxHist: historySize,
	}
}

// Subscribe adds a new client to receive events.
func (b *Broadcaster) Subscribe() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100) // Buffer to prevent blocking
	b.clients[ch] = true
	return ch
}

// SubscribeWithHistory adds a new client and returns up to historyLines of
// recent events. The history slice is returned separately to avoid
// blocking the channel.
func (b *Broadcaster) SubscribeWithHistory(historyLines int) (chan Event, []Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100)
	b.clients[ch] = true

	var history []Event
	if historyLines > 0 && len(b.history) > 0 {
		start := len(b.history) - historyLines
		if start < 0 {
			start = 0
		}
		history = make([]Event, len(b.history)-start)
		copy(history, b.history[start:])
	}

	return ch, history
}

// Unsubscribe removes a client from receiving events.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.clients, ch)
	close(ch)
}

// Publish sends an event to all subscribed clients, preserving emission
// order for each subscriber.
func (b *Broadcaster) Publish(text string) {
	b.publish(Event{Time: time.Now(), Text: text})
}

func (b *Broadcaster) publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.history) >= b.maxHist {
		// Remove oldest entry
		b.history = b.history[1:]
	}
	b.history = append(b.history, event)

	for ch := range b.clients {
		select {
		case ch <- event:
		default:
			// Channel buffer full, skip this client to prevent blocking
		}
	}
}

// History returns a copy of the buffered events.
func (b *Broadcaster) History() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Event, len(b.history))
	copy(out, b.history)
	return out
}

// ClearHistory clears the history buffer.
func (b *Broadcaster) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = b.history[:0]
}
