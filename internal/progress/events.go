package progress

import (
	"sync"
	"time"
)

// Event is pushed to a user's live feed when one of their sessions completes.
type Event struct {
	Type        string    `json:"type"`
	SessionID   int64     `json:"session_id"`
	TopicID     int64     `json:"topic_id"`
	Score       float64   `json:"score"`
	Mastery     float64   `json:"mastery"`
	Streak      int       `json:"streak"`
	CompletedAt time.Time `json:"completed_at"`
}

// EventSessionCompleted is the only event type currently published.
const EventSessionCompleted = "session_completed"

// Broker fans completion events out to per-user subscribers. Publishing never
// blocks: a subscriber that cannot keep up drops events rather than stalling
// the submission path.
type Broker struct {
	mu   sync.Mutex
	subs map[int64]map[chan Event]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int64]map[chan Event]struct{})}
}

// Subscribe registers a feed for the user. The returned cancel function must
// be called to release the subscription; the channel is closed by cancel.
func (b *Broker) Subscribe(userID int64) (<-chan Event, func()) {
	ch := make(chan Event, 8)

	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[chan Event]struct{})
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[userID], ch)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber of the user.
func (b *Broker) Publish(userID int64, e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[userID] {
		select {
		case ch <- e:
		default:
		}
	}
}
