package progress

import (
	"sync"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls further behind than this misses events; the canonical step state
// lives on the run and can be re-fetched.
const subscriberBuffer = 64

// Bus fans run events out to subscribers. One goroutine publishes per run,
// so subscribers observe that run's events in emission order. There is no
// replay: a subscriber only receives events published after it subscribed.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan Event
	nextID int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]map[int]chan Event),
	}
}

// Subscribe registers for a run's future events. The returned cancel
// function is idempotent and closes the channel.
func (b *Bus) Subscribe(runID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[runID] == nil {
		b.subs[runID] = make(map[int]chan Event)
	}

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[runID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.subs[runID]; ok {
				if sub, ok := subs[id]; ok {
					delete(subs, id)
					close(sub)
				}
				if len(subs) == 0 {
					delete(b.subs, runID)
				}
			}
		})
	}
	return ch, cancel
}

// Publish delivers an event to the run's current subscribers. It never
// blocks: a subscriber with a full buffer misses the event.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[evt.RunID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

// CloseRun closes every subscriber channel for a finished run. Called by
// the publisher after the terminal event.
func (b *Bus) CloseRun(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs[runID] {
		delete(b.subs[runID], id)
		close(ch)
	}
	delete(b.subs, runID)
}

// SubscriberCount reports active subscribers for a run.
func (b *Bus) SubscriberCount(runID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[runID])
}
