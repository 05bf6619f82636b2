package library

import (
	"sync"

	"github.com/misli/misli-go/internal/metric"
)

// Op is the kind of change reported in an Event.
type Op string

const (
	OpUpdated Op = "updated"
	OpRemoved Op = "removed"
)

// Event reports that a note file was written or removed. Summary is set
// for updates when the file is indexed.
type Event struct {
	Op      Op       `json:"op"`
	Name    string   `json:"name"`
	Summary *Summary `json:"summary,omitempty"`
}

// eventBuffer is the channel capacity of each subscriber. Events for a
// subscriber that falls this far behind are dropped.
const eventBuffer = 64

type broker struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

func newBroker() *broker {
	return &broker{subs: make(map[int]chan Event)}
}

func (b *broker) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, eventBuffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}

	return ch, cancel
}

// publish delivers ev to every subscriber without blocking and returns
// how many subscribers missed it.
func (b *broker) publish(ev Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := 0
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			dropped++
		}
	}
	return dropped
}

// Subscribe returns a channel of library events and a function that ends
// the subscription and closes the channel.
func (l *Library) Subscribe() (<-chan Event, func()) {
	return l.events.subscribe()
}

// notify publishes a change, attaching the current summary to updates.
func (l *Library) notify(op Op, name string) {
	ev := Event{Op: op, Name: name}
	if op == OpUpdated {
		ev.Summary = l.index.Get(name)
	}

	if dropped := l.events.publish(ev); dropped > 0 {
		metric.AddEventsDropped(dropped)
		l.logger.Debug("slow subscribers missed event",
			"op", string(op),
			"name", name,
			"dropped", dropped,
		)
	}
}
