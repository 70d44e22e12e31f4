// Package eventbus is the process-local publish/subscribe dispatcher
// keyed by task id (spec.md section 4.2, component C4). Ordering
// guarantee: for a given task id, events reach each subscriber in the
// exact order the producer emitted them; late subscribers see nothing
// emitted before they attached.
package eventbus

import (
	"sync"

	"github.com/gammazero/deque"

	"github.com/proofport/gateway/models/gateway"
)

// Kind tags the three event shapes the bus ever carries.
type Kind string

const (
	KindStatusUpdate   Kind = "status-update"
	KindArtifactUpdate Kind = "artifact-update"
	KindTaskComplete   Kind = "task-complete"
)

// Event is one item delivered to a task's subscribers.
type Event struct {
	Kind     Kind
	Status   *gateway.TaskStatus
	Artifact *gateway.Artifact
	LastChunk bool
	Task     *gateway.Task
}

// StatusUpdateEvent builds a status-update Event.
func StatusUpdateEvent(status gateway.TaskStatus, final bool) Event {
	status.Final = final
	return Event{Kind: KindStatusUpdate, Status: &status}
}

// ArtifactUpdateEvent builds an artifact-update Event.
func ArtifactUpdateEvent(artifact gateway.Artifact, lastChunk bool) Event {
	return Event{Kind: KindArtifactUpdate, Artifact: &artifact, LastChunk: lastChunk}
}

// TaskCompleteEvent builds the terminal task-complete Event.
func TaskCompleteEvent(task gateway.Task) Event {
	return Event{Kind: KindTaskComplete, Task: &task}
}

// subscriberBufferSize bounds the per-subscriber backlog: a slow SSE
// client falls behind the deque instead of blocking the publisher or
// growing memory without limit.
const subscriberBufferSize = 256

// subscriber is one attached consumer for a single task id.
type subscriber struct {
	mu     sync.Mutex
	buf    deque.Deque[Event]
	signal chan struct{}
	closed bool
}

func newSubscriber() *subscriber {
	return &subscriber{signal: make(chan struct{}, 1)}
}

func (s *subscriber) push(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.buf.Len() >= subscriberBufferSize {
		s.buf.PopFront() // drop oldest; slow consumer, not a correctness issue for SSE
	}
	s.buf.PushBack(e)
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// next blocks until an event is available or done fires.
func (s *subscriber) next(done <-chan struct{}) (Event, bool) {
	for {
		s.mu.Lock()
		if s.buf.Len() > 0 {
			e := s.buf.PopFront()
			s.mu.Unlock()
			return e, true
		}
		s.mu.Unlock()
		select {
		case <-s.signal:
			continue
		case <-done:
			return Event{}, false
		}
	}
}

// Bus is the in-process event dispatcher.
type Bus struct {
	mu   sync.Mutex
	subs map[string][]*subscriber
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string][]*subscriber)}
}

// Publish delivers event to every subscriber currently attached to
// taskID, in call order.
func (b *Bus) Publish(taskID string, event Event) {
	b.mu.Lock()
	subs := append([]*subscriber(nil), b.subs[taskID]...)
	b.mu.Unlock()
	for _, s := range subs {
		s.push(event)
	}
}

// Subscription is a live attachment to one task's event stream.
type Subscription struct {
	bus      *Bus
	taskID   string
	sub      *subscriber
	done     chan struct{}
	closeOne sync.Once
}

// Subscribe attaches a new subscriber to taskID. Events emitted before
// this call are never delivered; callers needing a coherent view take
// a store snapshot first, then subscribe (spec.md section 4.2).
func (b *Bus) Subscribe(taskID string) *Subscription {
	sub := newSubscriber()
	b.mu.Lock()
	b.subs[taskID] = append(b.subs[taskID], sub)
	b.mu.Unlock()
	return &Subscription{bus: b, taskID: taskID, sub: sub, done: make(chan struct{})}
}

// Next blocks for the next event, or returns false once Close has run.
func (s *Subscription) Next() (Event, bool) {
	return s.sub.next(s.done)
}

// Close detaches the subscription from the bus. Safe to call more than
// once (e.g. once from a ctx-cancellation watcher and once from a
// deferred cleanup) — only the first call takes effect.
func (s *Subscription) Close() {
	s.closeOne.Do(func() {
		close(s.done)
		s.sub.mu.Lock()
		s.sub.closed = true
		s.sub.mu.Unlock()

		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		list := s.bus.subs[s.taskID]
		for i, sub := range list {
			if sub == s.sub {
				s.bus.subs[s.taskID] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(s.bus.subs[s.taskID]) == 0 {
			delete(s.bus.subs, s.taskID)
		}
	})
}
