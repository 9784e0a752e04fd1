package bus

import "sync"

const subscriberBuffer = 64

// Broadcaster fans decoded messages out to per-event subscribers. There is
// no replay: a subscriber only observes messages published after it
// subscribed. A subscriber that stops reading loses its oldest buffered
// messages; it never blocks the publisher or sibling subscribers.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[Event][]*Subscription
	closed bool
}

// Subscription is one subscriber's view of a single event category.
type Subscription struct {
	C <-chan Message

	ch    chan Message
	event Event
	b     *Broadcaster
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[Event][]*Subscription)}
}

// Subscribe registers interest in one event category.
func (b *Broadcaster) Subscribe(event Event) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		ch:    make(chan Message, subscriberBuffer),
		event: event,
		b:     b,
	}
	sub.C = sub.ch
	if !b.closed {
		b.subs[event] = append(b.subs[event], sub)
	} else {
		close(sub.ch)
	}
	return sub
}

// Cancel removes the subscription and closes its channel.
func (s *Subscription) Cancel() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	list := s.b.subs[s.event]
	for i, other := range list {
		if other == s {
			s.b.subs[s.event] = append(list[:i], list[i+1:]...)
			close(s.ch)
			return
		}
	}
}

// Publish delivers msg to every current subscriber of its event category.
// Full subscriber buffers drop their oldest message to make room.
func (b *Broadcaster) Publish(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs[msg.Event()] {
		select {
		case sub.ch <- msg:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- msg:
			default:
			}
		}
	}
}

// Close cancels every subscription. Subsequent Publish calls are no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, list := range b.subs {
		for _, sub := range list {
			close(sub.ch)
		}
	}
	b.subs = make(map[Event][]*Subscription)
}
