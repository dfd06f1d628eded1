// Package notifysvc fans progress and curriculum changes out to the subscribers of each user.
package notifysvc

import (
	"context"
	"sync"

	"github.com/0xDevansh/aries-week/core/course"
	"github.com/0xDevansh/aries-week/core/progress"
)

const defaultBufferSize = 8

// Subscription receives the id of the user whose snapshot changed.
// C is closed when the subscription is cancelled.
type Subscription struct {
	C <-chan string

	ch     chan string
	userID string
	broker *Broker
	once   sync.Once
}

// Cancel unregisters s; it is safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() { s.broker.unsubscribe(s) })
}

// Broker is an in-process progress.Notifier.
// Every subscriber has its own buffer; when it is full the oldest pending event is dropped.
type Broker struct {
	mu         sync.Mutex
	subs       map[string]map[*Subscription]struct{} // {userID: subs}
	bufferSize int
}

var (
	_ progress.Notifier = (*Broker)(nil) // interface compliance check
	_ course.Notifier   = (*Broker)(nil)
)

func NewBroker(bufferSize ...int) *Broker {
	size := defaultBufferSize
	if len(bufferSize) > 0 && bufferSize[0] > 0 {
		size = bufferSize[0]
	}
	return &Broker{
		subs:       make(map[string]map[*Subscription]struct{}),
		bufferSize: size,
	}
}

func (b *Broker) Subscribe(userID string) *Subscription {
	ch := make(chan string, b.bufferSize)
	sub := &Subscription{C: ch, ch: ch, userID: userID, broker: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[*Subscription]struct{})
	}
	b.subs[userID][sub] = struct{}{}
	return sub
}

func (b *Broker) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subs[sub.userID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.subs, sub.userID)
		}
	}
	close(sub.ch)
}

// Subscribers returns the number of live subscriptions of userID.
func (b *Broker) Subscribers(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[userID])
}

// SnapshotChanged never blocks.
func (b *Broker) SnapshotChanged(_ context.Context, userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[userID] {
		sub.signal()
	}
}

// CurriculumChanged signals every subscriber, since a track or task edit may change anyone's snapshot.
func (b *Broker) CurriculumChanged(_ context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range b.subs {
		for sub := range subs {
			sub.signal()
		}
	}
}

// signal must be called with the broker lock held.
func (s *Subscription) signal() {
	for {
		select {
		case s.ch <- s.userID:
			return
		default:
			// full: drop the oldest and retry
			select {
			case <-s.ch:
			default:
			}
		}
	}
}
