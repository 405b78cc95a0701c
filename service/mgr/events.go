package mgr

import (
	"slices"
	"sync"
	"sync/atomic"
)

// EventMgr fans events out to subscribers.
// Submit never blocks. A subscriber with a full channel misses the event.
type EventMgr[T any] struct {
	name string
	mgr  *Manager

	subsLock sync.Mutex
	subs     []*EventSubscription[T]

	// OnOverflow is called with the subscriber name for every event that was
	// dropped because the subscriber channel was full.
	OnOverflow func(subscriberName string)
}

// EventSubscription receives the events of an EventMgr.
type EventSubscription[T any] struct {
	name     string
	events   chan T
	canceled atomic.Bool
}

// NewEventMgr returns an event manager for the named event.
// Overflows are logged to mgr, if set.
func NewEventMgr[T any](eventName string, mgr *Manager) *EventMgr[T] {
	return &EventMgr[T]{
		name: eventName,
		mgr:  mgr,
	}
}

// Subscribe adds a subscriber with a channel of chanSize.
// All subscribers receive the same event values.
func (em *EventMgr[T]) Subscribe(subscriberName string, chanSize int) *EventSubscription[T] {
	sub := &EventSubscription[T]{
		name:   subscriberName,
		events: make(chan T, chanSize),
	}

	em.subsLock.Lock()
	defer em.subsLock.Unlock()
	em.subs = append(em.subs, sub)

	return sub
}

// Submit hands event to all active subscribers and forgets canceled ones.
func (em *EventMgr[T]) Submit(event T) {
	em.subsLock.Lock()
	defer em.subsLock.Unlock()

	em.subs = slices.DeleteFunc(em.subs, (*EventSubscription[T]).Done)
	for _, sub := range em.subs {
		if !sub.offer(event) {
			em.overflow(sub.name)
		}
	}
}

func (em *EventMgr[T]) overflow(subscriberName string) {
	if em.mgr != nil {
		em.mgr.Warn("event dropped", "event", em.name, "subscriber", subscriberName)
	}
	if em.OnOverflow != nil {
		em.OnOverflow(subscriberName)
	}
}

// Subscribers returns the number of active subscriptions.
func (em *EventMgr[T]) Subscribers() (active int) {
	em.subsLock.Lock()
	defer em.subsLock.Unlock()

	for _, sub := range em.subs {
		if !sub.Done() {
			active++
		}
	}
	return active
}

func (es *EventSubscription[T]) offer(event T) bool {
	select {
	case es.events <- event:
		return true
	default:
		return false
	}
}

// Name returns the subscriber name.
func (es *EventSubscription[T]) Name() string {
	return es.name
}

// Events returns the channel events are delivered on.
func (es *EventSubscription[T]) Events() <-chan T {
	return es.events
}

// Cancel ends the subscription. The channel stays open, so that queued events
// can still be read.
func (es *EventSubscription[T]) Cancel() {
	es.canceled.Store(true)
}

// Done reports whether the subscription was canceled.
func (es *EventSubscription[T]) Done() bool {
	return es.canceled.Load()
}
