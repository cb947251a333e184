// Package events is the in-process pub/sub bus the Safe-Mode Controller
// and the managers it observes use to signal status transitions — nodes
// going stale or dead, pipelines changing state, safe-mode's one-way
// flip — to anything in this replica interested in reacting (a
// replication manager, a pipeline creator, log lines).
package events

import (
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventNodeRegistered    EventType = "node.registered"
	EventNodeStale         EventType = "node.stale"
	EventNodeDead          EventType = "node.dead"
	EventNodeDecommissioned EventType = "node.decommissioned"

	EventPipelineCreated EventType = "pipeline.created"
	EventPipelineOpened  EventType = "pipeline.opened"
	EventPipelineClosed  EventType = "pipeline.closed"
	EventPipelineDormant EventType = "pipeline.dormant"

	EventContainerAllocated EventType = "container.allocated"
	EventContainerClosed    EventType = "container.closed"
	EventContainerDeleted   EventType = "container.deleted"

	EventSafeModePreCheckComplete EventType = "safemode.precheck_complete"
	EventSafeModeExited           EventType = "safemode.exited"
)

// Critical reports whether a subscriber must not silently miss this
// event type under backpressure. A node going DEAD and safe-mode's
// one-way exit are the only transitions another subsystem could act
// on too late to matter — everything else (stale flaps, routine
// container churn) is fine to drop when a subscriber falls behind.
func (t EventType) Critical() bool {
	switch t {
	case EventNodeDead, EventSafeModeExited:
		return true
	default:
		return false
	}
}

// Subject identifies the SCM entity an event concerns. Kind is one of
// "node", "pipeline", "container"; subjectless events (safe-mode
// transitions, which concern the whole replica) leave it zero.
type Subject struct {
	Kind string
	ID   string
}

// Event represents a cluster event
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Subject   Subject
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// subscription holds a subscriber's event-type filter. A nil/empty
// types slice accepts everything.
type subscription struct {
	types []EventType
}

func (s subscription) accepts(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	for _, want := range s.types {
		if want == t {
			return true
		}
	}
	return false
}

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]subscription
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]subscription),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription, optionally narrowed to a set
// of event types. An empty filter receives everything.
func (b *Broker) Subscribe(types ...EventType) Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = subscription{types: types}
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all matching subscribers
func (b *Broker) Publish(event *Event) {
	// Set timestamp if not set
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

// broadcast fans an event out to every subscriber whose filter
// accepts it. A critical event facing a full subscriber buffer evicts
// the oldest queued event to make room rather than being skipped. (The
// per-node datanode command mailbox also drops its oldest entry on
// overflow, but it makes no critical/non-critical distinction: the
// oldest command goes, whatever its type.)
func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub, sc := range b.subscribers {
		if !sc.accepts(event.Type) {
			continue
		}
		select {
		case sub <- event:
			continue
		default:
		}
		if !event.Type.Critical() {
			continue
		}
		select {
		case <-sub:
		default:
		}
		select {
		case sub <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
