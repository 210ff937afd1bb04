// Package hub fans snapshots out to live subscribers.
//
// A single actor goroutine owns all subscriber state, so there are no
// locks: every mutation arrives as a command on one channel. Transports
// (WebSocket, SSE) consume plain subscription channels and stay out of
// the actor entirely.
package hub

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/domain"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/metrics"
)

const (
	// subscriberBuffer is how many undelivered messages a subscriber
	// may accumulate before it is considered slow and evicted.
	subscriberBuffer = 16

	commandBuffer  = 256
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
)

// Kind distinguishes the two message shapes subscribers receive.
type Kind string

const (
	// KindInit carries the full current state, sent exactly once as the
	// first message of every subscription.
	KindInit Kind = "init"
	// KindTick carries the result of a completed poll cycle or a
	// catalogue change.
	KindTick Kind = "tick"
)

// Message is one unit of fan-out.
type Message struct {
	Kind     Kind
	Snapshot *domain.Snapshot
}

// Subscription is one subscriber's feed. C is closed when the
// subscription ends, whether by Unsubscribe, event deletion, slow
// consumer eviction, or hub shutdown.
type Subscription struct {
	C <-chan Message

	eventID string
	ch      chan Message
}

// EventID returns the event this subscription follows.
func (s *Subscription) EventID() string { return s.eventID }

type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type subscribeCmd struct {
	baseHubCmd
	eventID string
	reply   chan subscribeReply
}

type subscribeReply struct {
	sub *Subscription
	err error
}

type unsubscribeCmd struct {
	baseHubCmd
	sub *Subscription
}

type publishCmd struct {
	baseHubCmd
	eventID  string
	snapshot *domain.Snapshot
}

type closeEventCmd struct {
	baseHubCmd
	eventID string
}

type stopCmd struct {
	baseHubCmd
}

// Hub is the fan-out actor.
type Hub struct {
	cmdCh     chan hubCmd
	snapshots domain.SnapshotSource
	clock     clockwork.Clock
	subs      map[string]map[*Subscription]struct{}
	done      chan struct{}
}

func New(snapshots domain.SnapshotSource, clock clockwork.Clock) *Hub {
	h := &Hub{
		cmdCh:     make(chan hubCmd, commandBuffer),
		snapshots: snapshots,
		clock:     clock,
		subs:      make(map[string]map[*Subscription]struct{}),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

// Subscribe registers a new subscriber for the event. The returned
// channel delivers an init message with the current state first, then
// a tick per snapshot. Nothing published between the state read and
// the registration can be missed: both happen in one actor step.
func (h *Hub) Subscribe(eventID string) (*Subscription, error) {
	reply := make(chan subscribeReply, 1)
	select {
	case h.cmdCh <- subscribeCmd{eventID: eventID, reply: reply}:
	case <-h.done:
		return nil, fmt.Errorf("hub is stopped")
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case r := <-reply:
		return r.sub, r.err
	case <-timer.Chan():
		return nil, fmt.Errorf("subscribe timed out after %v", commandTimeout)
	}
}

// Unsubscribe removes a subscriber. Safe to call more than once and
// after the subscription has already been closed by the hub.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	select {
	case h.cmdCh <- unsubscribeCmd{sub: sub}:
	case <-h.done:
	}
}

// Publish fans a snapshot out to the event's subscribers.
func (h *Hub) Publish(eventID string, snapshot *domain.Snapshot) {
	select {
	case h.cmdCh <- publishCmd{eventID: eventID, snapshot: snapshot}:
	case <-h.done:
	}
}

// CloseEvent drops every subscriber of a deleted event.
func (h *Hub) CloseEvent(eventID string) {
	select {
	case h.cmdCh <- closeEventCmd{eventID: eventID}:
	case <-h.done:
	}
}

// Stop closes all subscriptions and shuts the actor down.
func (h *Hub) Stop() {
	select {
	case h.cmdCh <- stopCmd{}:
	case <-h.done:
		return
	}

	timer := h.clock.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-h.done:
	case <-timer.Chan():
		slog.Warn("hub stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (h *Hub) run() {
	defer close(h.done)

	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case subscribeCmd:
			h.handleSubscribe(c)
		case unsubscribeCmd:
			h.handleUnsubscribe(c.sub)
		case publishCmd:
			h.handlePublish(c.eventID, c.snapshot)
		case closeEventCmd:
			h.handleCloseEvent(c.eventID)
		case stopCmd:
			h.handleStop()
			return
		default:
			slog.Warn("hub received unknown command", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (h *Hub) handleSubscribe(c subscribeCmd) {
	snapshot, err := h.snapshots.Snapshot(c.eventID)
	if err != nil {
		c.reply <- subscribeReply{err: err}
		return
	}

	ch := make(chan Message, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, eventID: c.eventID}

	// The init message goes into the buffer before the subscription is
	// visible to publishes, so the first delivered message is always
	// the state every later tick builds on.
	ch <- Message{Kind: KindInit, Snapshot: snapshot}
	metrics.HubMessagesTotal.WithLabelValues(string(KindInit)).Inc()

	group, ok := h.subs[c.eventID]
	if !ok {
		group = make(map[*Subscription]struct{})
		h.subs[c.eventID] = group
	}
	group[sub] = struct{}{}
	metrics.HubSubscribers.Inc()

	slog.Debug("subscriber registered", "event_id", c.eventID, "subscribers", len(group))
	c.reply <- subscribeReply{sub: sub}
}

func (h *Hub) handleUnsubscribe(sub *Subscription) {
	group, ok := h.subs[sub.eventID]
	if !ok {
		return
	}
	if _, ok := group[sub]; !ok {
		return
	}
	delete(group, sub)
	close(sub.ch)
	metrics.HubSubscribers.Dec()
	if len(group) == 0 {
		delete(h.subs, sub.eventID)
	}
}

func (h *Hub) handlePublish(eventID string, snapshot *domain.Snapshot) {
	group, ok := h.subs[eventID]
	if !ok {
		return
	}

	msg := Message{Kind: KindTick, Snapshot: snapshot}
	var slow []*Subscription
	for sub := range group {
		select {
		case sub.ch <- msg:
			metrics.HubMessagesTotal.WithLabelValues(string(KindTick)).Inc()
		default:
			slow = append(slow, sub)
		}
	}

	// A full buffer means the consumer has fallen a whole window
	// behind. Dropping it beats stalling everyone else.
	for _, sub := range slow {
		slog.Warn("evicting slow subscriber", "event_id", eventID)
		metrics.HubSlowSubscribersEvicted.Inc()
		h.handleUnsubscribe(sub)
	}
}

func (h *Hub) handleCloseEvent(eventID string) {
	group, ok := h.subs[eventID]
	if !ok {
		return
	}
	for sub := range group {
		close(sub.ch)
		metrics.HubSubscribers.Dec()
	}
	delete(h.subs, eventID)
	slog.Info("subscribers dropped for deleted event", "event_id", eventID, "count", len(group))
}

func (h *Hub) handleStop() {
	total := 0
	for eventID, group := range h.subs {
		total += len(group)
		for sub := range group {
			close(sub.ch)
			metrics.HubSubscribers.Dec()
		}
		delete(h.subs, eventID)
	}
	slog.Info("hub shut down", "disconnected_subscribers", total)
}
