package store

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/mjl-/mstore/metrics"
	"github.com/mjl-/mstore/mlog"
)

// EventKind says what structurally changed about a mailbox.
type EventKind int

const (
	EventClosed      EventKind = iota + 1 // Mailbox was closed.
	EventInvalidated                      // Record list changed, derived state was rebuilt.
	EventResort                           // Record list needs resorting.
	EventUpdate                           // Counters/tables need updating.
	EventUntag                            // Forget the last-tagged position.
	EventAdded                            // Mailbox added to a registry.
	EventRemoved                          // Mailbox about to be removed from a registry.
)

var eventKindStrings = map[EventKind]string{
	EventClosed:      "closed",
	EventInvalidated: "invalidated",
	EventResort:      "resort",
	EventUpdate:      "update",
	EventUntag:       "untag",
	EventAdded:       "added",
	EventRemoved:     "removed",
}

func (k EventKind) String() string {
	if s, ok := eventKindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("(unknown event kind %d)", int(k))
}

// Event is delivered to subscribers when a mailbox changed.
type Event struct {
	Mailbox *Mailbox
	Kind    EventKind
}

// Listener receives events. Delivery is synchronous on the mutating call, a
// listener must not do long-blocking work or it stalls the mutator.
type Listener func(Event)

type subscription struct {
	fn        Listener
	cancelled bool
}

// Notifier fans out events to subscribers, in subscription order,
// synchronously. It defines no transactional semantics, delivery is
// fire-and-forget: a panicking listener does not prevent delivery to the
// others.
type Notifier struct {
	sync.Mutex
	subs []*subscription
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe registers a listener and returns a function that cancels the
// subscription. Both may be called from a listener during delivery, the
// change takes effect for the next event.
func (n *Notifier) Subscribe(fn Listener) (cancel func()) {
	n.Lock()
	defer n.Unlock()

	// Compact out previously cancelled subscriptions.
	subs := n.subs[:0]
	for _, s := range n.subs {
		if !s.cancelled {
			subs = append(subs, s)
		}
	}

	s := &subscription{fn: fn}
	n.subs = append(subs, s)
	return func() {
		n.Lock()
		defer n.Unlock()
		s.cancelled = true
	}
}

// Notify delivers the event to all current subscribers. The subscriber list
// is snapshotted first, so listeners subscribing or cancelling during
// delivery do not affect this round.
func (n *Notifier) Notify(ev Event) {
	n.Lock()
	snapshot := make([]Listener, 0, len(n.subs))
	for _, s := range n.subs {
		if !s.cancelled {
			snapshot = append(snapshot, s.fn)
		}
	}
	n.Unlock()

	metrics.NotifyInc(ev.Kind.String())
	for _, fn := range snapshot {
		deliver(fn, ev)
	}
}

func deliver(fn Listener, ev Event) {
	defer func() {
		x := recover()
		if x == nil {
			return
		}
		xlog.Error("unhandled panic in mailbox event listener", mlog.Field("err", fmt.Sprintf("%v", x)), mlog.Field("kind", ev.Kind))
		debug.PrintStack()
		metrics.PanicInc(metrics.Store)
	}()
	fn(ev)
}
