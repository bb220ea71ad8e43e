package chat

import (
	"sync"

	"github.com/ageniuscoder/mmchat/chatcore/internal/protocol"
)

// State is the lifecycle of one connection handle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateRejected:
		return "rejected"
	}
	return "unknown"
}

type EventKind int

const (
	EventMessage EventKind = iota + 1
	EventTyping
	EventPresence
	EventError
	EventReconnected
	EventRejected
	EventStateChanged
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventTyping:
		return "typing"
	case EventPresence:
		return "presence"
	case EventError:
		return "error"
	case EventReconnected:
		return "reconnected"
	case EventRejected:
		return "rejected"
	case EventStateChanged:
		return "state"
	}
	return "unknown"
}

// Event is published by a Conn to its subscribers. ConversationID and Epoch
// identify the connection attempt that produced it.
type Event struct {
	Kind           EventKind
	ConversationID string
	Epoch          uint64

	Message   protocol.Message // EventMessage
	AccountID string           // EventTyping
	IsTyping  bool             // EventTyping
	Members   []string         // EventPresence
	Detail    string           // EventError
	Code      int              // EventRejected
	State     State            // EventStateChanged
}

type subscriber struct {
	id int
	fn func(Event)
}

// dispatcher calls subscribers synchronously and in registration order so
// that events reach every subscriber in transport order.
type dispatcher struct {
	mu   sync.RWMutex
	next int
	subs []subscriber
}

func (d *dispatcher) subscribe(fn func(Event)) func() {
	d.mu.Lock()
	d.next++
	id := d.next
	d.subs = append(d.subs, subscriber{id: id, fn: fn})
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, s := range d.subs {
			if s.id == id {
				d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
				return
			}
		}
	}
}

func (d *dispatcher) emit(ev Event) {
	d.mu.RLock()
	subs := append([]subscriber(nil), d.subs...)
	d.mu.RUnlock()
	for _, s := range subs {
		s.fn(ev)
	}
}
