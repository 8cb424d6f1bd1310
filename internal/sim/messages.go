package sim

import (
	"sync"

	"github.com/banshee-data/trafficsim/internal/geom"
	"github.com/banshee-data/trafficsim/internal/world"
)

// MessageKind discriminates the point-to-point and broadcast messages
// entities exchange. Delivery is best effort: a full inbox drops the
// message, and no ordering is guaranteed across recipients.
type MessageKind string

const (
	// MsgBraking warns nearby vehicles of a sharp deceleration.
	MsgBraking MessageKind = "braking"
	// MsgHazard warns of an incident ahead; recipients consider rerouting.
	MsgHazard MessageKind = "hazard"
	// MsgLaneCooperate asks trailing vehicles to open a gap.
	MsgLaneCooperate MessageKind = "lane_cooperate"
	// MsgSignalState announces a signal transition to known vehicles.
	MsgSignalState MessageKind = "signal_state"
	// MsgPriority asks a signal for an immediate green.
	MsgPriority MessageKind = "priority"
	// MsgCongestion hints that the recipient's road is persistently busy.
	MsgCongestion MessageKind = "congestion"
)

// Message is a single inter-entity message.
type Message struct {
	Kind   MessageKind
	From   string
	Pos    geom.Position
	RoadID string
	State  world.SignalState
}

const inboxDepth = 32

// Inbox is a bounded mailbox owned by one entity. The owner drains it at
// the top of each tick.
type Inbox struct {
	ch chan Message
}

// NewInbox returns an empty inbox.
func NewInbox() *Inbox { return &Inbox{ch: make(chan Message, inboxDepth)} }

// Send delivers msg unless the inbox is full. Never blocks.
func (in *Inbox) Send(msg Message) bool {
	select {
	case in.ch <- msg:
		return true
	default:
		return false
	}
}

// Drain returns all currently queued messages without blocking.
func (in *Inbox) Drain() []Message {
	var out []Message
	for {
		select {
		case msg := <-in.ch:
			out = append(out, msg)
		default:
			return out
		}
	}
}

// Exchange routes messages between live entities by id. Entities register
// on start and unregister on termination; sends to unknown ids are quietly
// dropped, matching the "stale reference is a no-op" error policy.
type Exchange struct {
	mu      sync.RWMutex
	inboxes map[string]*Inbox
}

// NewExchange returns an empty exchange.
func NewExchange() *Exchange {
	return &Exchange{inboxes: make(map[string]*Inbox)}
}

// Register creates and returns the inbox for id, replacing any previous one.
func (e *Exchange) Register(id string) *Inbox {
	in := NewInbox()
	e.mu.Lock()
	e.inboxes[id] = in
	e.mu.Unlock()
	return in
}

// Unregister removes the inbox for id.
func (e *Exchange) Unregister(id string) {
	e.mu.Lock()
	delete(e.inboxes, id)
	e.mu.Unlock()
}

// Send delivers msg to the entity with the given id, if registered.
func (e *Exchange) Send(to string, msg Message) bool {
	e.mu.RLock()
	in, ok := e.inboxes[to]
	e.mu.RUnlock()
	if !ok {
		return false
	}
	return in.Send(msg)
}

// Broadcast delivers msg to each listed recipient, skipping the sender.
func (e *Exchange) Broadcast(ids []string, msg Message) {
	for _, id := range ids {
		if id == msg.From {
			continue
		}
		e.Send(id, msg)
	}
}
