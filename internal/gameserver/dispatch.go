package gameserver

import (
	"log/slog"

	"github.com/udisondev/netplay/internal/metrics"
	"github.com/udisondev/netplay/internal/netmsg"
)

// msgHandler processes one decoded-kind message for a session. The payload
// still carries the leading kind word; handlers decode their own type.
type msgHandler func(sess *PlayerSession, payload []byte)

// Dispatcher routes application messages by kind. Registration happens once
// at server construction; dispatch runs on the tick goroutine only.
type Dispatcher struct {
	handlers map[netmsg.Kind]msgHandler
}

// NewDispatcher creates an empty dispatch table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[netmsg.Kind]msgHandler)}
}

// Register installs the handler for a message kind. Double registration is
// a programming error and panics at startup.
func (d *Dispatcher) Register(kind netmsg.Kind, fn msgHandler) {
	if _, dup := d.handlers[kind]; dup {
		panic("duplicate handler for message kind " + kind.String())
	}
	d.handlers[kind] = fn
}

// Dispatch routes one message. Unknown kinds are counted and logged, never
// fatal: an old client must not be able to crash the server.
func (d *Dispatcher) Dispatch(sess *PlayerSession, payload []byte) {
	kind, err := netmsg.PeekKind(payload)
	if err != nil {
		slog.Warn("undecodable message", "peer", sess.Peer, "err", err)
		return
	}
	metrics.MessagesReceived.WithLabelValues(serviceLabel, kind.String()).Inc()

	fn, ok := d.handlers[kind]
	if !ok {
		metrics.UnknownMessages.WithLabelValues(serviceLabel).Inc()
		slog.Warn("unhandled message kind", "peer", sess.Peer, "kind", kind, "state", sess.State)
		return
	}
	fn(sess, payload)
}
