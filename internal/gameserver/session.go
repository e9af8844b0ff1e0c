package gameserver

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/udisondev/netplay/internal/sim"
	"github.com/udisondev/netplay/internal/transport"
)

// SessionState is the lifecycle stage of one connected peer.
type SessionState int

const (
	// StateConnected: transport handshake done, no credentials yet.
	StateConnected SessionState = iota
	// StateAuthenticating: a GameAuthRequest is being verified.
	StateAuthenticating
	// StateAuthenticated: token accepted, player not yet spawned.
	StateAuthenticated
	// StateInGame: spawned and simulated every tick.
	StateInGame
	// StateDisconnecting: teardown started, no further messages accepted.
	StateDisconnecting
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateInGame:
		return "IN_GAME"
	case StateDisconnecting:
		return "DISCONNECTING"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// legalTransitions is the session state machine. Disconnecting is reachable
// from everywhere; nothing leaves it.
var legalTransitions = map[SessionState][]SessionState{
	StateConnected:      {StateAuthenticating, StateDisconnecting},
	StateAuthenticating: {StateAuthenticated, StateConnected, StateDisconnecting},
	StateAuthenticated:  {StateInGame, StateDisconnecting},
	StateInGame:         {StateDisconnecting},
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to SessionState) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// PlayerSession is the per-peer server-side state. All fields are owned by
// the tick goroutine; nothing here needs a lock.
type PlayerSession struct {
	Peer        transport.PeerID
	Addr        string
	State       SessionState
	ConnectedAt time.Time

	// Identity, set once authentication succeeds.
	UserID   uuid.UUID
	Username string

	// Authoritative simulation state.
	Snapshot     sim.StateSnapshot
	LastInputSeq uint32
}

// NewPlayerSession creates a session in the Connected state.
func NewPlayerSession(peer transport.PeerID, addr string) *PlayerSession {
	return &PlayerSession{
		Peer:        peer,
		Addr:        addr,
		State:       StateConnected,
		ConnectedAt: time.Now(),
	}
}

// Transition moves the session to a new state, refusing illegal jumps.
func (p *PlayerSession) Transition(to SessionState) error {
	if !CanTransition(p.State, to) {
		return fmt.Errorf("illegal session transition %s -> %s (peer %d)", p.State, to, p.Peer)
	}
	p.State = to
	return nil
}

// Spawn resets the simulation state to the spawn point at the given tick.
func (p *PlayerSession) Spawn(tick uint32) {
	p.Snapshot = sim.StateSnapshot{Tick: tick, Flags: sim.FlagGrounded}
	p.LastInputSeq = 0
}
