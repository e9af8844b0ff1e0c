package gameserver

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/udisondev/netplay/internal/transport"
)

// ErrAlreadyConnected means the account already has a live session.
var ErrAlreadyConnected = errors.New("account already connected")

// Registry indexes sessions by transport peer and by account. The account
// index is the duplicate-login guard: one account, one live session.
type Registry struct {
	mu     sync.RWMutex
	byPeer map[transport.PeerID]*PlayerSession
	byUser map[uuid.UUID]*PlayerSession
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byPeer: make(map[transport.PeerID]*PlayerSession),
		byUser: make(map[uuid.UUID]*PlayerSession),
	}
}

// Add registers a fresh session under its peer id.
func (r *Registry) Add(sess *PlayerSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPeer[sess.Peer] = sess
}

// Bind claims the account index for an authenticated session. Fails with
// ErrAlreadyConnected when another live session holds the account.
func (r *Registry) Bind(sess *PlayerSession, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if other, ok := r.byUser[userID]; ok && other.Peer != sess.Peer {
		return ErrAlreadyConnected
	}
	sess.UserID = userID
	r.byUser[userID] = sess
	return nil
}

// Remove drops the session from both indices and returns it, or nil if the
// peer was unknown.
func (r *Registry) Remove(peer transport.PeerID) *PlayerSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.byPeer[peer]
	if !ok {
		return nil
	}
	delete(r.byPeer, peer)
	if sess.UserID != uuid.Nil {
		// Only unbind if this session still owns the account slot.
		if owner, ok := r.byUser[sess.UserID]; ok && owner.Peer == peer {
			delete(r.byUser, sess.UserID)
		}
	}
	return sess
}

// ByPeer returns the session of a transport peer, or nil.
func (r *Registry) ByPeer(peer transport.PeerID) *PlayerSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byPeer[peer]
}

// ByUser returns the live session of an account, or nil.
func (r *Registry) ByUser(userID uuid.UUID) *PlayerSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUser[userID]
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byPeer)
}

// InGameCount returns the number of spawned players.
func (r *Registry) InGameCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.byPeer {
		if s.State == StateInGame {
			n++
		}
	}
	return n
}

// ForEach visits every session. The callback must not call back into the
// registry.
func (r *Registry) ForEach(fn func(*PlayerSession)) {
	r.mu.RLock()
	sessions := make([]*PlayerSession, 0, len(r.byPeer))
	for _, s := range r.byPeer {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()
	for _, s := range sessions {
		fn(s)
	}
}
