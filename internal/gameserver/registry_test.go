package gameserver

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/netplay/internal/transport"
)

func TestRegistryBindRejectsDuplicateAccount(t *testing.T) {
	r := NewRegistry()
	userID := uuid.New()

	first := NewPlayerSession(1, "10.0.0.1")
	r.Add(first)
	require.NoError(t, r.Bind(first, userID))

	second := NewPlayerSession(2, "10.0.0.2")
	r.Add(second)
	require.ErrorIs(t, r.Bind(second, userID), ErrAlreadyConnected)

	// The original session keeps the slot.
	require.Same(t, first, r.ByUser(userID))
}

func TestRegistryRebindSamePeerIsIdempotent(t *testing.T) {
	r := NewRegistry()
	userID := uuid.New()
	sess := NewPlayerSession(1, "10.0.0.1")
	r.Add(sess)

	require.NoError(t, r.Bind(sess, userID))
	require.NoError(t, r.Bind(sess, userID))
}

func TestRegistryRemoveFreesAccountSlot(t *testing.T) {
	r := NewRegistry()
	userID := uuid.New()
	sess := NewPlayerSession(1, "10.0.0.1")
	r.Add(sess)
	require.NoError(t, r.Bind(sess, userID))

	removed := r.Remove(1)
	require.Same(t, sess, removed)
	require.Nil(t, r.ByPeer(1))
	require.Nil(t, r.ByUser(userID))
	require.Equal(t, 0, r.Count())

	// The account is free again.
	again := NewPlayerSession(2, "10.0.0.2")
	r.Add(again)
	require.NoError(t, r.Bind(again, userID))
}

func TestRegistryRemoveKeepsForeignAccountSlot(t *testing.T) {
	r := NewRegistry()
	userID := uuid.New()

	owner := NewPlayerSession(1, "10.0.0.1")
	r.Add(owner)
	require.NoError(t, r.Bind(owner, userID))

	// A loser of the duplicate-login race disconnects; the slot stays with
	// the owner.
	loser := NewPlayerSession(2, "10.0.0.2")
	loser.UserID = userID
	r.Add(loser)
	r.Remove(2)
	require.Same(t, owner, r.ByUser(userID))
}

func TestRegistryInGameCount(t *testing.T) {
	r := NewRegistry()
	for i := 1; i <= 3; i++ {
		sess := NewPlayerSession(transport.PeerID(i), "10.0.0.1")
		if i != 2 {
			sess.State = StateInGame
		}
		r.Add(sess)
	}
	require.Equal(t, 3, r.Count())
	require.Equal(t, 2, r.InGameCount())
}
