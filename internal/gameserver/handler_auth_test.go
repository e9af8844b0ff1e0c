package gameserver

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/netplay/internal/netmsg"
	"github.com/udisondev/netplay/internal/token"
)

func mintToken(t *testing.T, s *Server, username string) (string, uuid.UUID) {
	t.Helper()
	userID := uuid.New()
	signed, _, err := token.NewIssuer(s.cfg.JWT).Issue(userID, username)
	require.NoError(t, err)
	return signed, userID
}

func TestAuthenticateSuccess(t *testing.T) {
	s := New(testGameConfig())
	sess := NewPlayerSession(1, "10.0.0.1")
	s.registry.Add(sess)

	signed, userID := mintToken(t, s, "player")
	result := s.authenticate(sess, netmsg.GameAuthRequest{Token: signed, ClientVersion: "1.0.0"})
	require.Equal(t, netmsg.GameAuthSuccess, result)
	require.Equal(t, userID, sess.UserID)
	require.Equal(t, "player", sess.Username)
	require.Same(t, sess, s.registry.ByUser(userID))
}

func TestAuthenticateExpiredToken(t *testing.T) {
	s := New(testGameConfig())
	sess := NewPlayerSession(1, "10.0.0.1")
	s.registry.Add(sess)

	cfg := s.cfg.JWT
	cfg.ExpirationMinutes = -10
	signed, _, err := token.NewIssuer(cfg).Issue(uuid.New(), "late")
	require.NoError(t, err)

	result := s.authenticate(sess, netmsg.GameAuthRequest{Token: signed, ClientVersion: "1.0.0"})
	require.Equal(t, netmsg.GameAuthTokenExpired, result)
}

func TestAuthenticateInvalidToken(t *testing.T) {
	s := New(testGameConfig())
	sess := NewPlayerSession(1, "10.0.0.1")
	s.registry.Add(sess)

	result := s.authenticate(sess, netmsg.GameAuthRequest{Token: "garbage", ClientVersion: "1.0.0"})
	require.Equal(t, netmsg.GameAuthInvalidToken, result)

	// Signed with the wrong secret.
	cfg := s.cfg.JWT
	cfg.Secret = "ffffffffffffffffffffffffffffffff"
	forged, _, err := token.NewIssuer(cfg).Issue(uuid.New(), "forger")
	require.NoError(t, err)
	result = s.authenticate(sess, netmsg.GameAuthRequest{Token: forged, ClientVersion: "1.0.0"})
	require.Equal(t, netmsg.GameAuthInvalidToken, result)
}

func TestAuthenticateDuplicateLogin(t *testing.T) {
	s := New(testGameConfig())

	first := NewPlayerSession(1, "10.0.0.1")
	s.registry.Add(first)
	signed, userID := mintToken(t, s, "player")
	require.Equal(t, netmsg.GameAuthSuccess,
		s.authenticate(first, netmsg.GameAuthRequest{Token: signed, ClientVersion: "1.0.0"}))

	// Same account from a second peer, even with a fresh token.
	second := NewPlayerSession(2, "10.0.0.2")
	s.registry.Add(second)
	again, _, err := token.NewIssuer(s.cfg.JWT).Issue(userID, "player")
	require.NoError(t, err)
	result := s.authenticate(second, netmsg.GameAuthRequest{Token: again, ClientVersion: "1.0.0"})
	require.Equal(t, netmsg.GameAuthAlreadyConnected, result)

	// The original session is untouched.
	require.Same(t, first, s.registry.ByUser(userID))
}

func TestAuthenticateVersionMismatch(t *testing.T) {
	cfg := testGameConfig()
	cfg.MinClientVersion = "1.2.0"
	s := New(cfg)
	sess := NewPlayerSession(1, "10.0.0.1")
	s.registry.Add(sess)

	signed, _ := mintToken(t, s, "player")
	result := s.authenticate(sess, netmsg.GameAuthRequest{Token: signed, ClientVersion: "1.1.9"})
	require.Equal(t, netmsg.GameAuthVersionMismatch, result)

	result = s.authenticate(sess, netmsg.GameAuthRequest{Token: signed, ClientVersion: "1.2.0"})
	require.Equal(t, netmsg.GameAuthSuccess, result)
}

func TestAuthenticateServerFull(t *testing.T) {
	cfg := testGameConfig()
	cfg.MaxPlayers = 1
	s := New(cfg)

	occupant := NewPlayerSession(1, "10.0.0.1")
	occupant.State = StateInGame
	s.registry.Add(occupant)

	sess := NewPlayerSession(2, "10.0.0.2")
	s.registry.Add(sess)
	signed, _ := mintToken(t, s, "latecomer")
	result := s.authenticate(sess, netmsg.GameAuthRequest{Token: signed, ClientVersion: "1.0.0"})
	require.Equal(t, netmsg.GameAuthServerFull, result)
}

func TestGameAuthWhileInGameRefusedAndClosed(t *testing.T) {
	s := New(testGameConfig())
	sess := NewPlayerSession(1, "10.0.0.1")
	s.registry.Add(sess)

	signed, _ := mintToken(t, s, "player")
	req := encodeMsg(t, netmsg.GameAuthRequest{Token: signed, ClientVersion: "1.0.0"})
	s.handleGameAuth(sess, req)
	require.Equal(t, StateInGame, sess.State)

	// A second join attempt on the live session is refused and closed.
	s.handleGameAuth(sess, req)
	require.Equal(t, StateDisconnecting, sess.State)
	require.Zero(t, s.pool.InUse())
}

func TestGameAuthExpiredTokenDisconnects(t *testing.T) {
	s := New(testGameConfig())
	sess := NewPlayerSession(1, "10.0.0.1")
	s.registry.Add(sess)

	cfg := s.cfg.JWT
	cfg.ExpirationMinutes = -10
	signed, _, err := token.NewIssuer(cfg).Issue(uuid.New(), "late")
	require.NoError(t, err)

	s.handleGameAuth(sess, encodeMsg(t, netmsg.GameAuthRequest{Token: signed, ClientVersion: "1.0.0"}))
	require.Equal(t, StateDisconnecting, sess.State)
	require.Zero(t, s.registry.InGameCount())
	require.Zero(t, s.pool.InUse())
}

func TestGameAuthDuplicateLoginDisconnectsNewcomer(t *testing.T) {
	s := New(testGameConfig())

	first := NewPlayerSession(1, "10.0.0.1")
	s.registry.Add(first)
	signed, userID := mintToken(t, s, "player")
	s.handleGameAuth(first, encodeMsg(t, netmsg.GameAuthRequest{Token: signed, ClientVersion: "1.0.0"}))
	require.Equal(t, StateInGame, first.State)

	second := NewPlayerSession(2, "10.0.0.2")
	s.registry.Add(second)
	again, _, err := token.NewIssuer(s.cfg.JWT).Issue(userID, "player")
	require.NoError(t, err)
	s.handleGameAuth(second, encodeMsg(t, netmsg.GameAuthRequest{Token: again, ClientVersion: "1.0.0"}))

	require.Equal(t, StateDisconnecting, second.State)
	require.Equal(t, StateInGame, first.State)
	require.Same(t, first, s.registry.ByUser(userID))
}

func TestCompareVersions(t *testing.T) {
	require.Equal(t, 0, compareVersions("1.0.0", "1.0.0"))
	require.Equal(t, -1, compareVersions("1.0.0", "1.0.1"))
	require.Equal(t, 1, compareVersions("1.10.0", "1.9.9"))
	require.Equal(t, 0, compareVersions("1.0", "1.0.0"))
	require.Equal(t, 1, compareVersions("2", "1.9"))
}
