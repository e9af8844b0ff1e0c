package netmsg

import (
	"fmt"

	"github.com/udisondev/netplay/internal/sim"
)

// GameAuthResult is the outcome code of the game-join handshake.
type GameAuthResult byte

const (
	GameAuthSuccess          GameAuthResult = 0
	GameAuthInvalidToken     GameAuthResult = 1
	GameAuthTokenExpired     GameAuthResult = 2
	GameAuthAlreadyConnected GameAuthResult = 3
	GameAuthServerFull       GameAuthResult = 4
	GameAuthVersionMismatch  GameAuthResult = 5
	GameAuthBanned           GameAuthResult = 6
	GameAuthInternalError    GameAuthResult = 99
)

func (r GameAuthResult) String() string {
	switch r {
	case GameAuthSuccess:
		return "SUCCESS"
	case GameAuthInvalidToken:
		return "INVALID_TOKEN"
	case GameAuthTokenExpired:
		return "TOKEN_EXPIRED"
	case GameAuthAlreadyConnected:
		return "ALREADY_CONNECTED"
	case GameAuthServerFull:
		return "SERVER_FULL"
	case GameAuthVersionMismatch:
		return "VERSION_MISMATCH"
	case GameAuthBanned:
		return "BANNED"
	case GameAuthInternalError:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN"
	}
}

// MaxInputBatch bounds how many inputs a single PlayerInputBatch may carry.
const MaxInputBatch = 64

func writeInput(w *Writer, in sim.InputData) {
	w.U32(in.Tick)
	w.U32(in.Sequence)
	w.F32(in.Move.X)
	w.F32(in.Move.Y)
	w.F32(in.Rotation)
	w.U8(in.Actions)
}

func readInput(r *Reader) sim.InputData {
	var in sim.InputData
	in.Tick = r.U32()
	in.Sequence = r.U32()
	in.Move.X = r.F32()
	in.Move.Y = r.F32()
	in.Rotation = r.F32()
	in.Actions = r.U8()
	return in
}

func writeSnapshot(w *Writer, s sim.StateSnapshot) {
	w.U32(s.Tick)
	w.U32(s.LastInput)
	w.F32(s.Position.X)
	w.F32(s.Position.Y)
	w.F32(s.Position.Z)
	w.F32(s.Velocity.X)
	w.F32(s.Velocity.Y)
	w.F32(s.Velocity.Z)
	w.F32(s.Rotation)
	w.U8(s.Flags)
}

func readSnapshot(r *Reader) sim.StateSnapshot {
	var s sim.StateSnapshot
	s.Tick = r.U32()
	s.LastInput = r.U32()
	s.Position.X = r.F32()
	s.Position.Y = r.F32()
	s.Position.Z = r.F32()
	s.Velocity.X = r.F32()
	s.Velocity.Y = r.F32()
	s.Velocity.Z = r.F32()
	s.Rotation = r.F32()
	s.Flags = r.U8()
	return s
}

// PlayerInput carries one client intent tick.
type PlayerInput struct {
	Input sim.InputData
}

// Encode writes the message into buf. Returns bytes written.
func (m PlayerInput) Encode(buf []byte) (int, error) {
	w := NewWriter(buf)
	w.U16(uint16(KindPlayerInput))
	writeInput(w, m.Input)
	return w.Len(), w.Err()
}

// Decode parses the message from data.
func (m *PlayerInput) Decode(data []byte) error {
	r := NewReader(data)
	r.expectKind(KindPlayerInput)
	m.Input = readInput(r)
	return r.Err()
}

// PlayerInputBatch carries several inputs at once, typically resent after
// loss. The server applies them in ascending sequence order.
type PlayerInputBatch struct {
	Inputs []sim.InputData
}

// Encode writes the message into buf. Returns bytes written.
func (m PlayerInputBatch) Encode(buf []byte) (int, error) {
	if len(m.Inputs) > MaxInputBatch {
		return 0, fmt.Errorf("input batch size %d exceeds max %d", len(m.Inputs), MaxInputBatch)
	}
	w := NewWriter(buf)
	w.U16(uint16(KindPlayerInputBatch))
	w.U16(uint16(len(m.Inputs)))
	for _, in := range m.Inputs {
		writeInput(w, in)
	}
	return w.Len(), w.Err()
}

// Decode parses the message from data.
func (m *PlayerInputBatch) Decode(data []byte) error {
	r := NewReader(data)
	r.expectKind(KindPlayerInputBatch)
	count := int(r.U16())
	if r.Err() != nil {
		return r.Err()
	}
	if count > MaxInputBatch {
		return fmt.Errorf("input batch size %d exceeds max %d", count, MaxInputBatch)
	}
	m.Inputs = make([]sim.InputData, 0, count)
	for i := 0; i < count; i++ {
		m.Inputs = append(m.Inputs, readInput(r))
	}
	return r.Err()
}

// PlayerState is the per-peer reconciliation snapshot: the authoritative
// state after the last accepted input. Sent on the reliable channel because
// the client prunes its pending buffer against LastInput.
type PlayerState struct {
	State sim.StateSnapshot
}

// Encode writes the message into buf. Returns bytes written.
func (m PlayerState) Encode(buf []byte) (int, error) {
	w := NewWriter(buf)
	w.U16(uint16(KindPlayerState))
	writeSnapshot(w, m.State)
	return w.Len(), w.Err()
}

// Decode parses the message from data.
func (m *PlayerState) Decode(data []byte) error {
	r := NewReader(data)
	r.expectKind(KindPlayerState)
	m.State = readSnapshot(r)
	return r.Err()
}

// WorldPlayer is one player's entry inside a WorldSnapshot.
type WorldPlayer struct {
	UserID string
	State  sim.StateSnapshot
}

// WorldSnapshot is the transient broadcast of everyone's state at one tick.
// Sent on the unreliable channel; a lost snapshot is superseded by the next.
type WorldSnapshot struct {
	Tick    uint32
	Players []WorldPlayer
}

// MaxWorldPlayers bounds one snapshot to what fits in a frame.
const MaxWorldPlayers = 24

// Encode writes the message into buf. Returns bytes written.
func (m WorldSnapshot) Encode(buf []byte) (int, error) {
	if len(m.Players) > MaxWorldPlayers {
		return 0, fmt.Errorf("world snapshot size %d exceeds max %d", len(m.Players), MaxWorldPlayers)
	}
	w := NewWriter(buf)
	w.U16(uint16(KindWorldSnapshot))
	w.U32(m.Tick)
	w.U16(uint16(len(m.Players)))
	for _, p := range m.Players {
		w.String(p.UserID)
		writeSnapshot(w, p.State)
	}
	return w.Len(), w.Err()
}

// Decode parses the message from data.
func (m *WorldSnapshot) Decode(data []byte) error {
	r := NewReader(data)
	r.expectKind(KindWorldSnapshot)
	m.Tick = r.U32()
	count := int(r.U16())
	if r.Err() != nil {
		return r.Err()
	}
	if count > MaxWorldPlayers {
		return fmt.Errorf("world snapshot size %d exceeds max %d", count, MaxWorldPlayers)
	}
	m.Players = make([]WorldPlayer, 0, count)
	for i := 0; i < count; i++ {
		var p WorldPlayer
		p.UserID = r.String()
		p.State = readSnapshot(r)
		m.Players = append(m.Players, p)
	}
	return r.Err()
}

// GameAuthRequest presents a signed session token to the game server.
type GameAuthRequest struct {
	Token         string
	ClientVersion string
}

// Encode writes the message into buf. Returns bytes written.
func (m GameAuthRequest) Encode(buf []byte) (int, error) {
	w := NewWriter(buf)
	w.U16(uint16(KindGameAuthRequest))
	w.String(m.Token)
	w.String(m.ClientVersion)
	return w.Len(), w.Err()
}

// Decode parses the message from data.
func (m *GameAuthRequest) Decode(data []byte) error {
	r := NewReader(data)
	r.expectKind(KindGameAuthRequest)
	m.Token = r.String()
	m.ClientVersion = r.String()
	return r.Err()
}

// GameAuthResponse reports the game-join outcome. ServerTick lets the
// client seed its clock synchronization.
type GameAuthResponse struct {
	Result     GameAuthResult
	UserID     string
	Username   string
	ServerTick uint32
}

// Encode writes the message into buf. Returns bytes written.
func (m GameAuthResponse) Encode(buf []byte) (int, error) {
	w := NewWriter(buf)
	w.U16(uint16(KindGameAuthResponse))
	w.U8(byte(m.Result))
	w.String(m.UserID)
	w.String(m.Username)
	w.U32(m.ServerTick)
	return w.Len(), w.Err()
}

// Decode parses the message from data.
func (m *GameAuthResponse) Decode(data []byte) error {
	r := NewReader(data)
	r.expectKind(KindGameAuthResponse)
	m.Result = GameAuthResult(r.U8())
	m.UserID = r.String()
	m.Username = r.String()
	m.ServerTick = r.U32()
	return r.Err()
}

// ChatMessage is reserved for a future chat feature. The kind is assigned
// so the dispatch table can log-and-drop it instead of counting it unknown.
type ChatMessage struct {
	From string
	Text string
}

// Encode writes the message into buf. Returns bytes written.
func (m ChatMessage) Encode(buf []byte) (int, error) {
	w := NewWriter(buf)
	w.U16(uint16(KindChatMessage))
	w.String(m.From)
	w.String(m.Text)
	return w.Len(), w.Err()
}

// Decode parses the message from data.
func (m *ChatMessage) Decode(data []byte) error {
	r := NewReader(data)
	r.expectKind(KindChatMessage)
	m.From = r.String()
	m.Text = r.String()
	return r.Err()
}
