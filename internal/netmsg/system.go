package netmsg

// Ping carries the sender's wall-clock timestamp in unix milliseconds.
// Echoed back in Pong so the client can measure round-trip time.
type Ping struct {
	Timestamp int64
}

// Encode writes the message into buf. Returns bytes written.
func (m Ping) Encode(buf []byte) (int, error) {
	w := NewWriter(buf)
	w.U16(uint16(KindPing))
	w.I64(m.Timestamp)
	return w.Len(), w.Err()
}

// Decode parses the message from data.
func (m *Ping) Decode(data []byte) error {
	r := NewReader(data)
	r.expectKind(KindPing)
	m.Timestamp = r.I64()
	return r.Err()
}

// Pong echoes the Ping timestamp and carries the server's current tick so
// the client can keep its input ticks close to the server's clock.
type Pong struct {
	Timestamp  int64
	ServerTick uint32
}

// Encode writes the message into buf. Returns bytes written.
func (m Pong) Encode(buf []byte) (int, error) {
	w := NewWriter(buf)
	w.U16(uint16(KindPong))
	w.I64(m.Timestamp)
	w.U32(m.ServerTick)
	return w.Len(), w.Err()
}

// Decode parses the message from data.
func (m *Pong) Decode(data []byte) error {
	r := NewReader(data)
	r.expectKind(KindPong)
	m.Timestamp = r.I64()
	m.ServerTick = r.U32()
	return r.Err()
}

// Disconnect tells the peer the connection is being torn down and why.
type Disconnect struct {
	Reason string
}

// Encode writes the message into buf. Returns bytes written.
func (m Disconnect) Encode(buf []byte) (int, error) {
	w := NewWriter(buf)
	w.U16(uint16(KindDisconnect))
	w.String(m.Reason)
	return w.Len(), w.Err()
}

// Decode parses the message from data.
func (m *Disconnect) Decode(data []byte) error {
	r := NewReader(data)
	r.expectKind(KindDisconnect)
	m.Reason = r.String()
	return r.Err()
}
