package protocol

import (
	"sync"
	"sync/atomic"
)

// Pool rents and returns Packet envelopes. Process-wide and safe for
// concurrent use; reduces GC pressure by reusing payload buffers.
//
// Ownership rule: every rented packet is returned exactly once. The send
// path returns after bytes are queued on the socket; the receive path
// returns after the handler's final use. The InUse counter exists so tests
// can verify the discipline: it must come back to zero after any workload.
type Pool struct {
	pool  sync.Pool
	inUse atomic.Int64
}

// NewPool creates a packet pool.
func NewPool() *Pool {
	p := &Pool{}
	p.pool.New = func() any {
		return NewPacket()
	}
	return p
}

// Rent returns a packet with zeroed header fields and empty payload.
// The payload buffer may be reused from a previous life.
func (p *Pool) Rent() *Packet {
	pkt := p.pool.Get().(*Packet)
	pkt.Reset()
	p.inUse.Add(1)
	return pkt
}

// Return gives a packet back to the pool. nil is a no-op.
func (p *Pool) Return(pkt *Packet) {
	if pkt == nil {
		return
	}
	p.inUse.Add(-1)
	p.pool.Put(pkt)
}

// InUse reports how many rented packets have not been returned.
func (p *Pool) InUse() int64 {
	return p.inUse.Load()
}
