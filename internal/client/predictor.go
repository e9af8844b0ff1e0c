// Package client is the game-side client runtime: connection, input
// prediction and reconciliation against the authoritative server state.
package client

import (
	"github.com/udisondev/netplay/internal/sim"
)

// PositionEpsilon is the squared-distance tolerance below which a predicted
// state counts as matching the authoritative one. Deterministic simulation
// keeps honest runs at exactly zero; the epsilon absorbs state carried from
// before a packet loss burst.
const PositionEpsilon float32 = 0.01

// predStep is one remembered prediction: the input and the state it led to.
type predStep struct {
	input sim.InputData
	state sim.StateSnapshot
}

// ReconcileResult reports what one authoritative ack did to the predictor.
type ReconcileResult struct {
	// Acked is the input sequence the server confirmed.
	Acked uint32
	// Mispredicted is set when the local state at that input diverged and
	// the predictor rewound.
	Mispredicted bool
	// Replayed is the number of pending inputs re-simulated on top of the
	// corrected state. Zero unless Mispredicted.
	Replayed int
	// ErrorSqr is the squared position divergence that triggered the rewind.
	ErrorSqr float32
}

// Predictor runs the shared movement model locally: every issued input is
// applied immediately and remembered until the server acknowledges it. When
// an ack disagrees with the remembered state, the predictor rewinds to the
// authoritative snapshot and replays the still-pending inputs.
type Predictor struct {
	settings sim.MovementSettings
	dt       float32

	seq       uint32
	lastAcked uint32
	state     sim.StateSnapshot
	pending   []predStep
}

// NewPredictor creates a predictor over the shared movement constants.
// tickRate must match the server's.
func NewPredictor(settings sim.MovementSettings, tickRate int) *Predictor {
	return &Predictor{
		settings: settings,
		dt:       1.0 / float32(tickRate),
		state:    sim.StateSnapshot{Flags: sim.FlagGrounded},
	}
}

// State returns the current predicted state.
func (p *Predictor) State() sim.StateSnapshot {
	return p.state
}

// PendingCount returns how many inputs await acknowledgement.
func (p *Predictor) PendingCount() int {
	return len(p.pending)
}

// Pending returns the unacknowledged inputs, oldest first. The slice is
// owned by the predictor; callers copy what they keep.
func (p *Predictor) Pending() []sim.InputData {
	inputs := make([]sim.InputData, len(p.pending))
	for i, step := range p.pending {
		inputs[i] = step.input
	}
	return inputs
}

// Step issues the next input, applies it locally and remembers both. The
// returned input carries the freshly assigned sequence.
func (p *Predictor) Step(tick uint32, move sim.Vec2, rotation float32, actions byte) (sim.InputData, sim.StateSnapshot) {
	p.seq++
	in := sim.InputData{
		Tick:     tick,
		Sequence: p.seq,
		Move:     move,
		Rotation: rotation,
		Actions:  actions,
	}
	p.state = sim.Execute(p.state, in, p.settings, p.dt)
	p.pending = append(p.pending, predStep{input: in, state: p.state})
	return in, p.state
}

// Reset rebases the predictor on a server-provided state, dropping all
// pending inputs and restarting the sequence. Used at spawn, where the
// server's accepted-input counter also starts from zero.
func (p *Predictor) Reset(state sim.StateSnapshot) {
	p.state = state
	p.pending = p.pending[:0]
	p.seq = 0
	p.lastAcked = 0
}

// Reconcile folds one authoritative snapshot in. Pending inputs at or below
// the acknowledged sequence are pruned; if the remembered state at the ack
// point diverged from the server's, the predictor rewinds and replays.
func (p *Predictor) Reconcile(auth sim.StateSnapshot) ReconcileResult {
	res := ReconcileResult{Acked: auth.LastInput}

	// Acks ride the reliable ordered channel, so anything not newer than
	// the last one is a duplicate. Dropping it here keeps a repeated ack
	// from being mistaken for a divergence.
	if auth.LastInput <= p.lastAcked && p.lastAcked != 0 {
		return res
	}
	p.lastAcked = auth.LastInput

	// Remember the predicted state at the acknowledged input, then prune.
	var at *sim.StateSnapshot
	keep := p.pending[:0]
	for _, step := range p.pending {
		if step.input.Sequence == auth.LastInput {
			s := step.state
			at = &s
		}
		if step.input.Sequence > auth.LastInput {
			keep = append(keep, step)
		}
	}
	p.pending = keep

	if at != nil {
		res.ErrorSqr = at.Position.Sub(auth.Position).SqrMagnitude()
		if res.ErrorSqr <= PositionEpsilon*PositionEpsilon {
			return res
		}
	}
	// Either the server disagreed or the ack predates our history (state
	// lost to a reset). Rewind and replay what is still pending.
	res.Mispredicted = true
	p.state = auth
	for i := range p.pending {
		p.state = sim.Execute(p.state, p.pending[i].input, p.settings, p.dt)
		p.pending[i].state = p.state
		res.Replayed++
	}
	return res
}
