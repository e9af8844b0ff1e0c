package client

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/udisondev/netplay/internal/sim"
)

const tickRate = 30

func serverState() sim.StateSnapshot {
	return sim.StateSnapshot{Flags: sim.FlagGrounded}
}

// serverApply mirrors the server's commit path for one input.
func serverApply(state sim.StateSnapshot, in sim.InputData) sim.StateSnapshot {
	return sim.Execute(state, in, sim.DefaultMovementSettings(), 1.0/float32(tickRate))
}

func TestPredictionMatchesServerWithoutDivergence(t *testing.T) {
	pred := NewPredictor(sim.DefaultMovementSettings(), tickRate)
	srv := serverState()

	// Five forward inputs, each acknowledged in turn.
	for tick := uint32(1); tick <= 5; tick++ {
		in, predicted := pred.Step(tick, sim.Vec2{Y: 1}, 0, 0)
		srv = serverApply(srv, in)
		require.Equal(t, srv, predicted, "prediction diverged at tick %d", tick)

		res := pred.Reconcile(srv)
		require.False(t, res.Mispredicted)
		require.Zero(t, res.Replayed)
		require.Zero(t, pred.PendingCount())
	}

	expected := float32(0)
	for i := 0; i < 5; i++ {
		expected += sim.DefaultMovementSettings().WalkSpeed * (1.0 / float32(tickRate))
	}
	require.Equal(t, expected, pred.State().Position.Z)
}

func TestPredictionWithDelayedAcks(t *testing.T) {
	pred := NewPredictor(sim.DefaultMovementSettings(), tickRate)
	srv := serverState()

	// Three inputs in flight before the first ack arrives.
	var inputs []sim.InputData
	for tick := uint32(1); tick <= 3; tick++ {
		in, _ := pred.Step(tick, sim.Vec2{Y: 1}, 0, 0)
		inputs = append(inputs, in)
	}
	require.Equal(t, 3, pred.PendingCount())

	srv = serverApply(srv, inputs[0])
	res := pred.Reconcile(srv)
	require.False(t, res.Mispredicted)
	require.Equal(t, 2, pred.PendingCount())

	srv = serverApply(srv, inputs[1])
	srv = serverApply(srv, inputs[2])
	res = pred.Reconcile(srv)
	require.False(t, res.Mispredicted)
	require.Zero(t, pred.PendingCount())
}

func TestReconciliationRewindsAndReplays(t *testing.T) {
	pred := NewPredictor(sim.DefaultMovementSettings(), tickRate)

	var inputs []sim.InputData
	for tick := uint32(1); tick <= 3; tick++ {
		in, _ := pred.Step(tick, sim.Vec2{Y: 1}, 0, 0)
		inputs = append(inputs, in)
	}

	// The server disagrees about input 1 (say it clipped the move), so its
	// committed position differs from the prediction.
	auth := sim.StateSnapshot{
		Tick:      inputs[0].Tick,
		LastInput: inputs[0].Sequence,
		Position:  sim.Vec3{X: 1.5},
		Flags:     sim.FlagGrounded,
	}
	res := pred.Reconcile(auth)
	require.True(t, res.Mispredicted)
	require.Equal(t, 2, res.Replayed)
	require.Greater(t, res.ErrorSqr, PositionEpsilon*PositionEpsilon)

	// The corrected state is the authoritative one advanced by the two
	// still-pending inputs.
	expected := auth
	expected = serverApply(expected, inputs[1])
	expected = serverApply(expected, inputs[2])
	require.Equal(t, expected, pred.State())
	require.Equal(t, 2, pred.PendingCount())
}

func TestReconcileIgnoresDuplicateAck(t *testing.T) {
	pred := NewPredictor(sim.DefaultMovementSettings(), tickRate)
	srv := serverState()

	in, _ := pred.Step(1, sim.Vec2{Y: 1}, 0, 0)
	srv = serverApply(srv, in)
	require.False(t, pred.Reconcile(srv).Mispredicted)

	pred.Step(2, sim.Vec2{Y: 1}, 0, 0)

	// The same ack again must not be treated as a divergence.
	res := pred.Reconcile(srv)
	require.False(t, res.Mispredicted)
	require.Equal(t, 1, pred.PendingCount())
}

func TestResetRestartsSequence(t *testing.T) {
	pred := NewPredictor(sim.DefaultMovementSettings(), tickRate)
	in, _ := pred.Step(1, sim.Vec2{Y: 1}, 0, 0)
	require.Equal(t, uint32(1), in.Sequence)

	pred.Reset(sim.StateSnapshot{Tick: 100, Flags: sim.FlagGrounded})
	require.Zero(t, pred.PendingCount())

	in, _ = pred.Step(101, sim.Vec2{Y: 1}, 0, 0)
	require.Equal(t, uint32(1), in.Sequence)
	require.Equal(t, uint32(101), in.Tick)
}

func TestPendingReturnsInputsInOrder(t *testing.T) {
	pred := NewPredictor(sim.DefaultMovementSettings(), tickRate)
	for tick := uint32(1); tick <= 4; tick++ {
		pred.Step(tick, sim.Vec2{X: 1}, 0, 0)
	}
	pending := pred.Pending()
	require.Len(t, pending, 4)
	for i, in := range pending {
		require.Equal(t, uint32(i+1), in.Sequence)
	}
}
