package sim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func grounded() StateSnapshot {
	return StateSnapshot{Flags: FlagGrounded}
}

func TestExecuteIsDeterministic(t *testing.T) {
	s := DefaultMovementSettings()
	in := InputData{
		Tick:     7,
		Sequence: 3,
		Move:     Vec2{X: 0.3, Y: 0.7},
		Rotation: 1.25,
		Actions:  ActionSprint,
	}
	prev := grounded()

	a := Execute(prev, in, s, 1.0/30)
	b := Execute(prev, in, s, 1.0/30)
	require.Equal(t, a, b)
}

func TestExecuteWalksForward(t *testing.T) {
	s := DefaultMovementSettings()
	dt := float32(1.0) / 30
	state := grounded()

	// Five ticks of full forward input: Move.Y drives world Z.
	for i := 1; i <= 5; i++ {
		in := InputData{Tick: uint32(i), Sequence: uint32(i), Move: Vec2{X: 0, Y: 1}}
		state = Execute(state, in, s, dt)
	}

	expected := float32(0)
	for i := 0; i < 5; i++ {
		expected += s.WalkSpeed * dt
	}
	require.Equal(t, expected, state.Position.Z)
	require.Equal(t, float32(0), state.Position.X)
	require.Equal(t, float32(0), state.Position.Y)
	require.True(t, state.Grounded())
	require.Equal(t, uint32(5), state.LastInput)
	require.Equal(t, uint32(5), state.Tick)
}

func TestExecuteSprintOnlyOnGround(t *testing.T) {
	s := DefaultMovementSettings()
	dt := float32(1.0) / 30
	in := InputData{Sequence: 1, Move: Vec2{Y: 1}, Actions: ActionSprint}

	onGround := Execute(grounded(), in, s, dt)
	require.Equal(t, s.SprintSpeed, onGround.Velocity.Z)
	require.True(t, onGround.Sprinting())

	airborne := StateSnapshot{Position: Vec3{Y: 2}}
	inAir := Execute(airborne, in, s, dt)
	require.Equal(t, s.WalkSpeed, inAir.Velocity.Z)
	require.False(t, inAir.Sprinting())
}

func TestExecuteCrouchHalvesSpeed(t *testing.T) {
	s := DefaultMovementSettings()
	dt := float32(1.0) / 30
	in := InputData{Sequence: 1, Move: Vec2{Y: 1}, Actions: ActionCrouch}

	state := Execute(grounded(), in, s, dt)
	require.Equal(t, s.WalkSpeed*0.5, state.Velocity.Z)
	require.True(t, state.Crouching())

	// Crouch also cancels sprint.
	in.Actions = ActionCrouch | ActionSprint
	state = Execute(grounded(), in, s, dt)
	require.Equal(t, s.WalkSpeed*0.5, state.Velocity.Z)
	require.False(t, state.Sprinting())
}

func TestExecuteNormalizesOversizedMove(t *testing.T) {
	s := DefaultMovementSettings()
	dt := float32(1.0) / 30

	diag := Execute(grounded(), InputData{Sequence: 1, Move: Vec2{X: 1, Y: 1}}, s, dt)
	speedSqr := diag.Velocity.X*diag.Velocity.X + diag.Velocity.Z*diag.Velocity.Z
	require.InDelta(t, float64(s.WalkSpeed*s.WalkSpeed), float64(speedSqr), 1e-3)
}

func TestExecuteJumpAndLand(t *testing.T) {
	s := DefaultMovementSettings()
	dt := float32(1.0) / 30

	state := Execute(grounded(), InputData{Sequence: 1, Actions: ActionJump}, s, dt)
	require.False(t, state.Grounded())
	require.True(t, state.Jumping())
	require.Greater(t, state.Position.Y, float32(0))

	// Coast until gravity brings the jump back down.
	seq := uint32(2)
	for i := 0; i < 200 && !state.Grounded(); i++ {
		state = Execute(state, InputData{Sequence: seq}, s, dt)
		seq++
	}
	require.True(t, state.Grounded())
	require.Equal(t, float32(0), state.Position.Y)
	require.Equal(t, float32(0), state.Velocity.Y)
	require.False(t, state.Jumping())
}

func TestExecuteFrictionStopsSlide(t *testing.T) {
	s := DefaultMovementSettings()
	dt := float32(1.0) / 30

	state := Execute(grounded(), InputData{Sequence: 1, Move: Vec2{Y: 1}}, s, dt)
	require.Equal(t, s.WalkSpeed, state.Velocity.Z)

	for i := uint32(2); i < 120; i++ {
		state = Execute(state, InputData{Sequence: i}, s, dt)
	}
	require.InDelta(t, 0, float64(state.Velocity.Z), 1e-2)
}

func TestMaxDisplacementCoversSprint(t *testing.T) {
	s := DefaultMovementSettings()
	dt := float32(1.0) / 30

	state := Execute(grounded(), InputData{Sequence: 1, Move: Vec2{Y: 1}, Actions: ActionSprint}, s, dt)
	moved := state.Position.HorizontalSqrMagnitude()
	max := MaxDisplacement(s, dt)
	require.LessOrEqual(t, moved, max*max)
}

func TestInputValidRejectsOversizedMove(t *testing.T) {
	require.True(t, InputData{Move: Vec2{X: 1, Y: 0}}.Valid())
	require.True(t, InputData{Move: Vec2{X: 0.7, Y: 0.7}}.Valid())
	require.False(t, InputData{Move: Vec2{X: 2, Y: 2}}.Valid())
}
