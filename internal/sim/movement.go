package sim

// Execute advances one movement state by one input over dt seconds.
//
// This is the single source of truth for motion: the server runs it to
// commit authoritative state and the client runs the very same function for
// prediction and replay. It is a pure transition with no hidden state, no
// randomness, and only basic float32 arithmetic plus Sqrt (which IEEE-754
// defines exactly), so the same (prev, in, s, dt) always produces a
// bit-identical result on both sides.
//
// Ground is the plane y=0. Input Move.X maps to world X, Move.Y to world Z.
func Execute(prev StateSnapshot, in InputData, s MovementSettings, dt float32) StateSnapshot {
	next := StateSnapshot{
		Tick:      in.Tick,
		LastInput: in.Sequence,
		Position:  prev.Position,
		Velocity:  prev.Velocity,
		Rotation:  in.Rotation,
	}

	grounded := prev.Grounded()
	crouching := in.Crouch()
	sprinting := in.Sprint() && grounded && !crouching

	speed := s.WalkSpeed
	if sprinting {
		speed = s.SprintSpeed
	}
	if crouching {
		speed = speed * 0.5
	}

	move := in.Move
	if move.SqrMagnitude() > 1 {
		move = move.Normalized()
	}

	if move.X != 0 || move.Y != 0 {
		next.Velocity.X = move.X * speed
		next.Velocity.Z = move.Y * speed
	} else if grounded {
		// Friction only bites on the ground and only without input.
		decay := 1 - s.Friction*dt
		if decay < 0 {
			decay = 0
		}
		next.Velocity.X = prev.Velocity.X * decay
		next.Velocity.Z = prev.Velocity.Z * decay
	}

	jumping := prev.Jumping()
	if grounded && in.Jump() {
		next.Velocity.Y = s.JumpImpulse
		grounded = false
		jumping = true
	} else if !grounded {
		next.Velocity.Y = prev.Velocity.Y + s.Gravity*dt
	} else {
		next.Velocity.Y = 0
	}

	next.Position = next.Position.Add(next.Velocity.Scale(dt))

	falling := false
	if next.Position.Y <= s.GroundedThreshold && next.Velocity.Y <= 0 {
		next.Position.Y = 0
		next.Velocity.Y = 0
		grounded = true
		jumping = false
	} else {
		grounded = false
		falling = next.Velocity.Y < 0
		if next.Velocity.Y <= 0 {
			jumping = false
		}
	}

	var flags byte
	if grounded {
		flags |= FlagGrounded
	}
	if sprinting {
		flags |= FlagSprinting
	}
	if crouching {
		flags |= FlagCrouching
	}
	if jumping {
		flags |= FlagJumping
	}
	if falling {
		flags |= FlagFalling
	}
	next.Flags = flags

	return next
}

// MaxDisplacement returns the largest legal horizontal displacement for one
// tick, used by the server-side speed check. The 1.2 factor absorbs float
// slack and the sprint-start edge.
func MaxDisplacement(s MovementSettings, dt float32) float32 {
	return s.SprintSpeed * 1.2 * dt
}
