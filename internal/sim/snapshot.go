package sim

// State flag bits carried in StateSnapshot.Flags.
const (
	FlagGrounded  byte = 1 << 0
	FlagSprinting byte = 1 << 1
	FlagCrouching byte = 1 << 2
	FlagJumping   byte = 1 << 3
	FlagFalling   byte = 1 << 4
)

// StateSnapshot is the authoritative (or predicted) movement state at one
// tick. When the server produces it, LastInput equals the sequence of the
// most recent accepted input for that peer.
type StateSnapshot struct {
	Tick      uint32
	LastInput uint32
	Position  Vec3
	Velocity  Vec3
	Rotation  float32
	Flags     byte
}

// Grounded reports whether the player stands on the ground.
func (s StateSnapshot) Grounded() bool { return s.Flags&FlagGrounded != 0 }

// Sprinting reports whether the sprint modifier applied this tick.
func (s StateSnapshot) Sprinting() bool { return s.Flags&FlagSprinting != 0 }

// Crouching reports whether the crouch modifier applied this tick.
func (s StateSnapshot) Crouching() bool { return s.Flags&FlagCrouching != 0 }

// Jumping reports whether the player is in the rising phase of a jump.
func (s StateSnapshot) Jumping() bool { return s.Flags&FlagJumping != 0 }

// Falling reports whether the player is airborne with downward velocity.
func (s StateSnapshot) Falling() bool { return s.Flags&FlagFalling != 0 }
