package sim

// Action flag bits carried in InputData.Actions.
const (
	ActionJump   byte = 1 << 0
	ActionSprint byte = 1 << 1
	ActionCrouch byte = 1 << 2
)

// MaxMoveSqrMagnitude is the largest accepted squared length of the move
// vector. Unit input plus a little float slack from client-side
// normalization.
const MaxMoveSqrMagnitude = 1.1

// InputData is one client intent tick: where the player wants to move and
// which actions are held. Sequence is monotonic per session and is the key
// the client uses to align server acknowledgements with its own
// prediction history.
type InputData struct {
	Tick     uint32
	Sequence uint32
	Move     Vec2
	Rotation float32
	Actions  byte
}

// Valid reports whether the input passes elementary geometry checks.
func (in InputData) Valid() bool {
	return in.Move.SqrMagnitude() <= MaxMoveSqrMagnitude
}

// Jump reports whether the jump action is held.
func (in InputData) Jump() bool { return in.Actions&ActionJump != 0 }

// Sprint reports whether the sprint action is held.
func (in InputData) Sprint() bool { return in.Actions&ActionSprint != 0 }

// Crouch reports whether the crouch action is held.
func (in InputData) Crouch() bool { return in.Actions&ActionCrouch != 0 }
