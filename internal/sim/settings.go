package sim

// MovementSettings holds the physics constants shared by client and server.
// Deterministic replay requires the exact same values on both sides, so the
// struct is immutable after process start.
type MovementSettings struct {
	WalkSpeed         float32 `yaml:"walk_speed"`
	SprintSpeed       float32 `yaml:"sprint_speed"`
	JumpImpulse       float32 `yaml:"jump_impulse"`
	Gravity           float32 `yaml:"gravity"`
	Friction          float32 `yaml:"friction"`
	GroundedThreshold float32 `yaml:"grounded_threshold"`
	MaxStep           float32 `yaml:"max_step"`
}

// DefaultMovementSettings returns the constants both services ship with.
func DefaultMovementSettings() MovementSettings {
	return MovementSettings{
		WalkSpeed:         4.0,
		SprintSpeed:       7.0,
		JumpImpulse:       5.0,
		Gravity:           -9.81,
		Friction:          8.0,
		GroundedThreshold: 0.01,
		MaxStep:           0.4,
	}
}
