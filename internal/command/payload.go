package command

// Payload is the closed set of command bodies. Handlers switch on the
// concrete type.
type Payload interface {
	Category() Category
	kind() payloadKind
}

type payloadKind uint8

const (
	kindUnknown payloadKind = iota
	kindInput
	kindAnimationEvent
	kindRecover
	kindAnimationCost
	kindEnvironment
	kindBuff
	kindAttack
)

// Property enumerates numeric actor properties.
type Property uint8

const (
	PropertyHealth Property = iota + 1
	PropertyMaxHealth
	PropertyStrength
	PropertyMaxStrength
	PropertySpeed
	PropertyDefense
	PropertyAttack
	PropertyHealthRecovery
	PropertyStrengthRecovery
)

// Environment describes the terrain an actor stands on.
type Environment uint8

const (
	EnvironmentGround Environment = iota
	EnvironmentWater
	EnvironmentMud
	EnvironmentIce
)

// AnimationEvent is a discrete timeline marker reported by the animation player.
type AnimationEvent uint8

const (
	AnimationEventAttackPoint AnimationEvent = iota + 1
	AnimationEventAttackEnded
)

// InputPayload requests an animation or action sampled from player input.
type InputPayload struct {
	Animation AnimationID
	MoveX     float64
	MoveY     float64
	Sprinting bool
}

func (InputPayload) Category() Category { return CategoryInput }
func (InputPayload) kind() payloadKind  { return kindInput }

// AnimationEventPayload reports an animation timeline event for a combo stage.
type AnimationEventPayload struct {
	Animation AnimationID
	Event     AnimationEvent
	Stage     int
}

func (AnimationEventPayload) Category() Category { return CategoryAnimation }
func (AnimationEventPayload) kind() payloadKind  { return kindAnimationEvent }

// RecoverPayload applies one recovery step.
type RecoverPayload struct {
	DeltaSeconds float64
}

func (RecoverPayload) Category() Category { return CategoryProperty }
func (RecoverPayload) kind() payloadKind  { return kindRecover }

// AnimationCostPayload charges the strength cost of an animation.
type AnimationCostPayload struct {
	Animation AnimationID
	Cost      float64
}

func (AnimationCostPayload) Category() Category { return CategoryProperty }
func (AnimationCostPayload) kind() payloadKind  { return kindAnimationCost }

// EnvironmentPayload applies terrain and sprint modifiers.
type EnvironmentPayload struct {
	HasInput     bool
	Environment  Environment
	Sprinting    bool
	DeltaSeconds float64
}

func (EnvironmentPayload) Category() Category { return CategoryProperty }
func (EnvironmentPayload) kind() payloadKind  { return kindEnvironment }

// BuffPayload applies a timed additive modifier to one property.
type BuffPayload struct {
	Property      Property
	Delta         float64
	DurationTicks int64
}

func (BuffPayload) Category() Category { return CategoryProperty }
func (BuffPayload) kind() payloadKind  { return kindBuff }

// AttackPayload resolves an attack against the listed defenders.
type AttackPayload struct {
	Animation  AnimationID
	Defenders  []EntityID
	BaseDamage float64
}

func (AttackPayload) Category() Category { return CategoryCombat }
func (AttackPayload) kind() payloadKind  { return kindAttack }
