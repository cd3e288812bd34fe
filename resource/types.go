package resource

// Handle is an opaque reference to a value in a table.
// Handle 0 is reserved and always invalid, matching the engine's NULL.
type Handle uint32

// Kind tags what a handle refers to so one table can serve several
// purposes without handles being confused for each other.
type Kind uint32

const (
	// KindCapsule is a host value carried through the engine as an
	// external address.
	KindCapsule Kind = iota + 1
	// KindRouter is a router handler referenced from engine callbacks.
	KindRouter
	// KindFunction is a user function referenced from engine callbacks.
	KindFunction
	// KindEnvironment is an environment referenced from engine callbacks.
	KindEnvironment
)

func (k Kind) String() string {
	switch k {
	case KindCapsule:
		return "capsule"
	case KindRouter:
		return "router"
	case KindFunction:
		return "function"
	case KindEnvironment:
		return "environment"
	}
	return "unknown"
}

// Event types for lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

// Event represents a lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Kind   Kind
	Type   EventType
}

// Observer receives notifications about lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// Dropper is optionally implemented by stored values that need cleanup.
type Dropper interface {
	Drop()
}
