package resource

// Handle is an opaque reference to a host value in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// EventType identifies a handle lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventReleased
	EventTaken
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventReleased:
		return "released"
	case EventTaken:
		return "taken"
	}
	return "unknown"
}

// Event represents a handle lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Kind   uint64
	Type   EventType
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// Backend provides the underlying storage for handles.
type Backend interface {
	// Create stores a value and returns a handle.
	Create(kind uint64, value any) (Handle, error)

	// Get retrieves a value by handle.
	Get(handle Handle) (any, bool)

	// Kind returns the object kind recorded for a handle.
	Kind(handle Handle) (uint64, bool)

	// Drop removes an entry and returns its value. The caller decides whether
	// the value is released or handed on.
	Drop(handle Handle) (any, bool)

	// Each iterates over live entries until fn returns false.
	Each(fn func(Handle, uint64, any) bool)

	// Len returns the number of live entries.
	Len() int

	// Close releases every remaining value.
	Close() error
}

// Releaser is implemented by stored values that hold resources of their own.
// Remove, Clear and Close call Release exactly once per stored value.
type Releaser interface {
	Release()
}
