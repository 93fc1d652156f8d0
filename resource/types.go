package resource

// Handle is an opaque reference to an object in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Kind identifies the class of a host object.
type Kind uint32

const (
	KindMutex Kind = iota + 1
	KindCond
	KindThread
	KindFile
	KindDescriptor
	KindGlobalRef
)

var kindNames = map[Kind]string{
	KindMutex:      "mutex",
	KindCond:       "cond",
	KindThread:     "thread",
	KindFile:       "file",
	KindDescriptor: "descriptor",
	KindGlobalRef:  "global-ref",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Event types for lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

func (t EventType) String() string {
	if t == EventCreated {
		return "created"
	}
	return "dropped"
}

// Event represents an object lifecycle event.
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

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Backend provides the underlying storage mechanism for objects.
type Backend interface {
	// Create stores a value and returns a handle.
	Create(kind Kind, value any) (Handle, error)

	// Get retrieves a value by handle.
	Get(handle Handle) (any, bool)

	// Drop removes an object and returns (value, true) if it existed.
	Drop(handle Handle) (any, bool)

	// Close releases all objects held by the backend.
	Close() error
}

// Dropper is optionally implemented by values that need cleanup.
type Dropper interface {
	Drop()
}
