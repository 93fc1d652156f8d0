package threading

import (
	"runtime"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/resource"
)

const (
	// SentinelRecursive is the static initializer value of a recursive mutex.
	SentinelRecursive uint32 = 0x4000
	// SentinelErrorCheck is the static initializer value of an error-checking mutex.
	SentinelErrorCheck uint32 = 0x8000

	// HandleBase precedes the first materialized handle value.
	HandleBase uint32 = 0xE0000000

	// claimed marks a word whose host object is being built.
	claimed uint32 = 0xFFFFFFFF
)

// Flavor selects mutex behaviour on relock and foreign unlock.
type Flavor uint8

const (
	FlavorNormal Flavor = iota
	FlavorRecursive
	FlavorErrorCheck
)

func (f Flavor) String() string {
	switch f {
	case FlavorRecursive:
		return "recursive"
	case FlavorErrorCheck:
		return "errorcheck"
	}
	return "normal"
}

// flavorFromAttr maps a mutexattr type word.
func flavorFromAttr(v uint32) Flavor {
	switch v {
	case 1:
		return FlavorRecursive
	case 2:
		return FlavorErrorCheck
	}
	return FlavorNormal
}

// SlotKind is the state of a foreign handle word.
type SlotKind uint8

const (
	SlotEmpty SlotKind = iota
	SlotPending
	SlotClaimed
	SlotReady
)

// SlotState is a decoded handle word.
type SlotState struct {
	Handle resource.Handle
	Kind   SlotKind
	Flavor Flavor
}

// Decode classifies a handle word. Values up to the error-check sentinel are
// treated as not yet built.
func Decode(word uint32) SlotState {
	switch {
	case word == 0:
		return SlotState{Kind: SlotEmpty}
	case word == SentinelRecursive:
		return SlotState{Kind: SlotPending, Flavor: FlavorRecursive}
	case word == SentinelErrorCheck:
		return SlotState{Kind: SlotPending, Flavor: FlavorErrorCheck}
	case word < SentinelErrorCheck:
		return SlotState{Kind: SlotPending, Flavor: FlavorNormal}
	case word == claimed:
		return SlotState{Kind: SlotClaimed}
	}
	return SlotState{Kind: SlotReady, Handle: resource.Handle(word)}
}

// materialize returns the handle stored at slot, building one with build if
// the word is empty or pending. Exactly one caller builds per word. A failed
// build restores the word and yields -1, as pthread_mutex_init does.
func materialize(mem soruntime.Space, slot uint32, build func(Flavor) (resource.Handle, bool)) (resource.Handle, int32) {
	for {
		word, err := mem.ReadU32(slot)
		if err != nil {
			return 0, soruntime.EFAULT
		}
		st := Decode(word)
		switch st.Kind {
		case SlotReady:
			return st.Handle, 0
		case SlotClaimed:
			runtime.Gosched()
			continue
		}

		ok, err := mem.CompareAndSwapU32(slot, word, claimed)
		if err != nil {
			return 0, soruntime.EFAULT
		}
		if !ok {
			continue
		}
		h, ok := build(st.Flavor)
		if !ok {
			_ = mem.WriteU32(slot, word)
			return 0, -1
		}
		if err := mem.WriteU32(slot, uint32(h)); err != nil {
			return 0, soruntime.EFAULT
		}
		Logger().Debug("slot materialized")
		return h, 0
	}
}

// release clears a ready word and returns the handle it held. Empty and
// pending words are left alone.
func release(mem soruntime.Space, slot uint32) (resource.Handle, bool) {
	for {
		word, err := mem.ReadU32(slot)
		if err != nil {
			return 0, false
		}
		st := Decode(word)
		switch st.Kind {
		case SlotClaimed:
			runtime.Gosched()
			continue
		case SlotReady:
			ok, err := mem.CompareAndSwapU32(slot, word, 0)
			if err != nil {
				return 0, false
			}
			if !ok {
				continue
			}
			return st.Handle, true
		}
		return 0, false
	}
}
