package jni

import (
	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/errors"
	"github.com/wippyai/so-runtime/memory"
)

const (
	// ObjectSize is the size of each pseudo-object buffer.
	ObjectSize uint32 = 0x1000
	// Filler is the byte every unused slot is filled with.
	Filler byte = 'A'
)

// Slot is one function pointer position inside a pseudo-object.
type Slot struct {
	Name   string
	Offset uint32
}

// VMSlots is the layout of the VM handle.
var VMSlots = []Slot{
	{"AttachCurrentThread", 0x10},
	{"DetachCurrentThread", 0x14},
	{"GetEnv", 0x18},
}

// EnvSlots is the layout of the environment.
var EnvSlots = []Slot{
	{"FindClass", 0x18},
	{"NewGlobalRef", 0x54},
	{"DeleteGlobalRef", 0x58},
	{"DeleteLocalRef", 0x5C},
	{"NewObjectV", 0x74},
	{"GetObjectClass", 0x7C},
	{"GetMethodID", 0x84},
	{"CallObjectMethodV", 0x8C},
	{"CallBooleanMethodV", 0x98},
	{"CallLongMethodV", 0xD4},
	{"CallVoidMethodV", 0xF8},
	{"GetFieldID", 0x178},
	{"GetBooleanField", 0x17C},
	{"GetIntField", 0x190},
	{"GetFloatField", 0x198},
	{"GetStaticMethodID", 0x1C4},
	{"CallStaticObjectMethodV", 0x1CC},
	{"CallStaticBooleanMethodV", 0x1D8},
	{"CallStaticIntMethodV", 0x208},
	{"CallStaticFloatMethodV", 0x220},
	{"CallStaticVoidMethodV", 0x238},
	{"GetStaticFieldID", 0x240},
	{"GetStaticObjectField", 0x244},
	{"NewStringUTF", 0x29C},
	{"GetStringUTFLength", 0x2A0},
	{"GetStringUTFChars", 0x2A4},
	{"ReleaseStringUTFChars", 0x2A8},
	{"GetJavaVM", 0x36C},
	{"GetStringUTFRegion", 0x374},
}

// writeObject allocates a pseudo-object, fills it, points offset 0 at itself
// and stores addrs[slot.Name] at each slot offset.
func writeObject(space soruntime.Space, slots []Slot, addrs map[string]uint32) (uint32, error) {
	base, err := space.Alloc(ObjectSize, 16)
	if err != nil {
		return 0, err
	}
	if err := memory.Fill(space, base, Filler, ObjectSize); err != nil {
		return 0, err
	}
	if err := space.WriteU32(base, base); err != nil {
		return 0, err
	}
	for _, s := range slots {
		addr, ok := addrs[s.Name]
		if !ok {
			return 0, errors.New(errors.PhaseEmulator, errors.KindNotFound).
				Symbol(s.Name).Detail("no implementation for slot 0x%x", s.Offset).Build()
		}
		if s.Offset+4 > ObjectSize {
			return 0, errors.OutOfBounds(errors.PhaseEmulator, s.Offset, 4)
		}
		if err := space.WriteU32(base+s.Offset, addr); err != nil {
			return 0, err
		}
	}
	return base, nil
}
