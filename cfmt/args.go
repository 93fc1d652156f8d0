package cfmt

import (
	"math"

	soruntime "github.com/wippyai/so-runtime"
)

// Args supplies successive variadic arguments.
type Args interface {
	Int32() (int32, error)
	Int64() (int64, error)
	Float64() (float64, error)
}

// VaList reads arguments from a packed area in foreign memory.
type VaList struct {
	mem soruntime.Memory
	ptr uint32
}

// NewVaList starts reading at ptr.
func NewVaList(mem soruntime.Memory, ptr uint32) *VaList {
	return &VaList{mem: mem, ptr: ptr}
}

// Pos returns the address of the next unread argument.
func (v *VaList) Pos() uint32 {
	return v.ptr
}

func (v *VaList) Int32() (int32, error) {
	v.ptr = (v.ptr + 3) &^ 3
	x, err := v.mem.ReadU32(v.ptr)
	if err != nil {
		return 0, err
	}
	v.ptr += 4
	return int32(x), nil
}

func (v *VaList) Int64() (int64, error) {
	v.ptr = (v.ptr + 7) &^ 7
	x, err := v.mem.ReadU64(v.ptr)
	if err != nil {
		return 0, err
	}
	v.ptr += 8
	return int64(x), nil
}

func (v *VaList) Float64() (float64, error) {
	x, err := v.Int64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(uint64(x)), nil
}
