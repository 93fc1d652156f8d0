package threading

import (
	"testing"

	"github.com/wippyai/so-runtime/resource"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		word uint32
		want SlotState
	}{
		{0, SlotState{Kind: SlotEmpty}},
		{0x4000, SlotState{Kind: SlotPending, Flavor: FlavorRecursive}},
		{0x8000, SlotState{Kind: SlotPending, Flavor: FlavorErrorCheck}},
		{0x1, SlotState{Kind: SlotPending, Flavor: FlavorNormal}},
		{0xFFFFFFFF, SlotState{Kind: SlotClaimed}},
		{0xE0000001, SlotState{Kind: SlotReady, Handle: resource.Handle(0xE0000001)}},
	}
	for _, tt := range tests {
		if got := Decode(tt.word); got != tt.want {
			t.Errorf("Decode(%#x) = %+v, want %+v", tt.word, got, tt.want)
		}
	}
}

func TestFlavorNames(t *testing.T) {
	if FlavorNormal.String() != "normal" || FlavorRecursive.String() != "recursive" || FlavorErrorCheck.String() != "errorcheck" {
		t.Fatal("unexpected flavor names")
	}
}

func TestClaimedMarkerOutsideHandles(t *testing.T) {
	if claimed <= uint32(resource.MaxHandle) {
		t.Fatalf("claimed marker %#x collides with handle window ending at %#x", claimed, resource.MaxHandle)
	}
}
