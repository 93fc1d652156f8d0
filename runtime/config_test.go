package runtime

import (
	"bytes"
	"context"
	stderrors "errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wippyai/so-runtime/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	mods := cfg.Modules()
	want := []string{"libc++_shared", "libiconv", "libObbVfs", "libFahrenheit"}
	if len(mods) != len(want) {
		t.Fatalf("modules = %v", mods)
	}
	for n, m := range mods {
		if m.Name != want[n] {
			t.Errorf("module %d = %s, want %s", n, m.Name, want[n])
		}
	}
	bases := []uint32{0x98000000, 0x99000000, 0x9A000000, 0x9B000000}
	for n, b := range bases {
		if got := cfg.ModuleBase(n); got != b {
			t.Errorf("ModuleBase(%d) = 0x%08x, want 0x%08x", n, got, b)
		}
	}
	if cfg.Device.ScreenWidth != 960 || cfg.Device.ScreenHeight != 544 {
		t.Fatalf("screen = %dx%d", cfg.Device.ScreenWidth, cfg.Device.ScreenHeight)
	}
	if cfg.Archives[0] != "ux0:data/fahrenheit/main.obb" || cfg.Archives[1] != "ux0:data/fahrenheit/patch.obb" {
		t.Fatalf("archives = %v", cfg.Archives)
	}
}

func TestConfig_Builders(t *testing.T) {
	cfg := DefaultConfig().
		WithRoot("/r").
		WithVolume("host0:", "/h").
		WithLayout(0x400000, 0x800000).
		WithScreen(1280, 720).
		WithEntry("start", "vii").
		WithoutMarkers()
	if cfg.Volumes["ux0:"] != "/r/ux0" || cfg.Volumes["ur0:"] != "/r/ur0" || cfg.Volumes["host0:"] != "/h" {
		t.Fatalf("volumes = %v", cfg.Volumes)
	}
	if cfg.ModuleBase(2) != 0x1400000 {
		t.Fatalf("ModuleBase(2) = 0x%x", cfg.ModuleBase(2))
	}
	if cfg.Device.ScreenHeight != 720 || cfg.Entry != "start" || cfg.EntrySig != "vii" || cfg.Markers != nil {
		t.Fatalf("cfg = %+v", cfg)
	}
	// builders copy the volume map
	base := DefaultConfig()
	_ = base.WithVolume("x:", "/x")
	if _, ok := base.Volumes["x:"]; ok {
		t.Fatal("WithVolume mutated the receiver")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no primary", func(c *Config) { c.Primary = ModuleSpec{} }},
		{"no entry", func(c *Config) { c.Entry = "" }},
		{"zero stride", func(c *Config) { c.Stride = 0 }},
		{"overflow", func(c *Config) { c.LoadAddress = 0xFE000000 }},
		{"duplicate", func(c *Config) { c.Dependents = append(c.Dependents, ModuleSpec{Name: "libiconv", File: "x.so"}) }},
		{"unnamed", func(c *Config) { c.Dependents[0].Name = "" }},
		{"patch target", func(c *Config) { c.Patches = []Patch{{Module: "libnope", Symbol: "f"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Dependents = append([]ModuleSpec(nil), cfg.Dependents...)
			tt.modify(&cfg)
			err := cfg.Validate()
			if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidInput}) {
				t.Fatalf("Validate = %v", err)
			}
			if _, err := New(cfg, newFakeLoader()); err == nil {
				t.Fatal("New accepted invalid config")
			}
		})
	}
}

func TestNew_NilLoader(t *testing.T) {
	if _, err := New(DefaultConfig(), nil); err == nil {
		t.Fatal("nil loader accepted")
	}
}

func TestWatchdog(t *testing.T) {
	var polls atomic.Int32
	trigger := TriggerFunc(func() bool { return polls.Add(1) == 3 })
	fired := make(chan error, 1)
	w := NewWatchdog(trigger, time.Millisecond, func(err error) { fired <- err })

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	select {
	case err := <-fired:
		if err != ErrForcedCrash {
			t.Fatalf("fired with %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watchdog never fired")
	}
	<-done
	if polls.Load() != 3 {
		t.Fatalf("polled %d times", polls.Load())
	}
}

func TestWatchdog_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWatchdog(TriggerFunc(func() bool { return false }), time.Millisecond, func(error) {
		t.Error("fired")
	})
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watchdog ignored cancellation")
	}

	// a nil trigger returns at once
	NewWatchdog(nil, 0, nil).Run(context.Background())
}

func TestChanTrigger(t *testing.T) {
	ch := make(chan int, 1)
	trig := ChanTrigger(ch)
	if trig.Fired() {
		t.Fatal("fired without a value")
	}
	ch <- 1
	if !trig.Fired() || trig.Fired() {
		t.Fatal("trigger should fire once per value")
	}
}

func TestWriterPresenter(t *testing.T) {
	var buf bytes.Buffer
	NewWriterPresenter(&buf).Fatal(errors.MissingPrerequisite("kubridge.skprx", "ur0:tai/kubridge.skprx"))
	if !strings.HasPrefix(buf.String(), "Error ") || !strings.Contains(buf.String(), "kubridge.skprx is not installed") {
		t.Fatalf("output = %q", buf.String())
	}
}
