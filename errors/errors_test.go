package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:   PhaseResolve,
				Kind:    KindUnresolved,
				Module:  "libFahrenheit",
				Symbol:  "glShaderSource",
				Address: 0x98001000,
				Detail:  "no host implementation",
			},
			contains: []string{"[resolve]", "unresolved", "libFahrenheit", "glShaderSource", "0x98001000", "no host implementation"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseShim,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[shim]", "out_of_bounds"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseCache,
				Kind:   KindIO,
				Path:   "ux0:data/fahrenheit/gxp/00.gxp",
				Detail: "read failed",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[cache]", "io", "gxp/00.gxp", "read failed", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLoad,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase:  PhaseResolve,
		Kind:   KindUnresolved,
		Symbol: "foo",
	}

	if !errors.Is(err, &Error{Phase: PhaseResolve, Kind: KindUnresolved}) {
		t.Error("Is should match same phase and kind")
	}
	if errors.Is(err, &Error{Phase: PhaseLoad, Kind: KindUnresolved}) {
		t.Error("Is should not match different phase")
	}
	if errors.Is(err, &Error{Phase: PhaseResolve, Kind: KindNotFound}) {
		t.Error("Is should not match different kind")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("cause")
	err := New(PhaseInit, KindFault).
		Module("libc++_shared").
		Symbol("__cxa_throw").
		Path("/tmp/x").
		Address(0x1234).
		Detail("value %d", 42).
		Cause(cause).
		Build()

	if err.Phase != PhaseInit || err.Kind != KindFault {
		t.Errorf("unexpected phase/kind: %s/%s", err.Phase, err.Kind)
	}
	if err.Module != "libc++_shared" || err.Symbol != "__cxa_throw" || err.Path != "/tmp/x" {
		t.Errorf("unexpected fields: %+v", err)
	}
	if err.Address != 0x1234 {
		t.Errorf("Address = %x", err.Address)
	}
	if err.Detail != "value 42" {
		t.Errorf("Detail = %q", err.Detail)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable")
	}
}

func TestBuilder_DetailPlain(t *testing.T) {
	err := New(PhaseRuntime, KindInvalidInput).Detail("no such module").Build()
	if err.Detail != "no such module" {
		t.Errorf("Detail = %q", err.Detail)
	}
	err = New(PhaseRuntime, KindInvalidInput).Detail("%s", "100%").Build()
	if err.Detail != "100%" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   *Error
		phase Phase
		kind  Kind
	}{
		{"NotFound", NotFound(PhaseRuntime, "symbol", "dlsym"), PhaseRuntime, KindNotFound},
		{"AllocationFailed", AllocationFailed(PhaseShim, 16, 8), PhaseShim, KindAllocation},
		{"OutOfBounds", OutOfBounds(PhaseEmulator, 0x10, 4), PhaseEmulator, KindOutOfBounds},
		{"Unsupported", Unsupported(PhaseShim, "signals"), PhaseShim, KindUnsupported},
		{"MissingPrerequisite", MissingPrerequisite("kubridge", "ux0:tai/kubridge.skprx"), PhaseStartup, KindMissingPrerequisite},
		{"Fault", Fault("abort", "called"), PhaseRuntime, KindFault},
		{"Wrap", Wrap(PhaseLoad, KindIO, errors.New("x"), "open"), PhaseLoad, KindIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Phase != tt.phase {
				t.Errorf("Phase = %s, want %s", tt.err.Phase, tt.phase)
			}
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", tt.err.Kind, tt.kind)
			}
		})
	}
}

func TestMissingPrerequisite_ListsPaths(t *testing.T) {
	err := MissingPrerequisite("libshacccg", "ur0:/data/libshacccg.suprx", "ur0:/data/external/libshacccg.suprx")
	msg := err.Error()
	for _, want := range []string{"libshacccg", "ur0:/data/libshacccg.suprx", "ur0:/data/external/libshacccg.suprx"} {
		if !strings.Contains(msg, want) {
			t.Errorf("%q missing %q", msg, want)
		}
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("x"), false},
		{"startup", MissingPrerequisite("kubridge"), true},
		{"load", New(PhaseLoad, KindIO).Build(), true},
		{"relocate", New(PhaseRelocate, KindInvalidData).Build(), true},
		{"resolve", New(PhaseResolve, KindUnresolved).Build(), true},
		{"patch", New(PhasePatch, KindNotFound).Build(), true},
		{"init", New(PhaseInit, KindFault).Build(), true},
		{"runtime fault", Fault("abort", ""), true},
		{"runtime not found", NotFound(PhaseRuntime, "symbol", "x"), false},
		{"cache io", New(PhaseCache, KindIO).Build(), false},
		{"wrapped", fmt.Errorf("ctx: %w", New(PhaseLoad, KindIO).Build()), true},
		{"unresolved imports", NewUnresolvedImportsError("libA", []string{"foo"}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.want {
				t.Errorf("IsFatal = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnresolvedImportsError(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		err := &UnresolvedImportsError{}
		if !strings.Contains(err.Error(), "no imports") {
			t.Errorf("unexpected message %q", err.Error())
		}
	})

	t.Run("single", func(t *testing.T) {
		err := NewUnresolvedImportsError("libA", []string{"foo"})
		if err.Error() != "[resolve] unresolved: libA imports foo" {
			t.Errorf("unexpected message %q", err.Error())
		}
	})

	t.Run("multiple", func(t *testing.T) {
		err := NewUnresolvedImportsError("libA", []string{"foo", "bar"})
		msg := err.Error()
		if !strings.Contains(msg, "2 imports") || !strings.Contains(msg, "libA: foo") || !strings.Contains(msg, "libA: bar") {
			t.Errorf("unexpected message %q", msg)
		}
		if strings.HasSuffix(msg, "\n") {
			t.Error("message should not end with newline")
		}
	})

	t.Run("is", func(t *testing.T) {
		err := NewUnresolvedImportsError("libA", []string{"foo"})
		if !errors.Is(err, &Error{Phase: PhaseResolve, Kind: KindUnresolved}) {
			t.Error("should match resolve/unresolved")
		}
		if errors.Is(err, &Error{Phase: PhaseLoad, Kind: KindUnresolved}) {
			t.Error("should not match load phase")
		}
	})
}
