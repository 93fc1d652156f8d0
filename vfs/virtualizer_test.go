package vfs

import (
	"strings"
	"sync"
	"testing"
)

func TestVirtualizer_Resolve(t *testing.T) {
	v := NewVirtualizer("ux0:data/fahrenheit", "ux0:")
	tests := []struct {
		in   string
		want string
	}{
		{"save.dat", "ux0:data/fahrenheit/save.dat"},
		{"shaders/a.glsl", "ux0:data/fahrenheit/shaders/a.glsl"},
		{"ux0:data/other/file", "ux0:data/other/file"},
		{"ux0:", "ux0:"},
		{"data/ux0:x", "ux0:data/fahrenheit/data/ux0:x"},
	}
	for _, tt := range tests {
		if got := v.Resolve(tt.in); got != tt.want {
			t.Fatalf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVirtualizer_RoundTrip(t *testing.T) {
	v := NewVirtualizer("ux0:data/fahrenheit/", "ux0:")
	for _, p := range []string{"a", "b/c", "", "../up", "ux0:keep", "ux0:data/fahrenheit/x"} {
		got := v.Resolve(p)
		if strings.HasPrefix(p, "ux0:") {
			if got != p {
				t.Fatalf("marked path %q rewritten to %q", p, got)
			}
			continue
		}
		if !strings.HasPrefix(got, "ux0:data/fahrenheit/") {
			t.Fatalf("Resolve(%q) = %q, missing data root", p, got)
		}
	}
}

func TestVirtualizer_Archives(t *testing.T) {
	v := NewVirtualizer("ux0:data/fahrenheit", "ux0:", "main.obb", "patch.obb")
	want := []string{"ux0:data/fahrenheit/main.obb", "ux0:data/fahrenheit/patch.obb"}
	for i, w := range want {
		got, ok := v.ResolveOpen("")
		if !ok || got != w {
			t.Fatalf("open %d = %q, %v; want %q", i+1, got, ok, w)
		}
	}
	if got, ok := v.NextArchive(); ok {
		t.Fatalf("third anonymous open returned %q", got)
	}
	if got, ok := v.ResolveOpen("named"); !ok || got != "ux0:data/fahrenheit/named" {
		t.Fatalf("named open = %q, %v", got, ok)
	}
}

func TestVirtualizer_ArchiveCursorConcurrent(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	v := NewVirtualizer("r", "ux0:", names...)

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, ok := v.NextArchive()
			if !ok {
				return
			}
			mu.Lock()
			seen[p]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != len(names) {
		t.Fatalf("distinct archives = %d, want %d", len(seen), len(names))
	}
	for p, n := range seen {
		if n != 1 {
			t.Fatalf("%s opened %d times", p, n)
		}
	}
}

func TestVolumes_HostPath(t *testing.T) {
	vols := Volumes{"ux0:": "/host/ux0", "ux0:data/": "/host/data"}
	tests := []struct {
		in   string
		want string
	}{
		{"ux0:app/x", "/host/ux0/app/x"},
		{"ux0:data/fahrenheit/main.obb", "/host/data/fahrenheit/main.obb"},
		{"ux0:../../etc/passwd", "/host/ux0/etc/passwd"},
		{"ux0:data/fahrenheit//a", "/host/data/fahrenheit/a"},
	}
	for _, tt := range tests {
		got, err := vols.HostPath(tt.in)
		if err != nil {
			t.Fatalf("HostPath(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("HostPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := vols.HostPath("ur0:data/x"); err == nil {
		t.Fatal("unknown volume resolved")
	}
}
