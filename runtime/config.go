package runtime

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/wippyai/so-runtime/errors"
	"github.com/wippyai/so-runtime/jni"
	"github.com/wippyai/so-runtime/shadercache"
	"github.com/wippyai/so-runtime/vfs"
)

// Default placement of the foreign modules.
const (
	DefaultLoadAddress uint32 = 0x98000000
	DefaultStride      uint32 = 0x01000000
)

// DefaultEntry is the native-initialization export of the primary module.
const DefaultEntry = "Java_org_libsdl_app_SDLActivity_nativeInit"

// ModuleSpec names one foreign module under the data root.
type ModuleSpec struct {
	// Name identifies the module in logs, errors and patches.
	Name string
	// File is the image file name relative to the data root.
	File string
}

// Patch redirects an exported function of a loaded module to a fatal fault.
type Patch struct {
	Module string
	Symbol string
	// Sig is the host call signature of the patched function.
	Sig string
}

// Marker is an installation prerequisite. It is present when any of Paths
// exists. Paths are virtual and mapped through the configured volumes.
type Marker struct {
	Name  string
	Paths []string
}

// Config describes one run of the foreign module.
type Config struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Env seeds getenv.
	Env map[string]string

	// Volumes maps volume markers such as "ux0:" to host directories.
	Volumes vfs.Volumes

	// ShaderDriver receives shader submissions. Nil accepts everything.
	ShaderDriver shadercache.Driver

	// ShaderCompiler optionally compiles captured sources offline.
	ShaderCompiler shadercache.Precompiler

	// DataRoot is the virtual directory holding the modules and archives.
	DataRoot string

	// PrimaryPath overrides the host path of the primary image.
	PrimaryPath string

	// Entry is the primary module export called once everything is loaded.
	Entry string

	// EntrySig is the signature of Entry, used when the loader cannot tell.
	EntrySig string

	// Dependents are loaded in order before Primary.
	Dependents []ModuleSpec
	Primary    ModuleSpec

	Patches  []Patch
	Markers  []Marker
	Archives []string

	Device jni.DeviceInfo

	LoadAddress uint32
	Stride      uint32

	// ShaderCacheEntries bounds the in-memory shader binary cache.
	ShaderCacheEntries int

	// WatchdogInterval is how often the watchdog polls its trigger.
	WatchdogInterval time.Duration
}

// DefaultConfig returns the layout of the original port: three shared
// libraries followed by the game module, all under ux0:data/fahrenheit.
func DefaultConfig() Config {
	const root = "ux0:data/fahrenheit"
	return Config{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Volumes: vfs.Volumes{
			"ux0:": "ux0",
			"ur0:": "ur0",
		},
		DataRoot: root,
		Entry:    DefaultEntry,
		EntrySig: "v",
		Dependents: []ModuleSpec{
			{Name: "libc++_shared", File: "libc++_shared.so"},
			{Name: "libiconv", File: "libiconv.so"},
			{Name: "libObbVfs", File: "libObbVfs.so"},
		},
		Primary: ModuleSpec{Name: "libFahrenheit", File: "libFahrenheit.so"},
		Patches: []Patch{
			{Module: "libc++_shared", Symbol: "__cxa_throw", Sig: "viii"},
		},
		Markers: []Marker{
			{Name: "kubridge.skprx", Paths: []string{"ur0:tai/kubridge.skprx", "ux0:tai/kubridge.skprx"}},
			{Name: "libshacccg.suprx", Paths: []string{"ur0:/data/libshacccg.suprx", "ur0:/data/external/libshacccg.suprx"}},
		},
		Archives: []string{
			root + "/main.obb",
			root + "/patch.obb",
		},
		Device:             jni.DefaultDevice(),
		LoadAddress:        DefaultLoadAddress,
		Stride:             DefaultStride,
		ShaderCacheEntries: shadercache.DefaultCacheEntries,
		WatchdogInterval:   10 * time.Millisecond,
	}
}

// WithRoot maps the ux0: and ur0: volumes under the host directory dir.
func (c Config) WithRoot(dir string) Config {
	c.Volumes = vfs.Volumes{
		"ux0:": filepath.Join(dir, "ux0"),
		"ur0:": filepath.Join(dir, "ur0"),
	}
	return c
}

// WithVolume maps one volume marker to a host directory.
func (c Config) WithVolume(marker, dir string) Config {
	vols := make(vfs.Volumes, len(c.Volumes)+1)
	for k, v := range c.Volumes {
		vols[k] = v
	}
	vols[marker] = dir
	c.Volumes = vols
	return c
}

// WithImage loads the primary module from a host path instead of the data root.
func (c Config) WithImage(path string) Config {
	c.PrimaryPath = path
	return c
}

// WithLayout places the first module at base and each next one stride above.
func (c Config) WithLayout(base, stride uint32) Config {
	c.LoadAddress = base
	c.Stride = stride
	return c
}

// WithEntry sets the entry export and its fallback signature.
func (c Config) WithEntry(name, sig string) Config {
	c.Entry = name
	c.EntrySig = sig
	return c
}

// WithScreen sets the reported screen size in pixels.
func (c Config) WithScreen(width, height uint32) Config {
	c.Device.ScreenWidth = width
	c.Device.ScreenHeight = height
	return c
}

// WithStdio replaces the standard streams.
func (c Config) WithStdio(stdin io.Reader, stdout, stderr io.Writer) Config {
	c.Stdin, c.Stdout, c.Stderr = stdin, stdout, stderr
	return c
}

// WithShaders sets the graphics driver and the offline shader compiler.
func (c Config) WithShaders(driver shadercache.Driver, pre shadercache.Precompiler) Config {
	c.ShaderDriver = driver
	c.ShaderCompiler = pre
	return c
}

// WithoutMarkers disables the prerequisite check.
func (c Config) WithoutMarkers() Config {
	c.Markers = nil
	return c
}

// Modules returns every module in load order, the primary last.
func (c Config) Modules() []ModuleSpec {
	mods := make([]ModuleSpec, 0, len(c.Dependents)+1)
	mods = append(mods, c.Dependents...)
	return append(mods, c.Primary)
}

// ModuleBase is the load address of the n-th module in load order.
func (c Config) ModuleBase(n int) uint32 {
	return c.LoadAddress + uint32(n)*c.Stride
}

// Validate reports the first inconsistency in c.
func (c Config) Validate() error {
	bad := func(format string, args ...any) error {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).Detail(format, args...).Build()
	}
	if c.Primary.File == "" && c.PrimaryPath == "" {
		return bad("no primary module")
	}
	if c.Entry == "" {
		return bad("no entry point")
	}
	mods := c.Modules()
	if len(mods) > 1 && c.Stride == 0 {
		return bad("zero module stride")
	}
	if end := uint64(c.LoadAddress) + uint64(len(mods))*uint64(c.Stride); end > 1<<32 {
		return bad("%d modules at 0x%08x+0x%x overflow the address space", len(mods), c.LoadAddress, c.Stride)
	}
	seen := make(map[string]bool, len(mods))
	for _, m := range mods {
		if m.Name == "" {
			return bad("module %q has no name", m.File)
		}
		if seen[m.Name] {
			return bad("module %q listed twice", m.Name)
		}
		seen[m.Name] = true
	}
	for _, p := range c.Patches {
		if !seen[p.Module] {
			return bad("patch of %s targets unknown module %q", p.Symbol, p.Module)
		}
	}
	return nil
}
