package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/so-runtime/engine"
	"github.com/wippyai/so-runtime/hostcall"
	"github.com/wippyai/so-runtime/jni"
	"github.com/wippyai/so-runtime/libc"
	"github.com/wippyai/so-runtime/loader"
	"github.com/wippyai/so-runtime/runtime"
	"github.com/wippyai/so-runtime/shadercache"
	"github.com/wippyai/so-runtime/symtab"
	"github.com/wippyai/so-runtime/threading"
	"github.com/wippyai/so-runtime/vfs"
)

// errShown is returned once the presenter has reported the failure.
var errShown = stderrors.New("fatal error already shown")

func main() {
	var (
		root        = flag.String("root", ".", "Host directory holding the ux0 and ur0 volumes")
		image       = flag.String("image", "", "Load the primary module from this host path")
		list        = flag.Bool("list", false, "Print the symbol table and exit")
		check       = flag.String("check", "", "Report which imports of an ELF shared object the table resolves")
		interactive = flag.Bool("i", false, "Browse the symbol table interactively")
		noMarkers   = flag.Bool("no-markers", false, "Skip the installation marker check")
		verbose     = flag.Bool("v", false, "Debug logging")
	)
	flag.Parse()

	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = l.Sync() }()
		setLoggers(l)
	}

	cfg := runtime.DefaultConfig().
		WithRoot(*root).
		WithLayout(engine.DefaultLoadAddress, engine.DefaultModuleStride)
	if *image != "" {
		cfg = cfg.WithImage(*image)
	}
	if *noMarkers {
		cfg = cfg.WithoutMarkers()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch {
	case *interactive:
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			err = fmt.Errorf("-i needs a terminal")
			break
		}
		err = runInteractive(ctx, cfg)
	case *list || *check != "":
		err = inspect(ctx, cfg, os.Stdout, *list, *check)
	default:
		err = run(ctx, cfg)
	}
	if err != nil {
		var exit *libc.ExitError
		if stderrors.As(err, &exit) {
			os.Exit(int(exit.Code))
		}
		if err == errShown {
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setLoggers(l *zap.Logger) {
	runtime.SetLogger(l.Named("runtime"))
	engine.SetLogger(l.Named("engine"))
	loader.SetLogger(l.Named("loader"))
	hostcall.SetLogger(l.Named("hostcall"))
	symtab.SetLogger(l.Named("symtab"))
	threading.SetLogger(l.Named("threading"))
	jni.SetLogger(l.Named("jni"))
	vfs.SetLogger(l.Named("vfs"))
	shadercache.SetLogger(l.Named("shadercache"))
	libc.SetLogger(l.Named("libc"))
}

// newRuntime builds the runtime over a fresh wazero engine.
func newRuntime(ctx context.Context, cfg runtime.Config, opts ...runtime.Option) (*runtime.Runtime, error) {
	eng, err := engine.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	rt, err := runtime.New(cfg, eng, opts...)
	if err != nil {
		_ = eng.Close(ctx)
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	return rt, nil
}

func run(ctx context.Context, cfg runtime.Config) error {
	crash := make(chan os.Signal, 1)
	signal.Notify(crash, syscall.SIGUSR1)
	defer signal.Stop(crash)

	rt, err := newRuntime(ctx, cfg, runtime.WithTrigger(runtime.ChanTrigger(crash)))
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	if err := rt.Run(ctx); err != nil {
		var exit *libc.ExitError
		if stderrors.As(err, &exit) {
			return err
		}
		return errShown
	}
	return nil
}

func inspect(ctx context.Context, cfg runtime.Config, w io.Writer, list bool, check string) error {
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)
	table := rt.Table()

	if list {
		entries := table.Entries()
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		for _, e := range entries {
			fmt.Fprintf(w, "0x%08x  %-4s  %-8s  %s\n", e.Addr, e.Kind, e.Sig, e.Name)
		}
		fmt.Fprintf(w, "\n%d symbols", table.Len())
		if dups := table.Duplicates(); len(dups) > 0 {
			fmt.Fprintf(w, ", %d shadowed", len(dups))
		}
		fmt.Fprintln(w)
	}

	if check != "" {
		cov, err := symtab.CheckImage(table, check)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %d resolved, %d missing\n", cov.Path, len(cov.Resolved), len(cov.Missing))
		if len(cov.Needed) > 0 {
			fmt.Fprintf(w, "needs: %s\n", strings.Join(cov.Needed, ", "))
		}
		for _, name := range cov.Missing {
			fmt.Fprintf(w, "  missing %s\n", name)
		}
	}
	return nil
}
