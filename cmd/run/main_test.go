package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/so-runtime/engine"
	"github.com/wippyai/so-runtime/runtime"
	"github.com/wippyai/so-runtime/symtab"
)

func testConfig(t *testing.T) runtime.Config {
	return runtime.DefaultConfig().
		WithRoot(t.TempDir()).
		WithLayout(engine.DefaultLoadAddress, engine.DefaultModuleStride)
}

func TestInspect_List(t *testing.T) {
	var out bytes.Buffer
	if err := inspect(context.Background(), testConfig(t), &out, true, ""); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, name := range []string{"malloc", "pthread_mutex_lock", "glShaderSource", "__sF", "dlsym"} {
		if !strings.Contains(out.String(), " "+name+"\n") {
			t.Errorf("listing lacks %s", name)
		}
	}
	if !strings.Contains(out.String(), " symbols") {
		t.Fatal("listing lacks the summary line")
	}
}

func TestInspect_CheckMissingImage(t *testing.T) {
	var out bytes.Buffer
	if err := inspect(context.Background(), testConfig(t), &out, false, "/nonexistent.so"); err == nil {
		t.Fatal("missing image accepted")
	}
}

func TestInteractiveModel_Filter(t *testing.T) {
	ctx := context.Background()
	rt, err := newRuntime(ctx, testConfig(t))
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	defer rt.Close(ctx)

	m := newInteractiveModel(rt)
	total := len(m.visible)
	if total != rt.Table().Len() {
		t.Fatalf("visible = %d, table = %d", total, rt.Table().Len())
	}
	for _, r := range "mutex_lock" {
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	if len(m.visible) == 0 || len(m.visible) >= total {
		t.Fatalf("filter left %d of %d", len(m.visible), total)
	}
	for _, e := range m.visible {
		if !strings.Contains(e.Name, "mutex_lock") {
			t.Fatalf("%s does not match the filter", e.Name)
		}
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.state != stateDetail {
		t.Fatal("enter did not open details")
	}
	if view := m.View(); !strings.Contains(view, "signature") {
		t.Fatalf("detail view = %q", view)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.state != stateBrowse {
		t.Fatal("esc did not return to the list")
	}
}

func TestInteractiveModel_Move(t *testing.T) {
	m := &interactiveModel{visible: make([]symtab.Entry, 50)}
	m.move(pageSize + 5)
	if m.selected != pageSize+5 || m.offset != 6 {
		t.Fatalf("selected %d offset %d", m.selected, m.offset)
	}
	m.move(-100)
	if m.selected != 0 || m.offset != 0 {
		t.Fatalf("selected %d offset %d", m.selected, m.offset)
	}
	m.move(1000)
	if m.selected != 49 {
		t.Fatalf("selected %d", m.selected)
	}
}
