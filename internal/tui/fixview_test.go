package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lintmend/lintmend/internal/orchestrator"
)

func applyEvents(t *testing.T, m Model, events ...orchestrator.Event) Model {
	t.Helper()
	for _, ev := range events {
		next, _ := m.Update(eventMsg(ev))
		m = next.(Model)
	}
	return m
}

func TestModelTracksCurrentFile(t *testing.T) {
	m := New(nil, 3)
	m = applyEvents(t, m,
		orchestrator.Event{File: "src/app.py", State: orchestrator.StateFormatting},
		orchestrator.Event{File: "src/app.py", State: orchestrator.StateFixing, Detail: "window-1"},
	)

	if m.current != "src/app.py" {
		t.Fatalf("current = %q, want src/app.py", m.current)
	}
	if m.state != orchestrator.StateFixing {
		t.Errorf("state = %q, want %q", m.state, orchestrator.StateFixing)
	}
	if m.detail != "window-1" {
		t.Errorf("detail = %q, want window-1", m.detail)
	}
	if m.seen != 1 {
		t.Errorf("seen = %d, want 1", m.seen)
	}
}

func TestModelTalliesDoneDetails(t *testing.T) {
	m := New(nil, 2)
	m = applyEvents(t, m,
		orchestrator.Event{File: "a.py", State: orchestrator.StateLinting},
		orchestrator.Event{File: "a.py", State: orchestrator.StateDone, Detail: "committed"},
		orchestrator.Event{File: "b.py", State: orchestrator.StateLinting},
		orchestrator.Event{File: "b.py", State: orchestrator.StateDone, Detail: "clean"},
	)

	if m.fixed != 1 {
		t.Errorf("fixed = %d, want 1", m.fixed)
	}
	if m.clean != 1 {
		t.Errorf("clean = %d, want 1", m.clean)
	}
	if m.stopped != 0 {
		t.Errorf("stopped = %d, want 0", m.stopped)
	}
	if m.seen != 2 {
		t.Errorf("seen = %d, want 2", m.seen)
	}
}

func TestModelCountsFileStoppedEarly(t *testing.T) {
	m := New(nil, 2)
	m = applyEvents(t, m,
		orchestrator.Event{File: "a.py", State: orchestrator.StateTesting},
		orchestrator.Event{File: "b.py", State: orchestrator.StateFormatting},
	)

	if m.stopped != 1 {
		t.Fatalf("stopped = %d, want 1", m.stopped)
	}
}

func TestModelQuitsWhenStreamCloses(t *testing.T) {
	m := New(nil, 1)
	m = applyEvents(t, m,
		orchestrator.Event{File: "a.py", State: orchestrator.StateTesting},
	)

	next, cmd := m.Update(doneMsg{})
	m = next.(Model)

	if !m.done {
		t.Fatal("model not done after stream close")
	}
	if m.stopped != 1 {
		t.Errorf("stopped = %d, want 1 for unfinished file", m.stopped)
	}
	if cmd == nil {
		t.Fatal("no command returned")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected quit command")
	}
}

func TestModelQuitKey(t *testing.T) {
	m := New(nil, 1)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = next.(Model)

	if !m.Quit() {
		t.Fatal("Quit() = false after ctrl+c")
	}
	if cmd == nil {
		t.Fatal("no command returned")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected quit command")
	}
}

func TestWaitForEvent(t *testing.T) {
	ch := make(chan orchestrator.Event, 1)
	ch <- orchestrator.Event{File: "a.py", State: orchestrator.StateLinting}

	msg := waitForEvent(ch)()
	ev, ok := msg.(eventMsg)
	if !ok {
		t.Fatalf("message type = %T, want eventMsg", msg)
	}
	if ev.File != "a.py" {
		t.Errorf("file = %q, want a.py", ev.File)
	}

	close(ch)
	if _, ok := waitForEvent(ch)().(doneMsg); !ok {
		t.Fatal("closed channel did not yield doneMsg")
	}
}

func TestViewShowsProgress(t *testing.T) {
	m := New(nil, 3)
	m = applyEvents(t, m,
		orchestrator.Event{File: "a.py", State: orchestrator.StateDone, Detail: "committed"},
		orchestrator.Event{File: "b.py", State: orchestrator.StateFixing, Detail: "window-2"},
	)

	view := m.View()
	for _, want := range []string{"b.py", "[fixing]", "window-2", "2/3", "1 fixed"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestViewAfterDoneShowsSummaryOnly(t *testing.T) {
	m := New(nil, 1)
	m = applyEvents(t, m,
		orchestrator.Event{File: "a.py", State: orchestrator.StateDone, Detail: "committed"},
	)
	next, _ := m.Update(doneMsg{})
	m = next.(Model)

	view := m.View()
	if strings.Contains(view, "[") {
		t.Errorf("done view still shows state: %q", view)
	}
	if !strings.Contains(view, "1 fixed") {
		t.Errorf("done view missing tally: %q", view)
	}
}
