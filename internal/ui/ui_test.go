package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/mpsync/internal/models"
)

type fakeTasks struct {
	tasks    []models.Task
	updates  chan models.Task
	paused   []int64
	pauseErr error
	cleared  int
	closed   bool
}

func newFakeTasks(tasks ...models.Task) *fakeTasks {
	return &fakeTasks{tasks: tasks, updates: make(chan models.Task, 4)}
}

func (f *fakeTasks) List() []models.Task { return f.tasks }
func (f *fakeTasks) Subscribe(int) (<-chan models.Task, func()) {
	return f.updates, func() { f.closed = true }
}
func (f *fakeTasks) Pause(id int64) error {
	f.paused = append(f.paused, id)
	return f.pauseErr
}
func (f *fakeTasks) Resume(int64) error  { return nil }
func (f *fakeTasks) Cancel(int64) error  { return nil }
func (f *fakeTasks) Remove(int64) error  { return nil }
func (f *fakeTasks) ClearCompleted() int { f.cleared++; return 2 }

func keyPress(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func loaded(t *testing.T, f *fakeTasks) *Model {
	t.Helper()
	m := NewModel(context.Background(), f)
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	m.Update(tasksLoadedMsg(f.List()))
	return m
}

func TestModel(t *testing.T) {
	running := models.Task{ID: 1, Name: "批量删除草稿", Status: models.TaskRunning, Current: 1, Total: 4, Progress: 25, Detail: "正在删除《A》"}

	t.Run("LoadAndView", func(t *testing.T) {
		m := loaded(t, newFakeTasks(running))

		if len(m.taskList.Items()) != 1 {
			t.Fatalf("expected 1 item, got %d", len(m.taskList.Items()))
		}
		view := m.View()
		if !strings.Contains(view, "批量删除草稿") || !strings.Contains(view, "正在删除《A》") {
			t.Errorf("view missing task, got:\n%s", view)
		}
	})

	t.Run("EmptyView", func(t *testing.T) {
		m := loaded(t, newFakeTasks())
		if !strings.Contains(m.View(), "No tasks yet") {
			t.Errorf("expected empty placeholder, got:\n%s", m.View())
		}
	})

	t.Run("UpdateUpsertsTask", func(t *testing.T) {
		f := newFakeTasks(running)
		m := loaded(t, f)

		next := running
		next.Current, next.Progress, next.Detail = 2, 50, "正在删除《B》"
		_, cmd := m.Update(taskUpdatedMsg(next))
		if cmd == nil {
			t.Fatal("expected a follow-up command to keep listening")
		}
		m.Update(taskUpdatedMsg(models.Task{ID: 2, Name: "同步草稿", Status: models.TaskPending}))

		items := m.taskList.Items()
		if len(items) != 2 {
			t.Fatalf("expected 2 items, got %d", len(items))
		}
		if got := items[0].(taskItem).task; got.Progress != 50 || got.Detail != "正在删除《B》" {
			t.Errorf("expected first task to be replaced, got %+v", got)
		}
	})

	t.Run("UpdateDropsRemovedTask", func(t *testing.T) {
		other := models.Task{ID: 2, Name: "同步草稿", Status: models.TaskCompleted}
		m := loaded(t, newFakeTasks(running, other))

		gone := other
		gone.Removed = true
		m.Update(taskUpdatedMsg(gone))
		m.Update(taskUpdatedMsg(models.Task{ID: 9, Removed: true}))

		items := m.taskList.Items()
		if len(items) != 1 || items[0].(taskItem).task.ID != running.ID {
			t.Fatalf("expected only the running task to remain, got %d items", len(items))
		}
	})

	t.Run("WaitForUpdate", func(t *testing.T) {
		f := newFakeTasks()
		m := NewModel(context.Background(), f)
		f.updates <- running

		msg, ok := m.waitForUpdate()().(Msg)
		if !ok || msg.kind != MsgTaskUpdated || msg.data.(models.Task).ID != 1 {
			t.Errorf("expected task update message, got %+v", msg)
		}

		close(f.updates)
		if msg := m.waitForUpdate()().(Msg); msg.kind != MsgStreamClosed {
			t.Errorf("expected stream closed, got %v", msg.kind)
		}
	})

	t.Run("PauseSelected", func(t *testing.T) {
		f := newFakeTasks(running)
		m := loaded(t, f)

		_, cmd := m.Update(keyPress('p'))
		if cmd == nil {
			t.Fatal("expected pause command")
		}
		msg := cmd().(Msg)
		if len(f.paused) != 1 || f.paused[0] != 1 {
			t.Fatalf("expected task 1 to be paused, got %v", f.paused)
		}
		m.Update(msg)
		if m.err != nil || !strings.Contains(m.status, "task #1 paused") {
			t.Errorf("unexpected status %q err %v", m.status, m.err)
		}
	})

	t.Run("ControlError", func(t *testing.T) {
		f := newFakeTasks(running)
		f.pauseErr = errors.New("invalid task transition")
		m := loaded(t, f)

		_, cmd := m.Update(keyPress('p'))
		m.Update(cmd())
		if m.err == nil || !strings.Contains(m.View(), "invalid task transition") {
			t.Errorf("expected error in view, got:\n%s", m.View())
		}
	})

	t.Run("ClearCompleted", func(t *testing.T) {
		f := newFakeTasks(running)
		m := loaded(t, f)

		_, cmd := m.Update(keyPress('x'))
		m.Update(cmd())
		if f.cleared != 1 || m.status != "cleared 2 completed" {
			t.Errorf("expected clear, got cleared=%d status=%q", f.cleared, m.status)
		}
	})

	t.Run("NoSelectionNoCommand", func(t *testing.T) {
		m := loaded(t, newFakeTasks())
		if _, cmd := m.Update(keyPress('c')); cmd != nil {
			t.Error("expected no command without a selected task")
		}
	})

	t.Run("Quit", func(t *testing.T) {
		f := newFakeTasks(running)
		m := loaded(t, f)

		_, cmd := m.Update(keyPress('q'))
		if cmd == nil {
			t.Fatal("expected quit command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("expected tea.QuitMsg")
		}
		if !f.closed {
			t.Error("expected subscription to be closed")
		}
	})
}
