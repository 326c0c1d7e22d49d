package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/mpsync/internal/models"
)

// TaskControl is the part of the task registry the monitor reads and drives.
type TaskControl interface {
	List() []models.Task
	Subscribe(buffer int) (<-chan models.Task, func())
	Pause(id int64) error
	Resume(id int64) error
	Cancel(id int64) error
	Remove(id int64) error
	ClearCompleted() int
}

// Model is the task monitor state.
type Model struct {
	ctx         context.Context
	tasks       TaskControl
	updates     <-chan models.Task
	unsubscribe func()
	width       int
	height      int
	taskList    list.Model
	bar         progress.Model
	status      string
	err         error
	help        help.Model
	keys        keyMap
}

// NewModel creates a task monitor subscribed to tasks. The subscription ends when the
// program quits or ctx is done.
func NewModel(ctx context.Context, tasks TaskControl) *Model {
	updates, unsubscribe := tasks.Subscribe(0)

	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Tasks"
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)

	m := &Model{
		ctx:         ctx,
		tasks:       tasks,
		updates:     updates,
		unsubscribe: unsubscribe,
		taskList:    l,
		bar:         progress.New(progress.WithDefaultGradient()),
		help:        help.New(),
		keys:        newKeyMap(),
	}
	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			m.unsubscribe()
		}()
	}
	return m
}

// Close ends the task subscription.
func (m *Model) Close() { m.unsubscribe() }

// Init loads the current tasks and starts listening for changes.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.loadTasks(), m.waitForUpdate())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.taskList.SetSize(msg.Width-4, msg.Height-10)
		m.bar.Width = max(msg.Width-8, 10)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	m.taskList, cmd = m.taskList.Update(msg)
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgTasksLoaded:
		tasks := msg.data.([]models.Task)
		items := make([]list.Item, len(tasks))
		for i, t := range tasks {
			items[i] = taskItem{task: t}
		}
		return m, m.taskList.SetItems(items)

	case MsgTaskUpdated:
		task := msg.data.(models.Task)
		cmd := m.taskList.SetItems(upsertItem(m.taskList.Items(), task))
		return m, tea.Batch(cmd, m.waitForUpdate())

	case MsgStreamClosed:
		m.status = "task stream closed"
		return m, nil

	case MsgControlDone:
		res := msg.data.(struct {
			action string
			err    error
		})
		m.err = res.err
		if res.err == nil {
			m.status = res.action
		}
		return m, m.loadTasks()
	}
	return m, nil
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.unsubscribe()
		return m, tea.Quit
	case key.Matches(msg, m.keys.pause):
		return m, m.control("paused", m.tasks.Pause)
	case key.Matches(msg, m.keys.resume):
		return m, m.control("resumed", m.tasks.Resume)
	case key.Matches(msg, m.keys.cancel):
		return m, m.control("cancelled", m.tasks.Cancel)
	case key.Matches(msg, m.keys.remove):
		return m, m.control("removed", m.tasks.Remove)
	case key.Matches(msg, m.keys.clear):
		return m, func() tea.Msg {
			n := m.tasks.ClearCompleted()
			return controlDoneMsg(fmt.Sprintf("cleared %d completed", n), nil)
		}
	}

	var cmd tea.Cmd
	m.taskList, cmd = m.taskList.Update(msg)
	return m, cmd
}

// View renders the task list, the selected task's progress bar and help.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(m.taskList.View())
	b.WriteString("\n\n")

	if task, ok := m.selected(); ok {
		b.WriteString(m.bar.ViewAs(float64(task.Progress) / 100))
		b.WriteString("\n")
		if task.Detail != "" {
			b.WriteString(task.Detail)
			b.WriteString("\n")
		}
	} else {
		b.WriteString(styles.help.Render("No tasks yet"))
		b.WriteString("\n")
	}

	switch {
	case m.err != nil:
		b.WriteString(styles.err.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	case m.status != "":
		b.WriteString(styles.ok.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView([]key.Binding{
		m.keys.pause, m.keys.resume, m.keys.cancel, m.keys.remove, m.keys.clear, m.keys.quit,
	}))
	return b.String()
}

func (m *Model) selected() (models.Task, bool) {
	item, ok := m.taskList.SelectedItem().(taskItem)
	if !ok {
		return models.Task{}, false
	}
	return item.task, true
}

// control applies fn to the selected task off the update loop.
func (m *Model) control(action string, fn func(int64) error) tea.Cmd {
	task, ok := m.selected()
	if !ok {
		return nil
	}
	return func() tea.Msg {
		if err := fn(task.ID); err != nil {
			return controlDoneMsg(action, err)
		}
		return controlDoneMsg(fmt.Sprintf("task #%d %s", task.ID, action), nil)
	}
}

func (m *Model) loadTasks() tea.Cmd {
	return func() tea.Msg {
		return tasksLoadedMsg(m.tasks.List())
	}
}

func (m *Model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		select {
		case task, ok := <-m.updates:
			if !ok {
				return streamClosedMsg()
			}
			return taskUpdatedMsg(task)
		case <-m.ctx.Done():
			return streamClosedMsg()
		}
	}
}
