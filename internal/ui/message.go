package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/mpsync/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgTasksLoaded MsgKind = iota
	MsgTaskUpdated
	MsgStreamClosed
	MsgControlDone
)

// tasksLoadedMsg is the constructor for [MsgTasksLoaded]
func tasksLoadedMsg(tasks []models.Task) Msg {
	return Msg{kind: MsgTasksLoaded, data: tasks}
}

// taskUpdatedMsg is the constructor for [MsgTaskUpdated]
func taskUpdatedMsg(task models.Task) Msg {
	return Msg{kind: MsgTaskUpdated, data: task}
}

// streamClosedMsg is the constructor for [MsgStreamClosed]
func streamClosedMsg() Msg {
	return Msg{kind: MsgStreamClosed}
}

// controlDoneMsg is the constructor for [MsgControlDone]
func controlDoneMsg(action string, err error) Msg {
	return Msg{
		kind: MsgControlDone,
		data: struct {
			action string
			err    error
		}{action, err},
	}
}
