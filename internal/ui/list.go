package ui

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/mpsync/internal/models"
)

var _ list.Item = taskItem{}

// taskItem wraps [models.Task] to implement [list.Item].
type taskItem struct {
	task models.Task
}

func (i taskItem) FilterValue() string { return i.task.Name }
func (i taskItem) Title() string {
	return fmt.Sprintf("#%d %s  %s", i.task.ID, i.task.Name, styles.Status(i.task.Status).Render(string(i.task.Status)))
}
func (i taskItem) Description() string {
	desc := fmt.Sprintf("%d/%d (%d%%)", i.task.Current, i.task.Total, i.task.Progress)
	switch {
	case i.task.Error != "":
		desc = fmt.Sprintf("%s • %s", desc, i.task.Error)
	case i.task.Detail != "":
		desc = fmt.Sprintf("%s • %s", desc, i.task.Detail)
	}
	return desc
}

// upsertItem replaces the item with the same task id, or appends it.
// A removed task is dropped instead.
func upsertItem(items []list.Item, task models.Task) []list.Item {
	for i, it := range items {
		if it.(taskItem).task.ID == task.ID {
			if task.Removed {
				return slices.Concat(items[:i], items[i+1:])
			}
			items[i] = taskItem{task: task}
			return items
		}
	}
	if task.Removed {
		return items
	}
	return append(items, taskItem{task: task})
}
