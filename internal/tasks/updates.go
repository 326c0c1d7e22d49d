package tasks

import (
	"fmt"

	"github.com/desertthunder/mpsync/internal/models"
)

// ProgressUpdate represents a progress event during a batch run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Items finished so far
	Total   int    // Item count
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Prepare Phase = iota
	DeleteDrafts
	SyncDrafts
	CheckMasssend
	PublishDrafts
	PollQRCode
	Finish
)

func (p Phase) String() string {
	switch p {
	case Prepare:
		return "prepare"
	case DeleteDrafts:
		return "delete"
	case SyncDrafts:
		return "sync"
	case CheckMasssend:
		return "check"
	case PublishDrafts:
		return "publish"
	case PollQRCode:
		return "qrcode"
	case Finish:
		return "finish"
	default:
		return ""
	}
}

// phaseFor maps a task type to the phase its items run in.
func phaseFor(t models.TaskType) Phase {
	switch t {
	case models.TaskTypeDelete:
		return DeleteDrafts
	case models.TaskTypeSync:
		return SyncDrafts
	case models.TaskTypeCheck:
		return CheckMasssend
	case models.TaskTypePublish:
		return PublishDrafts
	case models.TaskTypeQRCode:
		return PollQRCode
	default:
		return Prepare
	}
}

func prepareUpdate(total int, detail string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Prepare,
		Step:    0,
		Total:   total,
		Message: detail,
	}
}

func itemUpdate(phase Phase, step, total int, message string, item Item) ProgressUpdate {
	return ProgressUpdate{
		Phase:   phase,
		Step:    step,
		Total:   total,
		Message: message,
		Data:    item,
	}
}

func itemFailedUpdate(phase Phase, step, total int, message string, failed models.FailedItem) ProgressUpdate {
	return ProgressUpdate{
		Phase:   phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("%s: %s", message, failed.Error),
		Data:    failed,
	}
}

func finishedUpdate(result *models.BatchResult) ProgressUpdate {
	var message string
	switch {
	case result.Cancelled:
		message = fmt.Sprintf("已中止: 成功 %d, 失败 %d, 共 %d", result.SuccessCount, result.FailedCount, result.Total)
	default:
		message = fmt.Sprintf("完成: 成功 %d, 失败 %d, 共 %d", result.SuccessCount, result.FailedCount, result.Total)
	}
	return ProgressUpdate{
		Phase:   Finish,
		Step:    result.Processed(),
		Total:   result.Total,
		Message: message,
		Data:    *result,
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
