package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/services"
	"github.com/desertthunder/mpsync/internal/shared"
)

// RunQRPoll waits for the QR confirmation of a mass send as a single-item task, so the
// wait can be paused or cancelled from the task list. Pausing stops the polling and
// resuming starts a fresh poll. A confirmed scan stores the uuid on target's decisions
// when target is non-nil.
func (b *Batcher) RunQRPoll(ctx context.Context, accountID, uuid, appMsgID string, target *PublishTarget, opts Options) (services.QRPollResult, *models.BatchResult, error) {
	var final services.QRPollResult
	label := accountID
	if target != nil {
		label = target.Name
	}
	registry := b.runner.Registry()

	result, err := b.runner.Run(ctx, Job{
		Name:     opts.name("扫码验证"),
		Type:     models.TaskTypeQRCode,
		Detail:   "等待扫码...",
		Items:    []Item{{Key: accountID, Label: label}},
		Progress: opts.Progress,
		Do: func(ctx context.Context, _ Item, step Step) error {
			res, err := b.platform.PollQRStatus(ctx, accountID, services.QRPollOptions{
				UUID:      uuid,
				AppMsgID:  appMsgID,
				Timeout:   b.qr.Timeout,
				Interval:  b.qr.Interval,
				RequestID: step.RequestID,
				Aborted: func() bool {
					return registry.IsCancelled(step.TaskID) || registry.IsPaused(step.TaskID)
				},
				OnStatus: func(st services.QRStatus) {
					_ = registry.Update(step.TaskID, 0, st.Message)
				},
			})
			if err != nil {
				return err
			}
			final = res
			switch {
			case res.Success:
				if target != nil {
					target.Decisions.QRCodeValidated = true
					target.Decisions.QRCodeUUID = uuid
				}
				return nil
			case res.Status == services.QRAborted:
				return fmt.Errorf("%w: %s", shared.ErrAborted, res.Message)
			default:
				return errors.New(res.Message)
			}
		},
		Running: func(it Item) string { return "等待《" + it.Label + "》扫码确认" },
		Done:    func(it Item) string { return "《" + it.Label + "》验证成功" },
		Failed:  func(it Item) string { return "《" + it.Label + "》验证失败" },
		Summary: func(r *models.BatchResult) string {
			if len(r.FailedItems) > 0 {
				return r.FailedItems[0].Error
			}
			return "验证失败"
		},
	})
	return final, result, err
}
