package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/mpsync/internal/models"
)

// DraftRef names a draft to act on.
type DraftRef struct {
	AppMsgID string `json:"app_id"`
	Title    string `json:"title"`
}

// DraftRefsFromIDs wraps bare ids with a placeholder title.
func DraftRefsFromIDs(ids []string) []DraftRef {
	refs := make([]DraftRef, len(ids))
	for i, id := range ids {
		refs[i] = DraftRef{AppMsgID: id, Title: "草稿"}
	}
	return refs
}

// RunDeleteBatch deletes drafts from one account.
func (b *Batcher) RunDeleteBatch(ctx context.Context, accountID string, drafts []DraftRef, opts Options) (*models.BatchResult, error) {
	items := make([]Item, len(drafts))
	for i, d := range drafts {
		title := d.Title
		if title == "" {
			title = "无标题"
		}
		items[i] = Item{Key: d.AppMsgID, Label: title}
	}

	return b.runner.Run(ctx, Job{
		Name:     opts.name("批量删除草稿"),
		Type:     models.TaskTypeDelete,
		Detail:   "准备删除草稿...",
		Items:    items,
		Delay:    opts.delay(b.delays.Delete),
		Progress: opts.Progress,
		Do: func(ctx context.Context, item Item, step Step) error {
			_, err := b.platform.DeleteDraft(ctx, accountID, item.Key, step.RequestID)
			return err
		},
		Running: func(it Item) string { return fmt.Sprintf("正在删除《%s》", it.Label) },
		Done:    func(it Item) string { return fmt.Sprintf("已删除《%s》", it.Label) },
		Failed:  func(it Item) string { return fmt.Sprintf("删除《%s》失败", it.Label) },
		Summary: func(r *models.BatchResult) string {
			return fmt.Sprintf("删除失败 %d/%d", r.FailedCount, r.Total)
		},
	})
}
