// package services defines the platform client used by batch tasks
//
// WeChat MP (via browser session), remote account store
package services

import (
	"context"
	"net/url"
)

// Platform is the set of platform operations batch tasks depend on. [Gateway] implements it.
type Platform interface {
	// ListDrafts returns one page of an account's draft box.
	ListDrafts(ctx context.Context, accountID string, q DraftQuery) (*DraftList, error)

	// GetDraft fetches a draft's full content.
	GetDraft(ctx context.Context, accountID, appMsgID, requestID string) (*DraftDetail, error)

	// DeleteDraft removes a draft.
	DeleteDraft(ctx context.Context, accountID, appMsgID, requestID string) (string, error)

	// OperateDraft creates or updates a draft and returns its id.
	OperateDraft(ctx context.Context, accountID string, op DraftOp, params url.Values, requestID string) (string, error)

	// GetMasssendInfo reads quota and protection state for publishing a draft.
	GetMasssendInfo(ctx context.Context, accountID, appMsgID, requestID string) (*MasssendInfo, error)

	// CheckCopyright runs the originality check, polling while it is pending.
	CheckCopyright(ctx context.Context, accountID, appMsgID, requestID string, onProgress func(CopyrightProgress)) (*CopyrightResult, error)

	// Publish sends a draft out.
	Publish(ctx context.Context, accountID string, p PublishParams, requestID string) (*PublishResult, error)

	// PollQRStatus waits for a QR confirmation.
	PollQRStatus(ctx context.Context, accountID string, opts QRPollOptions) (QRPollResult, error)

	// Transport returns the transport requests go through, so callers can abort them by id.
	Transport() Transport
}

var _ Platform = (*Gateway)(nil)
