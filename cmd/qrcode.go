package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/services"
	"github.com/desertthunder/mpsync/internal/shared"
	"github.com/desertthunder/mpsync/internal/tasks"
)

const qrImageDir = "./tmp"

// QRCodeLogin runs the scan confirmation a protected account needs before mass sending
// the draft --appmsgid.
func (r *Runner) QRCodeLogin(ctx context.Context, cmd *cli.Command) error {
	account, err := r.accounts.Get(cmd.String("account"))
	if err != nil {
		return err
	}
	appMsgID := cmd.String("appmsgid")

	var res services.QRPollResult
	result, err := r.runBatch(ctx, cmd, func(ctx context.Context, opts tasks.Options) (*models.BatchResult, error) {
		var batch *models.BatchResult
		var err error
		res, batch, err = r.confirmQRCode(ctx, account.ID(), appMsgID, cmd.Bool("notify"), !cmd.Bool("no-open"), nil, opts)
		return batch, err
	})
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(res, true)
	}
	if err := r.writeResult(cmd, "扫码验证", result); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%w: %s", shared.ErrNotAuthenticated, res.Message)
	}
	return nil
}

// confirmQRCode requests a QR code for accountID, saves and optionally opens its image,
// then waits for the scan as a tracked task.
func (r *Runner) confirmQRCode(ctx context.Context, accountID, appMsgID string, hasNotify, open bool, target *tasks.PublishTarget, opts tasks.Options) (services.QRPollResult, *models.BatchResult, error) {
	ticket := r.gateway.GetQRTicket(ctx, accountID)
	if !ticket.Success {
		return services.QRPollResult{}, nil, fmt.Errorf("%w: %s", shared.ErrRequestFailed, ticket.Error)
	}
	uuid := r.gateway.GetQRUUID(ctx, accountID, ticket.Ticket)
	if !uuid.Success {
		return services.QRPollResult{}, nil, fmt.Errorf("%w: %s", shared.ErrRequestFailed, uuid.Error)
	}

	dataURL, err := r.gateway.FetchQRImage(ctx, accountID, ticket.Ticket, uuid.UUID, appMsgID, hasNotify)
	if err != nil {
		r.logger.Warn("failed to download QR image", "account", accountID, "error", err)
		r.writePlain("Scan: %s\n", r.gateway.QRImageURL(ticket.Ticket, uuid.UUID, appMsgID, hasNotify))
	} else {
		path, err := saveDataURL(dataURL, filepath.Join(qrImageDir, "qrcode-"+accountID))
		if err != nil {
			return services.QRPollResult{}, nil, err
		}
		r.writePlain("QR code saved to %s\n", path)
		if open {
			if err := shared.OpenBrowser(path); err != nil {
				r.logger.Warn("failed to open QR image", "path", path, "error", err)
			}
		}
	}

	return r.batcher.RunQRPoll(ctx, accountID, uuid.UUID, appMsgID, target, opts)
}

// saveDataURL decodes a base64 data URL into base plus an extension matching its type.
func saveDataURL(dataURL, base string) (string, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(dataURL, "data:"), ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return "", fmt.Errorf("%w: not a base64 data url", shared.ErrInvalidInput)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	ext := ".png"
	switch strings.TrimSuffix(meta, ";base64") {
	case "image/jpeg":
		ext = ".jpg"
	case "image/gif":
		ext = ".gif"
	}
	path := base + ext
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
