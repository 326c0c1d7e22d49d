package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/avast/retry-go"
	jsoniter "github.com/json-iterator/go"

	"github.com/desertthunder/mpsync/internal/session"
	"github.com/desertthunder/mpsync/internal/shared"
)

// QRStatusCode is the state of a mass-send QR confirmation.
type QRStatusCode string

const (
	QRWaiting   QRStatusCode = "waiting"
	QRScanned   QRStatusCode = "scanned"
	QRConfirmed QRStatusCode = "confirmed"
	QRCancelled QRStatusCode = "cancelled"
	QRUnknown   QRStatusCode = "unknown"
	QRAborted   QRStatusCode = "aborted"
	QRTimeout   QRStatusCode = "timeout"
)

// QRTicketResult is a soft-failing ticket lookup. Error is set when Success is false.
type QRTicketResult struct {
	Success bool   `json:"success"`
	Ticket  string `json:"ticket,omitempty"`
	Error   string `json:"error,omitempty"`
}

// QRUUIDResult is a soft-failing uuid lookup.
type QRUUIDResult struct {
	Success bool   `json:"success"`
	UUID    string `json:"uuid,omitempty"`
	Error   string `json:"error,omitempty"`
}

// QRStatus is one status check.
type QRStatus struct {
	ErrCode    int          `json:"errcode"`
	Status     QRStatusCode `json:"status"`
	IsValidate bool         `json:"is_validate"`
	Message    string       `json:"msg"`
}

// QRPollResult is the final state of a poll.
type QRPollResult struct {
	Success    bool         `json:"success"`
	Status     QRStatusCode `json:"status"`
	IsValidate bool         `json:"is_validate"`
	Message    string       `json:"msg"`
}

// QRPollOptions configures [Gateway.PollQRStatus].
//
// MaxAttempts overrides the attempt budget derived from Timeout and Interval.
type QRPollOptions struct {
	UUID        string
	AppMsgID    string
	Timeout     time.Duration
	Interval    time.Duration
	MaxAttempts int
	RequestID   string
	OnStatus    func(QRStatus)
	Aborted     func() bool
}

func editPageReferer(base, appMsgID, token string) string {
	return fmt.Sprintf("%s/cgi-bin/appmsg?t=media/appmsg_edit&action=edit&reprint_confirm=0&timestamp=%d&type=77&appmsgid=%s&token=%s&lang=zh_CN",
		base, time.Now().UnixMilli(), url.QueryEscape(appMsgID), token)
}

func safeForm(token string, extra map[string]string) url.Values {
	v := form(token, extra)
	v.Set("fingerprint", shared.NewFingerprint())
	v.Set("random", randomString())
	return v
}

// GetQRTicket requests a safe-assistant ticket. Failures are reported in the result.
func (g *Gateway) GetQRTicket(ctx context.Context, accountID string) QRTicketResult {
	data, err := g.Do(ctx, Request{
		AccountID: accountID,
		Method:    http.MethodPost,
		Check:     NoCheck,
		URL: func(token string) string {
			return g.endpoint("/misc/safeassistant?1=1&token=" + token + "&lang=zh_CN")
		},
		Body: func(token string) url.Values {
			return safeForm(token, map[string]string{"action": "get_ticket"})
		},
	})
	if err != nil {
		g.logger.Warn("QR ticket request failed", "account", accountID, "error", err)
		return QRTicketResult{Error: err.Error()}
	}
	ticket := jsoniter.Get(data, "ticket").ToString()
	if ticket == "" {
		return QRTicketResult{Error: orDefault(jsoniter.Get(data, "errmsg").ToString(), "响应中没有 ticket 字段")}
	}
	return QRTicketResult{Success: true, Ticket: ticket}
}

// GetQRUUID exchanges a ticket for the uuid that identifies a QR code.
func (g *Gateway) GetQRUUID(ctx context.Context, accountID, ticket string) QRUUIDResult {
	data, err := g.Do(ctx, Request{
		AccountID: accountID,
		Method:    http.MethodPost,
		Check:     NoCheck,
		URL: func(token string) string {
			return g.endpoint("/safe/safeqrconnect?1=1&token=" + token + "&lang=zh_CN")
		},
		Body: func(token string) url.Values {
			return safeForm(token, map[string]string{
				"state":      "0",
				"login_type": "safe_center",
				"type":       "json",
				"ticket":     ticket,
			})
		},
	})
	if err != nil {
		g.logger.Warn("QR uuid request failed", "account", accountID, "error", err)
		return QRUUIDResult{Error: err.Error()}
	}
	uuid := jsoniter.Get(data, "uuid").ToString()
	if uuid == "" {
		return QRUUIDResult{Error: orDefault(jsoniter.Get(data, "errmsg").ToString(), "响应中没有 uuid 字段")}
	}
	return QRUUIDResult{Success: true, UUID: uuid}
}

// QRImageURL returns the address of the QR image for a ticket and uuid.
func (g *Gateway) QRImageURL(ticket, uuid, msgID string, hasNotify bool) string {
	u := g.endpoint("/safe/safeqrcode?ticket=" + url.QueryEscape(ticket) + "&uuid=" + url.QueryEscape(uuid) +
		"&action=check&service_type=1&type=msgs&msgid=" + url.QueryEscape(msgID))
	if !hasNotify {
		u += "&publish_type=1"
	}
	return u
}

// FetchQRImage downloads the QR image and returns it as a data URL.
func (g *Gateway) FetchQRImage(ctx context.Context, accountID, ticket, uuid, msgID string, hasNotify bool) (string, error) {
	creds, err := g.credentials(Request{AccountID: accountID})
	if err != nil {
		return "", err
	}
	resp, err := g.transport.Fetch(ctx, g.QRImageURL(ticket, uuid, msgID, hasNotify), FetchOptions{
		Method: http.MethodGet,
		Headers: map[string]string{
			"Referer":    editPageReferer(g.cfg.BaseURL, msgID, creds.Token),
			"Cookie":     session.CookiesToString(creds.Cookies),
			"User-Agent": g.cfg.UserAgent,
		},
	})
	if err != nil {
		return "", err
	}
	if !resp.OK {
		return "", fmt.Errorf("%w: 获取二维码失败: %d %s", shared.ErrRequestFailed, resp.Status, resp.StatusText)
	}
	mime := resp.Headers.Get("Content-Type")
	if mime == "" {
		mime = http.DetectContentType(resp.Data)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(resp.Data), nil
}

// CheckQRStatus reads the scan state of a QR code once.
func (g *Gateway) CheckQRStatus(ctx context.Context, accountID, uuid, appMsgID, requestID string) (*QRStatus, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	data, err := g.Do(ctx, Request{
		AccountID: accountID,
		RequestID: requestID,
		Method:    http.MethodPost,
		Check:     NoCheck,
		Referer: func(token string) string {
			return editPageReferer(g.cfg.BaseURL, appMsgID, token)
		},
		URL: func(token string) string {
			return g.endpoint("/safe/safeuuid?timespam=" + ts + "&token=" + token + "&lang=zh_CN")
		},
		Body: func(token string) url.Values {
			return safeForm(token, map[string]string{"uuid": uuid, "action": "json", "type": "json"})
		},
	})
	if err != nil {
		return nil, err
	}

	code := jsoniter.Get(data, "errcode").ToInt()
	st := &QRStatus{ErrCode: code}
	switch code {
	case 401:
		st.Status, st.Message = QRWaiting, "未扫码"
	case 404:
		st.Status, st.Message = QRScanned, "已扫码"
	case 405:
		st.Status, st.Message, st.IsValidate = QRConfirmed, "扫码并确认", true
	case 403:
		st.Status, st.Message = QRCancelled, "扫码并取消"
	default:
		st.Status, st.Message = QRUnknown, fmt.Sprintf("未知状态: %d", code)
	}
	return st, nil
}

var (
	errQRPending = errors.New("qr confirmation pending")
	errQRStopped = errors.New("qr poll stopped")
)

// PollQRStatus checks the QR state until it is confirmed or cancelled, the attempt
// budget runs out, or opts.Aborted reports true. Running out of attempts is a timeout
// result, not an error.
func (g *Gateway) PollQRStatus(ctx context.Context, accountID string, opts QRPollOptions) (QRPollResult, error) {
	timeout, interval := opts.Timeout, opts.Interval
	if timeout <= 0 {
		timeout = g.cfg.QRTimeout
	}
	if interval <= 0 {
		interval = g.cfg.QRInterval
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = int(math.Ceil(float64(timeout) / float64(interval)))
	}
	if attempts < 1 {
		attempts = 1
	}

	var (
		final *QRPollResult
		fatal error
	)
	poll := func() error {
		if opts.Aborted != nil && opts.Aborted() {
			final = &QRPollResult{Status: QRAborted, Message: "已取消"}
			return errQRStopped
		}
		st, err := g.CheckQRStatus(ctx, accountID, opts.UUID, opts.AppMsgID, opts.RequestID)
		if err != nil {
			fatal = err
			return err
		}
		if opts.OnStatus != nil {
			opts.OnStatus(*st)
		}
		switch st.Status {
		case QRConfirmed:
			final = &QRPollResult{Success: true, Status: QRConfirmed, IsValidate: true, Message: "验证成功"}
			return nil
		case QRCancelled:
			final = &QRPollResult{Status: QRCancelled, Message: "已取消验证"}
			return errQRStopped
		}
		return errQRPending
	}

	_ = retry.Do(poll,
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, errQRPending) }),
	)
	if final != nil {
		return *final, nil
	}
	if ctx.Err() != nil || IsAborted(fatal) {
		return QRPollResult{Status: QRAborted, Message: "已取消"}, nil
	}
	if fatal != nil {
		return QRPollResult{}, fatal
	}

	g.logger.Info("QR confirmation timed out", "account", accountID, "attempts", attempts)
	return QRPollResult{Status: QRTimeout, Message: "超时，请点击刷新重试"}, nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
