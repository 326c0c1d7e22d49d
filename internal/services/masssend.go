package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/avast/retry-go"
	jsoniter "github.com/json-iterator/go"
)

// Copyright check result codes.
const (
	CodeCopyrightPending  = 154011
	CodeCopyrightHit      = 154008
	CodeCopyrightNotFound = 154009
)

// Region lookups answer this code when a region has no children.
const CodeNoSubRegions = 1000000

const quotaTypeMassSendNormal = "kQuotaTypeMassSendNormal"

// protectStatusNoScan lists protect_status values that do not require a QR confirmation.
var protectStatusNoScan = []int{0, 1, 4, 5, 8, 9, 12, 13}

// MasssendInfo summarizes the mass-send page of a draft.
type MasssendInfo struct {
	QuotaItems     []json.RawMessage `json:"quota_items"`
	ContactGroups  []json.RawMessage `json:"contact_groups"`
	NeedScanQRCode bool              `json:"need_scan_qrcode"`
	OperationSeq   string            `json:"operation_seq"`
}

// GetMasssendInfo reads quota, audience groups and the protection status for a draft.
func (g *Gateway) GetMasssendInfo(ctx context.Context, accountID, appMsgID, requestID string) (*MasssendInfo, error) {
	data, err := g.Do(ctx, Request{
		AccountID: accountID,
		RequestID: requestID,
		URL: func(token string) string {
			return g.endpoint("/cgi-bin/masssendpage?f=json&preview_appmsgid=" + url.QueryEscape(appMsgID) + "&token=" + token + "&lang=zh_CN&ajax=1")
		},
	})
	if err != nil {
		return nil, err
	}
	return g.parseMasssendInfo(data), nil
}

func (g *Gateway) parseMasssendInfo(data []byte) *MasssendInfo {
	info := &MasssendInfo{
		QuotaItems:     []json.RawMessage{},
		ContactGroups:  []json.RawMessage{},
		NeedScanQRCode: true,
		OperationSeq:   firstID(data, "operation_seq"),
	}

	var quotas []struct {
		QuotaType string            `json:"quota_type"`
		Items     []json.RawMessage `json:"quota_item_list"`
	}
	if err := jsonCodec.Unmarshal([]byte(jsoniter.Get(data, "quota_detail_list").ToString()), &quotas); err == nil {
		for _, q := range quotas {
			if q.QuotaType == quotaTypeMassSendNormal {
				if q.Items != nil {
					info.QuotaItems = q.Items
				}
				break
			}
		}
	}

	if groups := jsoniter.Get(data, "contact_group_list").ToString(); groups != "" {
		var parsed struct {
			GroupInfoList []json.RawMessage `json:"group_info_list"`
		}
		if err := jsonCodec.Unmarshal([]byte(groups), &parsed); err != nil {
			g.logger.Warn("Could not parse contact groups", "error", err)
		} else if parsed.GroupInfoList != nil {
			info.ContactGroups = parsed.GroupInfoList
		}
	}

	if strategy := jsoniter.Get(data, "strategy_info").ToString(); strategy != "" {
		status := jsoniter.Get([]byte(strategy), "protect_status")
		switch {
		case status.ValueType() == jsoniter.NumberValue:
			info.NeedScanQRCode = !slices.Contains(protectStatusNoScan, status.ToInt())
		case !jsonCodec.Valid([]byte(strategy)):
			g.logger.Warn("Could not parse mass-send strategy", "strategy", strategy)
		}
	}
	return info
}

// Regions lists the children of a region.
type Regions struct {
	HasChildren bool              `json:"has_children"`
	Regions     []json.RawMessage `json:"regions"`
	Total       int               `json:"total"`
}

// GetRegions lists sub-regions of regionID; 0 lists countries.
// A region without children is an empty result, not an error.
func (g *Gateway) GetRegions(ctx context.Context, accountID string, regionID int) (*Regions, error) {
	data, err := g.Do(ctx, Request{
		AccountID: accountID,
		Check:     NoCheck,
		URL: func(string) string {
			return g.endpoint("/cgi-bin/getregions?t=setting/ajax-getregions&id=" + strconv.Itoa(regionID) + "&lang=zh_CN&f=json&ajax=1")
		},
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		BaseResp struct {
			Ret *int `json:"ret"`
		} `json:"base_resp"`
		Data []json.RawMessage `json:"data"`
		Num  int               `json:"num"`
	}
	if err := jsonCodec.Unmarshal(data, &resp); err != nil {
		return nil, err
	}

	r := &Regions{Regions: resp.Data, Total: resp.Num}
	if r.Regions == nil {
		r.Regions = []json.RawMessage{}
	}
	r.HasChildren = resp.BaseResp.Ret != nil && *resp.BaseResp.Ret == 0 && len(resp.Data) > 0
	return r, nil
}

// CopyrightResult is the outcome of an originality check.
//
// Copyright is 1 when the draft matched original content elsewhere. ListRaw must then be
// passed back unchanged when publishing from the source account.
type CopyrightResult struct {
	Copyright int               `json:"copyright"`
	List      []json.RawMessage `json:"list"`
	ListRaw   string            `json:"list_raw"`
	Message   string            `json:"message"`
}

// CopyrightProgress reports a pending check.
type CopyrightProgress struct {
	Retry      int
	MaxRetries int
}

var errCopyrightPending = errors.New("copyright check pending")

// CheckCopyright runs the originality check for a draft, polling while the platform
// reports the check as in progress.
func (g *Gateway) CheckCopyright(ctx context.Context, accountID, appMsgID, requestID string, onProgress func(CopyrightProgress)) (*CopyrightResult, error) {
	var (
		last    []byte
		code    int
		attempt uint
		fatal   error
	)

	check := func() error {
		data, err := g.Do(ctx, Request{
			AccountID: accountID,
			RequestID: requestID,
			Method:    http.MethodPost,
			Check:     NoCheck,
			URL: func(token string) string {
				return g.endpoint("/cgi-bin/masssend?action=get_appmsg_copyright_stat&token=" + token + "&lang=zh_CN")
			},
			Body: func(token string) url.Values {
				first := "0"
				if attempt == 0 {
					first = "1"
				}
				return form(token, map[string]string{"first_check": first, "type": "10", "appmsgid": appMsgID})
			},
		})
		attempt++
		if err != nil {
			fatal = err
			return err
		}
		last = data
		code = jsoniter.Get(data, "base_resp", "ret").ToInt()
		if code == CodeCopyrightPending {
			return errCopyrightPending
		}
		return nil
	}

	maxRetries := g.cfg.CopyrightAttempts
	_ = retry.Do(check,
		retry.Context(ctx),
		retry.Attempts(uint(maxRetries)+1),
		retry.Delay(g.cfg.CopyrightInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, errCopyrightPending) }),
		retry.OnRetry(func(n uint, _ error) {
			if onProgress != nil {
				onProgress(CopyrightProgress{Retry: int(n) + 1, MaxRetries: maxRetries})
			}
		}),
	)
	if fatal != nil {
		return nil, fatal
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch code {
	case CodeCopyrightHit:
		listRaw := jsoniter.Get(last, "list").ToString()
		result := &CopyrightResult{Copyright: 1, List: []json.RawMessage{}, ListRaw: listRaw, Message: "命中原创，需要处理"}
		if listRaw != "" {
			var parsed struct {
				List []json.RawMessage `json:"list"`
			}
			if err := jsonCodec.Unmarshal([]byte(listRaw), &parsed); err != nil {
				g.logger.Warn("Could not parse copyright list", "account", accountID, "error", err)
			} else if parsed.List != nil {
				result.List = parsed.List
			}
		}
		return result, nil
	case CodeCopyrightNotFound:
		return &CopyrightResult{Copyright: 0, List: []json.RawMessage{}, Message: "未命中原创，可直接发表"}, nil
	default:
		return nil, &BusinessError{Code: code, Message: fmt.Sprintf("原创检测失败，错误码: %d", code)}
	}
}

// ReprintItem is one entry of reprint_info.item_list.
type ReprintItem struct {
	Idx         int    `json:"idx"`
	ReprintType string `json:"reprint_type"`
	GuideWords  string `json:"guide_words"`
}

// ReprintInfo is sent when a draft matched original content.
type ReprintInfo struct {
	ItemList []ReprintItem `json:"item_list"`
}

// PublishParams configures one publish call.
type PublishParams struct {
	AppMsgID        string
	SendTime        int64
	HasNotify       bool
	IsFreePublish   bool
	OperationSeq    string
	ListRaw         string
	ReprintInfo     *ReprintInfo
	AppmsgItemCount int
	Code            string
	GroupID         int
	Sex             int
	Country         string
	Province        string
	City            string
}

// DefaultPublishParams returns params for an immediate notified publish to everyone.
func DefaultPublishParams(appMsgID string) PublishParams {
	return PublishParams{AppMsgID: appMsgID, HasNotify: true, AppmsgItemCount: 1, GroupID: -1, Sex: -1}
}

// PublishURL returns the masssend endpoint variant for p.
func (p PublishParams) PublishURL(base, token string) string {
	u := base + "/cgi-bin/masssend?t=ajax-response&token=" + token + "&lang=zh_CN"
	switch {
	case p.SendTime > 0 && p.HasNotify:
		u += "&action=time_send"
	case !p.HasNotify:
		u += "&is_release_publish_page=1"
	default:
		u += "&is_release_publish_page=0"
	}
	return u
}

// Form returns the publish form body.
func (p PublishParams) Form(token string, now time.Time) (url.Values, error) {
	reprint := p.ReprintInfo
	if reprint == nil {
		reprint = &ReprintInfo{ItemList: []ReprintItem{}}
	}
	if reprint.ItemList == nil {
		reprint.ItemList = []ReprintItem{}
	}
	reprintJSON, err := jsonCodec.Marshal(reprint)
	if err != nil {
		return nil, err
	}

	count := p.AppmsgItemCount
	if count <= 0 {
		count = 1
	}
	isMulti := "0"
	if count > 1 {
		isMulti = "1"
	}

	v := form(token, map[string]string{
		"random":          randomString(),
		"ack":             "",
		"code":            p.Code,
		"reprint_info":    string(reprintJSON),
		"reprint_confirm": "1",
		"list":            p.ListRaw,
		"send_time":       strconv.FormatInt(p.SendTime, 10),
		"type":            "10",
		"share_page":      "1",
		"synctxweibo":     "0",
		"operation_seq":   p.OperationSeq,
		"req_time":        strconv.FormatInt(now.UnixMilli(), 10),
		"sync_version":    "1",
		"isFreePublish":   strconv.FormatBool(p.IsFreePublish),
		"appmsgid":        p.AppMsgID,
		"isMulti":         isMulti,
	})
	if p.GroupID != -1 {
		v.Set("groupid", strconv.Itoa(p.GroupID))
	}
	if p.Sex != -1 {
		v.Set("sex", strconv.Itoa(p.Sex))
	}
	if p.Country != "" {
		v.Set("country", p.Country)
	}
	if p.Province != "" {
		v.Set("province", p.Province)
	}
	if p.City != "" {
		v.Set("city", p.City)
	}
	return v, nil
}

// PublishResult is the platform's answer to a publish call.
type PublishResult struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

// Publish sends a draft out, immediately or at p.SendTime.
func (g *Gateway) Publish(ctx context.Context, accountID string, p PublishParams, requestID string) (*PublishResult, error) {
	var formErr error
	data, err := g.Do(ctx, Request{
		AccountID: accountID,
		RequestID: requestID,
		Method:    http.MethodPost,
		URL:       func(token string) string { return p.PublishURL(g.cfg.BaseURL, token) },
		Body: func(token string) url.Values {
			v, err := p.Form(token, time.Now())
			formErr = err
			return v
		},
	})
	if formErr != nil {
		return nil, formErr
	}
	if err != nil {
		return nil, err
	}

	code := jsoniter.Get(data, "base_resp", "ret").ToInt()
	return &PublishResult{
		Success: code == 0,
		Code:    code,
		Message: jsoniter.Get(data, "base_resp", "err_msg").ToString(),
	}, nil
}
