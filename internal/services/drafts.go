package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/desertthunder/mpsync/internal/shared"
)

// DraftOp selects the operate_appmsg sub-action.
type DraftOp string

const (
	DraftCreate DraftOp = "create"
	DraftUpdate DraftOp = "update"
)

// DraftQuery pages through the draft box.
type DraftQuery struct {
	Begin int
	Count int
	Query string
}

// DraftArticle is one article inside a draft.
type DraftArticle struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Digest string `json:"digest"`
	Cover  string `json:"cover"`
}

// DraftItem is one entry of the draft box.
type DraftItem struct {
	AppID      FlexID         `json:"app_id"`
	UpdateTime int64          `json:"update_time"`
	MultiItem  []DraftArticle `json:"multi_item"`
}

// Title returns the title of the first article, if any.
func (d DraftItem) Title() string {
	if len(d.MultiItem) == 0 {
		return ""
	}
	return d.MultiItem[0].Title
}

// Updated returns UpdateTime as a [time.Time].
func (d DraftItem) Updated() time.Time { return time.Unix(d.UpdateTime, 0) }

// DraftList is a page of the draft box.
type DraftList struct {
	Items []DraftItem `json:"items"`
	Total int         `json:"total"`
}

// DraftDetail carries the decoded app_msg_info of one draft.
type DraftDetail struct {
	AppMsgID   string
	AppMsgInfo []byte
}

// Title returns the title of the first article in the draft.
func (d DraftDetail) Title() string {
	a := jsoniter.Get(d.AppMsgInfo, "item", 0, "multi_item", 0, "title")
	if a.ValueType() == jsoniter.StringValue {
		return a.ToString()
	}
	return jsoniter.Get(d.AppMsgInfo, "item", 0, "title").ToString()
}

// ListDrafts returns one page of drafts for the account.
func (g *Gateway) ListDrafts(ctx context.Context, accountID string, q DraftQuery) (*DraftList, error) {
	if q.Count <= 0 {
		q.Count = 10
	}
	data, err := g.Do(ctx, Request{
		AccountID: accountID,
		URL: func(token string) string {
			v := url.Values{}
			v.Set("begin", strconv.Itoa(q.Begin))
			v.Set("count", strconv.Itoa(q.Count))
			v.Set("type", "77")
			v.Set("action", "list_card")
			v.Set("token", token)
			v.Set("lang", "zh_CN")
			v.Set("f", "json")
			v.Set("query", q.Query)
			return g.endpoint("/cgi-bin/appmsg?" + v.Encode())
		},
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		AppMsgInfo struct {
			Item    []DraftItem `json:"item"`
			FileCnt struct {
				DraftCount int `json:"draft_count"`
			} `json:"file_cnt"`
		} `json:"app_msg_info"`
	}
	if err := jsonCodec.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: draft list: %v", shared.ErrRequestFailed, err)
	}

	list := &DraftList{Items: resp.AppMsgInfo.Item, Total: resp.AppMsgInfo.FileCnt.DraftCount}
	if list.Items == nil {
		list.Items = []DraftItem{}
	}
	return list, nil
}

// GetDraft fetches the edit-page payload of a draft.
func (g *Gateway) GetDraft(ctx context.Context, accountID, appMsgID, requestID string) (*DraftDetail, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	data, err := g.Do(ctx, Request{
		AccountID: accountID,
		RequestID: requestID,
		URL: func(token string) string {
			return g.endpoint("/cgi-bin/appmsg?t=media/appmsg_edit&action=edit&type=77&appmsgid=" + url.QueryEscape(appMsgID) +
				"&isMul=1&replaceScene=0&isSend=0&isFreePublish=0&token=" + token + "&lang=zh_CN&timestamp=" + ts + "&f=json")
		},
	})
	if err != nil {
		return nil, err
	}

	raw := jsoniter.Get(data, "app_msg_info")
	var info []byte
	switch raw.ValueType() {
	case jsoniter.StringValue, jsoniter.ObjectValue:
		info = []byte(raw.ToString())
	default:
		return nil, fmt.Errorf("%w: draft %s has no app_msg_info", shared.ErrRequestFailed, appMsgID)
	}
	if !jsonCodec.Valid(info) {
		return nil, fmt.Errorf("%w: draft %s has malformed app_msg_info", shared.ErrRequestFailed, appMsgID)
	}
	return &DraftDetail{AppMsgID: appMsgID, AppMsgInfo: info}, nil
}

// DeleteDraft removes a draft and returns the id the platform reports back.
func (g *Gateway) DeleteDraft(ctx context.Context, accountID, appMsgID, requestID string) (string, error) {
	data, err := g.Do(ctx, Request{
		AccountID: accountID,
		RequestID: requestID,
		Method:    http.MethodPost,
		URL: func(string) string {
			return g.endpoint("/cgi-bin/operate_appmsg?sub=del&t=ajax-response")
		},
		Body: func(token string) url.Values {
			return form(token, map[string]string{"AppMsgId": appMsgID})
		},
	})
	if err != nil {
		return "", err
	}
	if id := firstID(data, "appMsgId"); id != "" {
		return id, nil
	}
	return appMsgID, nil
}

// OperateDraft creates or updates a draft from form params and returns its appmsgid.
func (g *Gateway) OperateDraft(ctx context.Context, accountID string, op DraftOp, params url.Values, requestID string) (string, error) {
	if op != DraftCreate && op != DraftUpdate {
		return "", fmt.Errorf("%w: draft operation %q", shared.ErrInvalidArgument, op)
	}
	data, err := g.Do(ctx, Request{
		AccountID: accountID,
		RequestID: requestID,
		Method:    http.MethodPost,
		URL: func(token string) string {
			return g.endpoint("/cgi-bin/operate_appmsg?t=ajax-response&sub=" + string(op) + "&type=77&token=" + token + "&lang=zh_CN")
		},
		Body: func(token string) url.Values {
			body := form(token, nil)
			for k, vs := range params {
				switch k {
				case "token", "lang", "f", "ajax":
					continue
				}
				body[k] = vs
			}
			return body
		},
	})
	if err != nil {
		return "", err
	}
	return firstID(data, "appMsgId", "appmsgid"), nil
}

// Notifications is one page of system notifications.
type Notifications struct {
	Raw []byte
}

// ListNotifications reads the account's system notifications.
func (g *Gateway) ListNotifications(ctx context.Context, accountID string, begin, count, status int) (*Notifications, error) {
	if count <= 0 {
		count = 1
	}
	data, err := g.Do(ctx, Request{
		AccountID: accountID,
		Method:    http.MethodPost,
		URL:       func(string) string { return g.endpoint("/cgi-bin/sysnotify") },
		Body: func(token string) url.Values {
			return form(token, map[string]string{
				"random": randomString(),
				"begin":  strconv.Itoa(begin),
				"count":  strconv.Itoa(count),
				"status": strconv.Itoa(status),
			})
		},
	})
	if err != nil {
		return nil, err
	}
	return &Notifications{Raw: data}, nil
}
