package services

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/desertthunder/mpsync/internal/shared"
)

// UserInfo identifies the account behind a session.
type UserInfo struct {
	NickName   string `json:"nick_name"`
	HeadImg    string `json:"head_img"`
	PlatformID string `json:"platform_id"`
}

// GetUserInfo reads the profile of the session in creds. It runs before an account
// exists, so it takes credentials instead of an account id.
func (g *Gateway) GetUserInfo(ctx context.Context, creds Credentials) (*UserInfo, error) {
	data, err := g.Do(ctx, Request{
		Credentials: &creds,
		URL: func(token string) string {
			return g.endpoint("/cgi-bin/safecenterstatus?action=protect&t=setting/safe-protect&token=" + token + "&lang=zh_CN&f=json")
		},
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		UserInfo *struct {
			NickName string `json:"nick_name"`
			HeadImg  string `json:"head_img"`
		} `json:"user_info"`
	}
	if err := jsonCodec.Unmarshal(data, &resp); err != nil || resp.UserInfo == nil {
		return nil, fmt.Errorf("%w: 获取用户信息失败", shared.ErrRequestFailed)
	}
	return &UserInfo{
		NickName:   resp.UserInfo.NickName,
		HeadImg:    resp.UserInfo.HeadImg,
		PlatformID: jsoniter.Get(data, "base_resp", "master_ticket_id").ToString(),
	}, nil
}
