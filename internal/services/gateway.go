package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	jsoniter "github.com/json-iterator/go"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/session"
	"github.com/desertthunder/mpsync/internal/shared"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultBaseURL is the platform origin.
const DefaultBaseURL = "https://mp.weixin.qq.com"

// Credentials authenticate a platform request.
type Credentials struct {
	Token   string
	Cookies []models.Cookie
}

// CredentialResolver looks up the credentials of an account.
type CredentialResolver interface {
	Resolve(accountID string) (Credentials, error)
}

// ResponseCheck decides whether a successful HTTP response is also a business success.
type ResponseCheck func(data []byte) error

// CheckBaseResp accepts responses whose base_resp.ret is 0.
//
// The returned [BusinessError] has Code 0 when the response carried no result code at all.
func CheckBaseResp(data []byte) error {
	ret := jsoniter.Get(data, "base_resp", "ret")
	serverMsg := jsoniter.Get(data, "base_resp", "err_msg").ToString()
	switch ret.ValueType() {
	case jsoniter.NumberValue, jsoniter.StringValue:
		code := ret.ToInt()
		if code == 0 {
			return nil
		}
		return NewBusinessError(code, serverMsg)
	default:
		if serverMsg == "" {
			serverMsg = DefaultErrorMessage
		}
		return &BusinessError{Code: 0, Message: serverMsg}
	}
}

// NoCheck accepts every response. Endpoints that interpret their own codes use it.
func NoCheck([]byte) error { return nil }

// Request describes one authenticated platform call.
//
// URL and Body receive the resolved token, so endpoints that embed the token do not need to
// resolve it themselves. Either AccountID or Credentials must be set.
type Request struct {
	AccountID   string
	Credentials *Credentials
	Method      string
	URL         func(token string) string
	Body        func(token string) url.Values
	Headers     map[string]string
	Referer     func(token string) string
	Check       ResponseCheck
	RequestID   string
}

// GatewayConfig tunes a [Gateway].
type GatewayConfig struct {
	BaseURL           string
	UserAgent         string
	CopyrightAttempts int
	CopyrightInterval time.Duration
	QRTimeout         time.Duration
	QRInterval        time.Duration
}

// GatewayConfigFrom derives gateway settings from the application config.
func GatewayConfigFrom(cfg *shared.Config) GatewayConfig {
	return GatewayConfig{
		BaseURL:           cfg.Platform.BaseURL,
		UserAgent:         cfg.Platform.UserAgent,
		CopyrightAttempts: cfg.Polling.CopyrightAttempts,
		CopyrightInterval: shared.Millis(cfg.Polling.CopyrightIntervalMS),
		QRTimeout:         time.Duration(cfg.Polling.QRCodeTimeoutS) * time.Second,
		QRInterval:        shared.Millis(cfg.Polling.QRCodeIntervalMS),
	}
}

// Gateway is a typed client for the platform's authenticated endpoints.
type Gateway struct {
	transport Transport
	resolver  CredentialResolver
	cfg       GatewayConfig
	logger    *log.Logger
}

// NewGateway creates a Gateway. Zero values in cfg fall back to the platform defaults.
func NewGateway(transport Transport, resolver CredentialResolver, cfg GatewayConfig, logger *log.Logger) *Gateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.CopyrightAttempts <= 0 {
		cfg.CopyrightAttempts = 10
	}
	if cfg.CopyrightInterval <= 0 {
		cfg.CopyrightInterval = 1200 * time.Millisecond
	}
	if cfg.QRTimeout <= 0 {
		cfg.QRTimeout = 60 * time.Second
	}
	if cfg.QRInterval <= 0 {
		cfg.QRInterval = time.Second
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Gateway{transport: transport, resolver: resolver, cfg: cfg, logger: logger}
}

// Transport returns the transport requests are sent through.
func (g *Gateway) Transport() Transport { return g.transport }

func (g *Gateway) endpoint(path string) string { return g.cfg.BaseURL + path }

func (g *Gateway) credentials(req Request) (Credentials, error) {
	switch {
	case req.Credentials != nil:
		return *req.Credentials, nil
	case req.AccountID != "":
		if g.resolver == nil {
			return Credentials{}, fmt.Errorf("%w: no credential resolver", shared.ErrNotAuthenticated)
		}
		return g.resolver.Resolve(req.AccountID)
	default:
		return Credentials{}, fmt.Errorf("%w: account id or credentials required", shared.ErrMissingArgument)
	}
}

// Do sends req and returns the raw response body once both the transport and the
// response check accept it.
func (g *Gateway) Do(ctx context.Context, req Request) ([]byte, error) {
	creds, err := g.credentials(req)
	if err != nil {
		return nil, err
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	headers := map[string]string{
		"Referer":    g.cfg.BaseURL,
		"Cookie":     session.CookiesToString(creds.Cookies),
		"User-Agent": g.cfg.UserAgent,
	}
	if method == http.MethodPost {
		if _, ok := req.Headers["Content-Type"]; !ok {
			headers["Content-Type"] = "application/x-www-form-urlencoded;charset=UTF-8"
		}
	}
	for k, v := range req.Headers {
		headers[k] = v
	}
	if req.Referer != nil {
		headers["Referer"] = req.Referer(creds.Token)
	}

	var body string
	if req.Body != nil {
		body = req.Body(creds.Token).Encode()
	}

	target := req.URL(creds.Token)
	resp, err := g.transport.Fetch(ctx, target, FetchOptions{
		Method:    method,
		Headers:   headers,
		Body:      body,
		RequestID: req.RequestID,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		if resp.Aborted {
			return nil, fmt.Errorf("%w: 请求已中止", shared.ErrAborted)
		}
		return nil, fmt.Errorf("%w: API 请求失败: %d %s", shared.ErrRequestFailed, resp.Status, resp.StatusText)
	}

	check := req.Check
	if check == nil {
		check = CheckBaseResp
	}
	if err := check(resp.Data); err != nil {
		if code, ok := CodeOf(err); ok {
			g.logger.Warn("Platform returned an error", "code", code, "message", err.Error(), "url", redactToken(target))
		}
		return nil, err
	}
	return resp.Data, nil
}

// form builds the common token/lang/f/ajax body fields plus extra.
func form(token string, extra map[string]string) url.Values {
	v := url.Values{}
	v.Set("token", token)
	v.Set("lang", "zh_CN")
	v.Set("f", "json")
	v.Set("ajax", "1")
	for k, val := range extra {
		v.Set(k, val)
	}
	return v
}

func randomString() string {
	return strconv.FormatFloat(rand.Float64(), 'f', -1, 64)
}

func redactToken(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "***")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// FlexID decodes identifiers that the platform sends either as numbers or as strings.
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	a := jsoniter.Get(data)
	switch a.ValueType() {
	case jsoniter.NilValue, jsoniter.InvalidValue:
		*f = ""
	case jsoniter.NumberValue:
		*f = FlexID(strings.TrimSpace(string(data)))
	default:
		*f = FlexID(a.ToString())
	}
	return nil
}

func (f FlexID) String() string { return string(f) }

// firstID returns the first non-empty id found at the given top-level keys.
func firstID(data []byte, keys ...string) string {
	for _, k := range keys {
		a := jsoniter.Get(data, k)
		switch a.ValueType() {
		case jsoniter.NumberValue:
			if s := strings.TrimSpace(a.ToString()); s != "" && s != "0" {
				return s
			}
		case jsoniter.StringValue:
			if s := a.ToString(); s != "" {
				return s
			}
		}
	}
	return ""
}
