package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/mpsync/internal/shared"
)

// DefaultUserAgent is sent with every platform request unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

// DefaultWhitelist lists the hosts the transport may contact. Subdomains are allowed.
var DefaultWhitelist = []string{
	"mp.weixin.qq.com",
	"api.weixin.qq.com",
	"weixin.qq.com",
	"mmbiz.qpic.cn",
	"mmbiz.qlogo.cn",
	"mmecoa.qpic.cn",
	"localhost",
	"127.0.0.1",
}

// FetchOptions configures a single request.
//
// A non-empty RequestID registers the request so that [Transport.Abort] can cancel it.
type FetchOptions struct {
	Method    string
	Headers   map[string]string
	Body      string
	RequestID string
}

// Response is the transport-level outcome of a request.
//
// Non-2xx statuses are returned as responses, not errors. An aborted request has Aborted set,
// status 0 and no data.
type Response struct {
	OK         bool
	Status     int
	StatusText string
	Headers    http.Header
	Data       []byte
	Aborted    bool
}

// Transport performs whitelisted HTTP requests that can be aborted by id.
type Transport interface {
	Fetch(ctx context.Context, rawURL string, opts FetchOptions) (*Response, error)
	Abort(requestID string) bool
}

// HTTPTransport implements [Transport] over net/http.
type HTTPTransport struct {
	client    *http.Client
	whitelist []string
	logger    *log.Logger

	mu      sync.Mutex
	pending map[string]context.CancelFunc
	// ids aborted before their request was registered, oldest first
	tombstones []string
}

const maxTombstones = 64

// NewHTTPTransport creates a transport. A nil client uses [http.DefaultClient] and an empty
// whitelist uses [DefaultWhitelist].
func NewHTTPTransport(client *http.Client, whitelist []string, logger *log.Logger) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	if len(whitelist) == 0 {
		whitelist = DefaultWhitelist
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &HTTPTransport{
		client:    client,
		whitelist: whitelist,
		logger:    logger,
		pending:   make(map[string]context.CancelFunc),
	}
}

// Allowed reports whether rawURL targets a whitelisted host or one of its subdomains.
func (t *HTTPTransport) Allowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, domain := range t.whitelist {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return u.Hostname()
	}
	return rawURL
}

// Fetch performs the request described by opts.
func (t *HTTPTransport) Fetch(ctx context.Context, rawURL string, opts FetchOptions) (*Response, error) {
	if !t.Allowed(rawURL) {
		return nil, fmt.Errorf("%w: %s", shared.ErrDomainNotAllowed, hostOf(rawURL))
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var aborted bool
	if opts.RequestID != "" {
		t.mu.Lock()
		if t.takeTombstone(opts.RequestID) {
			t.mu.Unlock()
			t.logger.Debug("Request aborted before it was sent", "request_id", opts.RequestID)
			return abortedResponse(), nil
		}
		t.pending[opts.RequestID] = func() {
			aborted = true
			cancel()
		}
		t.mu.Unlock()
		defer t.forget(opts.RequestID)
	}

	var body io.Reader
	if opts.Body != "" {
		body = strings.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if t.wasAborted(&aborted) {
			return abortedResponse(), nil
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if t.wasAborted(&aborted) {
			return abortedResponse(), nil
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		OK:         resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    resp.Header,
		Data:       data,
	}, nil
}

func (t *HTTPTransport) wasAborted(flag *bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *flag
}

func (t *HTTPTransport) forget(requestID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, requestID)
}

// Abort cancels the in-flight request registered under requestID.
// It returns false when no such request is pending. The id is then remembered, and a
// later Fetch under it returns an aborted response without contacting the remote.
func (t *HTTPTransport) Abort(requestID string) bool {
	if requestID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	cancel, ok := t.pending[requestID]
	if !ok {
		t.addTombstone(requestID)
		return false
	}
	delete(t.pending, requestID)
	cancel()
	t.logger.Debug("Aborted request", "request_id", requestID)
	return true
}

// addTombstone and takeTombstone expect t.mu to be held.
func (t *HTTPTransport) addTombstone(requestID string) {
	if len(t.tombstones) >= maxTombstones {
		t.tombstones = t.tombstones[1:]
	}
	t.tombstones = append(t.tombstones, requestID)
}

func (t *HTTPTransport) takeTombstone(requestID string) bool {
	for i, id := range t.tombstones {
		if id == requestID {
			t.tombstones = append(t.tombstones[:i], t.tombstones[i+1:]...)
			return true
		}
	}
	return false
}

func abortedResponse() *Response {
	return &Response{OK: false, Status: 0, StatusText: "Request Aborted", Aborted: true}
}

// IsAborted reports whether err marks a request cancelled by the user.
func IsAborted(err error) bool {
	return errors.Is(err, shared.ErrAborted)
}
