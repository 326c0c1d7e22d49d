package server

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-resty/resty/v2"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/shared"
)

// Client controls the tasks of a remote mpsync server. It satisfies the same task
// control surface as the in-process registry, so the monitor can attach to either.
type Client struct {
	ctx    context.Context
	client *resty.Client
	events *resty.Client
	logger *log.Logger
}

// NewClient creates a client for the server at baseURL. Requests and streams end with ctx.
func NewClient(ctx context.Context, baseURL string, logger *log.Logger) *Client {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	baseURL = strings.TrimRight(baseURL, "/")
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetHeader("Accept", "application/json")
	// The event stream stays open, so it gets a client without a timeout.
	events := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "text/event-stream")
	return &Client{ctx: ctx, client: client, events: events, logger: logger}
}

func (c *Client) request(method, path string, result any) error {
	var e errorBody
	req := c.client.R().SetContext(c.ctx).SetError(&e)
	if result != nil {
		req.SetResult(result)
	}
	res, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	if !res.IsError() {
		return nil
	}
	switch res.StatusCode() {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", shared.ErrTaskNotFound, e.Error)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", shared.ErrInvalidTransition, e.Error)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", shared.ErrInvalidArgument, e.Error)
	default:
		return fmt.Errorf("%w: %s %s", shared.ErrRequestFailed, res.Status(), e.Error)
	}
}

// List returns the remote task list. Failures are logged and yield nil.
func (c *Client) List() []models.Task {
	var tasks []models.Task
	if err := c.request(http.MethodGet, "/tasks", &tasks); err != nil {
		c.logger.Warn("Failed to list remote tasks", "error", err)
		return nil
	}
	return tasks
}

// Get returns one remote task.
func (c *Client) Get(id int64) (models.Task, error) {
	var task models.Task
	err := c.request(http.MethodGet, taskPath(id, ""), &task)
	return task, err
}

func (c *Client) Pause(id int64) error {
	return c.request(http.MethodPost, taskPath(id, "pause"), nil)
}

func (c *Client) Resume(id int64) error {
	return c.request(http.MethodPost, taskPath(id, "resume"), nil)
}

func (c *Client) Cancel(id int64) error {
	return c.request(http.MethodPost, taskPath(id, "cancel"), nil)
}

func (c *Client) Remove(id int64) error {
	return c.request(http.MethodDelete, taskPath(id, ""), nil)
}

// ClearCompleted removes finished remote tasks and returns how many went.
func (c *Client) ClearCompleted() int {
	var body struct {
		Removed int `json:"removed"`
	}
	if err := c.request(http.MethodPost, "/tasks/clear", &body); err != nil {
		c.logger.Warn("Failed to clear remote tasks", "error", err)
		return 0
	}
	return body.Removed
}

// Subscribe follows the remote event stream. The channel closes when the stream ends or
// the returned func is called. Events that do not fit the buffer are dropped.
func (c *Client) Subscribe(buffer int) (<-chan models.Task, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ctx, cancel := context.WithCancel(c.ctx)
	out := make(chan models.Task, buffer)

	go func() {
		defer close(out)
		if err := c.stream(ctx, out); err != nil && ctx.Err() == nil {
			c.logger.Warn("Task stream ended", "error", err)
		}
	}()

	var once sync.Once
	return out, func() { once.Do(cancel) }
}

func (c *Client) stream(ctx context.Context, out chan<- models.Task) error {
	res, err := c.events.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get("/tasks/events")
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	body := res.RawBody()
	defer body.Close()
	if res.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w: %s", shared.ErrRequestFailed, res.Status())
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var task models.Task
		if err := json.Unmarshal([]byte(data), &task); err != nil {
			c.logger.Warn("Skipping malformed task event", "error", err)
			continue
		}
		select {
		case out <- task:
		case <-ctx.Done():
			return nil
		default:
		}
	}
	return scanner.Err()
}

func taskPath(id int64, action string) string {
	p := "/tasks/" + strconv.FormatInt(id, 10)
	if action != "" {
		p += "/" + action
	}
	return p
}
