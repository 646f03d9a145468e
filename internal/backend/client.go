package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/network/standard"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/purposesproject7/vista-sub001/internal/model"
)

// DefaultTimeout 默认请求超时
const DefaultTimeout = 30 * time.Second

// Config 后端连接配置
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client 门户后端 REST 客户端
type Client struct {
	client  *client.Client
	base    string
	token   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient 创建客户端
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrNotConfigured
	}
	base, err := normalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c, err := client.NewClient(
		client.WithDialTimeout(10*time.Second),
		client.WithMaxIdleConnDuration(60*time.Second),
		client.WithDialer(standard.NewDialer()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &Client{
		client:  c,
		base:    base,
		token:   cfg.Token,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}, nil
}

// normalizeBaseURL 补全 scheme，去掉末尾斜杠，保留路径前缀（如 /api）
func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid backend url %q", raw)
	}
	return strings.TrimRight(fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, u.Path), "/"), nil
}

// BaseURL 规范化后的后端地址
func (c *Client) BaseURL() string {
	return c.base
}

// MasterData 拉取学院/专业/学年
func (c *Client) MasterData(ctx context.Context) (*model.MasterData, error) {
	const op = "fetch master data"

	status, body, err := c.do(ctx, consts.MethodGet, endpointMasterData, nil)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	if status >= 300 {
		return nil, statusError(op, status, body)
	}
	env, err := Normalize[model.MasterData](body, "masterData")
	if err != nil {
		return nil, &Error{Op: op, Status: status, Err: err}
	}
	if !env.OK {
		return nil, &Error{Op: op, Status: status, Message: errorMessage(env.Error)}
	}
	return &env.Payload, nil
}

// BulkCreate 一次请求批量创建实体，不重试
func (c *Client) BulkCreate(ctx context.Context, entity string, records []map[string]any) (model.SubmitResult, error) {
	op := "bulk create " + entity

	path := fmt.Sprintf(endpointBulkCreate, url.PathEscape(entity))
	status, body, err := c.do(ctx, consts.MethodPost, path, map[string]any{entity: records})
	if err != nil {
		return model.SubmitResult{}, &Error{Op: op, Err: err}
	}
	if status >= 300 {
		return model.SubmitResult{}, statusError(op, status, body)
	}
	env, err := NormalizeBulk(body)
	if err != nil {
		return model.SubmitResult{}, &Error{Op: op, Status: status, Err: err}
	}
	if !env.OK {
		return model.SubmitResult{}, &Error{Op: op, Status: status, Message: errorMessage(env.Error)}
	}

	c.logger.Info("bulk create finished",
		"entity", entity,
		"records", len(records),
		"created", env.Payload.Created,
		"failed", env.Payload.Failed,
	)
	return env.Payload, nil
}

// AutoAssignPanels 触发后端的面板自动分配（算法在后端）
func (c *Client) AutoAssignPanels(ctx context.Context, academic model.AcademicContext, options map[string]any) (map[string]any, error) {
	return c.passThrough(ctx, "auto-assign panels", endpointPanelsAutoAssign, academic, options)
}

// AutoCreatePanels 触发后端的面板自动创建
func (c *Client) AutoCreatePanels(ctx context.Context, academic model.AcademicContext, options map[string]any) (map[string]any, error) {
	return c.passThrough(ctx, "auto-create panels", endpointPanelsAutoCreate, academic, options)
}

func (c *Client) passThrough(ctx context.Context, op, path string, academic model.AcademicContext, options map[string]any) (map[string]any, error) {
	payload := make(map[string]any, len(options)+4)
	for k, v := range options {
		payload[k] = v
	}
	payload["school"] = academic.School
	payload["program"] = academic.Programme
	payload["academicYear"] = academic.Year
	if academic.Semester != "" {
		payload["semester"] = academic.Semester
	}

	status, body, err := c.do(ctx, consts.MethodPost, path, payload)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	if status >= 300 {
		return nil, statusError(op, status, body)
	}
	env, err := Normalize[map[string]any](body)
	if err != nil {
		return nil, &Error{Op: op, Status: status, Err: err}
	}
	if !env.OK {
		return nil, &Error{Op: op, Status: status, Message: errorMessage(env.Error)}
	}
	return env.Payload, nil
}

// do 发送请求并返回状态码与响应体副本
func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer func() {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
	}()

	req.SetMethod(method)
	req.SetRequestURI(c.base + path)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		raw, err := sonic.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		req.Header.SetContentTypeBytes([]byte("application/json"))
		req.SetBody(raw)
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return 0, nil, context.DeadlineExceeded
	}

	start := time.Now()
	if err := c.client.DoTimeout(ctx, req, resp, timeout); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, ctxErr
		}
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}

	status := resp.StatusCode()
	out := append([]byte(nil), resp.Body()...)
	c.logger.Debug("backend request",
		"method", method,
		"path", path,
		"status", status,
		"elapsed", time.Since(start),
	)
	return status, out, nil
}

// statusError 非 2xx 响应；尽量取出后端给的 message
func statusError(op string, status int, body []byte) *Error {
	msg := ""
	if fields, err := decodeObject(body); err == nil {
		msg = messageOf(fields, "")
	}
	return &Error{Op: op, Status: status, Message: msg}
}

func errorMessage(info *model.ErrorInfo) string {
	if info == nil {
		return ""
	}
	return info.Message
}
