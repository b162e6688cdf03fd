// Package webhook delivers notification and workflow-automation actions
// to external systems over HTTP. The same client also serves as the
// sender behind the Slack audit sink.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/capability"
	xerrors "github.com/raider-express-inc/RaiderBot-Production-sub000/internal/errors"
)

// Config 描述 webhook 适配器的目标地址与超时。
type Config struct {
	URL     string
	Timeout time.Duration
}

// Adapter 将动作以 JSON 形式 POST 到配置的 webhook 地址。
type Adapter struct {
	url    string
	client *http.Client
}

// New 创建 webhook 适配器。
func New(cfg Config) (*Adapter, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "webhook URL 不能为空")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Invoke 实现 capability.Adapter。
func (a *Adapter) Invoke(ctx context.Context, action string, parameters map[string]any) (*capability.Result, error) {
	payload := map[string]any{
		"action":     action,
		"parameters": parameters,
		"sent_at":    time.Now().Unix(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeAdapterError, err, "编码 webhook 请求失败")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeAdapterError, err, "创建 webhook 请求失败")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeAdapterError, err, "发送 webhook 请求失败")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &capability.Result{
			Success: false,
			Error:   fmt.Sprintf("webhook returned status %d", resp.StatusCode),
		}, nil
	}
	return &capability.Result{
		Success: true,
		Output: map[string]any{
			"action":      action,
			"status_code": resp.StatusCode,
		},
	}, nil
}

// Send 实现审计 Slack 渠道所需的 WebhookSender。
func (a *Adapter) Send(ctx context.Context, content string) error {
	body, err := json.Marshal(map[string]string{"text": content})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeAdapterError, err, "编码消息失败")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return xerrors.Wrap(xerrors.CodeAdapterError, err, "创建消息请求失败")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeAdapterError, err, "发送消息失败")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return xerrors.New(xerrors.CodeAdapterError,
			fmt.Sprintf("webhook returned status %d", resp.StatusCode))
	}
	return nil
}

var _ capability.Adapter = (*Adapter)(nil)
