// Package notify 把会话报告投递到外部聊天 webhook，失败只记日志
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"pt-butler/config"

	log "github.com/sirupsen/logrus"
)

type Notifier interface {
	Send(ctx context.Context, text string)
}

// Webhook 简单的文本消息 webhook 客户端
type Webhook struct {
	url  string
	http *http.Client
}

func NewWebhook(cfg config.NotifyConfig) *Webhook {
	return &Webhook{
		url:  cfg.WebhookURL,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Send 发送一条文本消息；webhook 未配置或失败都不影响调用方
func (w *Webhook) Send(ctx context.Context, text string) {
	if w.url == "" {
		return
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		log.Warnf("notify: marshal failed: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		log.Warnf("notify: build request failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		log.Warnf("notify: send failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Warnf("notify: webhook returned %s", resp.Status)
	}
}

// Nop 空通知器，未配置 webhook 时使用
type Nop struct{}

func (Nop) Send(ctx context.Context, text string) {}
