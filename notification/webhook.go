// Package notification delivers operator alerts over group-chat
// webhooks and Telegram.
package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cryptooracle/oraclebot/core"
)

const (
	webhookTimeout = 5 * time.Second

	// Identical alert titles are suppressed within this window so a
	// flapping condition cannot flood the channel
	alertCooldown = time.Minute
)

// Webhook posts alerts to a group-chat incoming webhook. The payload
// shape is chosen from the URL: Feishu/Lark and DingTalk have their
// own envelopes, anything else gets a plain {"text": ...}.
type Webhook struct {
	url    string
	client *http.Client
	log    core.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewWebhook builds a webhook notifier. A placeholder or empty URL
// yields a notifier that silently drops everything.
func NewWebhook(url string, log core.Logger) *Webhook {
	return &Webhook{
		url:      url,
		client:   &http.Client{Timeout: webhookTimeout},
		log:      log,
		lastSent: make(map[string]time.Time),
	}
}

// Notify sends one alert. Delivery is asynchronous, trading never
// blocks on a chat service.
func (w *Webhook) Notify(title, message string) {
	if w.url == "" || strings.Contains(w.url, "YOUR_WEBHOOK") {
		return
	}
	if !w.shouldSend(title) {
		return
	}

	payload, err := w.buildPayload(title, message)
	if err != nil {
		w.log.Warnf("webhook payload build failed: %v", err)
		return
	}

	go func() {
		resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(payload))
		if err != nil {
			w.log.Warnf("webhook delivery failed: %v", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			w.log.Warnf("webhook delivery rejected: %s", resp.Status)
		}
	}()
}

// shouldSend applies the per-title cooldown
func (w *Webhook) shouldSend(title string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if last, ok := w.lastSent[title]; ok && now.Sub(last) < alertCooldown {
		return false
	}
	w.lastSent[title] = now
	return true
}

func (w *Webhook) buildPayload(title, message string) ([]byte, error) {
	text := fmt.Sprintf("%s\n%s", title, message)

	switch {
	case strings.Contains(w.url, "feishu") || strings.Contains(w.url, "larksuite"):
		return json.Marshal(map[string]any{
			"msg_type": "text",
			"content":  map[string]string{"text": text},
		})
	case strings.Contains(w.url, "dingtalk"):
		return json.Marshal(map[string]any{
			"msgtype": "text",
			"text":    map[string]string{"content": text},
		})
	default:
		return json.Marshal(map[string]string{"text": text})
	}
}
