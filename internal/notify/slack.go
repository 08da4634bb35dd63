// Package notify delivers alert messages to Slack through an incoming
// webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// SlackNotifier posts messages to a Slack incoming webhook. Message
// bodies are wrapped in a code fence so multi-line alerts render as a
// single block. An optional mention is prepended to every message.
type SlackNotifier struct {
	webhookURL string
	mention    string
	client     *http.Client
	logger     *zap.Logger
}

type SlackOption func(*SlackNotifier)

// WithMention prepends a user or group mention to every message.
func WithMention(mention string) SlackOption {
	return func(n *SlackNotifier) { n.mention = mention }
}

func WithHTTPClient(client *http.Client) SlackOption {
	return func(n *SlackNotifier) { n.client = client }
}

func NewSlackNotifier(webhookURL string, logger *zap.Logger, opts ...SlackOption) *SlackNotifier {
	n := &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

type webhookPayload struct {
	Text string `json:"text"`
}

// Notify posts one message. Delivery failures are returned to the
// caller, which logs and moves on; there is no retry here.
func (n *SlackNotifier) Notify(ctx context.Context, text string) error {
	formatted := "```" + text + "```"
	if n.mention != "" {
		formatted = n.mention + "\n" + formatted
	}
	body, err := json.Marshal(webhookPayload{Text: formatted})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned %s", resp.Status)
	}
	n.logger.Debug("slack message delivered", zap.Int("bytes", len(body)))
	return nil
}
