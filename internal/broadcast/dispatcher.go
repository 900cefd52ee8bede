// Package broadcast pushes KY notifications to every subscriber of the LINE
// channel. One invocation is one gateway call; nothing is retried or queued.
package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/yourorg/kysafety/internal/errs"
)

// maxTextLength is the LINE text message limit.
const maxTextLength = 5000

const maxErrorBodySize = 64 * 1024

var (
	ErrEmptyText            = errs.Validation([]errs.FieldError{{Code: "KY-BRD-001", Path: "text", Message: "broadcast text is empty"}})
	ErrTextTooLong          = errs.Validation([]errs.FieldError{{Code: "KY-BRD-002", Path: "text", Message: "broadcast text exceeds 5000 characters"}})
	ErrGatewayNotConfigured = errs.New(errs.KindConfiguration, "GATEWAY_NOT_CONFIGURED", "LINE channel access token is not configured")
)

// Dispatcher sends text through the messaging gateway.
type Dispatcher struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type broadcastRequest struct {
	Messages []textMessage `json:"messages"`
}

// NewDispatcher builds a dispatcher. A nil client gets one with cfg.Timeout.
func NewDispatcher(cfg Config, client *http.Client, logger *slog.Logger) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{cfg: cfg, client: client, logger: logger}
}

// Broadcast sends text to all subscribers. A non-2xx gateway response is
// returned as an upstream error carrying the status and body verbatim.
func (d *Dispatcher) Broadcast(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if utf8.RuneCountInString(text) > maxTextLength {
		return ErrTextTooLong
	}
	if d.cfg.AccessToken == "" {
		return ErrGatewayNotConfigured
	}

	payload, err := json.Marshal(broadcastRequest{Messages: []textMessage{{Type: "text", Text: text}}})
	if err != nil {
		return fmt.Errorf("encode broadcast: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build broadcast request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.cfg.AccessToken)

	resp, err := d.client.Do(req)
	if err != nil {
		return errs.Upstream("GATEWAY_UNREACHABLE", 0, "", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		d.logger.Warn("broadcast rejected by gateway",
			slog.Int("status", resp.StatusCode),
			slog.String("requestId", resp.Header.Get("X-Line-Request-Id")),
		)
		return errs.Upstream("GATEWAY_ERROR", resp.StatusCode, string(body), nil)
	}
	d.logger.Info("broadcast sent",
		slog.Int("chars", utf8.RuneCountInString(text)),
		slog.String("requestId", resp.Header.Get("X-Line-Request-Id")),
	)
	return nil
}
