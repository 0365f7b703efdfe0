package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultAPIBase = "https://api.telegram.org"

// BotSender posts messages through the Bot API sendMessage method
type BotSender struct {
	client *http.Client
	base   string
	token  string
}

// SendError is a failed sendMessage call
type SendError struct {
	StatusCode  int
	Description string
	RetryAfter  time.Duration
}

func (e *SendError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("sendMessage failed (%d): %s, retry after %v", e.StatusCode, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("sendMessage failed (%d): %s", e.StatusCode, e.Description)
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// NewBotSender creates a sender for the given bot token
func NewBotSender(client *http.Client, base, token string) *BotSender {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if base == "" {
		base = defaultAPIBase
	}
	return &BotSender{client: client, base: strings.TrimSuffix(base, "/"), token: token}
}

// SendMessage delivers text to the target chat
func (b *BotSender) SendMessage(ctx context.Context, target, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                target,
		Text:                  text,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("encode sendMessage: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", b.base, b.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		// The URL holds the token, keep it out of the error
		return fmt.Errorf("sendMessage request failed: %v", redact(err.Error(), b.token))
	}
	defer resp.Body.Close()

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return &SendError{StatusCode: resp.StatusCode, Description: fmt.Sprintf("decode response: %v", err)}
	}
	if !result.OK || resp.StatusCode != http.StatusOK {
		return &SendError{
			StatusCode:  resp.StatusCode,
			Description: result.Description,
			RetryAfter:  time.Duration(result.Parameters.RetryAfter) * time.Second,
		}
	}

	logrus.WithFields(logrus.Fields{
		"target": target,
		"runes":  len([]rune(text)),
	}).Info("Message sent to channel")
	return nil
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}
