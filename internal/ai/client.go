// Package ai вызывает внешний AI-коллаборатор для чатов режима ai.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var ErrUpstream = errors.New("ai service failure")

// Client вызывает AI-сервис. Если URL пустой — Reply возвращает ошибку
// (ai-чаты без настроенного сервиса не работают, это ошибка конфигурации).
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		return &Client{}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Enabled сообщает, настроен ли AI-сервис.
func (c *Client) Enabled() bool { return c.baseURL != "" }

type replyRequest struct {
	ChatID   string `json:"chat_id"`
	Language string `json:"language"`
	Content  string `json:"content"`
}

type replyResponse struct {
	Content string `json:"content"`
}

// Reply отправляет сообщение AI-коллаборатору и возвращает его ответ
// на языке languageCode.
func (c *Client) Reply(ctx context.Context, chatID, languageCode, content string) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("%w: not configured", ErrUpstream)
	}
	body, err := json.Marshal(replyRequest{ChatID: chatID, Language: languageCode, Content: content})
	if err != nil {
		return "", fmt.Errorf("ai marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/reply", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var out replyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	if out.Content == "" {
		return "", fmt.Errorf("%w: empty reply", ErrUpstream)
	}
	return out.Content, nil
}
