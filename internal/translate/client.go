// Package translate вызывает внешний сервис машинного перевода.
// Конкретный провайдер скрыт за HTTP-контрактом; ответы кешируются
// (один и тот же текст переводится для каждого языка один раз).
package translate

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/storage"
)

var ErrUpstream = errors.New("translate service failure")

// Client вызывает сервис перевода. Если URL пустой — Translate возвращает
// исходный текст (перевод отключён, доставка не блокируется).
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      storage.Store
}

// NewClient создаёт клиент. cache может быть nil — тогда без кеширования.
func NewClient(baseURL string, cache storage.Store) *Client {
	if baseURL == "" {
		return &Client{cache: cache}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache: cache,
	}
}

type translateRequest struct {
	Text string `json:"text"`
	From string `json:"from"`
	To   string `json:"to"`
}

type translateResponse struct {
	Text string `json:"text"`
}

// Translate переводит text с fromCode на toCode.
func (c *Client) Translate(ctx context.Context, text, fromCode, toCode string) (string, error) {
	if c.baseURL == "" || fromCode == toCode {
		return text, nil
	}

	key := cacheKey(text, fromCode, toCode)
	if c.cache != nil {
		if cached, err := c.cache.GetTranslation(ctx, key); err == nil && cached != "" {
			return cached, nil
		}
	}

	body, err := json.Marshal(translateRequest{Text: text, From: fromCode, To: toCode})
	if err != nil {
		return "", fmt.Errorf("translate marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/translate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("translate request: %w", err)
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

	var out translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	if out.Text == "" {
		return "", fmt.Errorf("%w: empty translation", ErrUpstream)
	}

	if c.cache != nil {
		if err := c.cache.SetTranslation(ctx, key, out.Text); err != nil {
			logger.Errorf("translate cache set %s->%s: %v", fromCode, toCode, err)
		}
	}
	return out.Text, nil
}

// cacheKey — hash текста, не сам текст: содержимое сообщений не должно
// попадать в ключи хранилища.
func cacheKey(text, from, to string) string {
	sum := sha256.Sum256([]byte(text))
	return from + ":" + to + ":" + hex.EncodeToString(sum[:])
}
