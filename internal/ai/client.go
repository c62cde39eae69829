// Package ai wraps the OpenAI Responses API for the assistant chat mode.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/arashpm/instabridge/core/logger"
)

const (
	// DefaultBaseURL is the OpenAI API root.
	DefaultBaseURL = "https://api.openai.com"

	// DefaultModel answers assistant chats unless configured otherwise.
	DefaultModel = "gpt-4.1-mini"

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 2 << 10
)

// DefaultInstructions frames the assistant for Instagram comment management.
const DefaultInstructions = "You are a concise social media assistant for an Instagram Business account. " +
	"Help the owner draft comment replies and captions. Keep answers short."

// Config holds the OpenAI connection settings.
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	Instructions string
	Timeout      time.Duration
}

// Client calls the Responses API. Safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a Client, applying defaults for unset config fields.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Instructions == "" {
		cfg.Instructions = DefaultInstructions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Reply sends the user's text to the model and returns the assistant text.
func (c *Client) Reply(ctx context.Context, userText string) (string, error) {
	start := time.Now()

	body, err := json.Marshal(map[string]any{
		"model":        c.cfg.Model,
		"instructions": c.cfg.Instructions,
		"input":        userText,
	})
	if err != nil {
		return "", fmt.Errorf("ai: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/v1/responses", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ai: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ai: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logger.SVCAI.LogAttrs(ctx, slog.LevelWarn, "ai.upstream_error",
			slog.Int("status", resp.StatusCode),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
		return "", fmt.Errorf("ai: upstream status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed struct {
		Output []struct {
			Type    string `json:"type"`
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("ai: decode response: %w", err)
	}

	var sb strings.Builder
	for _, item := range parsed.Output {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}
		for _, part := range item.Content {
			if part.Type != "output_text" || strings.TrimSpace(part.Text) == "" {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(part.Text)
		}
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("ai: response carried no output_text items")
	}

	logger.SVCAI.LogAttrs(ctx, slog.LevelInfo, "ai.reply",
		slog.String("model", c.cfg.Model),
		slog.Int("chars", len(out)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return out, nil
}
