// Package llm talks to an OpenAI compatible chat/completions endpoint.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JustJay7/case-archive/pkg/logger"
)

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("language model API key is not configured")
	// ErrUpstream wraps non-2xx responses and transport failures.
	ErrUpstream = errors.New("language model request failed")
	// ErrMalformed is returned when the model output is not the expected JSON.
	ErrMalformed = errors.New("language model returned malformed output")
	// ErrSchemaViolation is returned when the model output is JSON but does
	// not match the expected schema.
	ErrSchemaViolation = errors.New("language model output violates schema")
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one chat completion call.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
	JSON        bool
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logger.Logger
}

func NewClient(cfg Config, log *logger.Logger) *Client {
	return &Client{
		cfg: cfg,
		// Deadlines come from the caller's context.
		httpClient: &http.Client{},
		log:        log,
	}
}

// Configured reports whether an API key is available.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

// Timeout is the deadline applied to a single model call.
func (c *Client) Timeout() time.Duration {
	return c.cfg.Timeout
}

// Complete runs a non-streaming completion and returns the first choice.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	raw, err := c.post(ctx, c.body(req, false))
	if err != nil {
		return "", err
	}
	defer raw.Close()

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(raw).Decode(&cc); err != nil {
		return "", fmt.Errorf("%w: decode completion: %v", ErrMalformed, err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrMalformed)
	}
	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}

// Stream runs a streaming completion and calls onDelta for every non-empty
// content fragment. It stops early when onDelta returns an error.
func (c *Client) Stream(ctx context.Context, req Request, onDelta func(string) error) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	raw, err := c.post(ctx, c.body(req, true))
	if err != nil {
		return err
	}
	defer raw.Close()

	scanner := bufio.NewScanner(raw)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return nil
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return fmt.Errorf("%w: decode stream chunk: %v", ErrMalformed, err)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		if err := onDelta(chunk.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: read stream: %v", ErrUpstream, err)
	}
	return nil
}

func (c *Client) body(req Request, stream bool) map[string]any {
	messages := make([]map[string]any, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, map[string]any{"role": m.Role, "content": m.Content})
	}

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": req.Temperature,
		"messages":    messages,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if req.JSON {
		body["response_format"] = map[string]any{"type": "json_object"}
	}
	if stream {
		body["stream"] = true
	}
	return body
}

func (c *Client) post(ctx context.Context, body map[string]any) (io.ReadCloser, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		buf := new(bytes.Buffer)
		_, _ = io.Copy(buf, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, buf.String())
	}

	return resp.Body, nil
}

// StripCodeFence removes a surrounding ``` block some models add despite
// being told not to.
func StripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	lines = lines[1:]
	if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
		lines = lines[:n-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
