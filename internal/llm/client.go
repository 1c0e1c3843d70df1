package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/echocave/internal/config"
	"horse.fit/echocave/internal/globaltime"
)

// Message is one chat turn. Content is either a plain string or a slice of
// ContentPart for multimodal payloads.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPart is one item of a multimodal user message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart embeds raw image bytes as a base64 data URL.
func ImagePart(mime string, data []byte) ContentPart {
	return ContentPart{
		Type: "image_url",
		ImageURL: &ImageURL{
			URL: fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)),
		},
	}
}

// Client calls OpenAI-compatible chat-completions endpoints. The endpoint
// list is walked round-robin, and a failed call arms a process-wide retry
// barrier: every caller waits out the cooldown before the next request.
type Client struct {
	endpoints []config.Endpoint
	client    *http.Client
	cooldown  time.Duration
	logger    zerolog.Logger

	mu      sync.Mutex
	next    uint64
	retryAt time.Time
}

func NewClient(endpoints []config.Endpoint, timeout, cooldown time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Client{
		endpoints: endpoints,
		client:    &http.Client{Timeout: timeout},
		cooldown:  cooldown,
		logger:    logger,
	}
}

// Enabled reports whether at least one endpoint is configured.
func (c *Client) Enabled() bool {
	return c != nil && len(c.endpoints) > 0
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat posts one request to the next endpoint in rotation and returns the
// raw assistant text.
func (c *Client) Chat(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("no llm endpoints configured")
	}

	if err := c.waitRetryBarrier(ctx); err != nil {
		return "", err
	}
	endpoint := c.nextEndpoint()

	payload := make([]Message, 0, len(messages)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		payload = append(payload, Message{Role: "system", Content: systemPrompt})
	}
	payload = append(payload, messages...)

	body, err := json.Marshal(chatRequest{
		Model:    endpoint.Model,
		Messages: payload,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	url := strings.TrimRight(endpoint.URL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(endpoint.Key); key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}

	started := globaltime.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.armRetryBarrier()
		return "", fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.armRetryBarrier()
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.armRetryBarrier()
		var errPayload chatErrorResponse
		if unmarshalErr := json.Unmarshal(respBody, &errPayload); unmarshalErr == nil {
			if msg := strings.TrimSpace(errPayload.Error.Message); msg != "" {
				return "", fmt.Errorf("chat endpoint status %d: %s", resp.StatusCode, msg)
			}
		}
		return "", fmt.Errorf("chat endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		c.armRetryBarrier()
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		c.armRetryBarrier()
		return "", fmt.Errorf("chat response missing choices")
	}

	c.clearRetryBarrier()
	c.logger.Debug().
		Str("model", endpoint.Model).
		Int64("latency_ms", time.Since(started).Milliseconds()).
		Msg("chat completion ok")
	return parsed.Choices[0].Message.Content, nil
}

// ChatJSON calls Chat and runs the JSON recovery stages over the reply.
func (c *Client) ChatJSON(ctx context.Context, systemPrompt string, messages []Message) (json.RawMessage, error) {
	reply, err := c.Chat(ctx, systemPrompt, messages)
	if err != nil {
		return nil, err
	}
	extracted, err := ExtractJSON(reply)
	if err != nil {
		return nil, fmt.Errorf("recover JSON from chat reply: %w", err)
	}
	return extracted, nil
}

func (c *Client) nextEndpoint() config.Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	endpoint := c.endpoints[c.next%uint64(len(c.endpoints))]
	c.next++
	return endpoint
}

func (c *Client) waitRetryBarrier(ctx context.Context) error {
	c.mu.Lock()
	wait := c.retryAt.Sub(globaltime.Now())
	c.mu.Unlock()
	if wait <= 0 {
		return nil
	}

	c.logger.Debug().Dur("wait", wait).Msg("waiting for llm retry barrier")
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) armRetryBarrier() {
	c.mu.Lock()
	c.retryAt = globaltime.Now().Add(c.cooldown)
	c.mu.Unlock()
}

func (c *Client) clearRetryBarrier() {
	c.mu.Lock()
	c.retryAt = time.Time{}
	c.mu.Unlock()
}
