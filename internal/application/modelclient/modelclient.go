// Package modelclient issues outbound chat completion calls to the arbitrary
// HTTP-reachable model channels declared in the config registry (§4.C).
package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ratingarena/server/internal/config"
	"github.com/ratingarena/server/internal/domain"
)

// Message is one role-tagged chat turn, as produced by the external
// prompt-composition collaborator (§6 interface K).
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client issues chat completions against a logical model descriptor,
// rotating through its internal channels and API keys on failure.
type Client struct {
	http             *http.Client
	maxAttemptsPerKey int
	retryDelay       time.Duration
}

// NewClient constructs a Client from the rate-limit config's retry knobs.
func NewClient(timeout time.Duration, maxAttemptsPerKey int, retryDelay time.Duration) *Client {
	return &Client{
		http:              &http.Client{Timeout: timeout},
		maxAttemptsPerKey: maxAttemptsPerKey,
		retryDelay:        retryDelay,
	}
}

// channel is one endpoint URL with its ordered API keys, derived from a
// descriptor's flat fields or from one entry of its internal_models list.
type channel struct {
	id   string
	url  string
	keys []string
}

func channelsFor(d config.ModelDescriptor) []channel {
	if len(d.InternalModels) > 0 {
		chans := make([]channel, 0, len(d.InternalModels))
		for _, ic := range d.InternalModels {
			chans = append(chans, channel{id: ic.InternalID, url: ic.APIURL, keys: ic.APIKeys})
		}
		return chans
	}
	return []channel{{id: d.ID, url: d.APIURL, keys: d.APIKeys}}
}

// Generate sends messages to the model descriptor and returns the extracted,
// think-stripped completion text. It iterates channels in order; within a
// channel it iterates keys; for each (channel, key) it retries up to
// maxAttemptsPerKey, sleeping retryDelay between attempts (§4.C).
func (c *Client) Generate(ctx context.Context, d config.ModelDescriptor, messages []Message) (string, error) {
	var lastErr error

	for _, ch := range channelsFor(d) {
		for _, key := range ch.keys {
			for attempt := 0; attempt < c.maxAttemptsPerKey; attempt++ {
				text, err := c.callOnce(ctx, d, ch.url, key, messages)
				if err == nil {
					return stripThink(text), nil
				}
				lastErr = err

				if attempt < c.maxAttemptsPerKey-1 {
					select {
					case <-ctx.Done():
						return "", &domain.ModelCallError{ModelID: d.ID, Err: ctx.Err()}
					case <-time.After(c.retryDelay):
					}
				}
			}
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no channels configured")
	}
	return "", &domain.ModelCallError{ModelID: d.ID, Err: lastErr}
}

func (c *Client) callOnce(ctx context.Context, d config.ModelDescriptor, url, apiKey string, messages []Message) (string, error) {
	if strings.EqualFold(d.APIFormat, "anthropic") {
		return c.callAnthropic(ctx, d, url, apiKey, messages)
	}
	return c.callOpenAI(ctx, d, url, apiKey, messages)
}

type openaiRequest struct {
	Model       string             `json:"model"`
	Messages    []Message          `json:"messages"`
	Temperature float64            `json:"temperature"`
	Stream      bool               `json:"stream"`
	Thinking    *openaiThinking    `json:"thinking,omitempty"`
}

type openaiThinking struct {
	Type string `json:"type"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) callOpenAI(ctx context.Context, d config.ModelDescriptor, url, apiKey string, messages []Message) (string, error) {
	req := openaiRequest{
		Model:       d.ID,
		Messages:    messages,
		Temperature: 1.0,
		Stream:      false,
	}
	if d.EnableThinking {
		req.Thinking = &openaiThinking{Type: "enabled"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal openai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(url, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build openai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	respBody, status, err := c.do(httpReq)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("openai: http %d: %s", status, string(respBody))
	}

	var resp openaiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("parse openai response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

type anthropicRequest struct {
	Model       string         `json:"model"`
	MaxTokens   int            `json:"max_tokens"`
	Messages    []Message      `json:"messages"`
	System      string         `json:"system,omitempty"`
	Temperature float64        `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

const anthropicDefaultMaxTokens = 4096

// buildAnthropicMessages concatenates leading system turns into the system
// field, then merges any further non-user prefix turns into the first user
// turn with role-tagged bracketing so the conversation begins with a user
// turn, per §4.C.
func buildAnthropicMessages(messages []Message) (system string, out []Message) {
	var systemParts []string
	i := 0
	for i < len(messages) && messages[i].Role == "system" {
		systemParts = append(systemParts, messages[i].Content)
		i++
	}
	system = strings.Join(systemParts, "\n\n")

	var prefix []string
	for i < len(messages) && messages[i].Role != "user" {
		prefix = append(prefix, fmt.Sprintf("[%s]: %s", messages[i].Role, messages[i].Content))
		i++
	}

	rest := messages[i:]
	if len(prefix) == 0 {
		return system, rest
	}

	merged := strings.Join(prefix, "\n\n")
	if len(rest) > 0 && rest[0].Role == "user" {
		merged = merged + "\n\n" + rest[0].Content
		out = append(out, Message{Role: "user", Content: merged})
		out = append(out, rest[1:]...)
		return system, out
	}

	out = append(out, Message{Role: "user", Content: merged})
	out = append(out, rest...)
	return system, out
}

func (c *Client) callAnthropic(ctx context.Context, d config.ModelDescriptor, url, apiKey string, messages []Message) (string, error) {
	system, msgs := buildAnthropicMessages(messages)

	req := anthropicRequest{
		Model:     d.ID,
		MaxTokens: anthropicDefaultMaxTokens,
		Messages:  msgs,
		System:    system,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(url, "/")+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	respBody, status, err := c.do(httpReq)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("anthropic: http %d: %s", status, string(respBody))
	}

	var resp anthropicResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("parse anthropic response: %w", err)
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("anthropic: no text block in response")
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// stripThink removes a single leading <think>...</think> block, possibly
// multi-line, before the response text is shown to a voter (§4.C).
func stripThink(text string) string {
	trimmed := strings.TrimLeft(text, " \t\r\n")
	if !strings.HasPrefix(trimmed, "<think>") {
		return text
	}
	end := strings.Index(trimmed, "</think>")
	if end == -1 {
		return text
	}
	rest := trimmed[end+len("</think>"):]
	return strings.TrimLeft(rest, " \t\r\n")
}
