// Package optiongen calls the external option-generation LLM configured by
// OPTION_LLM_API_URL/OPTION_LLM_API_KEY/OPTION_LLM_MODEL to produce the
// selectable continuations shown after a character message (§6 interface K).
package optiongen

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
)

// Generator requests a list of short continuation options for a prompt.
type Generator struct {
	http *http.Client
	cfg  config.OptionLLMConfig
}

// NewGenerator constructs a Generator. A zero-value APIURL leaves Generate
// returning ErrNotConfigured, so deployments without the external service
// degrade rather than fail to start.
func NewGenerator(cfg config.OptionLLMConfig, timeout time.Duration) *Generator {
	return &Generator{http: &http.Client{Timeout: timeout}, cfg: cfg}
}

// ErrNotConfigured is returned when OPTION_LLM_API_URL is empty.
var ErrNotConfigured = fmt.Errorf("option generation LLM is not configured")

type optionRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type optionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate asks the configured model for continuation options to the given
// context text and returns them as newline-separated candidates, one per
// line of the model's reply.
func (g *Generator) Generate(ctx context.Context, contextText string) ([]string, error) {
	if g.cfg.APIURL == "" {
		return nil, ErrNotConfigured
	}

	reqBody := optionRequest{
		Model: g.cfg.Model,
		Messages: []message{
			{Role: "system", Content: "Suggest three short, distinct continuations for the given story so far. Reply with one continuation per line."},
			{Role: "user", Content: contextText},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal option request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(g.cfg.APIURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build option request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call option llm: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read option llm response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("option llm: http %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed optionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse option llm response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("option llm: empty choices")
	}

	var options []string
	for _, line := range strings.Split(parsed.Choices[0].Message.Content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			options = append(options, line)
		}
	}
	return options, nil
}
