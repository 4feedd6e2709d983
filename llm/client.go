// llm/client.go
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Client is the single model-calling capability shared by the classifier,
// judge, conflict checker and appeal reviewer — different prompts, same shape.
// CompleteJSON must return bytes that parse as a JSON object, or an error;
// it never returns silently-truncated or fenced garbage to callers.
type Client interface {
	CompleteJSON(ctx context.Context, model, system, user string, maxTokens int) (json.RawMessage, error)
}

// Default model tiers — classification is cheap, judgment is not.
const (
	DefaultClassifyModel = "gpt-4o-mini"
	DefaultJudgeModel    = "gpt-4o"
)

type httpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient builds the OpenAI-backed client from environment variables.
// Returns an error when OPENAI_API_KEY is missing so main can fail fast —
// the service is useless without its judge.
func NewClient() (Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeoutSec := 60
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	return &httpClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

// ClassifyModel returns the configured cheap-tier model id.
func ClassifyModel() string {
	if m := strings.TrimSpace(os.Getenv("LLM_CLASSIFY_MODEL")); m != "" {
		return m
	}
	return DefaultClassifyModel
}

// JudgeModel returns the configured judgment-tier model id.
func JudgeModel() string {
	if m := strings.TrimSpace(os.Getenv("LLM_JUDGE_MODEL")); m != "" {
		return m
	}
	return DefaultJudgeModel
}

type chatRequest struct {
	Model          string        `json:"model"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *httpClient) CompleteJSON(ctx context.Context, model, system, user string, maxTokens int) (json.RawMessage, error) {
	payload := chatRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: &respFormat{Type: "json_object"},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat completion request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat completion non-200 response: %d: %s", resp.StatusCode, truncate(string(raw), 256))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("chat completion API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}
	if parsed.Choices[0].FinishReason == "length" {
		// Truncated JSON is worse than no JSON — fail loudly
		return nil, fmt.Errorf("chat completion hit max_tokens (%d), output truncated", maxTokens)
	}

	return ExtractJSON(parsed.Choices[0].Message.Content)
}

// ExtractJSON strips markdown code fences if present and validates that the
// remainder is a parseable JSON object. This is the one shared "strict JSON
// or explicit failure" path — no caller does its own fence handling.
func ExtractJSON(content string) (json.RawMessage, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		return nil, fmt.Errorf("empty model response")
	}

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &probe); err != nil {
		return nil, fmt.Errorf("model response is not a JSON object: %w", err)
	}
	return json.RawMessage(text), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
