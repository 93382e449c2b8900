// Package classifier calls an OpenAI-compatible chat completions endpoint to
// judge a single chat message against the configured moderation policy. One
// HTTP call per message, no internal retries: the caller decides how to treat
// a failed or unparseable classification.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 100
)

// Verdict is the canonical classification result. The model is instructed to
// answer with exactly this JSON shape.
type Verdict struct {
	Violates bool   `json:"violates"`
	Reason   string `json:"reason,omitempty"`
}

// ParseError reports a model reply that could not be decoded into a Verdict.
// The raw reply is kept for logging.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse verdict from model reply %q: %v", truncate(e.Raw, 200), e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Client is a thin chat-completions client. Fields may be adjusted before
// first use; HTTPClient is swappable for tests.
type Client struct {
	BaseURL    string
	APIKey     string
	Model      string
	Policy     string // moderation rules injected into the system prompt
	MaxTokens  int
	HTTPClient *http.Client
}

// New builds a Client with defaults filled in. Empty baseURL, model fall back
// to the public OpenAI endpoint and a small default model.
func New(apiKey, baseURL, model, policy string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Model:      model,
		Policy:     policy,
		MaxTokens:  defaultMaxTokens,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Classify judges one message. Deterministic settings (temperature 0, bounded
// completion size); exactly one request per call.
func (c *Client) Classify(ctx context.Context, text string) (Verdict, error) {
	reqBody := chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: c.systemPrompt()},
			{Role: "user", Content: text},
		},
		Temperature: 0,
		MaxTokens:   c.MaxTokens,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Verdict{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.BaseURL, "/")+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Verdict{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("completions request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Verdict{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Verdict{}, fmt.Errorf("completions status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return Verdict{}, fmt.Errorf("decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return Verdict{}, fmt.Errorf("completions reply carried no choices")
	}
	return parseVerdict(cr.Choices[0].Message.Content)
}

func (c *Client) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a strict live chat moderator. Judge whether the user's message violates the rules below.\n\n")
	if c.Policy != "" {
		b.WriteString("Rules:\n")
		b.WriteString(c.Policy)
		b.WriteString("\n\n")
	}
	b.WriteString(`Answer with only a JSON object of the form {"violates": <bool>, "reason": "<short reason>"}. No prose, no markdown.`)
	return b.String()
}

// parseVerdict decodes the model reply, tolerating markdown code fences and
// surrounding prose as long as a JSON object is present.
func parseVerdict(reply string) (Verdict, error) {
	raw := extractJSON(reply)
	if raw == "" {
		return Verdict{}, &ParseError{Raw: reply, Err: fmt.Errorf("no JSON object found")}
	}
	var v Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Verdict{}, &ParseError{Raw: reply, Err: err}
	}
	return v, nil
}

// extractJSON strips code fences and leading/trailing prose, returning the
// outermost {...} span, or "" when none exists.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
