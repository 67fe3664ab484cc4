// Package generate calls OpenAI-compatible completion backends (TabbyAPI,
// KoboldCpp and anything else speaking /v1/chat/completions). Sampler
// settings come from named backend profiles; a profile switch is a config
// change, never a code change.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/revisionhiep-create/Project-Astral/internal/config"
	"github.com/revisionhiep-create/Project-Astral/internal/logging"
)

// Request is one completion call. Sampler fields override the profile
// only when non-nil; the loop breaker uses that to spike a regeneration
// without touching the profile.
type Request struct {
	System string
	User   string

	MaxTokens int
	Stop      []string

	Temperature      *float64
	PresencePenalty  *float64
	FrequencyPenalty *float64
}

// Response carries the completion plus the usage stats surfaced in logs.
type Response struct {
	Text    string
	Tokens  int
	TPS     float64
	Backend string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model            string         `json:"model,omitempty"`
	Messages         []chatMessage  `json:"messages"`
	Temperature      float64        `json:"temperature"`
	MaxTokens        int            `json:"max_tokens"`
	Stream           bool           `json:"stream"`
	TopP             float64        `json:"top_p"`
	TopK             int            `json:"top_k"`
	MinP             float64        `json:"min_p"`
	PresencePenalty  float64        `json:"presence_penalty"`
	FrequencyPenalty float64        `json:"frequency_penalty"`
	RepetitionPen    float64        `json:"repetition_penalty,omitempty"`
	Stop             []string       `json:"stop,omitempty"`
	TemplateKwargs   map[string]any `json:"chat_template_kwargs,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to one named backend profile.
type Client struct {
	name    string
	profile config.BackendProfile
	client  *http.Client
}

// NewClient builds a client for the named profile.
func NewClient(name string, profile config.BackendProfile, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		name:    name,
		profile: profile,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the profile name this client serves.
func (c *Client) Name() string { return c.name }

// Profile returns the sampler profile this client was built with.
func (c *Client) Profile() config.BackendProfile { return c.profile }

// Generate runs one completion. Profile samplers apply unless the request
// overrides them.
func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	p := c.profile

	body := chatRequest{
		Model:            p.Model,
		Temperature:      p.Temperature,
		MaxTokens:        req.MaxTokens,
		TopP:             p.TopP,
		TopK:             p.TopK,
		MinP:             p.MinP,
		PresencePenalty:  p.PresencePenalty,
		FrequencyPenalty: p.FrequencyPenalty,
		RepetitionPen:    p.RepetitionPen,
		Stop:             req.Stop,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = p.MaxTokens
	}
	if len(body.Stop) == 0 {
		body.Stop = p.StopSequences
	}
	if req.Temperature != nil {
		body.Temperature = *req.Temperature
	}
	if req.PresencePenalty != nil {
		body.PresencePenalty = *req.PresencePenalty
	}
	if req.FrequencyPenalty != nil {
		body.FrequencyPenalty = *req.FrequencyPenalty
	}
	if p.DisableThinking {
		body.TemplateKwargs = map[string]any{"enable_thinking": false}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Backend: c.name, Err: fmt.Errorf("marshal request: %w", err)}
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.client.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.BaseURL, "/")+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Backend: c.name, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	logging.GenerateDebug("[%s] temp=%.2f pres=%.2f freq=%.2f max_tokens=%d system=%d user=%d",
		c.name, body.Temperature, body.PresencePenalty, body.FrequencyPenalty,
		body.MaxTokens, len(req.System), len(req.User))

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, wrapTransportError(c.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &Error{Backend: c.name, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Backend: c.name, Status: resp.StatusCode,
			Err: fmt.Errorf("%s", truncateBody(raw))}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &Error{Backend: c.name, Err: fmt.Errorf("parse response: %w", err)}
	}
	if parsed.Error != nil {
		return nil, &Error{Backend: c.name, Err: fmt.Errorf("backend error: %s", parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return nil, &Error{Backend: c.name, Err: fmt.Errorf("no completion returned")}
	}

	elapsed := time.Since(start)
	tokens := parsed.Usage.CompletionTokens
	tps := 0.0
	if elapsed > 0 && tokens > 0 {
		tps = float64(tokens) / elapsed.Seconds()
	}

	logging.Generate("[%s] %d tokens in %.2fs | %.1f T/s",
		c.name, tokens, elapsed.Seconds(), tps)

	return &Response{
		Text:    parsed.Choices[0].Message.Content,
		Tokens:  tokens,
		TPS:     tps,
		Backend: c.name,
	}, nil
}

func truncateBody(raw []byte) string {
	s := string(raw)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
