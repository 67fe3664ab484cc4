package generate

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/revisionhiep-create/Project-Astral/internal/config"
)

func tabbyProfile(baseURL string) config.BackendProfile {
	return config.BackendProfile{
		BaseURL:          baseURL,
		APIKey:           "secret",
		Model:            "qwen3",
		Temperature:      0.6,
		TopP:             0.95,
		TopK:             20,
		PresencePenalty:  0.3,
		FrequencyPenalty: 0.1,
		MaxTokens:        512,
		DisableThinking:  true,
	}
}

func closeTo(got any, want float64) bool {
	f, ok := got.(float64)
	return ok && math.Abs(f-want) < 1e-9
}

func completionBody(text string, tokens int) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": text}},
		},
		"usage": map[string]any{"completion_tokens": tokens},
	}
}

func TestGenerate_SendsProfileSamplers(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("auth header = %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(completionBody("hello there", 7))
	}))
	defer server.Close()

	c := NewClient("tabby", tabbyProfile(server.URL), time.Second)
	resp, err := c.Generate(context.Background(), Request{
		System: "be brief",
		User:   "hi",
		Stop:   []string{"\n["},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if resp.Text != "hello there" {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.Tokens != 7 {
		t.Errorf("tokens = %d", resp.Tokens)
	}
	if resp.Backend != "tabby" {
		t.Errorf("backend = %q", resp.Backend)
	}

	if got["temperature"] != 0.6 {
		t.Errorf("temperature = %v", got["temperature"])
	}
	if got["top_k"] != float64(20) {
		t.Errorf("top_k = %v", got["top_k"])
	}
	if got["presence_penalty"] != 0.3 {
		t.Errorf("presence_penalty = %v", got["presence_penalty"])
	}
	if got["max_tokens"] != float64(512) {
		t.Errorf("max_tokens = %v (profile default expected)", got["max_tokens"])
	}
	if got["stream"] != false {
		t.Errorf("stream = %v", got["stream"])
	}

	stop, _ := got["stop"].([]any)
	if len(stop) != 1 || stop[0] != "\n[" {
		t.Errorf("stop = %v", got["stop"])
	}

	kwargs, _ := got["chat_template_kwargs"].(map[string]any)
	if kwargs == nil || kwargs["enable_thinking"] != false {
		t.Errorf("chat_template_kwargs = %v", got["chat_template_kwargs"])
	}

	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", msgs)
	}
	first, _ := msgs[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "be brief" {
		t.Errorf("system message = %v", first)
	}
}

func TestGenerate_ProfileStopSequencesSent(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(completionBody("x", 1))
	}))
	defer server.Close()

	p := tabbyProfile(server.URL)
	p.StopSequences = []string{"\n[", "[Astra]", "[User]"}

	c := NewClient("tabby", p, time.Second)
	if _, err := c.Generate(context.Background(), Request{User: "hi"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	stop, _ := got["stop"].([]any)
	if len(stop) != 3 || stop[0] != "\n[" || stop[1] != "[Astra]" || stop[2] != "[User]" {
		t.Errorf("stop = %v, want profile transcript markers", got["stop"])
	}

	// A request-level stop list overrides the profile's.
	if _, err := c.Generate(context.Background(), Request{User: "hi", Stop: []string{"###"}}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	stop, _ = got["stop"].([]any)
	if len(stop) != 1 || stop[0] != "###" {
		t.Errorf("stop = %v, want request override", got["stop"])
	}
}

func TestGenerate_OverridesBeatProfile(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(completionBody("x", 1))
	}))
	defer server.Close()

	c := NewClient("tabby", tabbyProfile(server.URL), time.Second)
	req := Request{User: "hi"}
	RegenSpike(&req, c.Profile())

	if _, err := c.Generate(context.Background(), req); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if !closeTo(got["temperature"], 0.8) { // 0.6 + 0.2
		t.Errorf("temperature = %v", got["temperature"])
	}
	if !closeTo(got["presence_penalty"], 0.6) { // 0.3 + 0.3, at cap
		t.Errorf("presence_penalty = %v", got["presence_penalty"])
	}
	if !closeTo(got["frequency_penalty"], 0.25) { // 0.1 + 0.15, at cap
		t.Errorf("frequency_penalty = %v", got["frequency_penalty"])
	}
}

func TestSpikes_Capped(t *testing.T) {
	hot := config.BackendProfile{Temperature: 1.15, PresencePenalty: 0.55, FrequencyPenalty: 0.2}

	var req Request
	RegenSpike(&req, hot)
	if *req.Temperature != 1.2 {
		t.Errorf("temperature = %v, want cap 1.2", *req.Temperature)
	}
	if *req.PresencePenalty != 0.6 {
		t.Errorf("presence = %v, want cap 0.6", *req.PresencePenalty)
	}
	if *req.FrequencyPenalty != 0.25 {
		t.Errorf("frequency = %v, want cap 0.25", *req.FrequencyPenalty)
	}

	var stuck Request
	StuckSpike(&stuck, hot)
	if *stuck.PresencePenalty != 0.5 {
		t.Errorf("stuck presence = %v, want cap 0.5", *stuck.PresencePenalty)
	}
}

func TestGenerate_NoThinkingKwargsWhenEnabled(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(completionBody("x", 1))
	}))
	defer server.Close()

	p := tabbyProfile(server.URL)
	p.DisableThinking = false
	p.RepetitionPen = 1.05

	c := NewClient("kobold", p, time.Second)
	if _, err := c.Generate(context.Background(), Request{User: "hi"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if _, present := got["chat_template_kwargs"]; present {
		t.Error("chat_template_kwargs sent for non-thinking profile")
	}
	if got["repetition_penalty"] != 1.05 {
		t.Errorf("repetition_penalty = %v", got["repetition_penalty"])
	}
}

func TestGenerate_HTTPErrorIsTyped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient("tabby", tabbyProfile(server.URL), time.Second)
	_, err := c.Generate(context.Background(), Request{User: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}

	var ge *Error
	if !errors.As(err, &ge) {
		t.Fatalf("error not typed: %T", err)
	}
	if ge.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d", ge.Status)
	}
	if IsTimeout(err) {
		t.Error("HTTP error misreported as timeout")
	}
}

func TestGenerate_TimeoutIsTyped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		json.NewEncoder(w).Encode(completionBody("late", 1))
	}))
	defer server.Close()

	c := NewClient("tabby", tabbyProfile(server.URL), 50*time.Millisecond)
	_, err := c.Generate(context.Background(), Request{User: "hi"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsTimeout(err) {
		t.Errorf("timeout not detected: %v", err)
	}
}

func TestGenerate_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	c := NewClient("tabby", tabbyProfile(server.URL), time.Second)
	if _, err := c.Generate(context.Background(), Request{User: "hi"}); err == nil {
		t.Error("expected error for empty choices")
	}
}
