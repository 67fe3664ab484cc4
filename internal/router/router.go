// Package router decides, per inbound message, whether the reply needs a
// web search and with what query. A small instruction-following model makes
// the call; keyword heuristics cover configurations without an API key and
// every failure path. Routing never fails a turn: the worst case is a
// conservative fallback decision.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"google.golang.org/genai"

	"github.com/revisionhiep-create/Project-Astral/internal/logging"
	"github.com/revisionhiep-create/Project-Astral/internal/search"
)

// Decision is the routing outcome for one message. Created fresh per
// message, never persisted.
type Decision struct {
	NeedsSearch bool
	// Query is the pronoun-resolved, de-contextualized search query.
	Query     string
	TimeRange search.TimeRange
	Backend   string
	Reasoning string
	// Source records which path produced the decision: model, heuristic,
	// or fallback.
	Source string
}

const (
	SourceModel     = "model"
	SourceHeuristic = "heuristic"
	SourceFallback  = "fallback"
)

// Conservative fallback: only messages past this length are worth a raw-
// query search when the routing model's output cannot be parsed.
const fallbackSearchMinChars = 15

const decisionMaxContext = 3000

// Router picks tools for each message.
type Router struct {
	client         *genai.Client
	model          string
	defaultBackend string
	timeout        time.Duration
	heuristicsOnly bool
}

// Config for NewRouter.
type Config struct {
	APIKey         string
	Model          string
	DefaultBackend string
	Timeout        time.Duration
	// HeuristicsOnly skips the routing model entirely.
	HeuristicsOnly bool
}

// NewRouter builds a router. Without an API key it degrades to
// heuristics-only routing.
func NewRouter(ctx context.Context, cfg Config) (*Router, error) {
	r := &Router{
		model:          cfg.Model,
		defaultBackend: cfg.DefaultBackend,
		timeout:        cfg.Timeout,
		heuristicsOnly: cfg.HeuristicsOnly,
	}
	if r.model == "" {
		r.model = "gemini-2.0-flash"
	}
	if r.timeout <= 0 {
		r.timeout = 15 * time.Second
	}

	if cfg.HeuristicsOnly || cfg.APIKey == "" {
		if !cfg.HeuristicsOnly {
			logging.Router("No routing API key; using heuristic routing")
		}
		r.heuristicsOnly = true
		return r, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create routing client: %w", err)
	}
	r.client = client
	return r, nil
}

// Decide routes one message. contextText is the recent conversation,
// newest last, used for pronoun resolution. Never returns an error; every
// failure degrades to a usable decision.
func (r *Router) Decide(ctx context.Context, userMessage, contextText string) Decision {
	if r.heuristicsOnly || r.client == nil {
		d := HeuristicDecision(userMessage)
		d.Backend = r.defaultBackend
		logging.Router("Decision (heuristic): search=%v range=%s query=%q",
			d.NeedsSearch, d.TimeRange, truncate(d.Query, 50))
		return d
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	prompt := buildDecisionPrompt(userMessage, contextText)
	resp, err := r.client.Models.GenerateContent(ctx, r.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			Temperature:      genai.Ptr[float32](0.1),
			MaxOutputTokens:  256,
			ResponseMIMEType: "application/json",
		})
	if err != nil {
		logging.Get(logging.CategoryRouter).Warn("Routing model call failed: %v", err)
		d := HeuristicDecision(userMessage)
		d.Backend = r.defaultBackend
		d.Source = SourceFallback
		return d
	}

	d := decisionFromText(resp.Text(), userMessage, r.defaultBackend)
	logging.Router("Decision (%s): search=%v range=%s query=%q reason=%q",
		d.Source, d.NeedsSearch, d.TimeRange, truncate(d.Query, 50), d.Reasoning)
	return d
}

// Tools lists the tool names a decision selects, for audit logging.
func (d Decision) Tools() []string {
	if d.NeedsSearch {
		return []string{"search"}
	}
	return nil
}

// decisionFromText parses the routing model's output, falling back to a
// conservative decision when no JSON can be recovered: search only for
// longer messages, with the raw message as query.
func decisionFromText(text, userMessage, defaultBackend string) Decision {
	raw, err := extractJSON(text)
	if err != nil {
		logging.Get(logging.CategoryRouter).Warn("Routing output unparseable: %v", err)
		return Decision{
			NeedsSearch: len(userMessage) > fallbackSearchMinChars,
			Query:       userMessage,
			TimeRange:   search.TimeAll,
			Backend:     defaultBackend,
			Reasoning:   "fallback due to parse error",
			Source:      SourceFallback,
		}
	}

	d := Decision{
		NeedsSearch: raw.Search,
		Query:       strings.TrimSpace(raw.SearchQuery),
		TimeRange:   search.ParseTimeRange(raw.TimeRange),
		Backend:     defaultBackend,
		Reasoning:   raw.Reasoning,
		Source:      SourceModel,
	}
	if d.NeedsSearch && d.Query == "" {
		d.Query = userMessage
	}
	// Post-check: the model sometimes leaves time_range null for clearly
	// realtime subjects. Tighten it from vocabulary.
	if d.NeedsSearch && d.TimeRange == search.TimeAll {
		lower := strings.ToLower(userMessage)
		if containsAny(lower, realtimeDayWords) || containsAny(lower, presentWords) {
			d.TimeRange = search.TimeDay
		}
	}
	return d
}

func buildDecisionPrompt(userMessage, contextText string) string {
	if contextText == "" {
		contextText = "(no context)"
	} else if len(contextText) > decisionMaxContext {
		contextText = contextText[len(contextText)-decisionMaxContext:]
	}

	return fmt.Sprintf(`Analyze this chat message and decide what tools are needed.

Recent chat context:
%s

Current message: %s

Respond with ONLY valid JSON:
{
  "search": true or false,
  "search_query": "optimized search query if search is true, otherwise empty string",
  "time_range": "day/week/month/year or null for all-time",
  "reasoning": "brief one-line explanation"
}

Rules:
- search=true: ANY question requiring CURRENT/REAL-TIME info (weather, prices, scores, news, recent events)
- search=true: factual questions about specific people, things, events, releases, updates
- search=true: questions with time words like "now", "today", "current", "latest", "recent", "will" (future)
- search=true: when you're not certain about the answer - better to search than guess
- search=false: well-known concepts, casual chat, greetings, pure opinions, emotional support
- search=false: personal questions about the user or reactions to what they said

QUERY REWRITING (CRITICAL):
- De-contextualize: replace ALL pronouns (he, she, it, they, this, that) with specific entities from chat context
- Bad: "How old is he?" -> Good: "Tim Cook age" (if context mentioned Tim Cook)
- Extract key terms, add context (city names, specific topics), remove filler words

TIME RANGE:
- "day" or "week": news, current events, scores, weather
- "month" or "year": recent releases, updates, new products
- null: historical facts, biographies, evergreen information

Examples:
- "when will the snow melt in DC" -> {"search": true, "search_query": "Washington DC weather forecast snow", "time_range": "week", "reasoning": "weather is real-time"}
- "who won the game" -> {"search": true, "search_query": "latest game score results", "time_range": "day", "reasoning": "sports scores are real-time"}
- "How old is he?" (context: discussed Tim Cook) -> {"search": true, "search_query": "Tim Cook age", "time_range": null, "reasoning": "resolved pronoun from context"}
- "what is Stoicism" -> {"search": false, "search_query": "", "time_range": null, "reasoning": "well-known concept"}
- "hey what's up" -> {"search": false, "search_query": "", "time_range": null, "reasoning": "casual greeting"}`,
		contextText, userMessage)
}

// truncate bounds s to n bytes, backing up to a rune boundary so log
// lines stay valid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
