package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/revisionhiep-create/Project-Astral/internal/config"
	"github.com/revisionhiep-create/Project-Astral/internal/embedding"
	"github.com/revisionhiep-create/Project-Astral/internal/generate"
	"github.com/revisionhiep-create/Project-Astral/internal/logging"
	"github.com/revisionhiep-create/Project-Astral/internal/postprocess"
	"github.com/revisionhiep-create/Project-Astral/internal/search"
	"github.com/revisionhiep-create/Project-Astral/internal/store"
)

// Fact sources recorded in the store.
const (
	SourceConversation = "conversation"
	SourceSearch       = "search"
)

// Exchange is everything a completed turn leaves behind for persistence.
type Exchange struct {
	ChannelID   string
	MessageID   string
	UserID      string
	UserName    string
	UserMessage string

	// Reply as sent, attribution footer included.
	Reply string

	SearchQuery   string
	SearchResults []search.Result
}

// Persistor turns a finished exchange into durable memory: the raw turns
// for short-term history, one extracted fact for long-term recall, and
// any search results as reference facts. Every step logs its own failure
// and moves on; persistence never propagates an error into the turn.
type Persistor struct {
	store      *store.Store
	engine     embedding.Engine
	summarizer *generate.Client // nil disables fact extraction
	botName    string

	minUserChars     int
	minCombinedChars int
}

// NewPersistor wires the persistence stage. summarizer may be nil, which
// keeps raw history but extracts no facts.
func NewPersistor(st *store.Store, eng embedding.Engine, summarizer *generate.Client, botName string, cfg config.MemoryConfig) *Persistor {
	p := &Persistor{
		store:            st,
		engine:           eng,
		summarizer:       summarizer,
		botName:          botName,
		minUserChars:     cfg.MinUserChars,
		minCombinedChars: cfg.MinCombinedChars,
	}
	if p.minUserChars <= 0 {
		p.minUserChars = 15
	}
	if p.minCombinedChars <= 0 {
		p.minCombinedChars = 50
	}
	return p
}

// Persist records one exchange. Called synchronously at the end of a turn
// so channel workers stay FIFO through storage.
func (p *Persistor) Persist(ctx context.Context, ex Exchange) {
	reply := postprocess.StripAttribution(ex.Reply)

	if err := p.store.StoreTurn(store.Turn{
		ChannelID: ex.ChannelID,
		MessageID: ex.MessageID,
		Role:      "user",
		UserName:  ex.UserName,
		Content:   ex.UserMessage,
	}); err != nil {
		logging.Get(logging.CategoryPersist).Error("%v", stageError(StagePersist, ex.UserMessage, err))
	}
	if err := p.store.StoreTurn(store.Turn{
		ChannelID: ex.ChannelID,
		MessageID: uuid.NewString(),
		Role:      "bot",
		UserName:  p.botName,
		Content:   reply,
	}); err != nil {
		logging.Get(logging.CategoryPersist).Error("%v", stageError(StagePersist, reply, err))
	}

	if len(ex.SearchResults) > 0 {
		p.storeSearchResults(ctx, ex)
	}

	fact := p.extractFact(ctx, ex.UserName, ex.UserMessage, reply)
	if fact == "" {
		return
	}
	p.storeFact(ctx, ex, fact)
}

// extractFact asks the summarizer for one durable fact about the user.
// Returns "" when the exchange is chatter or extraction fails.
func (p *Persistor) extractFact(ctx context.Context, userName, userMessage, reply string) string {
	if len(strings.TrimSpace(userMessage)) < p.minUserChars &&
		len(strings.TrimSpace(reply)) < p.minCombinedChars {
		logging.Get(logging.CategoryPersist).Debug("Skipping short exchange, nothing to extract")
		return ""
	}
	if p.summarizer == nil {
		return ""
	}

	temp := 0.1
	resp, err := p.summarizer.Generate(ctx, generate.Request{
		User:        extractionPrompt(p.botName, userName, userMessage, reply),
		MaxTokens:   100,
		Temperature: &temp,
	})
	if err != nil {
		logging.Get(logging.CategoryPersist).Warn("%v",
			stageError(StagePersist, userMessage, fmt.Errorf("fact extraction: %w", err)))
		return ""
	}

	fact := strings.TrimSpace(postprocess.StripReasoning(resp.Text))
	if fact == "" || strings.EqualFold(fact, "NONE") || len(fact) < 10 {
		logging.Get(logging.CategoryPersist).Debug("No durable fact in exchange (model said %q)", truncateExcerpt(fact))
		return ""
	}
	return fact
}

func (p *Persistor) storeFact(ctx context.Context, ex Exchange, fact string) {
	vec, err := p.engine.EmbedDocument(ctx, fact)
	if err != nil {
		logging.Get(logging.CategoryPersist).Warn("%v",
			stageError(StagePersist, fact, fmt.Errorf("embed fact: %w", err)))
		return
	}
	id, err := p.store.StoreFact(store.Fact{
		ChannelID: ex.ChannelID,
		UserID:    ex.UserID,
		UserName:  ex.UserName,
		Content:   fact,
		Embedding: vec,
		Source:    SourceConversation,
	})
	if err != nil {
		logging.Get(logging.CategoryPersist).Error("%v", stageError(StagePersist, fact, err))
		return
	}
	logging.Persist("Stored fact %d for %s: %s", id, ex.UserName, truncateExcerpt(fact))
	logging.AuditWithChannel(ex.ChannelID).MemoryOp(logging.AuditMemoryStore, ex.ChannelID, 1, 0)
}

// storeSearchResults keeps the full result set as one reference fact so a
// later question on the same topic can recall it without a fresh search.
// The embedding anchors on the query, which is what a future message will
// actually resemble.
func (p *Persistor) storeSearchResults(ctx context.Context, ex Exchange) {
	content := formatSearchFact(ex.SearchQuery, ex.SearchResults)

	vec, err := p.engine.EmbedDocument(ctx, "Search about: "+ex.SearchQuery)
	if err != nil {
		logging.Get(logging.CategoryPersist).Warn("%v",
			stageError(StagePersist, ex.SearchQuery, fmt.Errorf("embed search fact: %w", err)))
		return
	}
	if _, err := p.store.StoreFact(store.Fact{
		ChannelID: ex.ChannelID,
		UserID:    ex.UserID,
		UserName:  ex.UserName,
		Content:   content,
		Embedding: vec,
		Source:    SourceSearch,
	}); err != nil {
		logging.Get(logging.CategoryPersist).Error("%v", stageError(StagePersist, ex.SearchQuery, err))
		return
	}
	logging.Persist("Stored %d search results for query %q", len(ex.SearchResults), ex.SearchQuery)
}

func formatSearchFact(query string, results []search.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Search Query: %s\n\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "Result %d:\n", i+1)
		fmt.Fprintf(&b, "Title: %s\n", r.Title)
		fmt.Fprintf(&b, "URL: %s\n", r.URL)
		fmt.Fprintf(&b, "Content: %s\n\n", r.Snippet)
	}
	return strings.TrimRight(b.String(), "\n")
}

func extractionPrompt(botName, userName, userMessage, reply string) string {
	return fmt.Sprintf(`Extract ONE factual statement about %[1]s from this conversation, or respond with exactly "NONE" if there's no meaningful fact to remember.

Conversation:
[%[1]s]: %[2]s
[%[3]s]: %[4]s

Rules:
- Extract facts about the USER, not about %[3]s
- Facts should be useful for future reference (preferences, projects, relationships, interests)
- "lol", "k", "brb", greetings, and small talk are NOT facts - return NONE
- Generic statements like "User is chatting" are NOT useful - return NONE
- Format: "%[1]s [fact about them]"
- One fact only, or NONE

Respond with the fact or NONE:`, userName, userMessage, botName, reply)
}

func truncateExcerpt(s string) string {
	return clip(s, excerptLen)
}
