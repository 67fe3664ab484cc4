// Package pipeline orchestrates one chat turn end to end: history and
// memory gathering, tool routing, web search, prompt assembly, generation
// with loop breaking, and persistence. Each channel runs its turns
// strictly in order through the Dispatcher.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/revisionhiep-create/Project-Astral/internal/assemble"
	"github.com/revisionhiep-create/Project-Astral/internal/config"
	"github.com/revisionhiep-create/Project-Astral/internal/generate"
	"github.com/revisionhiep-create/Project-Astral/internal/logging"
	"github.com/revisionhiep-create/Project-Astral/internal/platform"
	"github.com/revisionhiep-create/Project-Astral/internal/postprocess"
	"github.com/revisionhiep-create/Project-Astral/internal/router"
	"github.com/revisionhiep-create/Project-Astral/internal/search"
	"github.com/revisionhiep-create/Project-Astral/internal/store"
)

// apologyReply is what the user sees when generation fails outright.
const apologyReply = "something broke on my end, try again?"

// Incoming is one user message entering the pipeline.
type Incoming struct {
	ChannelID string
	MessageID string
	UserID    string
	UserName  string
	Content   string
}

// Reply is the outcome of one turn.
type Reply struct {
	Text        string
	Persisted   bool
	Regenerated bool
	FactsUsed   int
	SearchUsed  int
	Backend     string
}

// PersonaSource yields the current persona text. The hot-reloading
// manager satisfies this; tests use a fixed string.
type PersonaSource interface {
	Text() string
}

// Deps are the pipeline's collaborators. Search and Persona may be nil.
type Deps struct {
	Store     *store.Store
	History   platform.HistorySource
	Memory    *Memory
	Router    *router.Router
	Search    search.Provider
	Persona   PersonaSource
	Backends  map[string]*generate.Client
	Persistor *Persistor
}

// Pipeline runs chat turns.
type Pipeline struct {
	cfg  *config.Config
	deps Deps

	assembler *assemble.Assembler
}

// New builds a pipeline from config and wired collaborators.
func New(cfg *config.Config, deps Deps) *Pipeline {
	return &Pipeline{
		cfg:  cfg,
		deps: deps,
		assembler: assemble.New(cfg.Bot.Name,
			assemble.WithIdentityEvery(cfg.Bot.IdentityReminderEvery),
			assemble.WithBudget(cfg.Bot.TranscriptBudget)),
	}
}

// Turn runs one full exchange and returns the reply to deliver. It never
// returns an error: every failure either degrades the turn or falls back
// to the apology reply.
func (p *Pipeline) Turn(ctx context.Context, msg Incoming) Reply {
	start := time.Now()
	audit := logging.AuditWithChannel(msg.ChannelID)
	audit.TurnStart(msg.ChannelID, msg.UserName, len(msg.Content))
	logging.Pipeline("Turn start channel=%s user=%s (%d chars)", msg.ChannelID, msg.UserName, len(msg.Content))

	history := p.recentHistory(ctx, msg.ChannelID)

	facts := p.deps.Memory.Recall(ctx, msg.ChannelID, msg.Content)
	memoryBlock := FormatFacts(facts)

	decision := p.deps.Router.Decide(ctx, msg.Content, historySnippet(history))
	audit.RouteDecision(msg.ChannelID, decision.Tools(), decision.Source)

	var results []search.Result
	var searchBlock string
	if decision.NeedsSearch && p.deps.Search != nil {
		var err error
		results, err = p.deps.Search.Search(ctx, decision.Query, decision.TimeRange)
		if err != nil {
			logging.Get(logging.CategorySearch).Warn("%v",
				stageError(StageSearch, decision.Query, ErrSearchUnavailable))
			results = nil
		} else {
			searchBlock = search.FormatResults(results)
		}
	}

	system := p.assembler.SystemBlock(p.personaText(), searchBlock, memoryBlock, msg.UserName)
	current := assemble.Message{Speaker: msg.UserName, Content: msg.Content}
	user := p.assembler.UserBlock(history, current)

	client := p.backend(decision.Backend)
	req := generate.Request{System: system, User: user}
	if inputLooksStuck(msg.Content, history) {
		logging.Pipeline("Stuck input detected, spiking sampler params")
		generate.StuckSpike(&req, client.Profile())
	}

	resp, err := client.Generate(ctx, req)
	if err != nil {
		p.logGenerateFailure(msg, client.Name(), err, audit)
		audit.TurnEnd(msg.ChannelID, time.Since(start).Milliseconds(), false)
		return Reply{Text: apologyReply, Backend: client.Name()}
	}
	audit.LLMCall(client.Name(), resp.Tokens, time.Since(start).Milliseconds(), true, "")

	text := postprocess.Clean(resp.Text, p.cfg.Bot.Name)
	text, regenerated := p.breakLoop(ctx, client, req, text, lastBotMessage(history), msg.ChannelID, audit)
	if strings.TrimSpace(text) == "" {
		logging.Get(logging.CategoryPipeline).Warn("%v",
			stageError(StageGenerate, msg.Content, ErrGenerationFailed))
		audit.TurnEnd(msg.ChannelID, time.Since(start).Milliseconds(), false)
		return Reply{Text: apologyReply, Backend: client.Name()}
	}

	final := postprocess.AppendAttribution(text, len(facts), len(results))

	p.deps.Persistor.Persist(ctx, Exchange{
		ChannelID:     msg.ChannelID,
		MessageID:     msg.MessageID,
		UserID:        msg.UserID,
		UserName:      msg.UserName,
		UserMessage:   msg.Content,
		Reply:         final,
		SearchQuery:   decision.Query,
		SearchResults: results,
	})

	audit.TurnEnd(msg.ChannelID, time.Since(start).Milliseconds(), true)
	logging.Pipeline("Turn done channel=%s in %s (facts=%d search=%d regen=%v)",
		msg.ChannelID, time.Since(start).Round(time.Millisecond), len(facts), len(results), regenerated)

	return Reply{
		Text:        final,
		Persisted:   true,
		Regenerated: regenerated,
		FactsUsed:   len(facts),
		SearchUsed:  len(results),
		Backend:     client.Name(),
	}
}

// breakLoop compares the candidate reply against the previous bot message
// and runs at most one spiked regeneration. A second collision is
// accepted as-is.
func (p *Pipeline) breakLoop(ctx context.Context, client *generate.Client, req generate.Request, text, prevBot, channelID string, audit *logging.AuditLogger) (string, bool) {
	breaker := postprocess.NewBreaker(0)
	if breaker.Evaluate(text, prevBot) != postprocess.StateLoopDetected {
		return text, false
	}

	logging.Postprocess("Loop detected (similarity=%.2f), regenerating with spiked params", breaker.Similarity())
	logging.Get(logging.CategoryPostprocess).Warn("%v", stageError(StageLoop, text, ErrLoopDetected))
	audit.LoopEvent(channelID, breaker.Similarity(), false)

	regen := generate.Request{System: req.System, User: req.User, MaxTokens: req.MaxTokens, Stop: req.Stop}
	generate.RegenSpike(&regen, client.Profile())
	breaker.MarkRegenerated()

	resp, err := client.Generate(ctx, regen)
	if err != nil {
		logging.Get(logging.CategoryPostprocess).Warn("Regeneration failed, keeping original reply: %v", err)
		return text, false
	}

	fresh := postprocess.Clean(resp.Text, p.cfg.Bot.Name)
	breaker.Evaluate(fresh, prevBot)
	audit.LoopEvent(channelID, breaker.Similarity(), true)
	return fresh, true
}

// recentHistory loads the channel transcript for the prompt, stripping
// attribution footers off the bot's own prior turns.
func (p *Pipeline) recentHistory(ctx context.Context, channelID string) []assemble.Message {
	n := p.cfg.Bot.HistoryWindow
	msgs, err := p.deps.History.Recent(ctx, channelID, n)
	if err != nil {
		logging.Get(logging.CategoryPipeline).Warn("History fetch failed, running with empty transcript: %v", err)
		return nil
	}

	out := make([]assemble.Message, 0, len(msgs))
	for _, m := range msgs {
		content := m.Content
		if m.FromBot {
			content = postprocess.StripAttribution(content)
		}
		out = append(out, assemble.Message{
			Speaker: m.UserName,
			FromBot: m.FromBot,
			Content: content,
		})
	}
	return out
}

func (p *Pipeline) personaText() string {
	if p.deps.Persona == nil {
		return ""
	}
	return p.deps.Persona.Text()
}

// backend resolves a router's backend pick against the configured
// profiles, falling back to the default.
func (p *Pipeline) backend(name string) *generate.Client {
	if c, ok := p.deps.Backends[name]; ok {
		return c
	}
	return p.deps.Backends[p.cfg.Backends.Default]
}

func (p *Pipeline) logGenerateFailure(msg Incoming, backend string, err error, audit *logging.AuditLogger) {
	kind := "error"
	if generate.IsTimeout(err) {
		kind = "timeout"
	}
	logging.Get(logging.CategoryGenerate).Error("Backend %s %s: %v",
		backend, kind, stageError(StageGenerate, msg.Content, err))
	audit.LLMCall(backend, 0, 0, false, err.Error())
}

// HandleEdit applies a platform-side message edit to stored history. An
// in-flight turn for that message is never interrupted; the turn that
// already started completes against the text it saw.
func (p *Pipeline) HandleEdit(messageID, content string) {
	if err := p.deps.Store.UpdateTurnContent(messageID, content); err != nil {
		logging.Get(logging.CategoryPipeline).Warn("Edit for message %s not applied: %v", messageID, err)
	}
}

// HandleDelete removes a deleted message from stored history. Same
// contract as HandleEdit: in-flight turns complete.
func (p *Pipeline) HandleDelete(messageID string) {
	if err := p.deps.Store.DeleteTurn(messageID); err != nil {
		logging.Get(logging.CategoryPipeline).Warn("Delete for message %s not applied: %v", messageID, err)
	}
}

// inputLooksStuck reports whether the incoming message itself signals a
// loop: the user pasted the bot's last reply back, or repeated their own
// previous message verbatim.
func inputLooksStuck(current string, history []assemble.Message) bool {
	trimmed := strings.TrimSpace(current)
	if len(trimmed) <= 10 {
		return false
	}

	if last := lastBotMessage(history); last != "" && trimmed == strings.TrimSpace(last) {
		return true
	}

	for i := len(history) - 1; i >= 0; i-- {
		if history[i].FromBot {
			continue
		}
		return strings.EqualFold(trimmed, strings.TrimSpace(history[i].Content))
	}
	return false
}

func lastBotMessage(history []assemble.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].FromBot {
			return history[i].Content
		}
	}
	return ""
}

// historySnippet flattens recent history for the routing prompt, newest
// last.
func historySnippet(history []assemble.Message) string {
	if len(history) == 0 {
		return ""
	}
	keep := history
	if len(keep) > 6 {
		keep = keep[len(keep)-6:]
	}
	var b strings.Builder
	for _, m := range keep {
		b.WriteString("[")
		b.WriteString(m.Speaker)
		b.WriteString("]: ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
