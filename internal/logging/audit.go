package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType identifies a structured audit event.
type AuditEventType string

const (
	// Turn lifecycle
	AuditTurnStart AuditEventType = "turn_start"
	AuditTurnEnd   AuditEventType = "turn_end"

	// Routing and generation
	AuditRouteDecision AuditEventType = "route_decision"
	AuditLLMResponse   AuditEventType = "llm_response"
	AuditLLMError      AuditEventType = "llm_error"

	// Memory
	AuditMemoryStore  AuditEventType = "memory_store"
	AuditMemoryRecall AuditEventType = "memory_recall"

	// Post-processing
	AuditLoopDetected AuditEventType = "loop_detected"
	AuditRegenerated  AuditEventType = "regenerated"
)

// AuditEvent is a structured JSONL audit record. One line per event so the
// file can be tailed or loaded into jq for analysis.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"` // Unix milliseconds
	EventType  AuditEventType         `json:"event"`
	Channel    string                 `json:"channel,omitempty"`
	User       string                 `json:"user,omitempty"`
	Target     string                 `json:"target,omitempty"` // backend, tool, or table
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"msg,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// AuditLogger writes structured events to the daily audit log. A logger may
// be scoped to a channel so callers don't repeat it on every event.
type AuditLogger struct {
	channel string
}

// InitAudit opens the audit log file. No-op when debug mode is off.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil // Already initialized
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file
	return nil
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global audit logger.
func Audit() *AuditLogger {
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// AuditWithChannel returns an audit logger scoped to a channel.
func AuditWithChannel(channel string) *AuditLogger {
	return &AuditLogger{channel: channel}
}

// Log writes an audit event.
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() || auditFile == nil {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.Channel == "" && a.channel != "" {
		event.Channel = a.channel
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

// TurnStart logs the start of a pipeline turn.
func (a *AuditLogger) TurnStart(channel, user string, inputLen int) {
	a.Log(AuditEvent{
		EventType: AuditTurnStart,
		Channel:   channel,
		User:      user,
		Success:   true,
		Fields:    map[string]interface{}{"input_len": inputLen},
		Message:   fmt.Sprintf("Turn started (%d chars)", inputLen),
	})
}

// TurnEnd logs the end of a pipeline turn.
func (a *AuditLogger) TurnEnd(channel string, durationMs int64, success bool) {
	a.Log(AuditEvent{
		EventType:  AuditTurnEnd,
		Channel:    channel,
		Success:    success,
		DurationMs: durationMs,
		Message:    fmt.Sprintf("Turn ended (%dms, success=%v)", durationMs, success),
	})
}

// RouteDecision logs which tools the router selected.
func (a *AuditLogger) RouteDecision(channel string, tools []string, source string) {
	a.Log(AuditEvent{
		EventType: AuditRouteDecision,
		Channel:   channel,
		Success:   true,
		Fields:    map[string]interface{}{"tools": tools, "source": source},
		Message:   fmt.Sprintf("Routed via %s: %v", source, tools),
	})
}

// LLMCall logs a backend completion call.
func (a *AuditLogger) LLMCall(backend string, tokens int, durationMs int64, success bool, errMsg string) {
	eventType := AuditLLMResponse
	if !success {
		eventType = AuditLLMError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Target:     backend,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Fields:     map[string]interface{}{"tokens": tokens},
		Message:    fmt.Sprintf("LLM call: %s -> %d tokens (%dms, success=%v)", backend, tokens, durationMs, success),
	})
}

// MemoryOp logs a fact store or recall.
func (a *AuditLogger) MemoryOp(op AuditEventType, channel string, count int, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  op,
		Channel:    channel,
		Success:    true,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"count": count},
		Message:    fmt.Sprintf("Memory %s: %d rows (%dms)", op, count, durationMs),
	})
}

// LoopEvent logs loop detection and the regeneration attempt.
func (a *AuditLogger) LoopEvent(channel string, similarity float64, regenerated bool) {
	eventType := AuditLoopDetected
	if regenerated {
		eventType = AuditRegenerated
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Channel:   channel,
		Success:   true,
		Fields:    map[string]interface{}{"similarity": similarity},
		Message:   fmt.Sprintf("Loop %s (similarity=%.2f)", eventType, similarity),
	})
}
