package assemble

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	}
}

func TestDateContext(t *testing.T) {
	a := New("Astra", withClock(fixedClock()))
	got := a.DateContext()
	want := "Today is Saturday, March 14, 2026."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSystemBlock_Ordering(t *testing.T) {
	a := New("Astra", withClock(fixedClock()))
	block := a.SystemBlock("PERSONALITY TEXT", "- hit one", "- fact one", "alice")

	dateIdx := strings.Index(block, "Today is")
	persIdx := strings.Index(block, "PERSONALITY TEXT")
	searchIdx := strings.Index(block, "- hit one")
	memIdx := strings.Index(block, "- fact one")
	speakerIdx := strings.Index(block, "Current speaker: alice")
	rulesIdx := strings.Index(block, "RULES")

	for name, idx := range map[string]int{
		"date": dateIdx, "personality": persIdx, "search": searchIdx,
		"memory": memIdx, "speaker": speakerIdx, "rules": rulesIdx,
	} {
		if idx < 0 {
			t.Fatalf("%s section missing:\n%s", name, block)
		}
	}

	if !(dateIdx < persIdx && persIdx < searchIdx && searchIdx < memIdx && memIdx < speakerIdx && speakerIdx < rulesIdx) {
		t.Errorf("sections out of order: date=%d pers=%d search=%d mem=%d speaker=%d rules=%d",
			dateIdx, persIdx, searchIdx, memIdx, speakerIdx, rulesIdx)
	}

	// Search is flagged as primary, memory as background.
	if !strings.Contains(block, "primary source") {
		t.Error("search block not flagged as primary source")
	}
	if !strings.Contains(block, "lower priority") {
		t.Error("memory block not deprioritized")
	}
}

func TestSystemBlock_OmitsEmptySections(t *testing.T) {
	a := New("Astra", withClock(fixedClock()))
	block := a.SystemBlock("persona", "", "", "")
	if strings.Contains(block, "Search results") {
		t.Error("empty search block rendered")
	}
	if strings.Contains(block, "Things you remember") {
		t.Error("empty memory block rendered")
	}
	if strings.Contains(block, "Current speaker") {
		t.Error("empty speaker rendered")
	}
}

func TestUserBlock_TranscriptFormat(t *testing.T) {
	a := New("Astra")
	got := a.UserBlock(
		[]Message{
			{Speaker: "alice", Content: "hello"},
			{FromBot: true, Content: "hey"},
		},
		Message{Speaker: "alice", Content: "how are you"},
	)

	for _, want := range []string{
		"[alice]: hello",
		"[Astra]: hey",
		"[alice]: how are you",
		"Reply to the last message as Astra",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}

	// Current message is the last transcript line.
	lines := strings.Split(got, "\n")
	var lastTranscript string
	for _, l := range lines {
		if strings.HasPrefix(l, "[") {
			lastTranscript = l
		}
	}
	if lastTranscript != "[alice]: how are you" {
		t.Errorf("last transcript line = %q", lastTranscript)
	}
}

func TestUserBlock_IdentityReminderAtMidpoint(t *testing.T) {
	a := New("Astra", WithIdentityEvery(8))

	var history []Message
	for i := 0; i < 10; i++ {
		history = append(history, Message{Speaker: "alice", Content: fmt.Sprintf("msg %d", i)})
	}
	got := a.UserBlock(history, Message{Speaker: "alice", Content: "current"})

	if !strings.Contains(got, "(reminder: you are Astra") {
		t.Fatalf("reminder missing:\n%s", got)
	}

	// Reminder sits mid-history, not at either edge.
	remIdx := strings.Index(got, "(reminder:")
	firstIdx := strings.Index(got, "msg 0")
	lastIdx := strings.Index(got, "msg 9")
	if !(firstIdx < remIdx && remIdx < lastIdx) {
		t.Errorf("reminder not mid-transcript: first=%d rem=%d last=%d", firstIdx, remIdx, lastIdx)
	}
}

func TestUserBlock_NoReminderForShortHistory(t *testing.T) {
	a := New("Astra", WithIdentityEvery(8))
	got := a.UserBlock(
		[]Message{{Speaker: "alice", Content: "hi"}},
		Message{Speaker: "alice", Content: "current"},
	)
	if strings.Contains(got, "(reminder:") {
		t.Error("reminder inserted for short history")
	}
}

func TestUserBlock_BudgetDropsOldestFirst(t *testing.T) {
	a := New("Astra", WithBudget(300), WithRecentKeep(3), WithIdentityEvery(0))

	var history []Message
	for i := 0; i < 12; i++ {
		history = append(history, Message{Speaker: "alice", Content: fmt.Sprintf("message number %02d padding padding", i)})
	}
	got := a.UserBlock(history, Message{Speaker: "alice", Content: "current"})

	if strings.Contains(got, "message number 00") {
		t.Error("oldest line survived the budget")
	}
	// The most recent 3 are untouchable.
	for i := 9; i < 12; i++ {
		if !strings.Contains(got, fmt.Sprintf("message number %02d", i)) {
			t.Errorf("recent line %d truncated", i)
		}
	}
}

func TestUserBlock_BudgetNeverDropsReminder(t *testing.T) {
	a := New("Astra", WithBudget(250), WithRecentKeep(2), WithIdentityEvery(4))

	var history []Message
	for i := 0; i < 10; i++ {
		history = append(history, Message{Speaker: "alice", Content: fmt.Sprintf("filler line %02d with some padding text", i)})
	}
	got := a.UserBlock(history, Message{Speaker: "alice", Content: "current"})

	if !strings.Contains(got, "(reminder: you are Astra") {
		t.Errorf("reminder dropped by budget:\n%s", got)
	}
}

func TestUserBlock_UnknownSpeakerDefaultsToUser(t *testing.T) {
	a := New("Astra")
	got := a.UserBlock(nil, Message{Content: "anonymous message"})
	if !strings.Contains(got, "[User]: anonymous message") {
		t.Errorf("got:\n%s", got)
	}
}
