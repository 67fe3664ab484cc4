package persona

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadCharacters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "characters.yaml")
	writeFile(t, path, `characters:
  liddo:
    description: cute chibi with a red bunny hood
    keywords: [lid, bunny]
  astra:
    description: the bot itself
`)

	chars, err := LoadCharacters(path)
	if err != nil {
		t.Fatalf("LoadCharacters: %v", err)
	}
	if len(chars) != 2 {
		t.Fatalf("got %d characters", len(chars))
	}
	if chars["liddo"].Keywords[0] != "lid" {
		t.Errorf("keywords = %v", chars["liddo"].Keywords)
	}
}

func TestLoadCharacters_MissingFileIsEmpty(t *testing.T) {
	chars, err := LoadCharacters(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadCharacters: %v", err)
	}
	if len(chars) != 0 {
		t.Errorf("expected empty map, got %v", chars)
	}
}

func TestFormatRoster_SkipsBotAndSorts(t *testing.T) {
	chars := map[string]Character{
		"zed":   {Description: "last alphabetically"},
		"astra": {Description: "the bot, must be skipped"},
		"liddo": {Description: "chibi", Keywords: []string{"lid", "bunny", "extra"}},
	}

	got := FormatRoster(chars, "Astra")
	if strings.Contains(got, "astra") || strings.Contains(got, "Astra") {
		t.Errorf("bot's own entry leaked into roster: %q", got)
	}

	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), got)
	}
	if !strings.HasPrefix(lines[0], "- Liddo (lid, bunny):") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "- Zed:") {
		t.Errorf("second line = %q", lines[1])
	}
}

func TestCompose_Placeholder(t *testing.T) {
	chars := map[string]Character{"liddo": {Description: "chibi"}}
	got := Compose("intro\n{characters}\noutro", chars, "Astra")
	if !strings.Contains(got, "- Liddo: chibi") {
		t.Errorf("roster not substituted: %q", got)
	}
	if strings.Contains(got, "{characters}") {
		t.Errorf("placeholder survived: %q", got)
	}
}

func TestCompose_AppendsWithoutPlaceholder(t *testing.T) {
	chars := map[string]Character{"liddo": {Description: "chibi"}}
	got := Compose("just the core", chars, "Astra")
	if !strings.Contains(got, "PEOPLE YOU KNOW") {
		t.Errorf("roster section missing: %q", got)
	}
}

func TestCompose_NoCharactersIsCoreOnly(t *testing.T) {
	got := Compose("just the core", nil, "Astra")
	if got != "just the core" {
		t.Errorf("got %q", got)
	}
}

func TestNewManager_LoadsAndComposes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "persona.md"), "core text\n{characters}")
	writeFile(t, filepath.Join(dir, "characters.yaml"), "characters:\n  liddo:\n    description: chibi\n")

	m, err := NewManager(filepath.Join(dir, "persona.md"), "Astra")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if !strings.Contains(m.Text(), "- Liddo: chibi") {
		t.Errorf("composed text = %q", m.Text())
	}
}

func TestNewManager_MissingFileUsesDefault(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "persona.md"), "Nova")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if !strings.Contains(m.Text(), "You are Nova") {
		t.Errorf("default persona missing bot name: %q", m.Text())
	}
}

func TestManager_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persona.md")
	writeFile(t, path, "version one")

	m, err := NewManager(path, "Astra")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	writeFile(t, path, "version two")
	if err := m.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if m.Text() != "version two" {
		t.Errorf("text = %q after reload", m.Text())
	}
	if m.Reloads() != 1 {
		t.Errorf("reloads = %d", m.Reloads())
	}
}

func TestManager_HotReload(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping watcher test in short mode")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "persona.md")
	writeFile(t, path, "version one")

	m, err := NewManager(path, "Astra")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	writeFile(t, path, "version two")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if m.Text() == "version two" {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("hot reload did not apply; text = %q", m.Text())
}
