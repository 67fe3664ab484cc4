// Package persona loads the bot's personality blob: a markdown core plus
// an optional characters file describing the people the bot knows. The
// composed text becomes the top of every system prompt.
package persona

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/revisionhiep-create/Project-Astral/internal/logging"
)

// charactersPlaceholder marks where the character roster is substituted
// into the persona markdown. Without it the roster is appended as its own
// section.
const charactersPlaceholder = "{characters}"

// maxCharacterDesc caps each roster line so a sprawling characters file
// cannot crowd out the rest of the prompt.
const maxCharacterDesc = 150

// Character is one entry in the roster.
type Character struct {
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
}

type charactersFile struct {
	Characters map[string]Character `yaml:"characters"`
}

// LoadCharacters parses a roster YAML. A missing file is not an error;
// it returns an empty map.
func LoadCharacters(path string) (map[string]Character, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Character{}, nil
		}
		return nil, fmt.Errorf("read characters file: %w", err)
	}

	var parsed charactersFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse characters file: %w", err)
	}
	if parsed.Characters == nil {
		parsed.Characters = map[string]Character{}
	}
	return parsed.Characters, nil
}

// FormatRoster renders the characters as prompt lines, skipping the bot's
// own entry. Names are sorted for a stable prompt.
func FormatRoster(characters map[string]Character, botName string) string {
	names := make([]string, 0, len(characters))
	for name := range characters {
		if strings.EqualFold(name, botName) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		c := characters[name]
		desc := c.Description
		if len(desc) > maxCharacterDesc {
			desc = desc[:maxCharacterDesc]
		}
		alias := ""
		if len(c.Keywords) > 0 {
			kw := c.Keywords
			if len(kw) > 2 {
				kw = kw[:2]
			}
			alias = fmt.Sprintf(" (%s)", strings.Join(kw, ", "))
		}
		fmt.Fprintf(&sb, "- %s%s: %s\n", titleCase(name), alias, desc)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Compose merges the persona markdown with the character roster.
func Compose(core string, characters map[string]Character, botName string) string {
	roster := FormatRoster(characters, botName)
	if strings.Contains(core, charactersPlaceholder) {
		return strings.ReplaceAll(core, charactersPlaceholder, roster)
	}
	if roster == "" {
		return core
	}
	return strings.TrimRight(core, "\n") + "\n\nPEOPLE YOU KNOW\n" + roster
}

// load reads the persona markdown at path and folds in the sibling
// characters.yaml if one exists. A missing persona file falls back to a
// minimal built-in personality so the bot can still boot.
func load(path, botName string) (string, error) {
	core, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Get(logging.CategoryBoot).Warn("Persona file %s missing, using built-in default", path)
			return defaultPersona(botName), nil
		}
		return "", fmt.Errorf("read persona file: %w", err)
	}

	characters, err := LoadCharacters(filepath.Join(filepath.Dir(path), "characters.yaml"))
	if err != nil {
		logging.Get(logging.CategoryBoot).Warn("Characters file unreadable, continuing without roster: %v", err)
		characters = map[string]Character{}
	}

	return Compose(string(core), characters, botName), nil
}

func defaultPersona(botName string) string {
	name := botName
	if name == "" {
		name = "Astra"
	}
	return fmt.Sprintf(`You are %s.

PERSONALITY
Relaxed but sharp. Dry humor. Observant and blunt, never hostile.

SPEECH STYLE
Always lowercase. 1-4 sentences typical. Plain text, no quotation marks
around replies. Talk like a real person texting.

HONESTY
Never fabricate facts or invent user statements. If unsure, say so.

SEARCH RESULTS
When search results are provided, use them as your primary source. Weave
facts naturally. If results don't answer the question, say so.

ANTI-LOOP
Vary tone and phrasing. Each reply takes a fresh angle.`, name)
}
