package blacklist

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"
)

// Config holds the built-in protected terms and matching behavior.
type Config struct {
	// Words are protected verbatim terms.
	Words []string
	// Patterns are regular expressions whose matches are protected.
	Patterns []string
	// CaseSensitive controls word and pattern matching.
	CaseSensitive bool
	// File optionally points to a JSON blacklist that replaces the
	// built-in terms at load time.
	File string
}

// Manager holds terms that must pass through translation unchanged.
// Protect swaps every occurrence for an opaque placeholder before the
// text goes to the backend; Restore swaps them back afterwards.
type Manager struct {
	words         map[string]struct{}
	patterns      []*regexp.Regexp
	caseSensitive bool
	log           *slog.Logger
}

// fileFormat is the JSON shape for exported and imported blacklists.
type fileFormat struct {
	CaseSensitive bool     `json:"case_sensitive"`
	Words         []string `json:"words"`
	Patterns      []string `json:"patterns"`
}

// New creates a manager from the built-in config, then overlays the
// configured file if one is set.
func New(cfg Config, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Manager{
		words:         make(map[string]struct{}),
		caseSensitive: cfg.CaseSensitive,
		log:           logger,
	}
	for _, w := range cfg.Words {
		if err := m.AddWord(w); err != nil {
			return nil, err
		}
	}
	for _, p := range cfg.Patterns {
		if err := m.AddPattern(p); err != nil {
			return nil, err
		}
	}
	if cfg.File != "" {
		if err := m.LoadFile(cfg.File); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// AddWord registers a verbatim protected term.
func (m *Manager) AddWord(word string) error {
	if word == "" {
		return fmt.Errorf("blacklist word must not be empty")
	}
	if !m.caseSensitive {
		word = strings.ToLower(word)
	}
	m.words[word] = struct{}{}
	return nil
}

// AddPattern registers a regular expression whose matches are
// protected.
func (m *Manager) AddPattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("blacklist pattern must not be empty")
	}
	if !m.caseSensitive && !strings.HasPrefix(pattern, "(?i)") {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid blacklist pattern %q: %w", pattern, err)
	}
	m.patterns = append(m.patterns, re)
	return nil
}

// RemoveWord unregisters a term.
func (m *Manager) RemoveWord(word string) error {
	if !m.caseSensitive {
		word = strings.ToLower(word)
	}
	if _, ok := m.words[word]; !ok {
		return fmt.Errorf("blacklist word not found: %s", word)
	}
	delete(m.words, word)
	return nil
}

// IsProtected reports whether text contains any protected term.
func (m *Manager) IsProtected(text string) bool {
	check := text
	if !m.caseSensitive {
		check = strings.ToLower(text)
	}
	for w := range m.words {
		if strings.Contains(check, w) {
			return true
		}
	}
	for _, re := range m.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Protect replaces every protected occurrence with an indexed
// placeholder and returns the substituted text with the mapping needed
// to undo it. Longer words are replaced first so overlapping terms do
// not clip each other.
func (m *Manager) Protect(text string) (string, map[string]string) {
	placeholders := make(map[string]string)
	next := 0

	replace := func(s, match string) string {
		for ph, orig := range placeholders {
			if orig == match {
				return strings.ReplaceAll(s, match, ph)
			}
		}
		ph := fmt.Sprintf("__PROTECTED_%d__", next)
		next++
		placeholders[ph] = match
		return strings.ReplaceAll(s, match, ph)
	}

	words := make([]string, 0, len(m.words))
	for w := range m.words {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool { return len(words[i]) > len(words[j]) })

	out := text
	for _, w := range words {
		re, err := regexp.Compile(m.wordPattern(w))
		if err != nil {
			continue
		}
		for _, match := range re.FindAllString(out, -1) {
			out = replace(out, match)
		}
	}
	for _, re := range m.patterns {
		for _, match := range re.FindAllString(out, -1) {
			out = replace(out, match)
		}
	}
	if len(placeholders) > 0 {
		m.log.Debug("protected terms before translation", "count", len(placeholders))
	}
	return out, placeholders
}

// Restore swaps placeholders back to the original terms.
func (m *Manager) Restore(text string, placeholders map[string]string) string {
	out := text
	for ph, orig := range placeholders {
		out = strings.ReplaceAll(out, ph, orig)
	}
	return out
}

// Matches returns the protected words and pattern matches found in
// text, each list sorted.
func (m *Manager) Matches(text string) (words, patterns []string) {
	check := text
	if !m.caseSensitive {
		check = strings.ToLower(text)
	}
	for w := range m.words {
		if strings.Contains(check, w) {
			words = append(words, w)
		}
	}
	for _, re := range m.patterns {
		patterns = append(patterns, re.FindAllString(text, -1)...)
	}
	sort.Strings(words)
	sort.Strings(patterns)
	return words, patterns
}

// Export writes the blacklist as JSON.
func (m *Manager) Export(path string) error {
	data := fileFormat{CaseSensitive: m.caseSensitive}
	for w := range m.words {
		data.Words = append(data.Words, w)
	}
	sort.Strings(data.Words)
	for _, re := range m.patterns {
		data.Patterns = append(data.Patterns, re.String())
	}
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal blacklist: %w", err)
	}
	if err := os.WriteFile(path, append(out, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write blacklist: %w", err)
	}
	return nil
}

// LoadFile replaces the current terms with the contents of a JSON
// blacklist file.
func (m *Manager) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read blacklist file: %w", err)
	}
	var data fileFormat
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to parse blacklist file: %w", err)
	}

	m.words = make(map[string]struct{})
	m.patterns = nil
	m.caseSensitive = data.CaseSensitive
	for _, w := range data.Words {
		if err := m.AddWord(w); err != nil {
			return err
		}
	}
	for _, p := range data.Patterns {
		if err := m.AddPattern(p); err != nil {
			return err
		}
	}
	m.log.Debug("loaded blacklist", "path", path, "words", len(m.words), "patterns", len(m.patterns))
	return nil
}

// wordPattern builds a literal-match pattern for a protected word,
// case-folded when the manager is case-insensitive.
func (m *Manager) wordPattern(word string) string {
	p := regexp.QuoteMeta(word)
	if !m.caseSensitive {
		p = "(?i)" + p
	}
	return p
}
