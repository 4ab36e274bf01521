package matcher

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"codeberg.org/snonux/yamltr/internal/yamlio"
)

// Config controls which files a walk yields.
type Config struct {
	// IncludePatterns are glob patterns matched against the base name.
	// Empty means every YAML file is included.
	IncludePatterns []string
	// ExcludePatterns are glob patterns matched against the base name;
	// a match removes the file even when included.
	ExcludePatterns []string
	// ExcludeDirs are directory names skipped entirely.
	ExcludeDirs []string
}

// DefaultConfig returns the matcher defaults.
func DefaultConfig() Config {
	return Config{
		IncludePatterns: []string{"*.yaml", "*.yml"},
		ExcludeDirs:     []string{".git", "node_modules", "vendor"},
	}
}

// Matcher finds the YAML files a batch run should process.
type Matcher struct {
	cfg         Config
	excludeDirs map[string]struct{}
	log         *slog.Logger
}

// New creates a matcher.
func New(cfg Config, logger *slog.Logger) *Matcher {
	if len(cfg.IncludePatterns) == 0 {
		cfg.IncludePatterns = DefaultConfig().IncludePatterns
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	excluded := make(map[string]struct{}, len(cfg.ExcludeDirs))
	for _, d := range cfg.ExcludeDirs {
		excluded[d] = struct{}{}
	}
	return &Matcher{cfg: cfg, excludeDirs: excluded, log: logger}
}

// Find returns the matching files under root in sorted order. A root
// that is itself a file is returned when it matches. With recursive
// false only root's direct children are considered.
func (m *Matcher) Find(root string, recursive bool) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		if m.matches(root) {
			return []string{root}, nil
		}
		return nil, nil
	}

	var out []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := m.excludeDirs[d.Name()]; skip {
				return filepath.SkipDir
			}
			if !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if m.matches(path) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(out)
	m.log.Debug("matched files", "root", root, "count", len(out))
	return out, nil
}

// matches applies the extension check and include/exclude patterns to
// one path.
func (m *Matcher) matches(path string) bool {
	if !yamlio.IsYAMLFile(path) {
		return false
	}
	name := filepath.Base(path)
	included := false
	for _, p := range m.cfg.IncludePatterns {
		if ok, err := filepath.Match(p, name); err == nil && ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, p := range m.cfg.ExcludePatterns {
		if ok, err := filepath.Match(p, name); err == nil && ok {
			return false
		}
	}
	return true
}
