package backup

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Config controls where backups go and how many are kept per file.
type Config struct {
	// Dir is the backup directory; empty keeps backups next to the
	// original file.
	Dir string
	// Suffix is appended after the timestamp.
	Suffix string
	// KeepCount bounds how many backups of one file survive pruning;
	// 0 keeps all of them.
	KeepCount int
}

// DefaultConfig returns the backup defaults.
func DefaultConfig() Config {
	return Config{Suffix: ".bak", KeepCount: 5}
}

// Manager writes timestamped copies of files before they are
// overwritten with translated content.
type Manager struct {
	cfg Config
	log *slog.Logger
	now func() time.Time
}

// New creates a backup manager.
func New(cfg Config, logger *slog.Logger) *Manager {
	if cfg.Suffix == "" {
		cfg.Suffix = DefaultConfig().Suffix
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{cfg: cfg, log: logger, now: time.Now}
}

// Backup copies path to a timestamped sibling (or into the configured
// directory) and returns the backup path. A timestamp collision gets a
// microsecond-resolution name instead.
func (m *Manager) Backup(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("cannot back up %s: %w", path, err)
	}

	dir := m.cfg.Dir
	if dir == "" {
		dir = filepath.Dir(path)
	} else if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	base := filepath.Base(path)
	timestamp := m.now().Format("20060102-150405")
	target := filepath.Join(dir, fmt.Sprintf("%s.%s%s", base, timestamp, m.cfg.Suffix))
	if _, err := os.Stat(target); err == nil {
		timestamp = m.now().Format("20060102-150405.000000")
		target = filepath.Join(dir, fmt.Sprintf("%s.%s%s", base, timestamp, m.cfg.Suffix))
	}

	if err := copyFile(path, target); err != nil {
		return "", err
	}
	m.log.Debug("backed up file", "path", path, "backup", target)

	if err := m.prune(dir, base); err != nil {
		m.log.Warn("failed to prune old backups", "path", path, "error", err)
	}
	return target, nil
}

// Restore copies the most recent backup of path back over it and
// returns the backup that was used.
func (m *Manager) Restore(path string) (string, error) {
	dir := m.cfg.Dir
	if dir == "" {
		dir = filepath.Dir(path)
	}
	backups, err := m.backupsOf(dir, filepath.Base(path))
	if err != nil {
		return "", err
	}
	if len(backups) == 0 {
		return "", fmt.Errorf("no backups found for %s", path)
	}
	latest := backups[len(backups)-1]
	if err := copyFile(latest, path); err != nil {
		return "", err
	}
	m.log.Info("restored file from backup", "path", path, "backup", latest)
	return latest, nil
}

// prune deletes the oldest backups of one file beyond KeepCount.
func (m *Manager) prune(dir, base string) error {
	if m.cfg.KeepCount <= 0 {
		return nil
	}
	backups, err := m.backupsOf(dir, base)
	if err != nil {
		return err
	}
	for len(backups) > m.cfg.KeepCount {
		if err := os.Remove(backups[0]); err != nil {
			return err
		}
		m.log.Debug("pruned old backup", "backup", backups[0])
		backups = backups[1:]
	}
	return nil
}

// backupsOf lists one file's backups sorted oldest first. The
// timestamp format sorts lexically, so name order is age order.
func (m *Manager) backupsOf(dir, base string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}
	var out []string
	prefix := base + "."
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, m.cfg.Suffix) {
			out = append(out, filepath.Join(dir, name))
		}
	}
	sort.Strings(out)
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return nil
}
