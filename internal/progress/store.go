package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// sessionRecord is the persisted shape of one session: the aggregates
// plus every file's progress, one JSON document per session id.
type sessionRecord struct {
	Session   sessionJSON    `json:"session"`
	Files     []FileProgress `json:"files"`
	Timestamp time.Time      `json:"timestamp"`
}

// sessionJSON mirrors SessionInfo with the failed-file set flattened
// to a sorted list.
type sessionJSON struct {
	SessionID      string    `json:"session_id"`
	Root           string    `json:"root,omitempty"`
	StartTime      time.Time `json:"start_time"`
	LastUpdate     time.Time `json:"last_update"`
	TotalFiles     int       `json:"total_files"`
	CompletedFiles int       `json:"completed_files"`
	TotalTokens    int       `json:"total_tokens"`
	TotalCost      float64   `json:"total_cost"`
	FailedFiles    []string  `json:"failed_files"`
}

func (l *Ledger) ensureDir() error {
	if err := os.MkdirAll(l.cfg.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create progress directory: %w", err)
	}
	return nil
}

// flushLocked writes the session atomically (temp file then rename) so
// a concurrent reader never observes a partially written checkpoint.
// Caller holds l.mu.
func (l *Ledger) flushLocked() error {
	if l.session == nil {
		return nil
	}
	record := sessionRecord{
		Session: sessionJSON{
			SessionID:      l.session.SessionID,
			Root:           l.session.Root,
			StartTime:      l.session.StartTime,
			LastUpdate:     l.session.LastUpdate,
			TotalFiles:     l.session.TotalFiles,
			CompletedFiles: l.session.CompletedFiles,
			TotalTokens:    l.session.TotalTokens,
			TotalCost:      l.session.TotalCost,
			FailedFiles:    l.session.FailedFiles(),
		},
		Timestamp: l.now(),
	}
	paths := make([]string, 0, len(l.files))
	for p := range l.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		record.Files = append(record.Files, *l.files[p])
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	data = append(data, '\n')

	target := l.sessionPath(l.session.SessionID)
	tmp, err := os.CreateTemp(l.cfg.Dir, ".yamltr-tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}

	l.lastFlush = l.now()
	l.log.Debug("saved progress checkpoint", "session", l.session.SessionID, "files", len(record.Files))
	return nil
}

// tryResume loads the most recently modified session checkpoint.
func (l *Ledger) tryResume() error {
	entries, err := os.ReadDir(l.cfg.Dir)
	if err != nil {
		return fmt.Errorf("failed to read progress directory: %w", err)
	}

	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		// Sidecar files written next to checkpoints are not sessions.
		if strings.HasSuffix(e.Name(), "-retry.json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = e.Name()
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return nil // nothing to resume
	}

	id := newest[:len(newest)-len(".json")]
	if err := l.loadSessionLocked(id); err != nil {
		return err
	}
	l.log.Info("resumed previous session",
		"session", id, "files", len(l.files), "completed", l.session.CompletedFiles)
	return nil
}

// LoadSession replaces the ledger's state with a specific persisted
// session.
func (l *Ledger) LoadSession(sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadSessionLocked(sessionID)
}

func (l *Ledger) loadSessionLocked(sessionID string) error {
	data, err := os.ReadFile(l.sessionPath(sessionID))
	if err != nil {
		return fmt.Errorf("failed to read checkpoint %s: %w", sessionID, err)
	}
	var record sessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("corrupt checkpoint %s: %w", sessionID, err)
	}

	session := &SessionInfo{
		SessionID:      record.Session.SessionID,
		Root:           record.Session.Root,
		StartTime:      record.Session.StartTime,
		LastUpdate:     record.Session.LastUpdate,
		TotalFiles:     record.Session.TotalFiles,
		CompletedFiles: record.Session.CompletedFiles,
		TotalTokens:    record.Session.TotalTokens,
		TotalCost:      record.Session.TotalCost,
		failedFiles:    make(map[string]struct{}, len(record.Session.FailedFiles)),
	}
	for _, p := range record.Session.FailedFiles {
		session.failedFiles[p] = struct{}{}
	}

	files := make(map[string]*FileProgress, len(record.Files))
	for i := range record.Files {
		fp := record.Files[i]
		files[fp.Path] = &fp
	}

	l.session = session
	l.files = files
	return nil
}

// Cleanup removes persisted sessions older than MaxCheckpointAge and
// returns how many files it removed. Run on demand, not automatically.
func (l *Ledger) Cleanup() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cfg.MaxCheckpointAge <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(l.cfg.Dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read progress directory: %w", err)
	}
	cutoff := l.now().Add(-l.cfg.MaxCheckpointAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if l.session != nil && e.Name() == l.session.SessionID+".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(l.cfg.Dir, e.Name())
			if err := os.Remove(path); err != nil {
				l.log.Warn("failed to remove old checkpoint", "path", path, "error", err)
				continue
			}
			removed++
			l.log.Debug("removed old checkpoint", "path", path)
		}
	}
	return removed, nil
}

func (l *Ledger) sessionPath(id string) string {
	return filepath.Join(l.cfg.Dir, id+".json")
}
