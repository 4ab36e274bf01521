package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"codeberg.org/snonux/yamltr/internal/retry"
)

// retryStatePath derives the retry-state file from the active session,
// so the retry history lives and dies with its progress checkpoint.
func (p *Processor) retryStatePath() (string, bool) {
	session, ok := p.ledger.SessionInfo()
	if !ok {
		return "", false
	}
	return filepath.Join(p.cfg.Progress.Dir, session.SessionID+"-retry.json"), true
}

// saveRetryState persists the retry engine's per-task state next to
// the progress checkpoint. Nothing to save removes a stale file.
func (p *Processor) saveRetryState() error {
	path, ok := p.retryStatePath()
	if !ok {
		return nil
	}
	states := p.retrier.Export()
	if len(states) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove retry state: %w", err)
		}
		return nil
	}
	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal retry state: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write retry state: %w", err)
	}
	return nil
}

// loadRetryState restores the retry engine from a previous session's
// file. A missing or unreadable file just starts with clean state.
func (p *Processor) loadRetryState() {
	path, ok := p.retryStatePath()
	if !ok {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			p.log.Warn("could not read retry state, starting clean", "error", err)
		}
		return
	}
	var states map[string]retry.State
	if err := json.Unmarshal(data, &states); err != nil {
		p.log.Warn("corrupt retry state, starting clean", "path", path, "error", err)
		return
	}
	p.retrier.Restore(states)
	p.log.Debug("restored retry state", "tasks", len(states))
}
