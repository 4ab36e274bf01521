package progress

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of one file in a session.
// pending → running → {success, failed, paused}; paused files return to
// pending when a later session resumes them, success and failed are
// terminal for the session's record.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusFailed  Status = "failed"
	StatusSuccess Status = "success"
)

// Terminal reports whether the status ends a file's processing.
func (s Status) Terminal() bool { return s == StatusSuccess || s == StatusFailed }

// FileProgress tracks the translation state of one file.
type FileProgress struct {
	Path            string    `json:"path"`
	Size            int64     `json:"size"`
	TotalChunks     int       `json:"total_chunks"`
	CompletedChunks int       `json:"completed_chunks"`
	TokensUsed      int       `json:"tokens_used"`
	StartTime       time.Time `json:"start_time"`
	LastUpdate      time.Time `json:"last_update"`
	Status          Status    `json:"status"`
	Error           string    `json:"error,omitempty"`
}

// SessionInfo is the aggregate state of one batch run. FailedFiles is
// a set in memory; it is persisted as a sorted list and deduplicated
// on load.
type SessionInfo struct {
	SessionID      string    `json:"session_id"`
	Root           string    `json:"root,omitempty"`
	StartTime      time.Time `json:"start_time"`
	LastUpdate     time.Time `json:"last_update"`
	TotalFiles     int       `json:"total_files"`
	CompletedFiles int       `json:"completed_files"`
	TotalTokens    int       `json:"total_tokens"`
	TotalCost      float64   `json:"total_cost"`

	failedFiles map[string]struct{}
}

// FailedFiles returns the failed file paths in sorted order.
func (s *SessionInfo) FailedFiles() []string {
	paths := make([]string, 0, len(s.failedFiles))
	for p := range s.failedFiles {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Config controls persistence and accounting for the ledger.
type Config struct {
	// Dir is where session checkpoints are stored.
	Dir string
	// SaveInterval bounds how much progress a crash can lose: state is
	// flushed when this much time has passed since the last flush, and
	// unconditionally at session-significant events.
	SaveInterval time.Duration
	// AutoResume loads the most recent persisted session at startup.
	AutoResume bool
	// MaxCheckpointAge is the retention horizon for Cleanup.
	MaxCheckpointAge time.Duration
	// CostPer1KTokens converts token usage into an estimated cost.
	CostPer1KTokens float64
}

// DefaultConfig returns the ledger defaults.
func DefaultConfig() Config {
	return Config{
		Dir:              ".yamltr/progress",
		SaveInterval:     30 * time.Second,
		AutoResume:       true,
		MaxCheckpointAge: 7 * 24 * time.Hour,
		CostPer1KTokens:  0.002,
	}
}

// Ledger durably records per-file and session progress so an
// interrupted batch can resume without re-translating completed work.
// One ledger instance owns all mutation for its process lifetime.
type Ledger struct {
	cfg Config
	log *slog.Logger

	mu        sync.Mutex
	session   *SessionInfo
	files     map[string]*FileProgress
	lastFlush time.Time
	now       func() time.Time
}

// New creates a ledger. With AutoResume enabled it loads the most
// recently modified persisted session; corrupt or missing state is
// reported and a clean session is started instead.
func New(cfg Config, logger *slog.Logger) (*Ledger, error) {
	if cfg.SaveInterval <= 0 {
		cfg.SaveInterval = DefaultConfig().SaveInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	l := &Ledger{
		cfg:   cfg,
		log:   logger,
		files: make(map[string]*FileProgress),
		now:   time.Now,
	}
	if err := l.ensureDir(); err != nil {
		return nil, err
	}
	if cfg.AutoResume {
		if err := l.tryResume(); err != nil {
			// Unreadable state must not prevent startup.
			logger.Warn("could not resume previous session, starting fresh", "error", err)
		}
	}
	return l, nil
}

// StartSession begins a new session covering root and returns its
// identifier. Any previously loaded session is replaced.
func (l *Ledger) StartSession(root string, totalFiles int) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	id := fmt.Sprintf("%d-%s", now.Unix(), uuid.NewString()[:8])
	l.session = &SessionInfo{
		SessionID:   id,
		Root:        root,
		StartTime:   now,
		LastUpdate:  now,
		TotalFiles:  totalFiles,
		failedFiles: make(map[string]struct{}),
	}
	l.files = make(map[string]*FileProgress)
	if err := l.flushLocked(); err != nil {
		return "", err
	}
	return id, nil
}

// AddFile registers a file as pending. Registering the same path twice
// in one session is an error.
func (l *Ledger) AddFile(path string, size int64, totalChunks int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.session == nil {
		return fmt.Errorf("no active session")
	}
	if _, ok := l.files[path]; ok {
		return fmt.Errorf("file already registered: %s", path)
	}
	now := l.now()
	l.files[path] = &FileProgress{
		Path:        path,
		Size:        size,
		TotalChunks: totalChunks,
		StartTime:   now,
		LastUpdate:  now,
		Status:      StatusPending,
	}
	l.session.LastUpdate = now
	return l.maybeFlushLocked()
}

// UpdateFileProgress records chunk completion and status for a file.
// A transition into a terminal status updates session aggregates
// exactly once; repeating the same terminal update is a no-op for the
// aggregates, so a file can never be double-counted.
func (l *Ledger) UpdateFileProgress(path string, completedChunks, tokensUsed int, status Status, errMsg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.session == nil {
		return fmt.Errorf("no active session")
	}
	fp, ok := l.files[path]
	if !ok {
		return fmt.Errorf("file not registered: %s", path)
	}

	wasTerminal := fp.Status.Terminal()
	now := l.now()
	fp.CompletedChunks = completedChunks
	fp.TokensUsed = tokensUsed
	fp.Status = status
	fp.Error = errMsg
	fp.LastUpdate = now

	if status.Terminal() && !wasTerminal {
		l.session.CompletedFiles++
		l.session.TotalTokens += tokensUsed
		l.session.TotalCost += float64(tokensUsed) / 1000 * l.cfg.CostPer1KTokens
	}
	if status == StatusFailed {
		l.session.failedFiles[path] = struct{}{}
	}
	l.session.LastUpdate = now

	// A failure is session-significant: flush unconditionally so the
	// failed set survives a crash.
	if status == StatusFailed {
		return l.flushLocked()
	}
	return l.maybeFlushLocked()
}

// Checkpoint flushes the current state unconditionally.
func (l *Ledger) Checkpoint() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == nil {
		return fmt.Errorf("no active session")
	}
	return l.flushLocked()
}

// ReconcileInterrupted marks files left running by a crashed or
// interrupted session as paused so a later run picks them up again.
// Called by the driver after it decides to resume.
func (l *Ledger) ReconcileInterrupted() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, fp := range l.files {
		if fp.Status == StatusRunning {
			fp.Status = StatusPaused
			fp.LastUpdate = l.now()
		}
	}
}

// FileProgressFor returns a copy of one file's progress.
func (l *Ledger) FileProgressFor(path string) (FileProgress, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fp, ok := l.files[path]
	if !ok {
		return FileProgress{}, false
	}
	return *fp, true
}

// PendingFiles returns files still awaiting work (pending or paused),
// sorted by path.
func (l *Ledger) PendingFiles() []FileProgress {
	return l.filesWhere(func(fp *FileProgress) bool {
		return fp.Status == StatusPending || fp.Status == StatusPaused
	})
}

// FailedFiles returns files whose processing failed, sorted by path.
func (l *Ledger) FailedFiles() []FileProgress {
	return l.filesWhere(func(fp *FileProgress) bool { return fp.Status == StatusFailed })
}

// AllFiles returns every registered file's progress, sorted by path.
func (l *Ledger) AllFiles() []FileProgress {
	return l.filesWhere(func(*FileProgress) bool { return true })
}

// SessionInfo returns a copy of the current session aggregates.
func (l *Ledger) SessionInfo() (SessionInfo, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == nil {
		return SessionInfo{}, false
	}
	copied := *l.session
	copied.failedFiles = make(map[string]struct{}, len(l.session.failedFiles))
	for p := range l.session.failedFiles {
		copied.failedFiles[p] = struct{}{}
	}
	return copied, true
}

func (l *Ledger) filesWhere(keep func(*FileProgress) bool) []FileProgress {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []FileProgress
	for _, fp := range l.files {
		if keep(fp) {
			out = append(out, *fp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// maybeFlushLocked persists if the save interval has elapsed.
func (l *Ledger) maybeFlushLocked() error {
	if l.now().Sub(l.lastFlush) < l.cfg.SaveInterval {
		return nil
	}
	return l.flushLocked()
}
