package retry

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

// Config holds the retry ceilings and wait bounds. Ceilings are per
// category: rate limits and API hiccups tolerate more attempts than
// validation errors, which rarely resolve by waiting.
type Config struct {
	MaxNetworkRetries    int
	MaxRateLimitRetries  int
	MaxAPIRetries        int
	MaxValidationRetries int
	MaxTimeoutRetries    int
	MaxUnknownRetries    int

	BaseWait time.Duration
	MinWait  time.Duration
	MaxWait  time.Duration
	// JitterFactor perturbs each wait by a symmetric random fraction
	// so many failing tasks do not retry in lockstep.
	JitterFactor float64
}

// DefaultConfig returns the retry defaults.
func DefaultConfig() Config {
	return Config{
		MaxNetworkRetries:    3,
		MaxRateLimitRetries:  5,
		MaxAPIRetries:        3,
		MaxValidationRetries: 2,
		MaxTimeoutRetries:    3,
		MaxUnknownRetries:    2,
		BaseWait:             time.Second,
		MinWait:              100 * time.Millisecond,
		MaxWait:              5 * time.Minute,
		JitterFactor:         0.1,
	}
}

// ErrorInfo is one recorded failure for a task.
type ErrorInfo struct {
	Category   Category  `json:"category"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	RetryCount int       `json:"retry_count"`
}

// State is the retry bookkeeping for one task. It exists only between
// a task's first failure and its reset (or exhaustion cleanup).
type State struct {
	TaskID       string      `json:"task_id"`
	ErrorHistory []ErrorInfo `json:"error_history"`
	NextAttempt  time.Time   `json:"next_attempt"`
}

// Attempts is the number of failures recorded so far.
func (s *State) Attempts() int { return len(s.ErrorHistory) }

// LastError returns the most recent failure, if any.
func (s *State) LastError() (ErrorInfo, bool) {
	if len(s.ErrorHistory) == 0 {
		return ErrorInfo{}, false
	}
	return s.ErrorHistory[len(s.ErrorHistory)-1], true
}

// Engine decides whether and how long to wait before retrying failed
// tasks. It never performs the operation or sleeps itself: callers
// suspend their own continuation for the returned duration and call
// Reset once the task finally succeeds.
type Engine struct {
	cfg Config
	log *slog.Logger

	mu     sync.Mutex
	states map[string]*State
	now    func() time.Time
}

// New creates a retry engine. A nil logger discards output.
func New(cfg Config, logger *slog.Logger) *Engine {
	if cfg.BaseWait <= 0 {
		cfg.BaseWait = time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 5 * time.Minute
	}
	if cfg.MinWait < 0 {
		cfg.MinWait = 0
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		cfg:    cfg,
		log:    logger,
		states: make(map[string]*State),
		now:    time.Now,
	}
}

// ShouldRetry records the failure and answers whether the task may be
// retried and how long to wait first. Once the category's ceiling is
// reached it returns (false, 0); the state is kept for inspection
// until Reset.
func (e *Engine) ShouldRetry(taskID string, err error) (bool, time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.states[taskID]
	if !ok {
		state = &State{TaskID: taskID}
		e.states[taskID] = state
	}

	category := Classify(err)
	state.ErrorHistory = append(state.ErrorHistory, ErrorInfo{
		Category:   category,
		Message:    err.Error(),
		Timestamp:  e.now(),
		RetryCount: len(state.ErrorHistory),
	})

	attempts := len(state.ErrorHistory)
	if attempts >= e.maxRetries(category) {
		e.log.Warn("task exhausted retries",
			"task", taskID, "category", string(category), "attempts", attempts)
		return false, 0
	}

	wait := e.jitter(e.clamp(e.backoff(category, attempts)))
	state.NextAttempt = e.now().Add(wait)
	e.log.Debug("task will retry",
		"task", taskID, "category", string(category), "attempt", attempts, "wait", wait)
	return true, wait
}

// Reset discards a task's retry state after it finally succeeds.
func (e *Engine) Reset(taskID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.states, taskID)
}

// RetryInfo returns a copy of the task's retry state.
func (e *Engine) RetryInfo(taskID string) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.states[taskID]
	if !ok {
		return State{}, false
	}
	copied := *state
	copied.ErrorHistory = append([]ErrorInfo(nil), state.ErrorHistory...)
	return copied, true
}

// FailedTasks lists the ids of all tasks that have failed at least once
// and not been reset, in stable order.
func (e *Engine) FailedTasks() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.states))
	for id := range e.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// backoff computes the raw wait for the k-th attempt (1-based) before
// clamping and jitter.
func (e *Engine) backoff(category Category, k int) time.Duration {
	base := float64(e.cfg.BaseWait)
	var wait float64
	switch category {
	case CategoryRateLimit:
		// Aggressive: exponential with an extra category weight.
		wait = base * math.Pow(2, float64(k-1)) * 2.0
	case CategoryNetwork:
		wait = base * float64(k)
	case CategoryAPI:
		// Linear at first, exponential once it keeps failing.
		if k <= 2 {
			wait = base * float64(k) * 1.5
		} else {
			wait = base * math.Pow(2, float64(k-1)) * 1.5
		}
	case CategoryTimeout:
		wait = base * float64(k) * 1.2
	case CategoryValidation:
		wait = base * float64(k)
	default:
		wait = base * math.Pow(2, float64(k-1))
	}
	return time.Duration(wait)
}

func (e *Engine) clamp(d time.Duration) time.Duration {
	if d < e.cfg.MinWait {
		return e.cfg.MinWait
	}
	if d > e.cfg.MaxWait {
		return e.cfg.MaxWait
	}
	return d
}

// jitter perturbs the wait by a symmetric random fraction, re-clamped
// so the bounds still hold.
func (e *Engine) jitter(d time.Duration) time.Duration {
	if e.cfg.JitterFactor <= 0 {
		return d
	}
	offset := e.cfg.JitterFactor * float64(d) * (2*rand.Float64() - 1)
	return e.clamp(d + time.Duration(offset))
}

func (e *Engine) maxRetries(category Category) int {
	switch category {
	case CategoryNetwork:
		return e.cfg.MaxNetworkRetries
	case CategoryRateLimit:
		return e.cfg.MaxRateLimitRetries
	case CategoryAPI:
		return e.cfg.MaxAPIRetries
	case CategoryValidation:
		return e.cfg.MaxValidationRetries
	case CategoryTimeout:
		return e.cfg.MaxTimeoutRetries
	default:
		return e.cfg.MaxUnknownRetries
	}
}
