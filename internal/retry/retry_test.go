package retry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type taggedError struct {
	msg      string
	category Category
}

func (e taggedError) Error() string           { return e.msg }
func (e taggedError) ErrorCategory() Category { return e.category }

func TestClassifyKeywords(t *testing.T) {
	cases := []struct {
		message string
		want    Category
	}{
		{"connection refused", CategoryNetwork},
		{"Connection refused: timeout after 30s", CategoryNetwork}, // network checked before timeout
		{"rate limit exceeded, slow down", CategoryRateLimit},
		{"HTTP 429 Too Many Requests", CategoryRateLimit},
		{"unauthorized: bad api key", CategoryAPI},
		{"schema validation failed", CategoryValidation},
		{"request timed out", CategoryTimeout},
		{"context deadline exceeded", CategoryTimeout},
		{"something inexplicable happened", CategoryUnknown},
	}
	for _, c := range cases {
		if got := Classify(errors.New(c.message)); got != c.want {
			t.Errorf("Classify(%q) = %s, want %s", c.message, got, c.want)
		}
	}
}

func TestClassifyTypedSignalWins(t *testing.T) {
	// The message alone would classify as network; the tag overrides.
	err := taggedError{msg: "connection reset by peer", category: CategoryRateLimit}
	if got := Classify(err); got != CategoryRateLimit {
		t.Errorf("Classify = %s, want rate_limit from typed signal", got)
	}

	wrapped := fmt.Errorf("translate chunk 3: %w", err)
	if got := Classify(wrapped); got != CategoryRateLimit {
		t.Errorf("Classify(wrapped) = %s, want rate_limit", got)
	}
}

func TestClassifyNil(t *testing.T) {
	if got := Classify(nil); got != CategoryUnknown {
		t.Errorf("Classify(nil) = %s, want unknown", got)
	}
}

func TestShouldRetryCeiling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxNetworkRetries = 3
	cfg.JitterFactor = 0
	e := New(cfg, nil)

	err := errors.New("connection refused")
	for attempt := 1; attempt < 3; attempt++ {
		retry, wait := e.ShouldRetry("task-1", err)
		if !retry {
			t.Fatalf("attempt %d: expected retry", attempt)
		}
		if wait <= 0 {
			t.Fatalf("attempt %d: expected positive wait, got %v", attempt, wait)
		}
	}

	retry, wait := e.ShouldRetry("task-1", err)
	if retry {
		t.Error("expected exhaustion on final attempt")
	}
	if wait != 0 {
		t.Errorf("exhausted wait = %v, want 0", wait)
	}

	// State is retained for inspection until reset.
	state, ok := e.RetryInfo("task-1")
	if !ok {
		t.Fatal("exhausted state should remain queryable")
	}
	if state.Attempts() != 3 {
		t.Errorf("attempts = %d, want 3", state.Attempts())
	}
}

func TestExponentialMonotonicBeforeJitter(t *testing.T) {
	e := New(DefaultConfig(), nil)
	for _, cat := range []Category{CategoryRateLimit, CategoryUnknown} {
		prev := time.Duration(0)
		for k := 1; k <= 8; k++ {
			wait := e.backoff(cat, k)
			if wait < prev {
				t.Errorf("%s: backoff(%d)=%v < backoff(%d)=%v", cat, k, wait, k-1, prev)
			}
			prev = wait
		}
	}
}

func TestWaitBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinWait = 500 * time.Millisecond
	cfg.MaxWait = 4 * time.Second
	cfg.JitterFactor = 0.5

	errs := map[Category]error{
		CategoryNetwork:   errors.New("connection refused"),
		CategoryRateLimit: errors.New("rate limit"),
		CategoryTimeout:   errors.New("timed out"),
		CategoryUnknown:   errors.New("weird"),
	}
	for cat, err := range errs {
		e := New(cfg, nil)
		for k := 0; k < 20; k++ {
			retry, wait := e.ShouldRetry("t", err)
			if !retry {
				break
			}
			if wait < cfg.MinWait || wait > cfg.MaxWait {
				t.Errorf("%s attempt %d: wait %v outside [%v, %v]", cat, k+1, wait, cfg.MinWait, cfg.MaxWait)
			}
		}
	}
}

func TestLinearBackoffByCategory(t *testing.T) {
	e := New(DefaultConfig(), nil)
	if got := e.backoff(CategoryNetwork, 3); got != 3*time.Second {
		t.Errorf("network backoff(3) = %v, want 3s", got)
	}
	if got := e.backoff(CategoryValidation, 2); got != 2*time.Second {
		t.Errorf("validation backoff(2) = %v, want 2s", got)
	}
	if got := e.backoff(CategoryRateLimit, 3); got != 8*time.Second {
		t.Errorf("rate_limit backoff(3) = %v, want 8s (2s base weight * 2^2)", got)
	}
	// API escalates from linear to exponential after two attempts.
	if lin, exp := e.backoff(CategoryAPI, 2), e.backoff(CategoryAPI, 4); exp <= lin {
		t.Errorf("api backoff should escalate: backoff(2)=%v backoff(4)=%v", lin, exp)
	}
}

func TestResetClearsState(t *testing.T) {
	e := New(DefaultConfig(), nil)
	e.ShouldRetry("task-a", errors.New("connection refused"))
	e.ShouldRetry("task-b", errors.New("rate limit"))

	if got := e.FailedTasks(); len(got) != 2 {
		t.Fatalf("failed tasks = %v, want 2 entries", got)
	}

	e.Reset("task-a")
	got := e.FailedTasks()
	if len(got) != 1 || got[0] != "task-b" {
		t.Errorf("after reset failed tasks = %v, want [task-b]", got)
	}
	if _, ok := e.RetryInfo("task-a"); ok {
		t.Error("reset state should be gone")
	}
}

func TestNextAttemptRecorded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JitterFactor = 0
	e := New(cfg, nil)
	before := time.Now()

	_, wait := e.ShouldRetry("task", errors.New("connection refused"))
	state, ok := e.RetryInfo("task")
	if !ok {
		t.Fatal("expected state")
	}
	if state.NextAttempt.Before(before.Add(wait)) {
		t.Errorf("next attempt %v earlier than now+wait", state.NextAttempt)
	}
}

func TestConcurrentFailuresSameTask(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRateLimitRetries = 1000
	e := New(cfg, nil)

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			e.ShouldRetry("shared", errors.New("rate limit"))
		}()
	}
	wg.Wait()

	state, ok := e.RetryInfo("shared")
	if !ok {
		t.Fatal("expected state")
	}
	if state.Attempts() != n {
		t.Errorf("attempts = %d, want %d (lost updates)", state.Attempts(), n)
	}
}

func TestConcurrentTasksIndependent(t *testing.T) {
	e := New(DefaultConfig(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("task-%d", i)
			e.ShouldRetry(id, errors.New("connection refused"))
			e.ShouldRetry(id, errors.New("connection refused"))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 50; i++ {
		state, ok := e.RetryInfo(fmt.Sprintf("task-%d", i))
		if !ok || state.Attempts() != 2 {
			t.Fatalf("task-%d: attempts = %d, want 2", i, state.Attempts())
		}
	}
}
