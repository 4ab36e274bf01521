package cache

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "memory.db"), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutGetRoundTrip(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	entry := Entry{
		Source:     "greeting: hello\n",
		Translated: "greeting: hallo\n",
		Provider:   "openai",
		Model:      "gpt-4o-mini",
		TargetLang: "German",
		Tokens:     42,
	}
	if err := c.Put(ctx, entry); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok, err := c.Get(ctx, entry.Source, entry.Model, entry.TargetLang)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Translated != entry.Translated || got.Tokens != 42 {
		t.Errorf("Get() = %+v", got)
	}
}

func TestGetMiss(t *testing.T) {
	c := openTestCache(t)
	_, ok, err := c.Get(context.Background(), "never seen", "gpt-4o-mini", "German")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("expected cache miss")
	}
}

func TestKeyDistinguishesModelAndLanguage(t *testing.T) {
	base := Key("text", "gpt-4o-mini", "German")
	if Key("text", "gpt-4o-mini", "French") == base {
		t.Error("different target language must produce a different key")
	}
	if Key("text", "gpt-4o", "German") == base {
		t.Error("different model must produce a different key")
	}
	if Key("text", "gpt-4o-mini", "German") != base {
		t.Error("identical inputs must produce the same key")
	}
}

func TestPutReplacesEntry(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	e := Entry{Source: "s", Translated: "first", Model: "m", TargetLang: "German"}
	if err := c.Put(ctx, e); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	e.Translated = "second"
	if err := c.Put(ctx, e); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "s", "m", "German")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if got.Translated != "second" {
		t.Errorf("Translated = %q, want second", got.Translated)
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Entries != 1 {
		t.Errorf("Entries = %d, want 1 after replace", stats.Entries)
	}
}

func TestStatsCounters(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	e := Entry{Source: "s", Translated: "t", Model: "m", TargetLang: "German", Tokens: 10}
	if err := c.Put(ctx, e); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, _, err := c.Get(ctx, "s", "m", "German"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, _, err := c.Get(ctx, "other", "m", "German"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Hits != 1 || stats.Misses != 1 || stats.TokensSaved != 10 {
		t.Errorf("Stats() = %+v, want 1 hit, 1 miss, 10 tokens saved", stats)
	}
}

func TestPrune(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	old := Entry{Source: "old", Translated: "t", Model: "m", TargetLang: "German",
		CreatedAt: time.Now().Add(-48 * time.Hour)}
	fresh := Entry{Source: "fresh", Translated: "t", Model: "m", TargetLang: "German"}
	if err := c.Put(ctx, old); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := c.Put(ctx, fresh); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	removed, err := c.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Prune() removed %d, want 1", removed)
	}
	if _, ok, _ := c.Get(ctx, "fresh", "m", "German"); !ok {
		t.Error("fresh entry must survive pruning")
	}
}

func TestCacheSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.db")
	ctx := context.Background()

	c, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	e := Entry{Source: "s", Translated: "t", Model: "m", TargetLang: "German"}
	if err := c.Put(ctx, e); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open() after close error = %v", err)
	}
	defer reopened.Close()
	if _, ok, _ := reopened.Get(ctx, "s", "m", "German"); !ok {
		t.Error("expected entry to survive reopen")
	}
}

func TestConcurrentGetsAccumulateStats(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	entry := Entry{
		Source:     "name: app\n",
		Translated: "name: app\n",
		Provider:   "openai",
		Model:      "gpt-4o-mini",
		TargetLang: "German",
		Tokens:     5,
	}
	if err := c.Put(ctx, entry); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	const workers = 8
	const rounds = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				if _, ok, err := c.Get(ctx, entry.Source, entry.Model, entry.TargetLang); err != nil || !ok {
					t.Errorf("Get() = %v, %v, want hit", ok, err)
					return
				}
				if _, _, err := c.Get(ctx, "absent", entry.Model, entry.TargetLang); err != nil {
					t.Errorf("Get() miss error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Hits != workers*rounds {
		t.Errorf("Hits = %d, want %d", stats.Hits, workers*rounds)
	}
	if stats.Misses != workers*rounds {
		t.Errorf("Misses = %d, want %d", stats.Misses, workers*rounds)
	}
	if stats.TokensSaved != workers*rounds*entry.Tokens {
		t.Errorf("TokensSaved = %d, want %d", stats.TokensSaved, workers*rounds*entry.Tokens)
	}
}
