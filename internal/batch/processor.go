package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"codeberg.org/snonux/yamltr/internal/backup"
	"codeberg.org/snonux/yamltr/internal/blacklist"
	"codeberg.org/snonux/yamltr/internal/cache"
	"codeberg.org/snonux/yamltr/internal/chunk"
	"codeberg.org/snonux/yamltr/internal/config"
	"codeberg.org/snonux/yamltr/internal/matcher"
	"codeberg.org/snonux/yamltr/internal/progress"
	"codeberg.org/snonux/yamltr/internal/prompt"
	"codeberg.org/snonux/yamltr/internal/retry"
	"codeberg.org/snonux/yamltr/internal/translate"
	"codeberg.org/snonux/yamltr/internal/yamlio"
)

// Summary is the outcome of one batch run.
type Summary struct {
	SessionID   string
	Files       int
	Succeeded   int
	Failed      int
	TokensUsed  int
	Cost        float64
	CacheHits   int
	CacheMisses int
	TokensSaved int
	Duration    time.Duration
	FailedFiles []string
}

// Processor drives a batch run: it finds files, splits them, pushes
// chunks through the provider with retry and protection, and writes
// the merged results back.
type Processor struct {
	cfg     *config.Config
	log     *slog.Logger
	chunker *chunk.Engine
	retrier *retry.Engine
	ledger  *progress.Ledger
	finder  *matcher.Matcher
	prompts *prompt.Builder
	terms   *blacklist.Manager
	backups *backup.Manager
	memory  *cache.Cache
	backend translate.Provider
}

// New wires a processor from configuration. The context is only used
// for provider construction.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Processor, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	prompts, err := prompt.New(cfg.PromptConfig())
	if err != nil {
		return nil, err
	}
	terms, err := blacklist.New(cfg.BlacklistManagerConfig(), logger)
	if err != nil {
		return nil, err
	}
	ledger, err := progress.New(cfg.LedgerConfig(), logger)
	if err != nil {
		return nil, err
	}

	backend, err := newProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	p := &Processor{
		cfg:     cfg,
		log:     logger,
		chunker: chunk.New(cfg.ChunkEngineConfig(), logger),
		retrier: retry.New(cfg.RetryEngineConfig(), logger),
		ledger:  ledger,
		finder:  matcher.New(cfg.MatcherConfig(), logger),
		prompts: prompts,
		terms:   terms,
		backend: backend,
	}
	if cfg.Backup.Enabled {
		p.backups = backup.New(cfg.BackupManagerConfig(), logger)
	}
	if cfg.Cache.Enabled {
		memory, err := cache.Open(cfg.Cache.Path, logger)
		if err != nil {
			return nil, err
		}
		p.memory = memory
	}
	return p, nil
}

func newProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (translate.Provider, error) {
	var (
		backend translate.Provider
		err     error
	)
	switch cfg.API.Provider {
	case "gemini":
		backend, err = translate.NewGeminiProvider(ctx, cfg.APIKey(), cfg.TranslateConfig(), logger)
	default:
		backend, err = translate.NewOpenAIProvider(cfg.APIKey(), cfg.TranslateConfig(), logger)
	}
	if err != nil {
		return nil, err
	}
	if cfg.API.UseBreaker {
		bcfg := translate.DefaultBreakerConfig()
		if cfg.API.BreakerTrips > 0 {
			bcfg.ConsecutiveFailures = uint32(cfg.API.BreakerTrips)
		}
		backend = translate.NewBreakerProvider(backend, bcfg, logger)
	}
	return backend, nil
}

// Ledger exposes the progress ledger for status reporting.
func (p *Processor) Ledger() *progress.Ledger { return p.ledger }

// Close releases held resources.
func (p *Processor) Close() error {
	if p.memory != nil {
		return p.memory.Close()
	}
	return nil
}

// Run processes every matching file under root. Per-file failures are
// recorded and do not stop the run; Run returns an error only when the
// run as a whole cannot proceed or the context is cancelled.
func (p *Processor) Run(ctx context.Context, root string) (Summary, error) {
	start := time.Now()

	pending, err := p.prepareSession(root)
	if err != nil {
		return Summary{}, err
	}
	p.log.Info("starting batch run",
		"root", root, "files", len(pending), "concurrency", p.cfg.Translation.Concurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Translation.Concurrency)
	for _, path := range pending {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := p.processFile(gctx, path); err != nil {
				if gctx.Err() != nil {
					return err
				}
				// Other files keep going.
				p.log.Error("file failed", "path", path, "error", err)
			}
			return nil
		})
	}
	runErr := g.Wait()

	if err := p.checkpoint(); err != nil {
		p.log.Warn("failed to write final checkpoint", "error", err)
	}
	summary := p.summarize(ctx, time.Since(start))
	p.logSummary(summary)
	if runErr != nil {
		return summary, fmt.Errorf("batch run interrupted: %w", runErr)
	}
	return summary, nil
}

// prepareSession resumes an interrupted session when one covers root's
// files, otherwise it starts a new one. It returns the paths still to
// be processed.
func (p *Processor) prepareSession(root string) ([]string, error) {
	files, err := p.finder.Find(root, p.cfg.Files.Recursive)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no YAML files found under %s", root)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}

	if session, ok := p.ledger.SessionInfo(); ok && p.cfg.Progress.AutoResume {
		if session.Root == absRoot {
			p.ledger.ReconcileInterrupted()
			if resumable := p.pendingPaths(); len(resumable) > 0 {
				// Resume is file-granular; chunks already translated in
				// a resumed file come back through the cache instead of
				// the API.
				p.loadRetryState()
				p.log.Info("resuming interrupted session",
					"session", session.SessionID, "root", absRoot, "pending", len(resumable))
				return resumable, nil
			}
		} else {
			p.log.Info("previous session covers a different root, starting fresh",
				"session", session.SessionID, "previous", session.Root, "root", absRoot)
		}
	}

	if _, err := p.ledger.StartSession(absRoot, len(files)); err != nil {
		return nil, err
	}
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		content, err := yamlio.ReadFile(path)
		if err != nil {
			return nil, err
		}
		chunks := p.chunker.Split(content)
		if err := p.ledger.AddFile(path, info.Size(), len(chunks)); err != nil {
			return nil, err
		}
	}
	return files, nil
}

// pendingPaths returns resumable files that still exist on disk.
func (p *Processor) pendingPaths() []string {
	var out []string
	for _, fp := range p.ledger.PendingFiles() {
		if _, err := os.Stat(fp.Path); err != nil {
			p.log.Warn("skipping vanished file from previous session", "path", fp.Path)
			continue
		}
		out = append(out, fp.Path)
	}
	return out
}

// processFile translates one file end to end. Every failure path marks
// the file failed in the ledger before returning.
func (p *Processor) processFile(ctx context.Context, path string) error {
	fail := func(completed, tokens int, err error) error {
		if uerr := p.ledger.UpdateFileProgress(path, completed, tokens, progress.StatusFailed, err.Error()); uerr != nil {
			p.log.Warn("failed to record failure", "path", path, "error", uerr)
		}
		return err
	}

	content, err := yamlio.ReadFile(path)
	if err != nil {
		return fail(0, 0, err)
	}
	if err := yamlio.Validate(content); err != nil {
		return fail(0, 0, fmt.Errorf("source file %s: %w", path, err))
	}

	chunks := p.chunker.Split(content)
	if err := p.ledger.UpdateFileProgress(path, 0, 0, progress.StatusRunning, ""); err != nil {
		return err
	}
	p.log.Debug("processing file", "path", path, "chunks", len(chunks))

	results := make([]chunk.Result, len(chunks))
	completed := 0
	tokens := 0
	for i, ck := range chunks {
		if err := ctx.Err(); err != nil {
			// Leave the file running; a later session resumes it.
			return err
		}
		text, used, err := p.translateChunk(ctx, path, ck)
		results[i] = chunk.Result{Index: ck.Index, Content: text, Success: err == nil}
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			results[i].Error = err.Error()
			p.log.Warn("chunk exhausted retries", "path", path, "chunk", ck.Index, "error", err)
			continue
		}
		completed++
		tokens += used
		if err := p.ledger.UpdateFileProgress(path, completed, tokens, progress.StatusRunning, ""); err != nil {
			return err
		}
	}

	merged, err := p.chunker.Merge(content, results, chunks)
	if err != nil {
		return fail(completed, tokens, err)
	}
	if err := yamlio.Validate(merged); err != nil {
		return fail(completed, tokens, fmt.Errorf("translated output for %s: %w", path, err))
	}

	if p.backups != nil {
		if _, err := p.backups.Backup(path); err != nil {
			return fail(completed, tokens, err)
		}
	}
	if err := yamlio.WriteFile(path, merged); err != nil {
		return fail(completed, tokens, err)
	}
	return p.ledger.UpdateFileProgress(path, completed, tokens, progress.StatusSuccess, "")
}

// translateChunk resolves one chunk through the cache or the backend,
// retrying per the engine's schedule. It returns the restored text and
// the tokens newly spent.
func (p *Processor) translateChunk(ctx context.Context, path string, ck chunk.Info) (string, int, error) {
	taskID := fmt.Sprintf("%s:%d", path, ck.Index)

	if p.memory != nil {
		entry, ok, err := p.memory.Get(ctx, ck.Content, p.cfg.API.Model, p.cfg.Translation.TargetLanguage)
		if err != nil {
			p.log.Warn("cache lookup failed", "task", taskID, "error", err)
		} else if ok {
			p.log.Debug("cache hit", "task", taskID)
			return entry.Translated, 0, nil
		}
	}

	protected, placeholders := p.terms.Protect(ck.Content)
	req := translate.Request{
		Text:         protected,
		SystemPrompt: p.prompts.System(ck.Context),
	}

	for {
		res, err := p.backend.Translate(ctx, req)
		if err == nil {
			p.retrier.Reset(taskID)
			restored := p.terms.Restore(res.Text, placeholders)
			if p.memory != nil {
				entry := cache.Entry{
					Source:     ck.Content,
					Translated: restored,
					Provider:   p.backend.Name(),
					Model:      p.cfg.API.Model,
					TargetLang: p.cfg.Translation.TargetLanguage,
					Tokens:     res.TokensUsed,
				}
				if err := p.memory.Put(ctx, entry); err != nil {
					p.log.Warn("cache store failed", "task", taskID, "error", err)
				}
			}
			return restored, res.TokensUsed, nil
		}
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}

		ok, wait := p.retrier.ShouldRetry(taskID, err)
		if !ok {
			return "", 0, fmt.Errorf("chunk %d gave up after retries: %w", ck.Index, err)
		}
		select {
		case <-ctx.Done():
			return "", 0, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// checkpoint flushes progress and the retry state together.
func (p *Processor) checkpoint() error {
	if err := p.ledger.Checkpoint(); err != nil {
		return err
	}
	return p.saveRetryState()
}

func (p *Processor) summarize(ctx context.Context, elapsed time.Duration) Summary {
	s := Summary{Duration: elapsed}
	if session, ok := p.ledger.SessionInfo(); ok {
		s.SessionID = session.SessionID
		s.Files = session.TotalFiles
		s.TokensUsed = session.TotalTokens
		s.Cost = session.TotalCost
		s.FailedFiles = session.FailedFiles()
		s.Failed = len(s.FailedFiles)
		s.Succeeded = session.CompletedFiles - s.Failed
	}
	if p.memory != nil {
		if stats, err := p.memory.Stats(ctx); err == nil {
			s.CacheHits = stats.Hits
			s.CacheMisses = stats.Misses
			s.TokensSaved = stats.TokensSaved
		}
	}
	return s
}

func (p *Processor) logSummary(s Summary) {
	p.log.Info("batch run finished",
		"session", s.SessionID,
		"files", s.Files,
		"succeeded", s.Succeeded,
		"failed", s.Failed,
		"tokens", s.TokensUsed,
		"cost", fmt.Sprintf("%.4f", s.Cost),
		"cache_hits", s.CacheHits,
		"duration", s.Duration.Round(time.Millisecond))
}
