package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"codeberg.org/snonux/yamltr/internal"
	"codeberg.org/snonux/yamltr/internal/batch"
	"codeberg.org/snonux/yamltr/internal/cache"
	"codeberg.org/snonux/yamltr/internal/config"
	"codeberg.org/snonux/yamltr/internal/matcher"
	"codeberg.org/snonux/yamltr/internal/progress"
)

// CreateRootCommand creates and configures the root cobra command
func CreateRootCommand(flags *Flags) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "yamltr [path]",
		Short: "Batch YAML document translator",
		Long: `yamltr translates YAML documents between languages using LLM APIs.

It splits large documents into chunks, translates them concurrently,
retries transient API failures and resumes interrupted runs from
checkpoints.

Examples:
  yamltr docs/                      # Translate all YAML files under docs/
  yamltr values.yaml -t French      # Translate a single file to French
  yamltr docs/ --provider gemini    # Use the Gemini backend
  yamltr status                     # Show progress of the latest session
  yamltr clean                      # Remove old checkpoints and cache entries`,
		Args:    cobra.MaximumNArgs(1),
		Version: internal.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd, flags, args)
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd, flags)

	rootCmd.AddCommand(createStatusCommand(flags))
	rootCmd.AddCommand(createCleanCommand(flags))

	return rootCmd
}

func setupFlags(cmd *cobra.Command, flags *Flags) {
	// Global flags
	cmd.PersistentFlags().StringVar(&flags.CfgFile, "config", "", "config file (default is $HOME/.yamltr.yaml)")
	cmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&flags.LogFormat, "log-format", "", "Log format (text or json)")

	// Local flags
	cmd.Flags().StringVarP(&flags.Provider, "provider", "p", "", "Translation backend (openai or gemini)")
	cmd.Flags().StringVarP(&flags.Model, "model", "m", "", "Model name for the selected backend")
	cmd.Flags().StringVarP(&flags.SourceLanguage, "source", "s", "", "Source language")
	cmd.Flags().StringVarP(&flags.TargetLanguage, "target", "t", "", "Target language")
	cmd.Flags().StringVar(&flags.Template, "template", "", "Prompt template name")
	cmd.Flags().IntVarP(&flags.Concurrency, "concurrency", "c", 0, "Number of files translated in parallel")
	cmd.Flags().BoolVarP(&flags.Recursive, "recursive", "r", true, "Descend into subdirectories")
	cmd.Flags().BoolVar(&flags.NoBackup, "no-backup", false, "Skip backups of files before overwriting")
	cmd.Flags().BoolVar(&flags.NoCache, "no-cache", false, "Bypass the translation memory")
	cmd.Flags().BoolVar(&flags.NoResume, "no-resume", false, "Start a fresh session instead of resuming")
	cmd.Flags().BoolVarP(&flags.DryRun, "dry-run", "n", false, "List matching files without translating")
}

// loadConfig reads the configuration and applies command-line overrides.
func loadConfig(cmd *cobra.Command, flags *Flags) (*config.Config, error) {
	cfg, err := config.Load(flags.CfgFile)
	if err != nil {
		return nil, err
	}
	applyFlagOverrides(cmd, flags, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlagOverrides(cmd *cobra.Command, flags *Flags, cfg *config.Config) {
	set := func(name string) bool {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			return true
		}
		f := cmd.Root().PersistentFlags().Lookup(name)
		return f != nil && f.Changed
	}

	if set("provider") {
		cfg.API.Provider = flags.Provider
	}
	if set("model") {
		cfg.API.Model = flags.Model
	}
	if set("source") {
		cfg.Translation.SourceLanguage = flags.SourceLanguage
	}
	if set("target") {
		cfg.Translation.TargetLanguage = flags.TargetLanguage
	}
	if set("template") {
		cfg.Translation.Template = flags.Template
	}
	if set("concurrency") {
		cfg.Translation.Concurrency = flags.Concurrency
	}
	if set("recursive") {
		cfg.Files.Recursive = flags.Recursive
	}
	if set("no-backup") {
		cfg.Backup.Enabled = !flags.NoBackup
	}
	if set("no-cache") {
		cfg.Cache.Enabled = !flags.NoCache
	}
	if set("no-resume") {
		cfg.Progress.AutoResume = !flags.NoResume
	}
	if set("log-level") {
		cfg.Logging.Level = flags.LogLevel
	}
	if set("log-format") {
		cfg.Logging.Format = flags.LogFormat
	}
}

// NewLogger builds a slog.Logger from the logging configuration.
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func runTranslate(cmd *cobra.Command, flags *Flags, args []string) error {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}

	root := "."
	if len(args) > 0 {
		root = args[0]
	}

	if flags.DryRun {
		return listFiles(cfg, root)
	}

	logger := NewLogger(cfg.Logging)
	ctx := cmd.Context()

	proc, err := batch.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer proc.Close()

	summary, err := proc.Run(ctx, root)
	if err != nil {
		return err
	}

	printSummary(summary)
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", summary.Failed, summary.Files)
	}
	return nil
}

func listFiles(cfg *config.Config, root string) error {
	m := matcher.New(cfg.MatcherConfig(), slog.New(slog.DiscardHandler))
	files, err := m.Find(root, cfg.Files.Recursive)
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Println(f)
	}
	fmt.Fprintf(os.Stderr, "%d files matched\n", len(files))
	return nil
}

func printSummary(s batch.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Session", "Files", "Succeeded", "Failed", "Tokens", "Cost", "Cache Hits", "Duration"})
	t.AppendRow(table.Row{
		s.SessionID,
		s.Files,
		s.Succeeded,
		s.Failed,
		humanize.Comma(int64(s.TokensUsed)),
		fmt.Sprintf("$%.4f", s.Cost),
		s.CacheHits,
		s.Duration.Round(time.Second),
	})
	t.Render()

	for _, f := range s.FailedFiles {
		fmt.Fprintf(os.Stderr, "failed: %s\n", f)
	}
}

func createStatusCommand(flags *Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of the most recent translation session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return showStatus(cfg)
		},
	}
}

func showStatus(cfg *config.Config) error {
	lcfg := cfg.LedgerConfig()
	lcfg.AutoResume = true

	ledger, err := progress.New(lcfg, slog.New(slog.DiscardHandler))
	if err != nil {
		return err
	}

	session, ok := ledger.SessionInfo()
	if !ok {
		fmt.Println("No sessions found.")
		return nil
	}

	fmt.Printf("Session %s, started %s\n", session.SessionID, humanize.Time(session.StartTime))
	fmt.Printf("Files: %d/%d done, tokens: %s, cost: $%.4f\n",
		session.CompletedFiles, session.TotalFiles,
		humanize.Comma(int64(session.TotalTokens)), session.TotalCost)

	files := ledger.AllFiles()
	if len(files) == 0 {
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"File", "Status", "Chunks", "Size", "Tokens", "Updated"})
	for _, f := range files {
		t.AppendRow(table.Row{
			f.Path,
			string(f.Status),
			fmt.Sprintf("%d/%d", f.CompletedChunks, f.TotalChunks),
			humanize.Bytes(uint64(f.Size)),
			f.TokensUsed,
			humanize.Time(f.LastUpdate),
		})
	}
	t.Render()
	return nil
}

func createCleanCommand(flags *Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove expired checkpoints and cached translations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return clean(cmd.Context(), cfg)
		},
	}
}

func clean(ctx context.Context, cfg *config.Config) error {
	logger := NewLogger(cfg.Logging)

	ledger, err := progress.New(cfg.LedgerConfig(), logger)
	if err != nil {
		return err
	}
	removed, err := ledger.Cleanup()
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d expired checkpoints\n", removed)

	if cfg.Cache.Enabled {
		c, err := cache.Open(cfg.Cache.Path, logger)
		if err != nil {
			return err
		}
		defer c.Close()
		pruned, err := c.Prune(ctx, time.Duration(cfg.Cache.MaxDays)*24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d cached translations\n", pruned)
	}
	return nil
}
