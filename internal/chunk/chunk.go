package chunk

import (
	"log/slog"
	"strings"
)

// Info describes one contiguous slice of a document. Line numbers are
// 1-based and inclusive; together the chunks of a split cover every line
// of the source exactly once.
type Info struct {
	Index      int    `json:"index"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	Content    string `json:"content"`
	Context    string `json:"context,omitempty"`
	Level      int    `json:"level"`
	IsComplete bool   `json:"is_complete"`
}

// Result is the outcome of translating one chunk.
type Result struct {
	Index   int    `json:"index"`
	Content string `json:"content"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Config controls how documents are split.
type Config struct {
	// MaxChunkSize is the maximum number of lines per chunk.
	MaxChunkSize int
	// SplitKeywords force a boundary before any line containing one
	// (e.g. document separators like "---").
	SplitKeywords []string
	// LookAhead is how many lines past a forced cut to search for a
	// natural boundary (blank line or indentation decrease).
	LookAhead int
	// IndentUnit is the number of spaces per indentation level.
	IndentUnit int
}

// DefaultConfig returns the chunking defaults.
func DefaultConfig() Config {
	return Config{
		MaxChunkSize:  200,
		SplitKeywords: []string{"---", "===", "###"},
		LookAhead:     10,
		IndentUnit:    2,
	}
}

// Engine splits documents into bounded chunks and merges translated
// chunks back. It is stateless between documents; Split and Merge are
// pure functions of their inputs.
type Engine struct {
	cfg Config
	log *slog.Logger
}

// New creates a chunk engine. A nil logger discards output.
func New(cfg Config, logger *slog.Logger) *Engine {
	if cfg.MaxChunkSize < 1 {
		cfg.MaxChunkSize = DefaultConfig().MaxChunkSize
	}
	if cfg.LookAhead < 0 {
		cfg.LookAhead = 0
	}
	if cfg.IndentUnit < 1 {
		cfg.IndentUnit = 2
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{cfg: cfg, log: logger}
}

// Split divides content into chunks of at most MaxChunkSize lines,
// cutting at structural boundaries where possible. The returned chunks
// are contiguous, non-overlapping and cover every line of content.
func (e *Engine) Split(content string) []Info {
	lines := strings.Split(content, "\n")
	total := len(lines)

	if total <= e.cfg.MaxChunkSize {
		return e.attachContext([]Info{{
			Index:      0,
			StartLine:  1,
			EndLine:    total,
			Content:    content,
			Level:      e.startLevel(lines, 0),
			IsComplete: true,
		}})
	}

	var chunks []Info
	start := 0 // 0-based index of the current chunk's first line
	startLevel := -1

	i := 0
	for i < total {
		line := lines[i]
		blank := strings.TrimSpace(line) == ""
		level := e.indentLevel(line)

		if startLevel < 0 && !blank {
			startLevel = level
		}

		if i > start {
			switch {
			case i-start >= e.cfg.MaxChunkSize:
				// Size limit hit: prefer a natural boundary within the
				// look-ahead window over a mid-structure cut.
				end, complete := e.refineBoundary(lines, i)
				chunks = append(chunks, e.makeChunk(lines, len(chunks), start, end, complete))
				start, startLevel = end, -1
				i = end
				continue
			case !blank && startLevel >= 0 && level < startLevel:
				// Indentation dropped below the chunk's opening level:
				// the nested block the chunk started in has ended.
				chunks = append(chunks, e.makeChunk(lines, len(chunks), start, i, true))
				start, startLevel = i, level
				continue
			case e.hasKeyword(line):
				chunks = append(chunks, e.makeChunk(lines, len(chunks), start, i, true))
				start, startLevel = i, -1
				continue
			}
		}
		i++
	}
	if start < total {
		chunks = append(chunks, e.makeChunk(lines, len(chunks), start, total, true))
	}

	chunks = e.mergeSmall(chunks)
	e.log.Debug("split document", "lines", total, "chunks", len(chunks))
	return e.attachContext(chunks)
}

// refineBoundary searches up to LookAhead lines past a forced cut for a
// blank line or an indentation decrease, returning the exclusive end
// index and whether a natural boundary was found.
func (e *Engine) refineBoundary(lines []string, cut int) (int, bool) {
	limit := cut + e.cfg.LookAhead
	if limit > len(lines) {
		limit = len(lines)
	}
	for i := cut; i < limit; i++ {
		if strings.TrimSpace(lines[i]) == "" {
			return i + 1, true
		}
		if i > 0 && e.indentLevel(lines[i]) < e.indentLevel(lines[i-1]) {
			return i, true
		}
	}
	return cut, false
}

// mergeSmall coalesces adjacent chunks left needlessly small by forced
// cuts: merge when the combined size stays within the limit and the
// indentation levels differ by at most one.
func (e *Engine) mergeSmall(chunks []Info) []Info {
	if len(chunks) < 2 {
		return chunks
	}
	out := chunks[:0:0]
	out = append(out, chunks[0])
	for _, c := range chunks[1:] {
		prev := &out[len(out)-1]
		combined := (prev.EndLine - prev.StartLine + 1) + (c.EndLine - c.StartLine + 1)
		delta := prev.Level - c.Level
		if delta < 0 {
			delta = -delta
		}
		if combined <= e.cfg.MaxChunkSize && delta <= 1 {
			prev.EndLine = c.EndLine
			prev.Content = prev.Content + "\n" + c.Content
			if prev.Level > c.Level {
				prev.Level = c.Level
			}
			prev.IsComplete = prev.IsComplete && c.IsComplete
			continue
		}
		c.Index = len(out)
		out = append(out, c)
	}
	return out
}

// attachContext gives each chunk the content of its immediate
// neighbours, labeled by direction. Context is advisory for the
// translator and never written back.
func (e *Engine) attachContext(chunks []Info) []Info {
	for i := range chunks {
		var b strings.Builder
		if i > 0 {
			b.WriteString("Preceding context:\n")
			b.WriteString(chunks[i-1].Content)
		}
		if i < len(chunks)-1 {
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString("Following context:\n")
			b.WriteString(chunks[i+1].Content)
		}
		chunks[i].Context = b.String()
	}
	return chunks
}

func (e *Engine) makeChunk(lines []string, index, start, end int, complete bool) Info {
	return Info{
		Index:      index,
		StartLine:  start + 1,
		EndLine:    end,
		Content:    strings.Join(lines[start:end], "\n"),
		Level:      e.startLevel(lines, start),
		IsComplete: complete,
	}
}

// startLevel is the indentation level of the first non-blank line at or
// after start.
func (e *Engine) startLevel(lines []string, start int) int {
	for i := start; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "" {
			return e.indentLevel(lines[i])
		}
	}
	return 0
}

func (e *Engine) indentLevel(line string) int {
	return (len(line) - len(strings.TrimLeft(line, " "))) / e.cfg.IndentUnit
}

func (e *Engine) hasKeyword(line string) bool {
	for _, kw := range e.cfg.SplitKeywords {
		if kw != "" && strings.Contains(line, kw) {
			return true
		}
	}
	return false
}
