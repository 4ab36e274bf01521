package chunk

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMismatch indicates results and chunks do not line up (count, index
// or duplicate problems). This is an integration error, never retried.
var ErrMismatch = errors.New("results do not match chunks")

// ErrFailedChunks indicates at least one chunk result was unsuccessful.
var ErrFailedChunks = errors.New("chunks failed to translate")

// Merge reassembles translated chunk results into the original document,
// replacing each chunk's line range with its translated lines. Every
// chunk must have exactly one successful result; on any failed result
// the error reports all failing indices, not just the first.
func (e *Engine) Merge(original string, results []Result, chunks []Info) (string, error) {
	if len(results) != len(chunks) {
		return "", fmt.Errorf("%w: %d results for %d chunks", ErrMismatch, len(results), len(chunks))
	}

	byIndex := make(map[int]Info, len(chunks))
	for _, c := range chunks {
		byIndex[c.Index] = c
	}
	seen := make(map[int]bool, len(results))
	var failed []string
	for _, r := range results {
		if _, ok := byIndex[r.Index]; !ok {
			return "", fmt.Errorf("%w: result index %d has no chunk", ErrMismatch, r.Index)
		}
		if seen[r.Index] {
			return "", fmt.Errorf("%w: duplicate result for index %d", ErrMismatch, r.Index)
		}
		seen[r.Index] = true
		if !r.Success {
			failed = append(failed, fmt.Sprintf("chunk %d: %s", r.Index, r.Error))
		}
	}
	if len(failed) > 0 {
		return "", fmt.Errorf("%w:\n%s", ErrFailedChunks, strings.Join(failed, "\n"))
	}

	sortedResults := append([]Result(nil), results...)
	sort.Slice(sortedResults, func(i, j int) bool { return sortedResults[i].Index < sortedResults[j].Index })
	sortedChunks := append([]Info(nil), chunks...)
	sort.Slice(sortedChunks, func(i, j int) bool { return sortedChunks[i].Index < sortedChunks[j].Index })

	lines := strings.Split(original, "\n")
	out := make([]string, 0, len(lines))
	cursor := 1 // next original line not yet emitted, 1-based
	for i, c := range sortedChunks {
		// Lines between chunks should not exist given the split
		// invariant; preserve them verbatim rather than dropping.
		if c.StartLine > cursor {
			out = append(out, lines[cursor-1:c.StartLine-1]...)
		}
		out = append(out, strings.Split(sortedResults[i].Content, "\n")...)
		cursor = c.EndLine + 1
	}
	if cursor <= len(lines) {
		out = append(out, lines[cursor-1:]...)
	}
	e.log.Debug("merged chunks", "chunks", len(sortedChunks), "lines", len(out))
	return strings.Join(out, "\n"), nil
}
