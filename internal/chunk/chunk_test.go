package chunk

import (
	"fmt"
	"strings"
	"testing"
)

func newTestEngine(maxSize int, keywords ...string) *Engine {
	return New(Config{
		MaxChunkSize:  maxSize,
		SplitKeywords: keywords,
		LookAhead:     10,
		IndentUnit:    2,
	}, nil)
}

func repeatLines(prefix string, n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("%s%d: value", prefix, i+1)
	}
	return strings.Join(lines, "\n")
}

func TestSplitSingleChunkWhenSmall(t *testing.T) {
	e := newTestEngine(100)
	doc := repeatLines("key", 10)

	chunks := e.Split(doc)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].StartLine != 1 || chunks[0].EndLine != 10 {
		t.Errorf("expected range 1-10, got %d-%d", chunks[0].StartLine, chunks[0].EndLine)
	}
	if chunks[0].Content != doc {
		t.Error("single chunk content should equal the document")
	}
	if !chunks[0].IsComplete {
		t.Error("single chunk should be complete")
	}
	if chunks[0].Context != "" {
		t.Error("single chunk should have no context")
	}
}

func TestSplitTwentyFiveLines(t *testing.T) {
	// Uniform indentation, no keywords: forced cuts only. Boundary
	// look-ahead may push a cut past the size limit, but never beyond
	// the window.
	e := newTestEngine(10)
	doc := repeatLines("key", 25)

	chunks := e.Split(doc)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].EndLine > 12 {
		t.Errorf("first boundary at line %d, want <= 12", chunks[0].EndLine)
	}

	// Context must contain only adjacent-chunk text.
	if !strings.Contains(chunks[1].Context, chunks[0].Content) {
		t.Error("middle chunk context missing preceding chunk content")
	}
	if !strings.Contains(chunks[1].Context, chunks[2].Content) {
		t.Error("middle chunk context missing following chunk content")
	}
	if strings.Contains(chunks[0].Context, chunks[2].Content) {
		t.Error("first chunk context contains non-adjacent text")
	}

	// Identity merge reproduces the document.
	results := identityResults(chunks)
	merged, err := e.Merge(doc, results, chunks)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if merged != doc {
		t.Error("identity merge did not reproduce the original document")
	}
}

func TestSplitCoverage(t *testing.T) {
	docs := map[string]string{
		"flat":     repeatLines("key", 57),
		"nested":   "root:\n  a: 1\n  b:\n    c: 2\n    d: 3\nnext:\n  e: 4\n" + repeatLines("tail", 30),
		"blanky":   strings.ReplaceAll(repeatLines("key", 40), "key20: value\n", "key20: value\n\n"),
		"trailing": repeatLines("key", 21) + "\n",
	}
	for name, doc := range docs {
		for _, maxSize := range []int{1, 3, 7, 10, 50} {
			e := newTestEngine(maxSize)
			chunks := e.Split(doc)

			total := len(strings.Split(doc, "\n"))
			next := 1
			for _, c := range chunks {
				if c.StartLine != next {
					t.Fatalf("%s/max=%d: chunk %d starts at %d, want %d (gap or overlap)",
						name, maxSize, c.Index, c.StartLine, next)
				}
				if c.EndLine < c.StartLine {
					t.Fatalf("%s/max=%d: chunk %d has inverted range", name, maxSize, c.Index)
				}
				next = c.EndLine + 1
			}
			if next != total+1 {
				t.Fatalf("%s/max=%d: chunks cover lines up to %d, document has %d",
					name, maxSize, next-1, total)
			}
		}
	}
}

func TestSplitMergeRoundTrip(t *testing.T) {
	docs := []string{
		"single line",
		"",
		repeatLines("key", 100),
		"a:\n  b: 1\n\nc:\n  d: 2\n",
		"---\nfirst: doc\n---\nsecond: doc\n",
	}
	for _, doc := range docs {
		for _, maxSize := range []int{1, 2, 5, 25} {
			e := newTestEngine(maxSize, "---")
			chunks := e.Split(doc)
			merged, err := e.Merge(doc, identityResults(chunks), chunks)
			if err != nil {
				t.Fatalf("max=%d: merge failed: %v", maxSize, err)
			}
			if merged != doc {
				t.Errorf("max=%d: round trip altered document\nwant %q\ngot  %q", maxSize, doc, merged)
			}
		}
	}
}

func TestSplitDeterminism(t *testing.T) {
	e := newTestEngine(10, "---")
	doc := "a:\n  b: 1\n---\n" + repeatLines("key", 40)

	first := e.Split(doc)
	for i := 0; i < 5; i++ {
		again := e.Split(doc)
		if len(again) != len(first) {
			t.Fatalf("run %d: chunk count changed from %d to %d", i, len(first), len(again))
		}
		for j := range again {
			if again[j] != first[j] {
				t.Fatalf("run %d: chunk %d differs between runs", i, j)
			}
		}
	}
}

func TestSplitKeywordBoundary(t *testing.T) {
	e := newTestEngine(100, "---")
	doc := "first: 1\nsecond: 2\n---\nthird: 3\nfourth: 4"

	// The document fits in one chunk, so keywords only matter for
	// documents over the size limit.
	if got := len(e.Split(doc)); got != 1 {
		t.Fatalf("small document should stay whole, got %d chunks", got)
	}

	e = newTestEngine(3, "---")
	chunks := e.Split(doc)
	for _, c := range chunks {
		lines := strings.Split(c.Content, "\n")
		for i, line := range lines {
			if i > 0 && strings.Contains(line, "---") {
				t.Errorf("keyword line should start a chunk, found mid-chunk in %q", c.Content)
			}
		}
	}
}

func TestSplitPrefersBlankLineBoundary(t *testing.T) {
	// Size forces a cut at line 4, but a blank line at 5 is within the
	// look-ahead window and wins.
	doc := "a: 1\nb: 2\nc: 3\nd: 4\n\ne: 5\nf: 6\ng: 7\nh: 8"
	e := newTestEngine(4)

	chunks := e.Split(doc)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	if chunks[0].EndLine != 5 {
		t.Errorf("expected cut after blank line 5, got end line %d", chunks[0].EndLine)
	}
	if !chunks[0].IsComplete {
		t.Error("chunk cut at a blank line should be complete")
	}
}

func TestSplitIndentDecreaseBoundary(t *testing.T) {
	doc := "top:\n  a: 1\n  b: 2\n  c: 3\nnext:\n  d: 4\n  e: 5\n  f: 6"
	e := newTestEngine(5)

	chunks := e.Split(doc)
	for _, c := range chunks {
		if strings.Contains(c.Content, "c: 3") && strings.Contains(c.Content, "next:") {
			// Merge pass may rejoin them only if the combined size fits.
			if c.EndLine-c.StartLine+1 > 5 {
				t.Errorf("oversized chunk spans structural boundary: %q", c.Content)
			}
		}
	}
}

func TestChunkLevels(t *testing.T) {
	e := newTestEngine(2)
	doc := "top:\n  a: 1\n  b: 2\n  c: 3\n  d: 4"
	chunks := e.Split(doc)
	if chunks[0].Level != 0 {
		t.Errorf("first chunk level = %d, want 0", chunks[0].Level)
	}
	for _, c := range chunks[1:] {
		if c.Level != 1 {
			t.Errorf("nested chunk level = %d, want 1", c.Level)
		}
	}
}

func identityResults(chunks []Info) []Result {
	results := make([]Result, len(chunks))
	for i, c := range chunks {
		results[i] = Result{Index: c.Index, Content: c.Content, Success: true}
	}
	return results
}
