// Repairer: automatically fixes common structural defects in a line of
// an LLM training dataset — trailing whitespace, whitespace before
// newlines, and unbalanced reasoning markers (<think>/</think> by
// default) in assistant messages. Grounded directly on
// original_source/src/fixer.rs, translated from serde_json::Value tree
// mutation to goccy/go-json's generic interface{} decode, and from the
// original regex-based tag counting to strings.Count (no compiled regex
// needed for a fixed literal marker).
//
// The whole-file rewrite orchestration (temp file, sequential rewrite,
// atomic replace) is adapted from the teacher's repair.go compaction
// pass, generalized from "reorganize KV-store sections" to "rewrite
// every line through the fix pipeline".
package caret

import (
	"bufio"
	"bytes"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/natefinch/atomic"
)

// FixType names a kind of repair the Fixer can apply to a line.
type FixType int

const (
	FixAddedClosingMarker FixType = iota
	FixAddedOpeningMarker
	FixRemovedTrailingWhitespace
	FixTrimmedWhitespaceBeforeNewlines
)

func (t FixType) String() string {
	switch t {
	case FixAddedClosingMarker:
		return "added missing closing reasoning marker"
	case FixAddedOpeningMarker:
		return "added missing opening reasoning marker"
	case FixRemovedTrailingWhitespace:
		return "removed trailing whitespace"
	case FixTrimmedWhitespaceBeforeNewlines:
		return "trimmed whitespace before newlines"
	default:
		return "unknown fix"
	}
}

// SkipReasonKind classifies why a line could not be fixed.
type SkipReasonKind int

const (
	SkipInvalidJSON SkipReasonKind = iota
	SkipEmptyLine
)

// SkipReason explains why FixLine skipped a line.
type SkipReason struct {
	Kind SkipReasonKind
	// Detail holds the JSON parse error text when Kind is SkipInvalidJSON.
	Detail string
}

func (r SkipReason) String() string {
	if r.Kind == SkipInvalidJSON {
		return "invalid JSON: " + r.Detail
	}
	return "empty line"
}

// FixOutcome is the tagged result of fixing one line — exactly one of
// Fixed, Unchanged, or Skipped holds meaningful data, selected by Kind.
type FixOutcomeKind int

const (
	OutcomeFixed FixOutcomeKind = iota
	OutcomeUnchanged
	OutcomeSkipped
)

type FixOutcome struct {
	Kind   FixOutcomeKind
	Line   string       // the (possibly fixed) JSON line, for Fixed/Unchanged
	Fixes  []FixType    // fixes applied, for Fixed only
	Reason SkipReason   // populated for Skipped only
}

// MarkerPair names an open/close reasoning-marker pair the Fixer
// balances. Configurable so the engine is not hard-coded to one
// vendor's convention.
type MarkerPair struct {
	Open  string
	Close string
}

// DefaultMarkerPair is the conventional <think>/</think> reasoning tag.
func DefaultMarkerPair() MarkerPair {
	return MarkerPair{Open: "<think>", Close: "</think>"}
}

// Fixer repairs one JSONL line at a time.
type Fixer struct {
	marker MarkerPair
}

// NewFixer returns a Fixer using the given marker pair.
func NewFixer(marker MarkerPair) *Fixer {
	return &Fixer{marker: marker}
}

// FixLine parses line as JSON, walks its value tree applying the fixes
// below, and re-serializes it. Whitespace-only lines are skipped as
// SkipEmptyLine; lines that fail to parse are skipped as SkipInvalidJSON
// without attempting partial repair.
func (f *Fixer) FixLine(line string) FixOutcome {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return FixOutcome{Kind: OutcomeSkipped, Reason: SkipReason{Kind: SkipEmptyLine}}
	}

	var value any
	if err := json.Unmarshal([]byte(trimmed), &value); err != nil {
		return FixOutcome{Kind: OutcomeSkipped, Reason: SkipReason{Kind: SkipInvalidJSON, Detail: err.Error()}}
	}

	var fixes []FixType
	value = f.fixValue(value, &fixes)

	out, err := json.Marshal(value)
	if err != nil {
		return FixOutcome{Kind: OutcomeSkipped, Reason: SkipReason{Kind: SkipInvalidJSON, Detail: err.Error()}}
	}

	if len(fixes) == 0 {
		return FixOutcome{Kind: OutcomeUnchanged, Line: string(out)}
	}
	return FixOutcome{Kind: OutcomeFixed, Line: string(out), Fixes: fixes}
}

func (f *Fixer) fixValue(value any, fixes *[]FixType) any {
	switch v := value.(type) {
	case string:
		return f.fixString(v, fixes)
	case []any:
		for i, item := range v {
			v[i] = f.fixValue(item, fixes)
		}
		return v
	case map[string]any:
		return f.fixObject(v, fixes)
	default:
		return v
	}
}

// fixObject applies the marker-balance fix only to the content field of
// an assistant message object; every other field is fixed generically.
func (f *Fixer) fixObject(obj map[string]any, fixes *[]FixType) map[string]any {
	isAssistant := false
	if role, ok := obj["role"].(string); ok {
		isAssistant = role == "assistant"
	}

	for key, value := range obj {
		if isAssistant && key == "content" {
			if s, ok := value.(string); ok {
				s = trimWhitespaceFixes(s, fixes)
				s = f.fixMarkers(s, fixes)
				obj[key] = s
				continue
			}
		}
		obj[key] = f.fixValue(value, fixes)
	}
	return obj
}

func (f *Fixer) fixString(s string, fixes *[]FixType) string {
	return trimWhitespaceFixes(s, fixes)
}

// trimWhitespaceFixes applies the two whitespace repairs shared by every
// string field (RemovedTrailingWhitespace, TrimmedWhitespaceBeforeNewlines).
func trimWhitespaceFixes(s string, fixes *[]FixType) string {
	trimmed := strings.TrimRight(s, " \t")
	if len(trimmed) < len(s) {
		s = trimmed
		appendFixOnce(fixes, FixRemovedTrailingWhitespace)
	}

	if collapsed, changed := collapseWhitespaceBeforeNewline(s); changed {
		s = collapsed
		appendFixOnce(fixes, FixTrimmedWhitespaceBeforeNewlines)
	}
	return s
}

// collapseWhitespaceBeforeNewline replaces runs of one-or-more spaces
// immediately preceding a newline with just the newline — the Go
// equivalent of the original's " +\n" regex replace, done without a
// compiled regex since the pattern is fixed.
func collapseWhitespaceBeforeNewline(s string) (string, bool) {
	if !strings.Contains(s, " \n") {
		return s, false
	}
	var out strings.Builder
	out.Grow(len(s))
	spaceRun := 0
	for _, r := range s {
		if r == ' ' {
			spaceRun++
			continue
		}
		if r == '\n' && spaceRun > 0 {
			out.WriteByte('\n')
			spaceRun = 0
			continue
		}
		for ; spaceRun > 0; spaceRun-- {
			out.WriteByte(' ')
		}
		out.WriteRune(r)
	}
	for ; spaceRun > 0; spaceRun-- {
		out.WriteByte(' ')
	}
	return out.String(), out.Len() != len(s)
}

// fixMarkers balances reasoning-marker pairs in an assistant message's
// content. More openers than closers: insert a closer after each
// unclosed opener, at the heuristic position findMarkerClosePosition
// picks. More closers than openers: prepend an opener per unmatched
// closer.
func (f *Fixer) fixMarkers(s string, fixes *[]FixType) string {
	openCount := strings.Count(s, f.marker.Open)
	closeCount := strings.Count(s, f.marker.Close)

	switch {
	case openCount > closeCount:
		for n := 0; n < openCount-closeCount; n++ {
			// Find the last opener with no closer between it and the
			// end of the region still to search.
			end := len(s)
			lastOpen := strings.LastIndex(s, f.marker.Open)
			for lastOpen >= 0 && strings.Contains(s[lastOpen:end], f.marker.Close) {
				end = lastOpen
				lastOpen = strings.LastIndex(s[:end], f.marker.Open)
			}
			if lastOpen < 0 {
				break
			}
			contentStart := lastOpen + len(f.marker.Open)
			closePos := findMarkerClosePosition(s[contentStart:])
			insertPos := contentStart + closePos
			s = s[:insertPos] + f.marker.Close + s[insertPos:]
			appendFixOnce(fixes, FixAddedClosingMarker)
		}
	case closeCount > openCount:
		for n := 0; n < closeCount-openCount; n++ {
			s = f.marker.Open + s
			appendFixOnce(fixes, FixAddedOpeningMarker)
		}
	}
	return s
}

// findMarkerClosePosition looks for a paragraph break (double newline)
// as the natural end of a reasoning section; absent one, it closes at
// the end of the string. A deliberately simple heuristic — see
// DESIGN.md's Open Question on marker-insertion accuracy.
func findMarkerClosePosition(content string) int {
	if pos := strings.Index(content, "\n\n"); pos >= 0 {
		return pos
	}
	return len(content)
}

func appendFixOnce(fixes *[]FixType, t FixType) {
	for _, existing := range *fixes {
		if existing == t {
			return
		}
	}
	*fixes = append(*fixes, t)
}

// FixSummary aggregates FixOutcomes across a dataset.
type FixSummary struct {
	TotalLines    int
	FixedLines    int
	UnchangedLines int
	SkippedLines  int
	FixesByType   map[FixType]int
}

// NewFixSummary returns an empty summary.
func NewFixSummary() *FixSummary {
	return &FixSummary{FixesByType: make(map[FixType]int)}
}

func (s *FixSummary) Record(outcome FixOutcome) {
	s.TotalLines++
	switch outcome.Kind {
	case OutcomeFixed:
		s.FixedLines++
		for _, t := range outcome.Fixes {
			s.FixesByType[t]++
		}
	case OutcomeUnchanged:
		s.UnchangedLines++
	case OutcomeSkipped:
		s.SkippedLines++
	}
}

// FixDataset runs the Fixer over every line of dataset and returns the
// fixed lines (in order, one per non-skipped input line when
// skipInvalid is true, or every line including skipped originals
// verbatim when skipInvalid is false) plus the aggregate summary.
func FixDataset(dataset *Dataset, fixer *Fixer, skipInvalid bool) ([]string, *FixSummary) {
	summary := NewFixSummary()
	var out []string

	for i := 0; i < dataset.LineCount(); i++ {
		line, ok := dataset.GetLine(i)
		if !ok {
			continue
		}
		outcome := fixer.FixLine(string(line))
		summary.Record(outcome)

		switch outcome.Kind {
		case OutcomeFixed, OutcomeUnchanged:
			out = append(out, outcome.Line)
		case OutcomeSkipped:
			if !skipInvalid {
				out = append(out, string(line))
			}
		}
	}
	return out, summary
}

// WriteFixedLines writes lines (newline-joined) directly to outputPath
// via os.Create + a buffered writer — not atomically. A failure partway
// through leaves a partially-written file at outputPath, matching
// original_source/src/main.rs's non-in-place batch path (File::create +
// BufWriter) and spec.md §7's documented distinction from in-place mode:
// batch output-write failure is fatal with partial output left on disk,
// while in-place mode never renames over the source until the rewrite
// has fully succeeded (see writeFixedLinesAtomic, used by FixInPlace).
func WriteFixedLines(outputPath string, lines []string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := w.WriteString(line); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return w.Flush()
}

// WriteFixedLinesLocked is WriteFixedLines under an exclusive OS-level
// lock (lock.go) on outputPath, for callers writing to a path a
// concurrently running RPC server might also have open — the CLI's
// --dedup-export uses this instead of the bare WriteFixedLines.
func WriteFixedLinesLocked(outputPath string, lines []string) error {
	return withExclusiveLock(outputPath, func() error {
		return WriteFixedLines(outputPath, lines)
	})
}

// writeFixedLinesAtomic writes lines to outputPath via a temp file and
// rename, so a reader (or a crash mid-write) never observes a partially
// written result. Used only by FixInPlace, which rewrites a dataset's
// own source file in place and so cannot tolerate a half-written
// destination the way a fresh batch output file can. Grounded on the
// teacher's repair.go rewrite-then-rename compaction and on
// natefinch/atomic's WriteFileAtomic pattern from
// calvinalkan-agent-task/internal/fs/real.go.
func writeFixedLinesAtomic(outputPath string, lines []string) error {
	var buf bytes.Buffer
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return atomic.WriteFile(outputPath, &buf)
}

// FixInPlace fixes dataset's source file and atomically replaces it —
// the thin wrapper mirroring the teacher's Compact()/Purge() pattern
// (compact.go), generalized from "defragment the KV store" to "rewrite
// the dataset file with every line repaired". The rewrite happens under
// an exclusive OS-level lock (lock.go) so a concurrent RPC server
// reading the same path never observes a partial write, and uses
// writeFixedLinesAtomic rather than WriteFixedLines so a failure never
// leaves the source file half-rewritten.
func FixInPlace(dataset *Dataset, fixer *Fixer, skipInvalid bool) (*FixSummary, error) {
	lines, summary := FixDataset(dataset, fixer, skipInvalid)
	err := withExclusiveLock(dataset.Path(), func() error {
		return writeFixedLinesAtomic(dataset.Path(), lines)
	})
	if err != nil {
		return summary, err
	}
	return summary, nil
}
