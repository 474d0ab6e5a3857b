package caret

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFixLineTrailingWhitespace(t *testing.T) {
	fixer := NewFixer(DefaultMarkerPair())
	outcome := fixer.FixLine(`{"role":"assistant","content":"hello   "}`)

	if outcome.Kind != OutcomeFixed {
		t.Fatalf("Kind = %v, want OutcomeFixed", outcome.Kind)
	}
	if !strings.Contains(outcome.Line, `"hello"`) {
		t.Errorf("Line = %q, want trailing whitespace removed", outcome.Line)
	}
	found := false
	for _, f := range outcome.Fixes {
		if f == FixRemovedTrailingWhitespace {
			found = true
		}
	}
	if !found {
		t.Errorf("Fixes = %v, want FixRemovedTrailingWhitespace", outcome.Fixes)
	}
}

func TestFixLineUnclosedThinkTag(t *testing.T) {
	fixer := NewFixer(DefaultMarkerPair())
	outcome := fixer.FixLine(`{"role":"assistant","content":"<think>reasoning here"}`)

	if outcome.Kind != OutcomeFixed {
		t.Fatalf("Kind = %v, want OutcomeFixed", outcome.Kind)
	}
	if !strings.Contains(outcome.Line, "</think>") {
		t.Errorf("Line = %q, want a closing marker inserted", outcome.Line)
	}
	found := false
	for _, f := range outcome.Fixes {
		if f == FixAddedClosingMarker {
			found = true
		}
	}
	if !found {
		t.Errorf("Fixes = %v, want FixAddedClosingMarker", outcome.Fixes)
	}
}

func TestFixLineUnopenedCloseTag(t *testing.T) {
	fixer := NewFixer(DefaultMarkerPair())
	outcome := fixer.FixLine(`{"role":"assistant","content":"reasoning</think>answer"}`)

	if outcome.Kind != OutcomeFixed {
		t.Fatalf("Kind = %v, want OutcomeFixed", outcome.Kind)
	}
	if !strings.Contains(outcome.Line, "<think>") {
		t.Errorf("Line = %q, want an opening marker inserted", outcome.Line)
	}
}

func TestFixLineMarkerOnlyAppliesToAssistantContent(t *testing.T) {
	fixer := NewFixer(DefaultMarkerPair())
	// a "user" message with an unclosed tag should not have a marker
	// inserted — the original tag imbalance is left alone for non-assistant roles.
	outcome := fixer.FixLine(`{"role":"user","content":"<think>not reasoning"}`)

	for _, f := range outcome.Fixes {
		if f == FixAddedClosingMarker {
			t.Error("marker balancing should not apply to a user message's content")
		}
	}
}

func TestFixLineUnchangedValidLine(t *testing.T) {
	fixer := NewFixer(DefaultMarkerPair())
	outcome := fixer.FixLine(`{"role":"assistant","content":"all good"}`)

	if outcome.Kind != OutcomeUnchanged {
		t.Fatalf("Kind = %v, want OutcomeUnchanged", outcome.Kind)
	}
	if len(outcome.Fixes) != 0 {
		t.Errorf("Fixes = %v, want none", outcome.Fixes)
	}
}

func TestFixLineSkipInvalidJSON(t *testing.T) {
	fixer := NewFixer(DefaultMarkerPair())
	outcome := fixer.FixLine(`{not valid json`)

	if outcome.Kind != OutcomeSkipped {
		t.Fatalf("Kind = %v, want OutcomeSkipped", outcome.Kind)
	}
	if outcome.Reason.Kind != SkipInvalidJSON {
		t.Errorf("Reason.Kind = %v, want SkipInvalidJSON", outcome.Reason.Kind)
	}
}

func TestFixLineSkipEmptyLine(t *testing.T) {
	fixer := NewFixer(DefaultMarkerPair())
	outcome := fixer.FixLine("   ")

	if outcome.Kind != OutcomeSkipped {
		t.Fatalf("Kind = %v, want OutcomeSkipped", outcome.Kind)
	}
	if outcome.Reason.Kind != SkipEmptyLine {
		t.Errorf("Reason.Kind = %v, want SkipEmptyLine", outcome.Reason.Kind)
	}
}

func TestFixDatasetAggregatesSummary(t *testing.T) {
	ds, err := FromBytes([]byte(
		"{\"role\":\"assistant\",\"content\":\"ok\"}\n"+
			"bad json\n"+
			"{\"role\":\"assistant\",\"content\":\"trailing   \"}\n"), "<mem>", FormatJSONL, Config{})
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	defer ds.Close()

	fixer := NewFixer(DefaultMarkerPair())
	lines, summary := FixDataset(ds, fixer, false)

	if summary.TotalLines != 3 {
		t.Fatalf("TotalLines = %d, want 3", summary.TotalLines)
	}
	if summary.UnchangedLines != 1 || summary.FixedLines != 1 || summary.SkippedLines != 1 {
		t.Errorf("Unchanged=%d Fixed=%d Skipped=%d, want 1,1,1", summary.UnchangedLines, summary.FixedLines, summary.SkippedLines)
	}
	if len(lines) != 3 {
		t.Errorf("len(lines) = %d, want 3 (invalid line kept verbatim since skipInvalid=false)", len(lines))
	}
	if lines[1] != "bad json" {
		t.Errorf("lines[1] = %q, want original invalid line preserved", lines[1])
	}
}

func TestFixDatasetSkipInvalidOmitsBadLines(t *testing.T) {
	ds, err := FromBytes([]byte("{\"a\":1}\nbad json\n"), "<mem>", FormatJSONL, Config{})
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	defer ds.Close()

	fixer := NewFixer(DefaultMarkerPair())
	lines, summary := FixDataset(ds, fixer, true)

	if summary.SkippedLines != 1 {
		t.Fatalf("SkippedLines = %d, want 1", summary.SkippedLines)
	}
	if len(lines) != 1 {
		t.Errorf("len(lines) = %d, want 1 (invalid line omitted)", len(lines))
	}
}

func TestWriteFixedLinesAndFixInPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.jsonl")
	content := []byte("{\"role\":\"assistant\",\"content\":\"trailing   \"}\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ds, err := Open(path, FormatJSONL, Config{DisableIndexCache: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	fixer := NewFixer(DefaultMarkerPair())
	summary, err := FixInPlace(ds, fixer, false)
	ds.Close()
	if err != nil {
		t.Fatalf("FixInPlace: %v", err)
	}
	if summary.FixedLines != 1 {
		t.Errorf("FixedLines = %d, want 1", summary.FixedLines)
	}

	rewritten, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(rewritten), "trailing   ") {
		t.Error("in-place fix should have removed the trailing whitespace on disk")
	}
}
