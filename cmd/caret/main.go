// Command caret is the curation-engine CLI: loads a JSONL/Parquet/CSV
// (or hf:// streamed) corpus and runs lint, fix, dedup, and MCP-server
// operations against it. Flag handling follows the teacher's and the
// wider corpus's convention of a single flat flag set parsed once at
// startup via github.com/spf13/pflag (calvinalkan-agent-task's
// dependency), dispatching to the library packages rather than
// reimplementing their logic here.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/corpuslab/caret"
	"github.com/corpuslab/caret/rpc"
	"github.com/corpuslab/caret/stream"
)

func main() {
	configureLogging()

	flags := parseFlags()
	if err := run(flags); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// configureLogging wires slog to stderr at a level controlled by
// CARET_LOG (debug/info/warn/error), matching the original tool's
// environment-variable-controlled tracing subsystem.
func configureLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("CARET_LOG")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

type cliFlags struct {
	source string

	format string

	tokenizer        bool
	tokenizerType    string
	tiktokenEncoding string
	tokenizerPath    string

	lint         bool
	requiredKeys string

	fix         bool
	fixOutput   string
	skipInvalid bool
	fixInPlace  bool

	dedup         bool
	dedupStrategy string
	dedupThreshold int
	dedupExport   string

	mcpPort int
	mcpOnly bool

	streamIncremental bool
}

func parseFlags() cliFlags {
	var f cliFlags

	pflag.StringVar(&f.format, "format", "auto", "input format: auto|jsonl|parquet|csv")
	pflag.BoolVar(&f.tokenizer, "tokenizer", false, "enable token overlay")
	pflag.StringVar(&f.tokenizerType, "tokenizer-type", "tiktoken", "tokenizer backend: tiktoken|huggingface|gpt2")
	pflag.StringVar(&f.tiktokenEncoding, "tiktoken-encoding", "cl100k", "tiktoken encoding: cl100k|p50k|r50k")
	pflag.StringVar(&f.tokenizerPath, "tokenizer-path", "", "override tokenizer with a local vocabulary file")
	pflag.BoolVar(&f.lint, "lint", false, "run the validator at load")
	pflag.StringVar(&f.requiredKeys, "required-keys", "", "comma-separated top-level keys every record must contain")
	pflag.BoolVar(&f.fix, "fix", false, "run the repairer in batch mode")
	pflag.StringVar(&f.fixOutput, "fix-output", "", "fix output path (default: source stem + _fixed + extension)")
	pflag.BoolVar(&f.skipInvalid, "skip-invalid", false, "omit unparseable records from fix output")
	pflag.BoolVar(&f.fixInPlace, "fix-in-place", false, "fix via temp file + atomic rename over the source")
	pflag.BoolVar(&f.dedup, "dedup", false, "run the dedup engine")
	pflag.StringVar(&f.dedupStrategy, "dedup-strategy", "simhash", "dedup strategy: exact|simhash")
	pflag.IntVar(&f.dedupThreshold, "dedup-threshold", 3, "simhash hamming distance threshold")
	pflag.StringVar(&f.dedupExport, "dedup-export", "", "write only non-duplicate records to this path")
	pflag.IntVar(&f.mcpPort, "mcp-port", 0, "start the MCP/RPC server on this port (0 disables it)")
	pflag.BoolVar(&f.mcpOnly, "mcp-only", false, "run the RPC server headless, without any other operation")
	pflag.BoolVar(&f.streamIncremental, "stream-incremental", false, "for hf:// sources, load row group 0 synchronously and log background progress instead of blocking until every row group has loaded")
	pflag.Parse()

	if pflag.NArg() > 0 {
		f.source = pflag.Arg(0)
	}
	return f
}

func run(f cliFlags) error {
	if f.source == "" {
		return fmt.Errorf("usage: caret [flags] <path|-|hf://org/dataset>")
	}

	dataset, err := openDataset(f)
	if err != nil {
		return fmt.Errorf("failed to open dataset: %w", err)
	}
	defer dataset.Close()

	slog.Info("loaded dataset", "path", dataset.Path(), "format", dataset.Format().String(), "lines", dataset.LineCount())

	if f.tokenizer && !f.mcpOnly {
		runTokenizer(dataset, f)
	}

	if f.mcpOnly {
		return runMCP(dataset, f)
	}

	if f.lint {
		if err := runLint(dataset, f); err != nil {
			return err
		}
	}

	if f.fix {
		if err := runFix(dataset, f); err != nil {
			return err
		}
	}

	if f.dedup {
		if err := runDedup(dataset, f); err != nil {
			return err
		}
	}

	if f.mcpPort > 0 {
		return runMCP(dataset, f)
	}

	return nil
}

func openDataset(f cliFlags) (*caret.Dataset, error) {
	if strings.HasPrefix(f.source, "hf://") {
		if f.streamIncremental {
			return openIncrementalStream(f.source)
		}
		dataset, _, err := stream.OpenHFStream(f.source)
		return dataset, err
	}

	if f.source == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		return caret.FromBytes(data, "<stdin>", caret.FormatJSONL, caret.Config{})
	}

	format, ok := caret.ParseFormat(f.format)
	if !ok {
		format = caret.DetectFormat(f.source)
	}

	config := caret.Config{}

	switch format {
	case caret.FormatParquet:
		data, err := caret.ParquetToJSONL(f.source)
		if err != nil {
			return nil, err
		}
		return caret.FromBytes(data, f.source, format, config)
	case caret.FormatCSV:
		data, err := caret.CSVToJSONL(f.source)
		if err != nil {
			return nil, err
		}
		return caret.FromBytes(data, f.source, format, config)
	default:
		return caret.Open(f.source, format, config)
	}
}

// openIncrementalStream loads uri via stream.StartIncrementalStream, which
// returns as soon as row group 0 is available and keeps fetching the rest
// in a background goroutine. It logs progress via the stream's pollable
// counters until background loading finishes (every row group loaded,
// or fetching stopped at a failed row group), then builds an immutable
// Dataset from the final snapshot — Dataset has no append path, so the
// background goroutine must finish before the rest of the CLI can run.
func openIncrementalStream(uri string) (*caret.Dataset, error) {
	s, err := stream.StartIncrementalStream(uri)
	if err != nil {
		return nil, err
	}

	slog.Info("streaming incrementally", "source", uri, "size", s.SizeDescription(), "row_groups", s.Meta().NumRowGroups)
	for !s.IsComplete() {
		slog.Info("stream progress", "row_groups_loaded", s.LoadedCount())
		time.Sleep(200 * time.Millisecond)
	}

	lines := s.Snapshot()
	var buf strings.Builder
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return caret.FromBytes([]byte(buf.String()), uri, caret.FormatParquet, caret.Config{})
}

func runLint(dataset *caret.Dataset, f cliFlags) error {
	validator := caret.NewValidator()
	if f.requiredKeys != "" {
		validator = validator.WithRequiredKeys(strings.Split(f.requiredKeys, ","))
	}

	defects := validator.ValidateDataset(dataset)
	for _, d := range defects {
		fmt.Printf("L%d [%s] %s\n", d.Line+1, d.Severity(), d.Message())
	}
	fmt.Printf("%d defect(s) across %d lines\n", len(defects), dataset.LineCount())
	return nil
}

func runFix(dataset *caret.Dataset, f cliFlags) error {
	fixer := caret.NewFixer(caret.DefaultMarkerPair())

	if f.fixInPlace {
		summary, err := caret.FixInPlace(dataset, fixer, f.skipInvalid)
		if err != nil {
			return fmt.Errorf("fix-in-place failed: %w", err)
		}
		printFixSummary(summary)
		return nil
	}

	lines, summary := caret.FixDataset(dataset, fixer, f.skipInvalid)
	outputPath := f.fixOutput
	if outputPath == "" {
		outputPath = defaultFixOutputPath(dataset.Path())
	}
	if err := caret.WriteFixedLines(outputPath, lines); err != nil {
		return fmt.Errorf("failed to write fix output: %w", err)
	}
	printFixSummary(summary)
	return nil
}

func defaultFixOutputPath(source string) string {
	ext := filepath.Ext(source)
	stem := strings.TrimSuffix(source, ext)
	return stem + "_fixed" + ext
}

func printFixSummary(summary *caret.FixSummary) {
	fmt.Printf("%d total | %d fixed | %d unchanged | %d skipped\n",
		summary.TotalLines, summary.FixedLines, summary.UnchangedLines, summary.SkippedLines)
	for fixType, count := range summary.FixesByType {
		fmt.Printf("  %s: %d\n", fixType, count)
	}
}

// runTokenizer overlays a token-span count per line using the reference
// backend named by --tokenizer-type. --tokenizer-path and
// --tiktoken-encoding are accepted for CLI-surface parity with spec.md
// but have no effect on the reference backend, which never loads a real
// BPE vocabulary.
func runTokenizer(dataset *caret.Dataset, f cliFlags) {
	kind, ok := caret.ParseTokenizerKind(f.tokenizerType)
	if !ok {
		kind = caret.TokenizerTiktoken
	}
	backend := caret.NewReferenceBackend(kind)

	for i := 0; i < dataset.LineCount(); i++ {
		line, ok := dataset.GetLine(i)
		if !ok {
			continue
		}
		spans, err := backend.Encode(line)
		if err != nil {
			continue
		}
		fmt.Printf("L%d: %d tokens (%s)\n", i+1, len(spans), backend.Name())
	}
}

func runDedup(dataset *caret.Dataset, f cliFlags) error {
	strategy := caret.DedupStrategy{Exact: f.dedupStrategy == "exact", Threshold: f.dedupThreshold}
	engine := caret.NewDedupEngine(strategy, 0)
	result := engine.Scan(dataset)
	fmt.Println(result.Summary())

	if f.dedupExport != "" {
		var lines []string
		for i := 0; i < dataset.LineCount(); i++ {
			if result.IsDuplicate(i) {
				continue
			}
			line, ok := dataset.GetLine(i)
			if !ok {
				continue
			}
			lines = append(lines, string(line))
		}
		if err := caret.WriteFixedLinesLocked(f.dedupExport, lines); err != nil {
			return fmt.Errorf("failed to write dedup export: %w", err)
		}
	}
	return nil
}

func runMCP(dataset *caret.Dataset, f cliFlags) error {
	server := rpc.NewServer(dataset, dataset.Path(), 0)
	slog.Info("MCP server listening", "port", f.mcpPort)
	if err := server.ListenAndServe(f.mcpPort); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}
