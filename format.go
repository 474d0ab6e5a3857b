// Multi-format input support.
//
// Detects and converts JSONL, Parquet, and CSV inputs to the line-
// oriented representation Dataset operates on. Grounded on
// original_source/src/format.rs, translated from Arrow/serde_json to
// parquet-go and goccy/go-json, and from Rust's csv crate to the
// tolerant permissivecsv reader (chosen because curation tools routinely
// meet CSV with inconsistent line endings or ragged rows, which a
// strict decoder would simply reject).
package caret

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/eltorocorp/permissivecsv"
	json "github.com/goccy/go-json"
	"github.com/parquet-go/parquet-go"
)

// InputFormat names a supported dataset encoding.
type InputFormat int

const (
	FormatJSONL InputFormat = iota
	FormatParquet
	FormatCSV
)

func (f InputFormat) String() string {
	switch f {
	case FormatParquet:
		return "parquet"
	case FormatCSV:
		return "csv"
	default:
		return "jsonl"
	}
}

// DetectFormat infers a format from a file extension, defaulting to
// JSONL when the extension is absent or unrecognized.
func DetectFormat(path string) InputFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".pq":
		return FormatParquet
	case ".csv", ".tsv":
		return FormatCSV
	default:
		return FormatJSONL
	}
}

// ParseFormat parses a --format flag value. ok is false for "auto" (the
// caller should fall back to DetectFormat) or an unrecognized name.
func ParseFormat(s string) (format InputFormat, ok bool) {
	switch strings.ToLower(s) {
	case "jsonl", "json", "ndjson":
		return FormatJSONL, true
	case "parquet", "pq":
		return FormatParquet, true
	case "csv":
		return FormatCSV, true
	default:
		return 0, false
	}
}

// ParquetToJSONL reads every row group of a Parquet file and renders
// each row as one JSONL line.
func ParquetToJSONL(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	reader := parquet.NewGenericReader[map[string]any](pf)
	defer reader.Close()

	rows := make([]map[string]any, 128)
	for {
		n, err := reader.Read(rows)
		for _, row := range rows[:n] {
			line, mErr := json.Marshal(row)
			if mErr != nil {
				return nil, mErr
			}
			out.Write(line)
			out.WriteByte('\n')
		}
		if err != nil {
			break
		}
	}
	return out.Bytes(), nil
}

// CSVToJSONL decodes a (possibly malformed) CSV/TSV file into JSONL,
// one JSON object per row keyed by the header, all values kept as
// strings — matching the Rust original's behaviour of not attempting
// type inference on CSV cells.
func CSVToJSONL(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := permissivecsv.NewScanner(f, permissivecsv.HeaderCheckAssumeHeaderExists)

	var header []string
	var out bytes.Buffer
	first := true
	for scanner.Scan() {
		record := scanner.CurrentRecord()
		if first {
			header = append([]string(nil), record...)
			first = false
			continue
		}
		obj := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(record) {
				obj[h] = record[i]
			} else {
				obj[h] = ""
			}
		}
		line, err := json.Marshal(obj)
		if err != nil {
			return nil, err
		}
		out.Write(line)
		out.WriteByte('\n')
	}
	if header == nil {
		return nil, ErrUnsupportedFormat
	}
	return out.Bytes(), nil
}

// ReadJSONLLines reads a JSONL file, skipping blank lines, and returns
// its content re-joined with newlines — used when a pre-conversion pass
// (e.g. stripping blank lines before building offsets) is wanted ahead
// of Dataset.Open.
func ReadJSONLLines(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out bytes.Buffer
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
