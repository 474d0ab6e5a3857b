// Core dataset type and lifecycle operations.
//
// Dataset provides zero-copy random access into a line-oriented corpus.
// It maps the source file once, scans it for newline positions exactly
// once (or loads that scan from indexcache.go), and thereafter serves
// GetLine in O(1) without re-reading or re-scanning. Once built, a
// Dataset is immutable and safe for concurrent readers — there is no
// write path here; repair.go and the CLI's --fix-in-place write a new
// file and the caller reopens it.
package caret

import (
	"fmt"
	"io"
	"iter"
	"os"
	"runtime"
	"unicode/utf8"

	"golang.org/x/exp/mmap"
)

// Config holds dataset configuration.
type Config struct {
	// HashAlgorithm selects the digest used for Dataset.Digest() and the
	// index-cache checksum (AlgXXHash3, AlgFNV1a, AlgBlake2b). It never
	// affects the dedup Fingerprint, which is always FNV-1a or SimHash-64.
	HashAlgorithm int

	// Workers is set to runtime.NumCPU() when zero. The Dedup Engine and
	// the RPC server do not read it; they take their worker counts as
	// constructor arguments.
	Workers int

	// DisableIndexCache skips reading or writing the <path>.caretidx
	// sidecar, forcing a full newline scan on every Open.
	DisableIndexCache bool
}

func (c Config) withDefaults() Config {
	if c.HashAlgorithm == 0 {
		c.HashAlgorithm = AlgXXHash3
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	return c
}

// byteSource abstracts the underlying bytes of a dataset: either a
// memory-mapped file (the common case for JSONL/CSV-converted-to-JSONL
// on local disk) or an owned in-memory buffer (stdin, Parquet row groups,
// remote HF stream output — see stream/).
type byteSource interface {
	io.ReaderAt
	Len() int64
	Close() error
}

// mmapSource wraps golang.org/x/exp/mmap.ReaderAt for read-only,
// zero-copy access to an on-disk file.
type mmapSource struct {
	r *mmap.ReaderAt
}

func (m *mmapSource) ReadAt(p []byte, off int64) (int, error) { return m.r.ReadAt(p, off) }
func (m *mmapSource) Len() int64                               { return int64(m.r.Len()) }
func (m *mmapSource) Close() error                             { return m.r.Close() }
func (m *mmapSource) at(i int64) byte                          { return m.r.At(int(i)) }

// memSource wraps an owned in-memory buffer. Used whenever the content
// did not arrive as a seekable on-disk file: stdin, a CSV/Parquet
// conversion, or a Hugging Face stream (stream.OpenHFStream builds one
// of these via FromBytes).
type memSource struct {
	data []byte
}

func (m *memSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
func (m *memSource) Len() int64 { return int64(len(m.data)) }
func (m *memSource) Close() error { return nil }
func (m *memSource) at(i int64) byte { return m.data[i] }

// sourceByter is implemented by both byteSource backends to give the
// offset scanner direct byte access without an intermediate ReadAt copy.
type sourceByter interface {
	at(i int64) byte
}

// Dataset is an immutable, zero-copy view over a line-oriented corpus.
type Dataset struct {
	path   string
	format InputFormat
	src    byteSource
	// offsets[i] is the byte position where line i begins. len(offsets)
	// equals the line count; a synthetic trailing offsets entry is never
	// stored — GetLine computes each line's end from the next offset or
	// the source size.
	offsets []int64
	size    int64
	config  Config

	digest     string
	digestDone bool
}

// Open maps path read-only and builds (or loads from cache) its
// line-offset table. format should be DetectFormat(path) unless the
// caller already knows it.
func Open(path string, format InputFormat, config Config) (*Dataset, error) {
	config = config.withDefaults()

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	src := &mmapSource{r: r}

	offsets := buildOrLoadOffsets(path, src, info.Size(), info.ModTime().UnixNano(), config)

	return &Dataset{
		path:    path,
		format:  format,
		src:     src,
		offsets: offsets,
		size:    src.Len(),
		config:  config,
	}, nil
}

// FromBytes builds a Dataset over an owned in-memory buffer — used for
// stdin input, and for format-converted content (Parquet/CSV rendered to
// JSONL lines, or the remote streaming package's accumulated output).
// path is retained only for display purposes (Path). The index cache is
// skipped for in-memory sources since
// there is no stable file to validate a cache against.
func FromBytes(data []byte, path string, format InputFormat, config Config) (*Dataset, error) {
	config = config.withDefaults()
	src := &memSource{data: data}
	offsets := scanOffsets(src, src.Len())
	return &Dataset{
		path:    path,
		format:  format,
		src:     src,
		offsets: offsets,
		size:    src.Len(),
		config:  config,
	}, nil
}

func buildOrLoadOffsets(path string, src *mmapSource, size, modTimeNs int64, config Config) []int64 {
	if !config.DisableIndexCache {
		if offsets, ok := loadIndexCacheMigrating(path, size, modTimeNs, config.HashAlgorithm); ok {
			return offsets
		}
	}

	offsets := scanOffsets(src, src.Len())

	if !config.DisableIndexCache {
		// Best-effort: a failed cache write never fails Open.
		_ = saveIndexCache(path, offsets, size, modTimeNs, config.HashAlgorithm)
	}
	return offsets
}

// scanOffsets walks the source once, recording the start of every line.
// Mirrors the teacher's single-pass newline scan (read.go's align, and
// original_source/src/data.rs's Dataset::open): offsets[0] is always 0
// (even for an empty file, giving a single empty line), and a trailing
// newline does not produce a spurious final empty line.
func scanOffsets(src sourceByter, size int64) []int64 {
	offsets := []int64{0}
	for i := int64(0); i < size; i++ {
		if src.at(i) == '\n' && i+1 < size {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

// LineCount returns the number of addressable lines.
func (d *Dataset) LineCount() int {
	return len(d.offsets)
}

// Size returns the total byte size of the dataset's byte source.
func (d *Dataset) Size() int64 {
	return d.size
}

// SizeHuman formats Size as a human-readable KB/MB/GB string.
func (d *Dataset) SizeHuman() string {
	return formatSize(d.size)
}

// Path returns the dataset's source path, or a synthetic label for
// in-memory sources (e.g. "<stdin>" or a hf:// URI).
func (d *Dataset) Path() string {
	return d.path
}

// Format returns the dataset's detected or declared input format.
func (d *Dataset) Format() InputFormat {
	return d.format
}

// GetLine returns the raw bytes of line index (0-based), without the
// trailing newline. Each call allocates a new slice and copies the
// line's bytes into it; the result does not alias the Dataset's byte
// source. ok is false if
// index is out of range, or if the line's bytes are not valid UTF-8 —
// an absent-record signal rather than a crash or garbage content.
func (d *Dataset) GetLine(index int) (line []byte, ok bool) {
	if index < 0 || index >= len(d.offsets) {
		return nil, false
	}
	start := d.offsets[index]
	var end int64
	if index+1 < len(d.offsets) {
		end = d.offsets[index+1] - 1 // exclude the newline
	} else {
		end = d.size
	}
	if end < start {
		end = start
	}

	buf := make([]byte, end-start)
	if _, err := d.src.ReadAt(buf, start); err != nil && err != io.EOF {
		return nil, false
	}
	if !utf8.Valid(buf) {
		return nil, false
	}
	return buf, true
}

// GetLines returns up to count lines starting at index start, skipping
// any index whose content is absent (invalid UTF-8) rather than
// truncating the batch early.
func (d *Dataset) GetLines(start, count int) [][]byte {
	if start < 0 || count <= 0 {
		return nil
	}
	out := make([][]byte, 0, count)
	for i := start; i < start+count && i < len(d.offsets); i++ {
		line, ok := d.GetLine(i)
		if !ok {
			continue
		}
		out = append(out, line)
	}
	return out
}

// Lines iterates every line in order, yielding (index, content) as
// returned by GetLine for each index. An
// index whose content is absent (invalid UTF-8) is skipped rather than
// ending the iteration.
func (d *Dataset) Lines() iter.Seq2[int, []byte] {
	return func(yield func(int, []byte) bool) {
		for i := range d.offsets {
			line, ok := d.GetLine(i)
			if !ok {
				continue
			}
			if !yield(i, line) {
				return
			}
		}
	}
}

// Digest returns a 16 hex character content digest of the dataset,
// computed lazily on first call using Config.HashAlgorithm. Exposed via
// dataset_info and resources/read so RPC clients can detect whether two
// sessions are looking at byte-identical content.
func (d *Dataset) Digest() (string, error) {
	if d.digestDone {
		return d.digest, nil
	}
	buf := make([]byte, d.size)
	if _, err := d.src.ReadAt(buf, 0); err != nil && err != io.EOF {
		return "", err
	}
	d.digest = digestHash(buf, d.config.HashAlgorithm)
	d.digestDone = true
	return d.digest, nil
}

// Close releases the underlying byte source (unmaps the file, if mapped).
func (d *Dataset) Close() error {
	return d.src.Close()
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
