// Package caret is a curation engine for line-oriented ML training
// corpora. It opens enormous JSONL/Parquet/CSV files instantly via
// zero-copy random access, scans for near-duplicate records, validates
// and repairs structural defects, and exposes these operations over a
// JSON-RPC transport.
package caret

import "errors"

// Sentinel errors for dataset, dedup, repair, validate and transport
// operations. ErrCorruptIndexCache, ErrDecompress and
// ErrUnsupportedFormat are returned by functions in this module; the
// others are declared here, but no function in this module returns them.
var (
	// ErrNotFound names a requested line index that is out of range.
	ErrNotFound = errors.New("line not found")

	// ErrClosed names an operation on a closed Dataset.
	ErrClosed = errors.New("dataset is closed")

	// ErrInvalidPattern names a search regex that fails to compile.
	ErrInvalidPattern = errors.New("invalid regex pattern")

	// ErrCorruptIndexCache is returned when the offset sidecar cannot be parsed.
	ErrCorruptIndexCache = errors.New("corrupt index cache")

	// ErrDecompress is returned when the index cache payload fails to decompress.
	ErrDecompress = errors.New("decompression failed")

	// ErrUnsupportedFormat is returned for an input format caret cannot decode.
	ErrUnsupportedFormat = errors.New("unsupported input format")

	// ErrInvalidHfURI names a hf:// URI that does not resolve to org/dataset.
	ErrInvalidHfURI = errors.New("invalid hf:// dataset URI")

	// ErrRemoteRange names a failed byte-range request to a remote store.
	ErrRemoteRange = errors.New("remote range request failed")

	// ErrParquetFooter names a Parquet footer that cannot be located or decoded.
	ErrParquetFooter = errors.New("invalid parquet footer")

	// ErrShingleTooSmall names a SimHash shingle size below the minimum;
	// NewSimHasherWithShingleSize raises such sizes to the minimum instead.
	ErrShingleTooSmall = errors.New("shingle size must be at least 2")

	// ErrEmptyDataset names an operation that requires at least one line.
	ErrEmptyDataset = errors.New("dataset has no lines")
)
