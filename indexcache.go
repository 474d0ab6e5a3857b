// Persisted line-offset index cache.
//
// Opening a multi-gigabyte dataset normally means scanning every byte
// once to record newline positions (scanOffsets in dataset.go). This sidecar file lets
// a later reopen skip that scan: it stores the offset vector next to the
// source file as <path>.caretidx, a two-line payload — a small JSON
// header followed by a Zstd+Ascii85 blob of the packed int64 offsets
// (compress.go) — validated against the source file's size, modification
// time, and a checksum of the offset payload (hash.go) before being trusted.
//
// A cache miss or mismatch is never an error: callers fall back silently
// to a full rescan and (re)write a fresh cache afterwards.
package caret

import (
	"bytes"
	"encoding/binary"
	"os"

	json "github.com/goccy/go-json"
	"github.com/natefinch/atomic"
)

const indexCacheVersion = 1

// indexCacheSuffix names the sidecar file relative to the dataset path.
const indexCacheSuffix = ".caretidx"

type indexCacheHeader struct {
	Version   int    `json:"_v"`
	Algorithm int    `json:"_alg"`
	Size      int64  `json:"_sz"`
	ModTimeNs int64  `json:"_mt"`
	Checksum  string `json:"_cs"`
	Lines     int64  `json:"_n"`
}

func indexCachePath(datasetPath string) string {
	return datasetPath + indexCacheSuffix
}

// loadIndexCache returns the cached offset vector if it exists and its
// header matches the source file's current size/mtime/algorithm and its
// payload checksum verifies. Any failure is reported as ok=false, never
// an error — the caller rebuilds from scratch.
func loadIndexCache(datasetPath string, size, modTimeNs int64, alg int) (offsets []int64, ok bool) {
	data, err := os.ReadFile(indexCachePath(datasetPath))
	if err != nil {
		return nil, false
	}

	nl := bytes.IndexByte(data, '\n')
	if nl < 0 {
		return nil, false
	}

	var hdr indexCacheHeader
	if err := json.Unmarshal(data[:nl], &hdr); err != nil {
		return nil, false
	}
	if hdr.Version != indexCacheVersion || hdr.Size != size ||
		hdr.ModTimeNs != modTimeNs || hdr.Algorithm != alg {
		return nil, false
	}

	payload := string(bytes.TrimRight(data[nl+1:], "\n"))
	raw, err := decompress(payload)
	if err != nil || len(raw)%8 != 0 {
		return nil, false
	}
	if digestHash(raw, alg) != hdr.Checksum {
		return nil, false
	}

	n := len(raw) / 8
	if int64(n) != hdr.Lines {
		return nil, false
	}
	offsets = make([]int64, n)
	for i := range offsets {
		offsets[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return offsets, true
}

// saveIndexCache writes (or overwrites) the sidecar cache atomically, so
// a concurrent reader never observes a partially-written cache file.
func saveIndexCache(datasetPath string, offsets []int64, size, modTimeNs int64, alg int) error {
	raw := make([]byte, len(offsets)*8)
	for i, o := range offsets {
		binary.LittleEndian.PutUint64(raw[i*8:], uint64(o))
	}

	hdr := indexCacheHeader{
		Version:   indexCacheVersion,
		Algorithm: alg,
		Size:      size,
		ModTimeNs: modTimeNs,
		Checksum:  digestHash(raw, alg),
		Lines:     int64(len(offsets)),
	}
	hdrBytes, err := json.Marshal(&hdr)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.Write(hdrBytes)
	buf.WriteByte('\n')
	buf.WriteString(compress(raw))
	buf.WriteByte('\n')

	return atomic.WriteFile(indexCachePath(datasetPath), &buf)
}

// loadIndexCacheMigrating is the Open-time entry point used when a plain
// loadIndexCache misses: it distinguishes a genuine cache miss (missing
// file, corrupt payload, size/mtime drift — nothing to do but rescan)
// from a cache that is otherwise valid but was written under a different
// Config.HashAlgorithm. In the latter case it migrates the sidecar via
// rehashIndexCache instead of paying for a full rescan just because the
// checksum algorithm changed between runs.
func loadIndexCacheMigrating(datasetPath string, size, modTimeNs int64, alg int) (offsets []int64, ok bool) {
	if offsets, ok := loadIndexCache(datasetPath, size, modTimeNs, alg); ok {
		return offsets, true
	}

	data, err := os.ReadFile(indexCachePath(datasetPath))
	if err != nil {
		return nil, false
	}
	nl := bytes.IndexByte(data, '\n')
	if nl < 0 {
		return nil, false
	}
	var hdr indexCacheHeader
	if err := json.Unmarshal(data[:nl], &hdr); err != nil {
		return nil, false
	}
	if hdr.Version != indexCacheVersion || hdr.Size != size || hdr.ModTimeNs != modTimeNs || hdr.Algorithm == alg {
		// Either genuinely stale, or the algorithm already matched (so the
		// first loadIndexCache call above would have succeeded) — nothing
		// a migration can fix.
		return nil, false
	}

	if err := rehashIndexCache(datasetPath, size, modTimeNs, alg); err != nil {
		return nil, false
	}
	return loadIndexCache(datasetPath, size, modTimeNs, alg)
}

// rehashIndexCache recomputes and rewrites the cache checksum under a new
// hash algorithm, mirroring the teacher's algorithm-migration pass
// (rehash.go) repurposed from "migrate record IDs" to "migrate the
// sidecar's integrity checksum" when Config.HashAlgorithm changes between
// runs against the same dataset file.
func rehashIndexCache(datasetPath string, size, modTimeNs int64, newAlg int) error {
	offsets, ok := loadIndexCache(datasetPath, size, modTimeNs, 0)
	if !ok {
		// Algorithm mismatch on purpose: load with alg=0 never matches a
		// real header, so fall back to reading the raw offsets directly.
		data, err := os.ReadFile(indexCachePath(datasetPath))
		if err != nil {
			return err
		}
		nl := bytes.IndexByte(data, '\n')
		if nl < 0 {
			return ErrCorruptIndexCache
		}
		payload := string(bytes.TrimRight(data[nl+1:], "\n"))
		raw, err := decompress(payload)
		if err != nil || len(raw)%8 != 0 {
			return ErrCorruptIndexCache
		}
		offsets = make([]int64, len(raw)/8)
		for i := range offsets {
			offsets[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
		}
	}
	return saveIndexCache(datasetPath, offsets, size, modTimeNs, newAlg)
}
