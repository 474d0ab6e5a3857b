// Dedup Engine: a two-phase scan producing a DuplicateBitmap, a
// canonical-index map, and per-line fingerprints. Grounded directly on
// original_source/src/engine.rs's DedupEngine/DedupResult/scan, with
// rayon's into_par_iter() replaced by a bounded worker pool (channel +
// sync.WaitGroup), the idiom used throughout the corpus for CPU-bound
// fan-out (ep-eaglepoint-ai-bd_datasets_002's AsyncCollector) rather than
// a goroutine-per-line scatter.
package caret

import (
	"fmt"
	"runtime"
	"sync"
	"time"
)

// DedupStrategy selects how two lines are compared for duplication.
type DedupStrategy struct {
	// Exact means lines are duplicates only if their raw bytes hash
	// identically (FNV-1a over the whole line). SimHash, when Exact is
	// false, means lines are duplicates if their extracted-content
	// SimHash signatures are within Threshold Hamming bits.
	Exact     bool
	Threshold int // Hamming-distance threshold, meaningful only when !Exact
}

// DefaultDedupStrategy matches the original tool's default: SimHash at
// threshold 3.
func DefaultDedupStrategy() DedupStrategy {
	return DedupStrategy{Exact: false, Threshold: 3}
}

func (s DedupStrategy) String() string {
	if s.Exact {
		return "exact"
	}
	return fmt.Sprintf("simhash(t=%d)", s.Threshold)
}

// DedupResult is the complete output of a Dedup Engine scan.
type DedupResult struct {
	Duplicates    *DuplicateBitmap
	Fingerprints  []Fingerprint
	TotalLines    int
	UniqueCount   int
	DuplicateCount int
	Elapsed       time.Duration
	Strategy      DedupStrategy
	// CanonicalMap maps each line index to the index of the first-seen
	// line in its duplicate group. CanonicalMap[i] == i for unique lines.
	CanonicalMap []int
}

// DedupRatio returns the fraction of the dataset judged duplicate.
func (r *DedupResult) DedupRatio() float64 {
	if r.TotalLines == 0 {
		return 0
	}
	return float64(r.DuplicateCount) / float64(r.TotalLines)
}

// IsDuplicate reports whether lineIndex was flagged as a duplicate.
func (r *DedupResult) IsDuplicate(lineIndex int) bool {
	return r.Duplicates.Get(lineIndex)
}

// Summary renders a human-readable one-line result.
func (r *DedupResult) Summary() string {
	return fmt.Sprintf("%d total | %d unique | %d duplicates (%.1f%%) | %.1fms | strategy: %s",
		r.TotalLines, r.UniqueCount, r.DuplicateCount, r.DedupRatio()*100,
		float64(r.Elapsed.Microseconds())/1000, r.Strategy)
}

// DedupEngine orchestrates the two-phase scan described in the package
// doc comment.
type DedupEngine struct {
	hasher   *SimHasher
	strategy DedupStrategy
	workers  int
}

// NewDedupEngine returns an engine using the default shingle size and
// the given number of Phase 1 workers; workers <= 0 means
// runtime.NumCPU().
func NewDedupEngine(strategy DedupStrategy, workers int) *DedupEngine {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &DedupEngine{hasher: NewSimHasher(), strategy: strategy, workers: workers}
}

// WithShingleSize overrides the SimHash shingle size.
func (e *DedupEngine) WithShingleSize(size int) *DedupEngine {
	e.hasher = NewSimHasherWithShingleSize(size)
	return e
}

// Scan runs the two-phase dedup over dataset and returns the result.
func (e *DedupEngine) Scan(dataset *Dataset) *DedupResult {
	start := time.Now()
	lineCount := dataset.LineCount()

	if lineCount == 0 {
		return &DedupResult{
			Duplicates: NewDuplicateBitmap(0),
			Strategy:   e.strategy,
		}
	}

	fingerprints := e.fingerprintParallel(dataset, lineCount)

	duplicates := NewDuplicateBitmap(lineCount)
	canonicalMap := make([]int, lineCount)
	for i := range canonicalMap {
		canonicalMap[i] = i
	}

	if e.strategy.Exact {
		seen := make(map[Fingerprint]int, lineCount/2)
		for i, fp := range fingerprints {
			if canonical, ok := seen[fp]; ok {
				duplicates.Set(i)
				canonicalMap[i] = canonical
			} else {
				seen[fp] = i
			}
		}
	} else {
		type seenFP struct {
			index int
			fp    Fingerprint
		}
		unique := make([]seenFP, 0, lineCount)
		for i, fp := range fingerprints {
			found := false
			for _, u := range unique {
				if fp.IsNearDuplicate(u.fp, e.strategy.Threshold) {
					duplicates.Set(i)
					canonicalMap[i] = u.index
					found = true
					break
				}
			}
			if !found {
				unique = append(unique, seenFP{index: i, fp: fp})
			}
		}
	}

	duplicateCount := duplicates.CountOnes()

	return &DedupResult{
		Duplicates:     duplicates,
		Fingerprints:   fingerprints,
		TotalLines:     lineCount,
		UniqueCount:    lineCount - duplicateCount,
		DuplicateCount: duplicateCount,
		Elapsed:        time.Since(start),
		Strategy:       e.strategy,
		CanonicalMap:   canonicalMap,
	}
}

// fingerprintParallel is Phase 1: each worker reads lines through
// Dataset.GetLine and computes a fingerprint. The
// output slice is pre-sized so workers never contend on append — each
// writes only to its own index.
func (e *DedupEngine) fingerprintParallel(dataset *Dataset, lineCount int) []Fingerprint {
	fingerprints := make([]Fingerprint, lineCount)

	jobs := make(chan int, e.workers*4)
	var wg sync.WaitGroup
	wg.Add(e.workers)
	for w := 0; w < e.workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				// A record absent due to invalid UTF-8 fingerprints as
				// empty content rather than being dropped from the scan.
				line, ok := dataset.GetLine(i)
				if !ok {
					line = nil
				}
				if e.strategy.Exact {
					fingerprints[i] = FingerprintExact(line)
				} else {
					fingerprints[i] = e.hasher.Fingerprint(ExtractContent(line))
				}
			}
		}()
	}

	for i := 0; i < lineCount; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return fingerprints
}
