// Package history implements the Inspection History ledger (spec.md §4.4):
// a fixed-capacity ring of InspectionRecord with live statistics,
// time-bucketed aggregation, and failure analysis. Grounded line-for-line
// on original_source/core/history_buffer.py's HistoryBuffer.
package history

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uragamarco/proyecto-balistica/internal/verrors"
)

// Outcome is the closed set of per-inspection results.
type Outcome string

const (
	Pass  Outcome = "PASS"
	Fail  Outcome = "FAIL"
	Error Outcome = "ERROR"
)

// Detection is one named check result folded into a record's summary and
// failure analysis.
type Detection struct {
	Name  string `json:"name"`
	Found bool   `json:"found"`
}

// Record is one entry in the ring, matching the original's stored
// inspection dict shape.
type Record struct {
	ID         string      `json:"id"`
	ImageID    string      `json:"image_id"`
	Outcome    Outcome     `json:"outcome"`
	Detections []Detection `json:"detections"`
	ElapsedMs  float64     `json:"elapsed_ms"`
	Thumbnail  string      `json:"thumbnail,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Summary    string      `json:"summary"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Statistics is the aggregate counters returned by Statistics(), carrying
// both lifetime totals and a derived last-hour slice.
type Statistics struct {
	TotalEver        int64   `json:"total_ever"`
	PassEver         int64   `json:"pass_ever"`
	FailEver         int64   `json:"fail_ever"`
	ErrorEver        int64   `json:"error_ever"`
	SuccessRate      float64 `json:"success_rate"`
	AvgElapsedMs     float64 `json:"avg_time_ms"`
	CurrentSize      int     `json:"current_size"`
	RecentHourTotal  int     `json:"recent_hour_total"`
	RecentHourPassed int     `json:"recent_hour_passed"`
}

// Bucket is one slot of a time_series() report.
type Bucket struct {
	Timestamp time.Time `json:"timestamp"`
	Total     int       `json:"total"`
	Passed    int       `json:"passed"`
	Failed    int       `json:"failed"`
}

// FailureAnalysis is the top-5-by-count failure report. Rate is a 0-100
// percentage of FAIL records scoped to the records currently in the ring
// (not a lifetime fraction).
type FailureAnalysis struct {
	Total     int            `json:"total"`
	ByNameTop5 []NamedCount  `json:"by_name_top_5"`
	Rate      float64        `json:"rate"`
}

// NamedCount is one entry of a FailureAnalysis's top-5 list.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Ring is the fixed-capacity, mutex-guarded inspection ledger.
type Ring struct {
	mu       sync.Mutex
	capacity int
	records  []*Record // ordered oldest-to-newest, len <= capacity
	index    map[string]*Record

	totalEver        int64
	passEver         int64
	failEver         int64
	errorEver        int64
	totalElapsedEver float64

	logger *zap.Logger
}

// New builds a Ring with the given fixed capacity.
func New(capacity int, logger *zap.Logger) *Ring {
	return &Ring{
		capacity: capacity,
		records:  make([]*Record, 0, capacity),
		index:    make(map[string]*Record),
		logger:   logger,
	}
}

// Add appends a new record, computing its summary as "P/T checks passed"
// where T is len(detections) and P is the count of detections with
// Found=true. When the ring is full, the oldest record is dropped, but
// lifetime counters are never decremented.
func (r *Ring) Add(imageID string, outcome Outcome, detections []Detection, elapsedMs float64, thumbnail string, metadata map[string]interface{}) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	passed := 0
	for _, d := range detections {
		if d.Found {
			passed++
		}
	}

	rec := &Record{
		ID:         newRecordID(),
		ImageID:    imageID,
		Outcome:    outcome,
		Detections: detections,
		ElapsedMs:  elapsedMs,
		Thumbnail:  thumbnail,
		Metadata:   metadata,
		Summary:    fmt.Sprintf("%d/%d checks passed", passed, len(detections)),
		Timestamp:  time.Now(),
	}

	if len(r.records) >= r.capacity && r.capacity > 0 {
		oldest := r.records[0]
		r.records = r.records[1:]
		delete(r.index, oldest.ID)
	}
	r.records = append(r.records, rec)
	r.index[rec.ID] = rec

	r.totalEver++
	r.totalElapsedEver += elapsedMs
	switch outcome {
	case Pass:
		r.passEver++
	case Fail:
		r.failEver++
	case Error:
		r.errorEver++
	}

	if r.logger != nil {
		r.logger.Debug("recorded inspection", zap.String("id", rec.ID), zap.String("outcome", string(outcome)))
	}
	return rec.ID
}

// Get returns the record with the given id.
func (r *Ring) Get(id string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.index[id]
	if !ok {
		return nil, verrors.New(verrors.ImageNotFound, "no inspection record with id "+id)
	}
	return rec, nil
}

// Recent returns up to limit most-recent records, newest first, optionally
// filtered to a single outcome.
func (r *Ring) Recent(limit int, outcomeFilter *Outcome) []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Record, 0, limit)
	for i := len(r.records) - 1; i >= 0 && len(out) < limit; i-- {
		rec := r.records[i]
		if outcomeFilter != nil && rec.Outcome != *outcomeFilter {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Statistics reports lifetime aggregates plus a derived last-hour slice,
// computed by scanning the ring for records newer than now-1h.
func (r *Ring) Statistics() Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Statistics{
		TotalEver:   r.totalEver,
		PassEver:    r.passEver,
		FailEver:    r.failEver,
		ErrorEver:   r.errorEver,
		CurrentSize: len(r.records),
	}
	if r.totalEver > 0 {
		stats.SuccessRate = float64(r.passEver) / float64(r.totalEver)
		stats.AvgElapsedMs = r.totalElapsedEver / float64(r.totalEver)
	}

	cutoff := time.Now().Add(-1 * time.Hour)
	for _, rec := range r.records {
		if rec.Timestamp.Before(cutoff) {
			continue
		}
		stats.RecentHourTotal++
		if rec.Outcome == Pass {
			stats.RecentHourPassed++
		}
	}
	return stats
}

// TimeSeries allocates floor(durationHours*60/bucketMinutes) buckets
// spanning [now-durationHours, now) and reports {timestamp, total, passed,
// failed} per bucket by scanning the ring once.
func (r *Ring) TimeSeries(bucketMinutes int, durationHours float64) []Bucket {
	r.mu.Lock()
	defer r.mu.Unlock()

	numBuckets := int(durationHours * 60 / float64(bucketMinutes))
	if numBuckets <= 0 {
		return nil
	}

	bucketDur := time.Duration(bucketMinutes) * time.Minute
	start := time.Now().Add(-time.Duration(durationHours * float64(time.Hour)))

	buckets := make([]Bucket, numBuckets)
	for i := range buckets {
		buckets[i].Timestamp = start.Add(time.Duration(i) * bucketDur)
	}

	for _, rec := range r.records {
		if rec.Timestamp.Before(start) {
			continue
		}
		idx := int(rec.Timestamp.Sub(start) / bucketDur)
		if idx < 0 || idx >= numBuckets {
			continue
		}
		buckets[idx].Total++
		if rec.Outcome == Pass {
			buckets[idx].Passed++
		} else {
			buckets[idx].Failed++
		}
	}
	return buckets
}

// FailureAnalysisReport accumulates, over FAIL-outcome records, a count
// per detection name among detections with Found=false, and returns the
// top 5 by count.
func (r *Ring) FailureAnalysisReport() FailureAnalysis {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[string]int)
	failTotal := 0
	for _, rec := range r.records {
		if rec.Outcome != Fail {
			continue
		}
		failTotal++
		for _, d := range rec.Detections {
			if !d.Found {
				counts[d.Name]++
			}
		}
	}

	named := make([]NamedCount, 0, len(counts))
	for name, count := range counts {
		named = append(named, NamedCount{Name: name, Count: count})
	}
	sort.Slice(named, func(i, j int) bool {
		if named[i].Count != named[j].Count {
			return named[i].Count > named[j].Count
		}
		return named[i].Name < named[j].Name
	})
	if len(named) > 5 {
		named = named[:5]
	}

	rate := 0.0
	if len(r.records) > 0 {
		rate = float64(failTotal) / float64(len(r.records)) * 100
	}
	return FailureAnalysis{Total: failTotal, ByNameTop5: named, Rate: rate}
}

// Clear empties the ring. Lifetime counters are NOT reset, matching the
// original's clear() semantics (it only drains the deque).
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = r.records[:0]
	r.index = make(map[string]*Record)
}

// Export is the serializable snapshot returned by export().
type Export struct {
	Records          []*Record `json:"records"`
	TotalEver        int64     `json:"total_ever"`
	PassEver         int64     `json:"pass_ever"`
	FailEver         int64     `json:"fail_ever"`
	ErrorEver        int64     `json:"error_ever"`
	TotalElapsedEver float64   `json:"total_elapsed_ever"`
}

// Export snapshots the ring's current records and lifetime counters.
func (r *Ring) Export() Export {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]*Record, len(r.records))
	copy(records, r.records)
	return Export{
		Records:          records,
		TotalEver:        r.totalEver,
		PassEver:         r.passEver,
		FailEver:         r.failEver,
		ErrorEver:        r.errorEver,
		TotalElapsedEver: r.totalElapsedEver,
	}
}

// Import replaces the ring's contents and counters with a previously
// exported snapshot, truncating to capacity if the snapshot holds more
// records than this ring can keep (keeping the newest).
func (r *Ring) Import(snap Export) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := snap.Records
	if r.capacity > 0 && len(records) > r.capacity {
		records = records[len(records)-r.capacity:]
	}

	r.records = make([]*Record, len(records))
	copy(r.records, records)
	r.index = make(map[string]*Record, len(records))
	for _, rec := range r.records {
		r.index[rec.ID] = rec
	}

	r.totalEver = snap.TotalEver
	r.passEver = snap.PassEver
	r.failEver = snap.FailEver
	r.errorEver = snap.ErrorEver
	r.totalElapsedEver = snap.TotalElapsedEver
}

func newRecordID() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return "hist_" + hex.EncodeToString(b[:])
}
