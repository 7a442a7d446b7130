// Package stats splits the original's single shared atomic block into two
// records per spec.md §9's redesign note: a per-task Scratch reset on
// every task entry, and a per-run Ledger of monotonic counters.
package stats

import (
	"sync/atomic"
	"time"
)

// Scratch holds per-task metrics, reset at the start of every task
// (spec.md §4.7: "elapsed time since the current task's start_time,
// reset on every task's entry").
type Scratch struct {
	startTime   atomic.Int64 // unix seconds
	hashCounter atomic.Int32
}

// Reset marks the start of a new task.
func (s *Scratch) Reset(now time.Time) {
	s.startTime.Store(now.Unix())
	s.hashCounter.Store(0)
}

// SetHashCount records the latest hash count observed for the in-flight
// task (the search engine's final total_hashes).
func (s *Scratch) SetHashCount(n int32) {
	s.hashCounter.Store(n)
}

// Elapsed returns the time since the current task's Reset.
func (s *Scratch) Elapsed(now time.Time) time.Duration {
	return now.Sub(time.Unix(s.startTime.Load(), 0))
}

// HashCount returns the current task's last-recorded hash count.
func (s *Scratch) HashCount() int32 { return s.hashCounter.Load() }

// Ledger is the per-run counter block: success/skip/error/total_task, plus
// the cumulative hash counter the monitor samples for a rate.
type Ledger struct {
	success     atomic.Int32
	skip        atomic.Int32
	errorCount  atomic.Int32
	totalTask   atomic.Int32
	hashCounter atomic.Int64
}

func (l *Ledger) IncSuccess()            { l.success.Add(1) }
func (l *Ledger) IncSkip()               { l.skip.Add(1) }
func (l *Ledger) IncError()              { l.errorCount.Add(1) }
func (l *Ledger) SetTotalTask(n int32)   { l.totalTask.Store(n) }
func (l *Ledger) AddHashes(n int64)      { l.hashCounter.Add(n) }

func (l *Ledger) Success() int32   { return l.success.Load() }
func (l *Ledger) Skip() int32      { return l.skip.Load() }
func (l *Ledger) Error() int32     { return l.errorCount.Load() }
func (l *Ledger) TotalTask() int32 { return l.totalTask.Load() }
func (l *Ledger) Hashes() int64    { return l.hashCounter.Load() }

// Snapshot is an immutable read of a Ledger at one instant, used by the
// monitor to compute interval hash rate. At is a monotonic-clock reading
// in nanoseconds (github.com/aristanetworks/goarista/monotime.Now()),
// not a wall-clock time.Time, so an NTP step or DST change never skews
// the interval rate.
type Snapshot struct {
	At      uint64
	Hashes  int64
	Success int32
	Skip    int32
	Error   int32
	Total   int32
}

func (l *Ledger) Snapshot(at uint64) Snapshot {
	return Snapshot{
		At:      at,
		Hashes:  l.Hashes(),
		Success: l.Success(),
		Skip:    l.Skip(),
		Error:   l.Error(),
		Total:   l.TotalTask(),
	}
}

// RateSince computes the hash rate (hashes/sec) between two snapshots,
// using the monotonic nanosecond delta between their At readings.
func RateSince(prev, cur Snapshot) float64 {
	if cur.At <= prev.At {
		return 0
	}
	dt := float64(cur.At-prev.At) / float64(time.Second)
	if dt <= 0 {
		return 0
	}
	return float64(cur.Hashes-prev.Hashes) / dt
}
