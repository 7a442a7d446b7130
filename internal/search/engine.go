// Package search implements the parallel nonce search engine: N worker
// goroutines racing against a single stop flag, feeding an atomic hash-rate
// counter, honouring a wall-clock timeout and a global hash-count ceiling.
package search

import (
	"encoding/binary"
	"encoding/hex"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/defensio-labs/coredrill/internal/domain"
	"github.com/defensio-labs/coredrill/internal/romhash"
	"github.com/defensio-labs/coredrill/internal/xlog"
)

var log = xlog.New("search")

// pollInterval is how often the coordinator polls the stop flag while
// waiting for workers (spec.md §4.4: "no condvar required").
const pollInterval = 100 * time.Millisecond

// statBatchInterval is how often a worker folds its local hash count into
// the shared atomic counter and re-checks the termination conditions.
const statBatchInterval = 1 * time.Second

const (
	hRounds     = 8
	hBlockSize  = 256
)

// Params bundles the inputs Run needs beyond the Task itself.
type Params struct {
	NumThreads   int
	TimeoutSec   int
	MaxHashCount int32
}

// Run drives one task's search to completion: it returns a filled Solution
// on success, or an empty Solution (with TotalHashes set) once the
// timeout or hash cap is reached. The returned Solution never has its ID,
// InstanceID, ChallengeID, Address, Status populated — callers (the task
// state machine) own those fields.
func Run(task domain.Task, p Params) domain.Solution {
	difficulty := parseDifficulty(task.Challenge.Difficulty)
	suffix := staticSuffix(task)

	var (
		stop         atomic.Bool
		hashCounter  atomic.Int32
		solutionOnce sync.Mutex
		solution     domain.Solution
		found        bool
	)

	start := time.Now()

	threads := p.NumThreads
	if threads <= 0 {
		threads = 1
	}

	var wg sync.WaitGroup
	wg.Add(threads)
	for i := 0; i < threads; i++ {
		go func(workerID int) {
			defer wg.Done()
			worker(workerID, task.Rom, difficulty, suffix, start, p, &stop, &hashCounter, &solutionOnce, &solution, &found)
		}(i)
	}

	// The coordinator waits by polling, matching spec.md §4.4's explicit
	// "no condvar required" design: this loop is CPU-idle between polls.
	for {
		if stop.Load() {
			break
		}
		time.Sleep(pollInterval)
	}
	wg.Wait()

	total := hashCounter.Load()
	if found {
		solution.TotalHashes = total
		return solution
	}
	return domain.Solution{TotalHashes: total}
}

func worker(
	id int,
	rom domain.RomHandle,
	difficulty uint32,
	suffix string,
	start time.Time,
	p Params,
	stop *atomic.Bool,
	hashCounter *atomic.Int32,
	solutionOnce *sync.Mutex,
	solution *domain.Solution,
	found *bool,
) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(id)<<32))
	var localHashes int32
	lastFlush := time.Now()

	for !stop.Load() {
		nonce := formatNonce(rng.Uint64())
		preimage := nonce + suffix

		digest := romhash.H([]byte(preimage), rom, hRounds, hBlockSize)

		localHashes++

		hv := binary.BigEndian.Uint32(digest[:4])
		if hv|difficulty == difficulty {
			if stop.CompareAndSwap(false, true) {
				solutionOnce.Lock()
				*solution = domain.Solution{
					Nonce:     nonce,
					Hash:      hex.EncodeToString(digest[:]),
					Preimage:  preimage,
					FoundTime: domain.TimeToRFC3339Micro(time.Now()),
				}
				*found = true
				solutionOnce.Unlock()
			}
			hashCounter.Add(localHashes)
			return
		}

		if time.Since(lastFlush) >= statBatchInterval {
			hashCounter.Add(localHashes)
			localHashes = 0
			lastFlush = time.Now()

			if time.Since(start) >= time.Duration(p.TimeoutSec)*time.Second {
				stop.Store(true)
				return
			}
			if hashCounter.Load() >= p.MaxHashCount {
				stop.Store(true)
				return
			}
		}
	}
	hashCounter.Add(localHashes)
}

// staticSuffix assembles the per-task preimage suffix in the exact field
// order spec.md §4.4 specifies.
func staticSuffix(t domain.Task) string {
	c := t.Challenge
	return t.Addr + c.ChallengeID + c.Difficulty + c.NoPreMine + c.LatestSubmission + c.NoPreMineHour
}

// formatNonce renders a uint64 as a 16-character lowercase zero-padded hex
// string.
func formatNonce(n uint64) string {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return hex.EncodeToString(b)
}

// parseDifficulty parses a hex difficulty string the same way the
// original's `u32::from_str_radix(difficulty, 16)` does: any-length hex,
// not just the canonical 8-char/4-byte form (so e.g. "ff" parses as 255,
// not as an impossible difficulty).
func parseDifficulty(hexStr string) uint32 {
	v, err := strconv.ParseUint(hexStr, 16, 32)
	if err != nil {
		log.Error("invalid difficulty encoding, treating as impossible", "difficulty", hexStr, "err", err)
		return 0
	}
	return uint32(v)
}
