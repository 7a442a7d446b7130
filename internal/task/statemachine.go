// Package task implements the claim/solve/persist state machine for one
// (challenge, address) pair (spec.md §4.3).
package task

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/defensio-labs/coredrill/internal/domain"
	"github.com/defensio-labs/coredrill/internal/search"
	"github.com/defensio-labs/coredrill/internal/stats"
	"github.com/defensio-labs/coredrill/internal/store"
	"github.com/defensio-labs/coredrill/internal/xlog"
)

var log = xlog.New("task")

// lateThresholdMinutes is spec.md §4.3's "late" cutoff: 60 minutes.
const lateThresholdMinutes = 60

// ClaimStore is the narrow slice of the submit collection the state
// machine needs: insert the claim row, update it once solved. Accepting
// this instead of *store.Store lets tests exercise the full state
// transition table against an in-memory fake.
type ClaimStore interface {
	InsertOne(ctx context.Context, doc domain.Solution) error
	UpdateOne(ctx context.Context, filter, update bson.M) error
}

// ErrSkip is returned (wrapping the store's duplicate-key error) when
// another instance already owns this task's claim row. Callers count
// this as a skip, not an error.
type ErrSkip struct{ cause error }

func (e *ErrSkip) Error() string { return e.cause.Error() }
func (e *ErrSkip) Unwrap() error { return e.cause }

// Handle runs one (challenge, address) task through the full state
// machine described in spec.md §4.3, updating ledger/scratch as it goes.
// It never returns an error for the "late" or "duplicate key" paths in
// the sense of propagating a fatal condition — those are expected,
// counted outcomes — but it does return a non-nil error in both cases so
// the caller (internal/minerrole) can log and continue per spec.md §7.
func Handle(ctx context.Context, submit ClaimStore, cfg domain.Config, t domain.Task, ledger *stats.Ledger, scratch *stats.Scratch) error {
	scratch.Reset(time.Now())

	if t.Challenge.IsLate(time.Now(), lateThresholdMinutes) {
		remaining := t.Challenge.LatestSubmissionEpoch - time.Now().Unix()
		ledger.IncError()
		return fmt.Errorf("task %s is late: %d minutes remaining", domain.SolutionID(t.Challenge.ChallengeID, t.Addr), remaining/60)
	}

	claimStatus := domain.StatusOnit
	if cfg.SelfSubmit {
		claimStatus = domain.StatusOnitSelfSubmit
	}

	id := domain.SolutionID(t.Challenge.ChallengeID, t.Addr)
	claim := domain.Solution{
		ID:          id,
		InstanceID:  cfg.InstanceID,
		ChallengeID: t.Challenge.ChallengeID,
		Address:     t.Addr,
		Status:      claimStatus,
		CreateTime:  domain.TimeToRFC3339Micro(time.Now()),
	}

	if err := submit.InsertOne(ctx, claim); err != nil {
		if store.IsDuplicateKeyError(err) {
			ledger.IncSkip()
			log.Debug("skip: already claimed", "id", id)
			return &ErrSkip{cause: err}
		}
		ledger.IncError()
		return fmt.Errorf("inserting claim row %s: %w", id, err)
	}

	sol := search.Run(t, search.Params{
		NumThreads:   cfg.NumThreads,
		TimeoutSec:   cfg.EffectiveTimeoutSec(),
		MaxHashCount: cfg.EffectiveMaxHashCount(),
	})
	scratch.SetHashCount(sol.TotalHashes)
	ledger.AddHashes(int64(sol.TotalHashes))

	if sol.IsEmpty() {
		ledger.IncError()
		return fmt.Errorf("timeout/max hash reached, time taken: %s, hashes: %d",
			domain.FormatDuration(int32(scratch.Elapsed(time.Now()).Seconds())), sol.TotalHashes)
	}

	foundStatus := domain.StatusFound
	if cfg.SelfSubmit {
		foundStatus = domain.StatusFoundSelfSubmit
	}

	update := bson.M{"$set": bson.M{
		"status":         foundStatus,
		"nonce":          sol.Nonce,
		"hash":           sol.Hash,
		"preimage":       sol.Preimage,
		"found_time":     sol.FoundTime,
		"time_taken_sec": int32(scratch.Elapsed(time.Now()).Seconds()),
		"total_hashes":   sol.TotalHashes,
	}}

	if err := submit.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		// The claim row is left in onit/onit_self_submit; per spec.md §7
		// this is near-unrecoverable and simply counted, not retried here.
		ledger.IncError()
		return fmt.Errorf("updating solved claim row %s: %w", id, err)
	}

	ledger.IncSuccess()
	log.Info("solved", "id", id, "hashes", sol.TotalHashes)
	return nil
}
