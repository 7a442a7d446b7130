package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/defensio-labs/coredrill/internal/domain"
	"github.com/defensio-labs/coredrill/internal/romhash"
	"github.com/defensio-labs/coredrill/internal/stats"
)

// fakeStore is an in-memory ClaimStore that reproduces the one invariant
// the whole mining fleet depends on: InsertOne fails with a "duplicate key
// error"-shaped error when an ID already exists.
type fakeStore struct {
	mu   sync.Mutex
	docs map[string]domain.Solution
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]domain.Solution{}}
}

func (f *fakeStore) InsertOne(_ context.Context, doc domain.Solution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.docs[doc.ID]; exists {
		return errors.New("E11000 duplicate key error collection: defensio.submit index: _id_")
	}
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeStore) UpdateOne(_ context.Context, filter, update bson.M) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, _ := filter["_id"].(string)
	doc, ok := f.docs[id]
	if !ok {
		return errors.New("not found")
	}
	set, _ := update["$set"].(bson.M)
	if v, ok := set["status"].(string); ok {
		doc.Status = v
	}
	if v, ok := set["nonce"].(string); ok {
		doc.Nonce = v
	}
	if v, ok := set["hash"].(string); ok {
		doc.Hash = v
	}
	if v, ok := set["preimage"].(string); ok {
		doc.Preimage = v
	}
	if v, ok := set["total_hashes"].(int32); ok {
		doc.TotalHashes = v
	}
	f.docs[id] = doc
	return nil
}

func easyChallenge(id string, secondsUntilDeadline int64) domain.Challenge {
	return domain.Challenge{
		ChallengeID:           id,
		Difficulty:            "ffffffff",
		NoPreMine:             "seed-" + id,
		LatestSubmission:      "2026-01-01T00:00:00.000000Z",
		LatestSubmissionEpoch: time.Now().Unix() + secondsUntilDeadline,
	}
}

// Scenario 1 (spec.md §8): happy path single worker.
func TestHandleHappyPath(t *testing.T) {
	fs := newFakeStore()
	rom := romhash.NewRomWithSizes("seed-C1", 4096, romhash.MixingNumbers, 65536)

	ch := easyChallenge("C1", 7200)
	cfg := domain.Config{InstanceID: "inst-1", NumThreads: 1, TimeoutSec: 60, MaxHashCount: 10_000_000}
	tk := domain.Task{Rom: rom, Addr: "abc", Challenge: ch}

	ledger := &stats.Ledger{}
	scratch := &stats.Scratch{}
	err := Handle(context.Background(), fs, cfg, tk, ledger, scratch)
	require.NoError(t, err)

	doc, ok := fs.docs["C1:abc"]
	require.True(t, ok)
	require.Equal(t, domain.StatusFound, doc.Status)
	require.NotEmpty(t, doc.Nonce)
	require.NotEmpty(t, doc.Hash)
	require.NotEmpty(t, doc.Preimage)
	require.GreaterOrEqual(t, doc.TotalHashes, int32(1))
	require.Equal(t, int32(1), ledger.Success())
}

// Scenario 2 (spec.md §8): impossible difficulty exhausts on timeout.
func TestHandleExhaustsOnImpossibleDifficulty(t *testing.T) {
	fs := newFakeStore()
	rom := romhash.NewRomWithSizes("seed-C2", 4096, romhash.MixingNumbers, 65536)

	ch := easyChallenge("C2", 7200)
	ch.Difficulty = "00000000"
	cfg := domain.Config{InstanceID: "inst-1", NumThreads: 2, TimeoutSec: 1, MaxHashCount: 10_000_000}
	tk := domain.Task{Rom: rom, Addr: "abc", Challenge: ch}

	ledger := &stats.Ledger{}
	scratch := &stats.Scratch{}
	err := Handle(context.Background(), fs, cfg, tk, ledger, scratch)
	require.Error(t, err)
	require.Contains(t, err.Error(), "timeout/max hash reached")
	require.Equal(t, int32(1), ledger.Error())
}

// Scenario 3 (spec.md §8): claim race — two miners, one task, one wins.
func TestHandleClaimRace(t *testing.T) {
	fs := newFakeStore()
	rom := romhash.NewRomWithSizes("seed-C3", 4096, romhash.MixingNumbers, 65536)
	ch := easyChallenge("C3", 7200)
	cfg := domain.Config{InstanceID: "inst-1", NumThreads: 1, TimeoutSec: 60, MaxHashCount: 10_000_000}
	tk := domain.Task{Rom: rom, Addr: "abc", Challenge: ch}

	ledger1 := &stats.Ledger{}
	ledger2 := &stats.Ledger{}
	scratch := &stats.Scratch{}

	err1 := Handle(context.Background(), fs, cfg, tk, ledger1, &stats.Scratch{})
	err2 := Handle(context.Background(), fs, cfg, tk, ledger2, scratch)

	require.NoError(t, err1)
	require.Error(t, err2)
	var skip *ErrSkip
	require.True(t, errors.As(err2, &skip))
	require.Contains(t, err2.Error(), "duplicate key error")
	require.Equal(t, int32(1), ledger2.Skip())
	require.Equal(t, 1, len(fs.docs))
}

// Scenario 4 (spec.md §8): late challenge — no claim inserted, task errors.
func TestHandleLateChallenge(t *testing.T) {
	fs := newFakeStore()
	rom := romhash.NewRomWithSizes("seed-C4", 4096, romhash.MixingNumbers, 65536)
	ch := easyChallenge("C4", 30) // 30s remaining, well under the 60-minute threshold
	cfg := domain.Config{InstanceID: "inst-1", NumThreads: 1, TimeoutSec: 60, MaxHashCount: 10_000_000}
	tk := domain.Task{Rom: rom, Addr: "abc", Challenge: ch}

	ledger := &stats.Ledger{}
	scratch := &stats.Scratch{}
	err := Handle(context.Background(), fs, cfg, tk, ledger, scratch)

	require.Error(t, err)
	require.Contains(t, err.Error(), "is late")
	require.Equal(t, int32(1), ledger.Error())
	require.Empty(t, fs.docs)
}
