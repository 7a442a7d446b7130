package submitter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/defensio-labs/coredrill/internal/domain"
)

type fakeChallengeStore struct {
	mu   sync.Mutex
	docs []domain.Challenge
}

func (f *fakeChallengeStore) InsertOne(_ context.Context, doc domain.Challenge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, doc)
	return nil
}

type fakeSolutionStore struct {
	mu   sync.Mutex
	docs map[string]domain.Solution
}

func newFakeSolutionStore(docs ...domain.Solution) *fakeSolutionStore {
	s := &fakeSolutionStore{docs: map[string]domain.Solution{}}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

func (f *fakeSolutionStore) Find(_ context.Context, filter bson.M, _ bson.D, _ int64) ([]domain.Solution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wantStatus, _ := filter["status"].(string)
	var out []domain.Solution
	for _, d := range f.docs {
		if wantStatus == "" || d.Status == wantStatus {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeSolutionStore) UpdateOne(_ context.Context, filter, update bson.M) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, _ := filter["_id"].(string)
	doc, ok := f.docs[id]
	if !ok {
		return nil
	}
	set, _ := update["$set"].(bson.M)
	if v, ok := set["status"].(string); ok {
		doc.Status = v
	}
	if v, ok := set["submitted_time"].(string); ok {
		doc.SubmittedTime = v
	}
	if v, ok := set["submit_response"].(*domain.SubmitResponse); ok {
		doc.SubmitResponse = v
	}
	f.docs[id] = doc
	return nil
}

func newTestSubmitter(baseURL string, ch ChallengeStore, sub SolutionStore) *Submitter {
	return &Submitter{
		Challenge: ch,
		Submit:    sub,
		Client:    resty.New().SetBaseURL(baseURL).SetTimeout(5 * time.Second),
		BaseURL:   baseURL,
	}
}

// Scenario (spec.md §8): a 409 "Solution already exists" response must
// leave the Solution in failed_to_submit_solution_exists, not retried or
// remapped to submitted.
func TestSubmitOneSolutionAlreadyExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"Solution already exists"}`))
	}))
	defer srv.Close()

	sol := domain.Solution{ID: "C1:abc", ChallengeID: "C1", Address: "abc", Nonce: "deadbeef", Status: domain.StatusFound}
	solStore := newFakeSolutionStore(sol)
	s := newTestSubmitter(srv.URL, &fakeChallengeStore{}, solStore)

	s.submitOne(context.Background(), sol)

	got := solStore.docs["C1:abc"]
	require.Equal(t, domain.StatusFailedSolutionExists, got.Status)
}

// Happy path: a 2xx response with a crypto_receipt body moves the
// Solution to submitted and stores the receipt.
func TestSubmitOneSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/solution/abc/C1/deadbeef", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"crypto_receipt":{"preimage":"p","timestamp":"t","signature":"s"}}`))
	}))
	defer srv.Close()

	sol := domain.Solution{ID: "C1:abc", ChallengeID: "C1", Address: "abc", Nonce: "deadbeef", Status: domain.StatusFound}
	solStore := newFakeSolutionStore(sol)
	s := newTestSubmitter(srv.URL, &fakeChallengeStore{}, solStore)

	s.submitOne(context.Background(), sol)

	got := solStore.docs["C1:abc"]
	require.Equal(t, domain.StatusSubmitted, got.Status)
	require.NotEmpty(t, got.SubmittedTime)
	require.NotNil(t, got.SubmitResponse)
	require.Equal(t, "s", got.SubmitResponse.CryptoReceipt.Signature)
}

// fetchAndStoreChallenge parses the upstream envelope and derives the
// epoch from latest_submission.
func TestFetchAndStoreChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/challenge", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"challenge_id": "C9",
			"challenge_number": 9,
			"day": 3,
			"issued_at": "2026-01-01T00:00:00.000000Z",
			"latest_submission": "2026-01-01T01:00:00Z",
			"difficulty": "0000ffff",
			"no_pre_mine": "seed-9",
			"no_pre_mine_hour": "seed-9h"
		}`))
	}))
	defer srv.Close()

	chStore := &fakeChallengeStore{}
	s := newTestSubmitter(srv.URL, chStore, newFakeSolutionStore())

	got, err := s.fetchAndStoreChallenge(context.Background())
	require.NoError(t, err)
	require.Equal(t, "C9", got.ChallengeID)
	require.Equal(t, "seed-9", got.NoPreMine)

	wantEpoch, err := domain.ParseEpoch("2026-01-01T01:00:00Z")
	require.NoError(t, err)
	require.Equal(t, wantEpoch, got.LatestSubmissionEpoch)

	require.Len(t, chStore.docs, 1)
	require.Equal(t, "C9", chStore.docs[0].ChallengeID)
}

// A non-2xx /challenge response must surface as an error rather than
// silently storing a zero-value Challenge.
func TestFetchAndStoreChallengeUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	chStore := &fakeChallengeStore{}
	s := newTestSubmitter(srv.URL, chStore, newFakeSolutionStore())

	_, err := s.fetchAndStoreChallenge(context.Background())
	require.Error(t, err)
	require.Empty(t, chStore.docs)
}
