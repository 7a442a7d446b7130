// Package submitter implements the submitter's dual loop (spec.md §4.6): a
// challenge-refresh loop racing with a solution-submission loop, both
// against the same store, with status transitions that survive crashes.
package submitter

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/defensio-labs/coredrill/internal/domain"
	"github.com/defensio-labs/coredrill/internal/store"
	"github.com/defensio-labs/coredrill/internal/xlog"
)

var log = xlog.New("submitter")

// refreshInterval and submitInterval are spec.md §4.6's 5s / ~1s cadences.
const (
	refreshInterval = 5 * time.Second
	submitInterval  = 1 * time.Second
	// refreshPollInterval replaces the original's busy loop with a
	// short sleep, per spec.md §9's explicit redesign note: "the
	// challenge-refresh thread busy-loops without sleep... a
	// reimplementation should add a small sleep."
	refreshPollInterval = 250 * time.Millisecond
)

// ChallengeStore is the narrow slice of the challenge collection the
// refresh loop needs.
type ChallengeStore interface {
	InsertOne(ctx context.Context, doc domain.Challenge) error
}

// SolutionStore is the narrow slice of the submit collection the forwarder
// loop needs.
type SolutionStore interface {
	Find(ctx context.Context, filter bson.M, sort bson.D, limit int64) ([]domain.Solution, error)
	UpdateOne(ctx context.Context, filter, update bson.M) error
}

// Submitter bridges persisted `found` Solutions to the upstream HTTP API
// and keeps the challenge collection fresh. Accepting the narrow
// ChallengeStore/SolutionStore interfaces (rather than *store.Store)
// lets tests exercise both loops against in-memory fakes.
type Submitter struct {
	Challenge ChallengeStore
	Submit    SolutionStore
	Client    *resty.Client
	BaseURL   string
}

// New builds a Submitter against baseURL with a resty client carrying
// sane request timeouts — the "blocking HTTP client" spec.md §5 calls for.
func New(st *store.Store, baseURL string) *Submitter {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second)
	return &Submitter{Challenge: st.Challenge, Submit: st.Submit, Client: client, BaseURL: baseURL}
}

// Run launches both loops and blocks until ctx is cancelled.
func (s *Submitter) Run(ctx context.Context) error {
	log.Info("submitter started", "base_url", s.BaseURL)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.refreshLoop(ctx)
	}()

	s.submitLoop(ctx)
	<-done
	return nil
}

// refreshLoop is Thread A (spec.md §4.6): every refreshInterval, fetch the
// current challenge and publish it, treating duplicate-key as an
// idempotent no-op.
func (s *Submitter) refreshLoop(ctx context.Context) {
	lastUpdate := time.Time{}
	ticker := time.NewTicker(refreshPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(lastUpdate) < refreshInterval {
				continue
			}
			lastUpdate = time.Now()

			ch, err := s.fetchAndStoreChallenge(ctx)
			if err != nil {
				if store.IsDuplicateKeyError(err) {
					continue
				}
				log.Error("fetching/updating challenge", "err", err)
				continue
			}
			log.Info("fetched/wrote challenge", "challenge_id", ch.ChallengeID, "difficulty", ch.Difficulty)
		}
	}
}

// submitLoop is Thread B (spec.md §4.6): every submitInterval, forward any
// `found` Solution to the upstream API and record the outcome.
func (s *Submitter) submitLoop(ctx context.Context) {
	ticker := time.NewTicker(submitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.submitFoundSolutions(ctx); err != nil {
				log.Error("submitting solutions", "err", err)
			}
		}
	}
}

type challengeEnvelope struct {
	ChallengeID      string `json:"challenge_id"`
	ChallengeNumber  int32  `json:"challenge_number"`
	Day              int32  `json:"day"`
	IssuedAt         string `json:"issued_at"`
	LatestSubmission string `json:"latest_submission"`
	Difficulty       string `json:"difficulty"`
	NoPreMine        string `json:"no_pre_mine"`
	NoPreMineHour    string `json:"no_pre_mine_hour"`

	TotalChallenges       int32  `json:"total_challenges"`
	NextChallengeStartsAt string `json:"next_challenge_starts_at"`
}

// fetchAndStoreChallenge implements spec.md §4.6's fetch-then-insert step.
func (s *Submitter) fetchAndStoreChallenge(ctx context.Context) (domain.Challenge, error) {
	var env challengeEnvelope
	resp, err := s.Client.R().SetContext(ctx).SetResult(&env).Get("/challenge")
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("GET /challenge: %w", err)
	}
	if resp.IsError() {
		return domain.Challenge{}, fmt.Errorf("GET /challenge: non-2xx status %d, body: %s", resp.StatusCode(), resp.String())
	}

	epoch, err := domain.ParseEpoch(env.LatestSubmission)
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("parsing latest_submission %q: %w", env.LatestSubmission, err)
	}

	challenge := domain.Challenge{
		ID:                    env.ChallengeID,
		ChallengeID:           env.ChallengeID,
		ChallengeNumber:       env.ChallengeNumber,
		Day:                   env.Day,
		IssuedAt:              env.IssuedAt,
		LatestSubmission:      env.LatestSubmission,
		LatestSubmissionEpoch: epoch,
		Difficulty:            env.Difficulty,
		NoPreMine:             env.NoPreMine,
		NoPreMineHour:         env.NoPreMineHour,
		TotalChallenges:       env.TotalChallenges,
		NextChallengeStartsAt: env.NextChallengeStartsAt,
	}

	if err := s.Challenge.InsertOne(ctx, challenge); err != nil {
		return domain.Challenge{}, err
	}
	return challenge, nil
}

// submitFoundSolutions implements spec.md §4.6's forwarder step: find all
// `found` Solutions, POST each, and record the outcome.
func (s *Submitter) submitFoundSolutions(ctx context.Context) error {
	solutions, err := s.Submit.Find(ctx, bson.M{"status": domain.StatusFound}, nil, 0)
	if err != nil {
		return err
	}

	for _, sol := range solutions {
		s.submitOne(ctx, sol)
		// "traffic is low, no rush": spec.md §4.6 waits 1s between
		// submissions regardless of outcome.
		time.Sleep(submitInterval)
	}
	return nil
}

func (s *Submitter) submitOne(ctx context.Context, sol domain.Solution) {
	receipt, err := s.postSolution(ctx, sol)
	if err != nil {
		status := classifySubmitError(err)
		log.Error("submit failed", "id", sol.ID, "status", status, "err", err)
		update := bson.M{"$set": bson.M{"status": status}}
		if uerr := s.Submit.UpdateOne(ctx, bson.M{"_id": sol.ID}, update); uerr != nil {
			log.Error("recording submit failure", "id", sol.ID, "err", uerr)
		}
		return
	}

	update := bson.M{"$set": bson.M{
		"status":          domain.StatusSubmitted,
		"submitted_time":  domain.TimeToRFC3339Micro(time.Now()),
		"submit_response": receipt,
	}}
	if err := s.Submit.UpdateOne(ctx, bson.M{"_id": sol.ID}, update); err != nil {
		log.Error("recording submit success", "id", sol.ID, "err", err)
		return
	}
	log.Info("submitted", "id", sol.ID)
}

// postSolution implements spec.md §6's POST
// {base}/solution/{address}/{challenge_id}/{nonce}; any non-2xx status
// becomes an error whose text feeds classifySubmitError.
func (s *Submitter) postSolution(ctx context.Context, sol domain.Solution) (*domain.SubmitResponse, error) {
	path := fmt.Sprintf("/solution/%s/%s/%s", sol.Address, sol.ChallengeID, sol.Nonce)

	var out domain.SubmitResponse
	resp, err := s.Client.R().SetContext(ctx).SetResult(&out).Post(path)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("POST %s: non-OK HTTP status: %d, body: %s", path, resp.StatusCode(), resp.String())
	}
	return &out, nil
}
