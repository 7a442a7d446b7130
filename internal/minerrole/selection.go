package minerrole

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/defensio-labs/coredrill/internal/domain"
	"github.com/defensio-labs/coredrill/internal/store"
)

// selectionHorizonSec is the "never start a task that will expire within
// an hour" margin from spec.md §4.2.
const selectionHorizonSec = 3600

// selectionLimit is spec.md §4.2's result cap.
const selectionLimit = 1000

// FetchChallenges implements spec.md §4.2's selection filter: excludes any
// challenge_id in doneChall, requires latest_submission_epoch strictly
// greater than now+1h, sorted ascending by latest_submission_epoch
// (oldest-expiring first), capped at 1000.
func FetchChallenges(ctx context.Context, st *store.Store, doneChall []string, now time.Time) ([]domain.Challenge, error) {
	filter := bson.M{
		"latest_submission_epoch": bson.M{"$gt": now.Unix() + selectionHorizonSec},
	}
	if len(doneChall) > 0 {
		filter["_id"] = bson.M{"$nin": doneChall}
	}

	sort := bson.D{{Key: "latest_submission_epoch", Value: 1}}
	return st.Challenge.Find(ctx, filter, sort, selectionLimit)
}

// FetchFinalizedAddresses returns the set of addresses already holding a
// Solution row for challengeID, irrespective of status (spec.md §4.1(iv)):
// this is an optimization, not the correctness boundary, which remains
// the claim-row unique-key race.
func FetchFinalizedAddresses(ctx context.Context, st *store.Store, challengeID string) (map[string]struct{}, error) {
	solutions, err := st.Submit.Find(ctx, bson.M{"challenge_id": challengeID}, nil, 0)
	if err != nil {
		return nil, err
	}
	done := make(map[string]struct{}, len(solutions))
	for _, s := range solutions {
		done[s.Address] = struct{}{}
	}
	return done, nil
}
