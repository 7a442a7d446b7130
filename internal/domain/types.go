// Package domain holds the persistent and in-memory record kinds shared by
// the miner and submitter roles: Challenge, Address, Solution (the claim
// row), Config, and the in-memory Task/Rom handles.
package domain

import (
	"time"
)

// Recognized Solution.Status values. Status is intentionally a free-form
// string in the store (spec allows unrecognized values to pass through
// unexamined); these are the ones the core state machines read and write.
const (
	StatusOnit            = "onit"
	StatusOnitSelfSubmit  = "onit_self_submit"
	StatusFound           = "found"
	StatusFoundSelfSubmit = "found_self_submit"
	StatusSubmitted       = "submitted"

	StatusFailedDeadlineExceeded    = "failed_to_submit_deadline_exceeded"
	StatusFailedTimeout             = "failed_to_submit_timeout"
	StatusFailedSolutionExists      = "failed_to_submit_solution_exists"
	StatusFailedSubmissionWindow    = "failed_to_submit_submission_window_closed"
	StatusFailedGeneral             = "failed_to_submit_general"
)

// Challenge is immutable once written; LatestSubmissionEpoch is derived at
// insert time from LatestSubmission and must stay equal to its epoch.
type Challenge struct {
	ID                    string `bson:"_id"`
	ChallengeID           string `bson:"challenge_id"`
	ChallengeNumber       int32  `bson:"challenge_number"`
	Day                   int32  `bson:"day"`
	IssuedAt              string `bson:"issued_at"`
	LatestSubmission      string `bson:"latest_submission"`
	LatestSubmissionEpoch int64  `bson:"latest_submission_epoch"`
	Difficulty            string `bson:"difficulty"`
	NoPreMine             string `bson:"no_pre_mine"`
	NoPreMineHour         string `bson:"no_pre_mine_hour"`

	TotalChallenges       int32  `bson:"total_challenges"`
	NextChallengeStartsAt string `bson:"next_challenge_starts_at"`
}

// IsLate reports whether at most `minutes` minutes remain until the
// challenge's submission deadline, measured against now.
func (c Challenge) IsLate(now time.Time, minutes int64) bool {
	return c.LatestSubmissionEpoch-now.Unix() <= minutes*60
}

// Address is static per-tag configuration; a tag may select many addresses.
type Address struct {
	Tag     string `bson:"tag"`
	Address string `bson:"address"`
}

// Solution is both the atomic claim row and the final mined artifact,
// keyed by ID = "{ChallengeID}:{ShortAddress(Address)}".
type Solution struct {
	ID             string `bson:"_id"`
	InstanceID     string `bson:"instance_id"`
	ChallengeID    string `bson:"challenge_id"`
	Address        string `bson:"address"`
	Nonce          string `bson:"nonce"`
	Hash           string `bson:"hash"`
	Preimage       string `bson:"preimage"`
	CreateTime     string `bson:"create_time"`
	FoundTime      string `bson:"found_time"`
	SubmittedTime  string `bson:"submitted_time,omitempty"`
	TimeTakenSec   int32  `bson:"time_taken_sec"`
	TotalHashes    int32  `bson:"total_hashes"`
	Status         string `bson:"status"`
	SubmitterID    string `bson:"submitter_id,omitempty"`
	SubmitResponse *SubmitResponse `bson:"submit_response,omitempty"`
}

// IsEmpty matches spec.md's definition: a Solution is empty iff any of
// Nonce, Hash, Preimage is empty.
func (s Solution) IsEmpty() bool {
	return s.Nonce == "" || s.Hash == "" || s.Preimage == ""
}

// SubmitResponse is the upstream API's crypto receipt envelope.
type SubmitResponse struct {
	CryptoReceipt CryptoReceipt `bson:"crypto_receipt" json:"crypto_receipt"`
}

// CryptoReceipt is the upstream-signed acknowledgement of a submission.
type CryptoReceipt struct {
	Preimage  string `bson:"preimage" json:"preimage"`
	Timestamp string `bson:"timestamp" json:"timestamp"`
	Signature string `bson:"signature" json:"signature"`
}

// Config is per-instance, keyed by InstanceID in the config collection.
type Config struct {
	InstanceID    string `bson:"_id"`
	AddressID     string `bson:"address_id"`
	NumThreads    int    `bson:"num_threads"`
	SelfSubmit    bool   `bson:"self_submit"`
	SubmitterID   string `bson:"submitter_id"`
	TimeoutSec    int    `bson:"timeout_sec"`
	MaxHashCount  int32  `bson:"max_hash_count"`
	BaseURL       string `bson:"base_url"`
}

// EffectiveTimeoutSec applies the ≤0 → 3600 default from spec.md §3.
func (c Config) EffectiveTimeoutSec() int {
	if c.TimeoutSec <= 0 {
		return 3600
	}
	return c.TimeoutSec
}

// EffectiveMaxHashCount applies the ≤0 → 10_000_000 default from spec.md §3.
func (c Config) EffectiveMaxHashCount() int32 {
	if c.MaxHashCount <= 0 {
		return 10_000_000
	}
	return c.MaxHashCount
}

// Task is one (challenge, address) pair within one miner process. Rom is
// shared read-only across every Task built from the same no_pre_mine seed.
type Task struct {
	Rom       RomHandle
	Addr      string
	Challenge Challenge
	Solution  Solution
}

// RomHandle is the narrow view search/task code needs of a Rom; it keeps
// internal/domain free of a dependency on internal/romhash.
type RomHandle interface {
	Bytes() []byte
	Seed() string
}
