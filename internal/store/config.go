package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/defensio-labs/coredrill/internal/domain"
)

// FetchConfig loads the per-instance Config document keyed by instanceID,
// used by both the miner and submitter roles (spec.md §6).
func (s *Store) FetchConfig(ctx context.Context, instanceID string) (domain.Config, error) {
	cfg, err := s.Config.FindOne(ctx, bson.M{"_id": instanceID})
	if err != nil {
		return domain.Config{}, err
	}
	cfg.InstanceID = instanceID
	return cfg, nil
}

// FetchAddresses loads every Address whose Tag matches addressID (spec.md
// §4.1(i)).
func (s *Store) FetchAddresses(ctx context.Context, addressID string) ([]domain.Address, error) {
	return s.Address.Find(ctx, bson.M{"tag": addressID}, nil, 0)
}
