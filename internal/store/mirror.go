package store

import (
	"context"
	"fmt"

	"github.com/pennybuzz/engine/internal/model"
)

// MirrorStore writes every table to a primary store and then to each
// mirror. Reads are served by the primary only. The server uses it to keep
// the CSV artifact on disk while Postgres holds the scan history.
type MirrorStore struct {
	primary Store
	mirrors []Store
}

// NewMirrorStore creates a mirrored store.
func NewMirrorStore(primary Store, mirrors ...Store) *MirrorStore {
	return &MirrorStore{primary: primary, mirrors: mirrors}
}

func (s *MirrorStore) SaveCandidates(ctx context.Context, name string, rows []model.Candidate) error {
	if err := s.primary.SaveCandidates(ctx, name, rows); err != nil {
		return err
	}
	for i, m := range s.mirrors {
		if err := m.SaveCandidates(ctx, name, rows); err != nil {
			return fmt.Errorf("mirror %d: %w", i, err)
		}
	}
	return nil
}

func (s *MirrorStore) LoadCandidates(ctx context.Context, name string) ([]model.Candidate, error) {
	return s.primary.LoadCandidates(ctx, name)
}
