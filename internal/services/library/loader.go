package library

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/findosh/libran/internal/gateway"
	"github.com/findosh/libran/internal/models"
	"github.com/findosh/libran/internal/services/reports"
)

// snapshotLimit asks for everything in one page. The reporting engine joins
// across collections, so a partial page would silently skew every figure.
const snapshotLimit = 10000

// Snapshot is a consistent-enough view of all four collections plus the
// gateway versions observed before the fetch started. A mutation after the
// snapshot bumps a version and marks it stale.
type Snapshot struct {
	reports.Input
	versions map[gateway.Tag]uint64
}

// LoadSnapshot fetches books, members, loans, and reservations concurrently.
// Any single failure fails the whole snapshot.
func (s *Service) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{versions: make(map[gateway.Tag]uint64, len(gateway.AllTags))}
	for _, tag := range gateway.AllTags {
		snap.versions[tag] = s.gw.Version(tag)
	}

	opts := ListOptions{Limit: snapshotLimit}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.Books, _, err = s.Books(ctx, opts)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Members, _, err = s.Members(ctx, opts)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Loans, _, err = s.Loans(ctx, opts)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Reservations, _, err = s.Reservations(ctx, opts)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.log.Debugw("snapshot loaded",
		"books", len(snap.Books),
		"members", len(snap.Members),
		"loans", len(snap.Loans),
		"reservations", len(snap.Reservations))
	return snap, nil
}

// Stale reports whether any collection has been mutated through the gateway
// since the snapshot was taken.
func (snap *Snapshot) Stale(gw *gateway.Client) bool {
	for tag, seen := range snap.versions {
		if gw.Version(tag) != seen {
			return true
		}
	}
	return false
}

// Member resolves a member by ID within the snapshot.
func (snap *Snapshot) Member(id string) *models.Member {
	for i := range snap.Members {
		if snap.Members[i].ID == id {
			return &snap.Members[i]
		}
	}
	return nil
}
