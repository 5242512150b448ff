package repository

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kindred/pkg/model"
)

var ErrNotFound = goerr.New("snapshot not found")

// Repository persists the results of finished crawls.
type Repository interface {
	// PutSnapshot saves a snapshot, replacing any previous one of the same session
	PutSnapshot(ctx context.Context, snap *model.Snapshot) error

	// GetSnapshot retrieves the snapshot of a session
	GetSnapshot(ctx context.Context, sessionID string) (*model.Snapshot, error)

	// ListSnapshots retrieves snapshots, most recently finished first
	ListSnapshots(ctx context.Context, offset, limit int) ([]*model.Snapshot, error)
}

// sortRecent orders snapshots by finish time, newest first.
func sortRecent(snaps []*model.Snapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		if snaps[i].FinishedAt.Equal(snaps[j].FinishedAt) {
			return snaps[i].SessionID < snaps[j].SessionID
		}
		return snaps[i].FinishedAt.After(snaps[j].FinishedAt)
	})
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
