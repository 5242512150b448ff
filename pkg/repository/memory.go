package repository

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kindred/pkg/model"
)

// Memory keeps snapshots in process. It is the default when no backend is
// configured.
type Memory struct {
	mu    sync.RWMutex
	snaps map[string]*model.Snapshot
}

func NewMemory() *Memory {
	return &Memory{
		snaps: make(map[string]*model.Snapshot),
	}
}

func (m *Memory) PutSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if snap == nil || snap.SessionID == "" {
		return goerr.New("snapshot requires a session id")
	}
	copied := *snap
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.SessionID] = &copied
	return nil
}

func (m *Memory) GetSnapshot(ctx context.Context, sessionID string) (*model.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[sessionID]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "no snapshot in memory", goerr.V("session", sessionID))
	}
	copied := *snap
	return &copied, nil
}

func (m *Memory) ListSnapshots(ctx context.Context, offset, limit int) ([]*model.Snapshot, error) {
	m.mu.RLock()
	snaps := make([]*model.Snapshot, 0, len(m.snaps))
	for _, snap := range m.snaps {
		copied := *snap
		snaps = append(snaps, &copied)
	}
	m.mu.RUnlock()

	sortRecent(snaps)
	return page(snaps, offset, limit), nil
}
