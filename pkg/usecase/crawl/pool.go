package crawl

import (
	"context"
	"errors"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kindred/pkg/metrics"
	"github.com/m-mizutani/kindred/pkg/model"
	"github.com/m-mizutani/kindred/pkg/service/family"
	"github.com/m-mizutani/kindred/pkg/session"
	"github.com/m-mizutani/kindred/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

type fetchFunc func(ctx context.Context, ids []model.ProfileID) ([]*model.FamilyFragment, error)

type handleFunc func(ctx context.Context, families []*model.FamilyFragment) error

// generation fetches ids in batches on a bounded pool and passes the
// families of every batch to handle. It returns once all batches are done.
// A credential failure cancels the remaining batches and is returned. Ids of
// batches that keep failing are recorded as unresolved and fail the run once
// every batch is done.
func (u *UseCase) generation(ctx context.Context, st *session.State, token model.RunToken, mode Mode, ids []model.ProfileID, fetch fetchFunc, handle handleFunc) error {
	p := u.matchPool
	if mode != ModeMatch {
		p = u.treePool
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	var mu sync.Mutex
	var unresolved []model.ProfileID

	for _, batch := range family.Chunk(ids, p.batch) {
		g.Go(func() error {
			families, err := u.fetchBatch(gctx, st, token, mode, batch, fetch)
			switch {
			case err == nil:
			case errors.Is(err, model.ErrInvalidCredential):
				return err
			case errors.Is(err, model.ErrSuperseded), gctx.Err() != nil:
				return nil
			case errors.Is(err, model.ErrMalformedFragment):
				logging.From(gctx).Warn("dropped malformed payload", "ids", batch, "error", err)
				return nil
			default:
				logging.From(gctx).Warn("batch left unresolved", "ids", batch, "error", err)
				mu.Lock()
				unresolved = append(unresolved, batch...)
				mu.Unlock()
				return nil
			}

			if gctx.Err() != nil {
				return nil
			}
			return handle(gctx, families)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if len(unresolved) > 0 {
		st.Commit(token, func(tx *session.Tx) {
			tx.AddUnresolved(unresolved...)
		})
		return goerr.Wrap(model.ErrTransientFetch, "profiles left unresolved", goerr.V("ids", unresolved))
	}
	return nil
}

// fetchBatch fetches one batch, retrying transient failures while the run
// still owns its session.
func (u *UseCase) fetchBatch(ctx context.Context, st *session.State, token model.RunToken, mode Mode, ids []model.ProfileID, fetch fetchFunc) ([]*model.FamilyFragment, error) {
	var err error
	for attempt := 1; attempt <= u.attempts; attempt++ {
		if !st.Active(token) {
			return nil, model.ErrSuperseded
		}

		var families []*model.FamilyFragment
		families, err = fetch(ctx, ids)
		if err == nil || !errors.Is(err, model.ErrTransientFetch) || ctx.Err() != nil {
			return families, err
		}

		if attempt < u.attempts {
			metrics.FetchRetries.WithLabelValues(string(mode)).Inc()
			logging.From(ctx).Debug("retrying batch", "attempt", attempt, "ids", ids, "error", err)
		}
	}
	return nil, err
}
