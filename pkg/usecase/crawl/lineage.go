package crawl

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kindred/pkg/metrics"
	"github.com/m-mizutani/kindred/pkg/model"
	"github.com/m-mizutani/kindred/pkg/session"
	"github.com/m-mizutani/kindred/pkg/tree"
	"github.com/m-mizutani/kindred/pkg/utils/logging"
)

// runTree grows a lineage tree from the root and publishes it after every
// generation.
func (u *UseCase) runTree(ctx context.Context, st *session.State, token model.RunToken, opts Options) error {
	dir := opts.Direction()
	filter := dir.Filter()

	var mu sync.Mutex
	var families []*model.FamilyFragment
	collect := func(_ context.Context, got []*model.FamilyFragment) error {
		mu.Lock()
		defer mu.Unlock()
		families = append(families, got...)
		return nil
	}
	fetch := func(ctx context.Context, ids []model.ProfileID) ([]*model.FamilyFragment, error) {
		return u.families.Unions(ctx, ids, filter)
	}

	if err := u.generation(ctx, st, token, opts.Mode, []model.ProfileID{opts.Root}, fetch, collect); err != nil {
		return err
	}
	root, err := u.treeRoot(ctx, opts.Root, families)
	if err != nil {
		return err
	}

	b := tree.NewBuilder(root,
		tree.WithDirection(dir),
		tree.WithAdopted(opts.Adopt),
		tree.WithDNA(opts.DNA),
	)

	for {
		b.Expand(families, b.Depth()+1 < opts.Limit)
		metrics.GenerationsTotal.WithLabelValues(string(opts.Mode)).Inc()

		rec := tree.Serialize(b.Tree(), b.Depth())
		if !st.Commit(token, func(tx *session.Tx) {
			tx.SetGeneration(b.Depth())
			tx.SetTree(rec, b.Depth(), b.Count())
		}) {
			return model.ErrSuperseded
		}
		logging.From(ctx).Info("generation done", "generation", b.Depth(), "nodes", b.Tree().Len())

		if b.Done() {
			break
		}

		families = nil
		if err := u.generation(ctx, st, token, opts.Mode, b.Pending(), fetch, collect); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !st.Active(token) {
			return model.ErrSuperseded
		}
	}

	return u.export(ctx, st)
}

// treeRoot picks the root out of its own family fetch and refreshes it with
// its profile detail.
func (u *UseCase) treeRoot(ctx context.Context, id model.ProfileID, families []*model.FamilyFragment) (*model.Relative, error) {
	for _, f := range families {
		if f.FocusID() == id {
			if err := u.families.Detail(ctx, f.Focus); err != nil {
				logging.From(ctx).Warn("failed to refresh root detail", "id", id, "error", err)
			}
			return f.Focus, nil
		}
		// a private root comes back as a denied fragment
		for _, r := range f.Relatives {
			if f.Focus == nil && r.ID == id {
				return r, nil
			}
		}
	}
	return nil, goerr.New("root profile not found", goerr.V("id", id))
}

func (u *UseCase) export(ctx context.Context, st *session.State) error {
	if u.storage == nil {
		return nil
	}
	rec := st.Tree()
	if rec == nil {
		return nil
	}

	key := st.ID() + ".json"
	w, err := u.storage.Put(ctx, key)
	if err != nil {
		return goerr.Wrap(err, "failed to open tree export", goerr.V("key", key))
	}
	if err := json.NewEncoder(w).Encode(rec); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write tree export", goerr.V("key", key))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to close tree export", goerr.V("key", key))
	}
	logging.From(ctx).Info("tree exported", "key", key)
	return nil
}
