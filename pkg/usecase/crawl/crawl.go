package crawl

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kindred/pkg/adapter"
	"github.com/m-mizutani/kindred/pkg/metrics"
	"github.com/m-mizutani/kindred/pkg/model"
	"github.com/m-mizutani/kindred/pkg/policy"
	"github.com/m-mizutani/kindred/pkg/repository"
	"github.com/m-mizutani/kindred/pkg/session"
	"github.com/m-mizutani/kindred/pkg/tree"
	"github.com/m-mizutani/kindred/pkg/utils/logging"
)

// Families is the remote family graph as the crawler sees it.
type Families interface {
	Group(ctx context.Context, ids []model.ProfileID, filter model.RoleFilter, fields []string) ([]*model.FamilyFragment, error)
	Unions(ctx context.Context, ids []model.ProfileID, filter model.RoleFilter) ([]*model.FamilyFragment, error)
	Detail(ctx context.Context, r *model.Relative) error
	Projects(ctx context.Context, ids []int64) ([]model.Project, error)
	Follow(ctx context.Context, id model.ProfileID, follow bool) error
	RefreshCredential(ctx context.Context) error
}

// Policy flags relatives by curator criteria.
type Policy interface {
	Evaluate(ctx context.Context, in policy.Input) (*policy.Verdict, error)
}

type pool struct {
	workers int
	batch   int
}

const defaultAttempts = 3

// UseCase runs crawls against the remote graph and keeps their progress in
// the session store.
type UseCase struct {
	store    *session.Store
	families Families

	policy  Policy
	repo    repository.Repository
	storage adapter.Storage

	matchPool pool
	treePool  pool
	attempts  int
}

type Option func(*UseCase)

func WithPolicy(p Policy) Option {
	return func(u *UseCase) {
		u.policy = p
	}
}

// WithRepository saves a snapshot of every finished run.
func WithRepository(repo repository.Repository) Option {
	return func(u *UseCase) {
		u.repo = repo
	}
}

// WithStorage exports completed trees as JSON objects.
func WithStorage(s adapter.Storage) Option {
	return func(u *UseCase) {
		u.storage = s
	}
}

// WithMatchPool sets the worker count and ids per fetch of match mode.
func WithMatchPool(workers, batch int) Option {
	return func(u *UseCase) {
		u.matchPool = newPool(workers, batch, u.matchPool)
	}
}

// WithTreePool sets the worker count and ids per fetch of tree mode.
func WithTreePool(workers, batch int) Option {
	return func(u *UseCase) {
		u.treePool = newPool(workers, batch, u.treePool)
	}
}

// WithAttempts sets how many times a batch is fetched on transient failure.
func WithAttempts(n int) Option {
	return func(u *UseCase) {
		if n > 0 {
			u.attempts = n
		}
	}
}

func newPool(workers, batch int, base pool) pool {
	if workers > 0 {
		base.workers = workers
	}
	if batch > 0 {
		base.batch = batch
	}
	return base
}

func New(store *session.Store, families Families, opts ...Option) *UseCase {
	u := &UseCase{
		store:     store,
		families:  families,
		matchPool: pool{workers: 30, batch: 6},
		treePool:  pool{workers: 8, batch: 50},
		attempts:  defaultAttempts,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// StartCrawl resets the session and crawls in the background. Only invalid
// options are reported; the outcome of the run is read with PollStatus.
func (u *UseCase) StartCrawl(ctx context.Context, sessionID string, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	opts = opts.withDefaults()

	st := u.store.Get(sessionID)
	token := st.Begin(opts.Root, string(opts.Mode))

	go func() {
		if err := u.run(context.WithoutCancel(ctx), st, token, opts); err != nil && !errors.Is(err, model.ErrSuperseded) {
			logging.From(ctx).Warn("crawl failed", "session", sessionID, "error", err)
		}
	}()
	return nil
}

// Run crawls synchronously. It returns ErrSuperseded when the run lost its
// session to a stop or a newer run.
func (u *UseCase) Run(ctx context.Context, sessionID string, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	opts = opts.withDefaults()

	st := u.store.Get(sessionID)
	token := st.Begin(opts.Root, string(opts.Mode))
	return u.run(ctx, st, token, opts)
}

func (u *UseCase) PollStatus(sessionID string) *model.Status {
	status := u.store.Get(sessionID).Status()
	return &status
}

func (u *UseCase) PollTree(sessionID string) *tree.Record {
	return u.store.Get(sessionID).Tree()
}

// Matches returns the matches recorded so far, resetting the new-match
// counter.
func (u *UseCase) Matches(sessionID string) []model.Match {
	st := u.store.Get(sessionID)
	st.ResetHits()
	return st.Matches()
}

// Sessions lists the ids of live sessions.
func (u *UseCase) Sessions() []string {
	return u.store.Sessions()
}

// Stop ends the session's run, keeping its results.
func (u *UseCase) Stop(ctx context.Context, sessionID string) {
	st, ok := u.store.Lookup(sessionID)
	if !ok || !st.Stop() {
		return
	}
	logging.From(ctx).Info("crawl stopped", "session", sessionID)
	u.persist(ctx, st)
}

func (u *UseCase) run(ctx context.Context, st *session.State, token model.RunToken, opts Options) error {
	logger := logging.From(ctx).With("session", st.ID(), "mode", opts.Mode, "token", token)
	ctx = logging.With(ctx, logger)

	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	logger.Info("crawl started", "root", opts.Root, "limit", opts.Limit)

	var err error
	if opts.Mode == ModeMatch {
		err = u.runMatch(ctx, st, token, opts)
	} else {
		err = u.runTree(ctx, st, token, opts)
	}

	return u.finish(ctx, st, token, opts, err)
}

func (u *UseCase) finish(ctx context.Context, st *session.State, token model.RunToken, opts Options, err error) error {
	logger := logging.From(ctx)

	state := model.RunStateCompleted
	switch {
	case errors.Is(err, model.ErrSuperseded):
		logger.Debug("crawl superseded")
		return err

	case errors.Is(err, model.ErrInvalidCredential):
		state = model.RunStateFailed
		if rerr := u.families.RefreshCredential(ctx); rerr != nil {
			logger.Warn("failed to refresh credential", "error", rerr)
		}
		st.Commit(token, func(tx *session.Tx) {
			tx.SetAccessError()
			tx.DropFrontier()
		})

	case ctx.Err() != nil:
		if st.Stop() {
			logger.Info("crawl interrupted", "error", ctx.Err())
			metrics.RunsTotal.WithLabelValues(string(opts.Mode), string(model.RunStateStopped)).Inc()
			u.persist(ctx, st)
		}
		return goerr.Wrap(ctx.Err(), "crawl interrupted")

	case err != nil:
		state = model.RunStateFailed
	}

	ok, ferr := st.Finish(token, state, err)
	if ferr != nil {
		return ferr
	}
	if !ok {
		logger.Debug("crawl finished after losing its session")
		return model.ErrSuperseded
	}

	metrics.RunsTotal.WithLabelValues(string(opts.Mode), string(state)).Inc()
	status := st.Status()
	logger.Info("crawl finished",
		"state", state,
		"generation", status.Generation,
		"matches", status.MatchCount,
		"count", status.Count,
	)
	u.persist(ctx, st)
	return err
}

func (u *UseCase) persist(ctx context.Context, st *session.State) {
	if u.repo == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	snap, err := st.Snapshot()
	if err != nil {
		logging.From(ctx).Warn("failed to take snapshot", "error", err)
		return
	}
	if err := u.repo.PutSnapshot(ctx, snap); err != nil {
		logging.From(ctx).Warn("failed to save snapshot", "error", err)
	}
}
