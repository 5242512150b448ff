package crawl

import (
	"context"
	"slices"
	"sync"

	"github.com/m-mizutani/kindred/pkg/metrics"
	"github.com/m-mizutani/kindred/pkg/model"
	"github.com/m-mizutani/kindred/pkg/policy"
	"github.com/m-mizutani/kindred/pkg/service/family"
	"github.com/m-mizutani/kindred/pkg/session"
	"github.com/m-mizutani/kindred/pkg/utils/logging"
)

// runMatch walks the ancestors of the root one generation at a time,
// flagging relatives of every family on the way.
func (u *UseCase) runMatch(ctx context.Context, st *session.State, token model.RunToken, opts Options) error {
	gen := 0
	if !st.Commit(token, func(tx *session.Tx) {
		tx.SetGeneration(gen)
		tx.AppendFrontier(opts.Root)
		tx.AddHistory(opts.Root)
	}) {
		return model.ErrSuperseded
	}

	fetch := func(ctx context.Context, ids []model.ProfileID) ([]*model.FamilyFragment, error) {
		return u.families.Group(ctx, ids, model.FilterParentsSiblings, family.MatchFields)
	}

	for {
		ids, ok := st.TakeFrontier(token)
		if !ok {
			return model.ErrSuperseded
		}
		if len(ids) == 0 {
			break
		}
		if opts.Limit > 0 && gen >= opts.Limit {
			break
		}

		var (
			mu    sync.Mutex
			lines []parentLine
		)
		handle := func(ctx context.Context, families []*model.FamilyFragment) error {
			for _, f := range families {
				line, err := u.matchFamily(ctx, st, token, opts, gen, f)
				if err != nil {
					return err
				}
				if line != nil {
					mu.Lock()
					lines = append(lines, *line)
					mu.Unlock()
				}
			}
			return nil
		}
		if err := u.generation(ctx, st, token, ModeMatch, ids, fetch, handle); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if opts.Complete && !st.Commit(token, func(tx *session.Tx) {
			convergeParents(tx, gen, lines)
			tx.ClearParentMatch(gen)
		}) {
			return model.ErrSuperseded
		}

		metrics.GenerationsTotal.WithLabelValues(string(ModeMatch)).Inc()
		next := st.Frontier()
		logging.From(ctx).Info("generation done", "generation", gen, "fetched", len(ids), "next", len(next), "paths", st.TrackedPaths())
		if len(next) == 0 {
			break
		}

		gen++
		if !st.Commit(token, func(tx *session.Tx) { tx.SetGeneration(gen) }) {
			return model.ErrSuperseded
		}
	}

	if !st.Commit(token, func(tx *session.Tx) { tx.SetStage(model.StageLabel(gen - 1)) }) {
		return model.ErrSuperseded
	}
	return nil
}

// parentLine is a family whose parents were counted at a generation.
type parentLine struct {
	focus       model.ProfileID
	parents     []*model.Relative
	parentCount int
	masterCount int
}

// matchFamily folds one family into the session. Remote lookups and policy
// evaluation happen before the commit; follow requests only after it. With
// Complete set it returns the counted family for convergeParents.
func (u *UseCase) matchFamily(ctx context.Context, st *session.State, token model.RunToken, opts Options, gen int, f *model.FamilyFragment) (*parentLine, error) {
	focus := f.Focus
	if opts.Complete && focus == nil {
		return nil, nil
	}

	parents := f.Parents(model.AdoptAll)
	parentCount := len(f.Parents(model.AdoptNatural))
	adoptCount := len(f.Parents(model.AdoptOnly))

	masterCount := 0
	for _, p := range parents {
		if p.Master {
			masterCount++
		}
	}

	relatives := f.BranchGroup()
	if opts.ExcludeSiblings {
		relatives = parents
	}

	var matches []model.Match
	var counters session.Counters

	if opts.Complete && (parentCount > 2 || adoptCount > 2) {
		counters.ParentConflicts++
		if opts.Problem {
			matches = append(matches, model.Match{
				ID:       focus.ID,
				Relation: focus.Title(gen - 1),
				Name:     focus.Name,
				Message:  model.MessageParentConflict,
			})
		}
		parentCount = 2
	}

	for _, r := range relatives {
		found, err := u.relativeMatches(ctx, opts, gen, r)
		if err != nil {
			return nil, err
		}
		matches = append(matches, found...)

		if r.MergePending {
			counters.Pending++
		}
		if opts.Problem && r.Message != model.MessageNone {
			counters.Problems++
		}
		if r.Master {
			counters.MasterCount++
		}
	}
	counters.Count = len(relatives)

	if !st.Commit(token, func(tx *session.Tx) {
		if opts.Complete {
			countParents(tx, gen, focus.ID, parents, parentCount, masterCount)
		}
		for _, m := range matches {
			tx.AddMatch(m)
		}
		tx.AddCounters(counters)

		var next []model.ProfileID
		for _, p := range parents {
			if !tx.Visited(p.ID) && !tx.Queued(p.ID) {
				next = append(next, p.ID)
			}
		}
		tx.AppendFrontier(next...)
		tx.AddHistory(next...)
	}) {
		return nil, model.ErrSuperseded
	}

	if opts.Follow {
		u.follow(ctx, opts.FollowSelect, relatives)
	}
	if !opts.Complete {
		return nil, nil
	}
	return &parentLine{
		focus:       focus.ID,
		parents:     parents,
		parentCount: parentCount,
		masterCount: masterCount,
	}, nil
}

// countParents adds the expected parents of focus to gen, weighted by the
// number of lines reaching focus, and carries the weight to its parents.
func countParents(tx *session.Tx, gen int, focus model.ProfileID, parents []*model.Relative, parentCount, masterCount int) {
	weight := max(tx.ParentMatch(gen, focus), 1)
	tx.AddParentCount(gen, parentCount*weight, masterCount*weight)
	for range weight {
		for _, p := range parents {
			tx.AddParentMatch(gen+1, p.ID)
		}
	}
}

// convergeParents runs once every family of gen is counted. A focus that is
// also a parent of another family in gen sits one generation further up on
// that line, so its parents count there too. It is never fetched again.
func convergeParents(tx *session.Tx, gen int, lines []parentLine) {
	if gen == 0 {
		return
	}
	for _, l := range lines {
		rc := tx.ParentMatch(gen+1, l.focus)
		if rc == 0 {
			continue
		}
		tx.AddParentCount(gen+1, l.parentCount*rc, l.masterCount*rc)
		for range rc {
			for _, p := range l.parents {
				tx.AddParentMatch(gen+2, p.ID)
			}
		}
	}
}

func (u *UseCase) relativeMatches(ctx context.Context, opts Options, gen int, r *model.Relative) ([]model.Match, error) {
	var out []model.Match
	newMatch := func(msg model.Message) model.Match {
		return model.Match{
			ID:       r.ID,
			Relation: r.Title(gen),
			Name:     r.Name,
			Message:  msg,
		}
	}

	if opts.Project || opts.Problem {
		if ids := selectProjects(r.Projects, opts); len(ids) > 0 {
			projects, err := u.families.Projects(ctx, ids)
			if err != nil {
				logging.From(ctx).Warn("failed to resolve project names", "ids", ids, "error", err)
				projects = make([]model.Project, 0, len(ids))
				for _, id := range ids {
					projects = append(projects, model.Project{ID: id})
				}
			}
			m := newMatch(model.MessageNone)
			m.Projects = projects
			out = append(out, m)
		}
	}

	if opts.Master {
		switch {
		case opts.MasterSelect && r.Master:
			out = append(out, newMatch(model.MessageMasterProfile))
		case !opts.MasterSelect && !r.Master && r.Public:
			out = append(out, newMatch(model.MessageNonMasterPublic))
		}
	}

	if r.MergePending && opts.Merges {
		out = append(out, newMatch(model.MessageMergePending))
	}

	if opts.Problem && r.Message != model.MessageNone {
		out = append(out, newMatch(r.Message))
	}

	if u.policy != nil {
		v, err := u.policy.Evaluate(ctx, policy.Input{Relative: r, Relation: r.Title(gen), Generation: gen})
		if err != nil {
			return nil, err
		}
		if v.Flag {
			out = append(out, newMatch(v.Message))
		}
	}

	return out, nil
}

// selectProjects filters the project ids of a relative. The curator exchange
// project counts as a problem project, every other one as a plain project.
func selectProjects(ids []int64, opts Options) []int64 {
	if opts.ProjectSelect == ProjectAll {
		return ids
	}

	allowed := func(id int64) bool {
		switch {
		case opts.Problem && opts.Project:
			return true
		case opts.Problem:
			return id == model.CuratorExchangeProject
		case opts.Project:
			return id != model.CuratorExchangeProject
		}
		return false
	}

	var out []int64
	for _, id := range ids {
		if opts.ProjectSelect == ProjectInclude &&
			id != model.CuratorExchangeProject && !slices.Contains(opts.TrackedProjects, id) {
			continue
		}
		if allowed(id) {
			out = append(out, id)
		}
	}
	return out
}

func (u *UseCase) follow(ctx context.Context, follow bool, relatives []*model.Relative) {
	for _, r := range relatives {
		if !r.Public {
			continue
		}
		if err := u.families.Follow(ctx, r.ID, follow); err != nil {
			logging.From(ctx).Warn("failed to update follow", "id", r.ID, "follow", follow, "error", err)
		}
	}
}
