package session_test

import (
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kindred/pkg/model"
	"github.com/m-mizutani/kindred/pkg/session"
	"github.com/m-mizutani/kindred/pkg/tree"
)

func TestAddMatchPrecedence(t *testing.T) {
	testCases := []struct {
		name     string
		first    model.Match
		second   model.Match
		exists   bool
		relation string
		entries  int
	}{
		{
			name:     "parent relation is kept",
			first:    model.Match{ID: "p", Relation: "great grandmother"},
			second:   model.Match{ID: "p", Relation: "spouse"},
			exists:   true,
			relation: "great grandmother",
			entries:  1,
		},
		{
			name:     "aunt never replaces",
			first:    model.Match{ID: "p", Relation: "spouse"},
			second:   model.Match{ID: "p", Relation: "great aunt"},
			exists:   true,
			relation: "spouse",
			entries:  1,
		},
		{
			name:     "uncle never replaces",
			first:    model.Match{ID: "p", Relation: "partner"},
			second:   model.Match{ID: "p", Relation: "2nd great uncle"},
			exists:   true,
			relation: "partner",
			entries:  1,
		},
		{
			name:     "other relations are replaced",
			first:    model.Match{ID: "p", Relation: "great aunt/uncle"},
			second:   model.Match{ID: "p", Relation: "grandfather"},
			exists:   true,
			relation: "grandfather",
			entries:  1,
		},
		{
			name:     "same message is not repeated",
			first:    model.Match{ID: "p", Relation: "grandfather", Message: model.MessageMasterProfile},
			second:   model.Match{ID: "p", Relation: "grandfather", Message: model.MessageMasterProfile},
			exists:   true,
			relation: "grandfather",
			entries:  1,
		},
		{
			name:     "new message is appended",
			first:    model.Match{ID: "p", Relation: "grandfather", Message: model.MessageMasterProfile},
			second:   model.Match{ID: "p", Relation: "grandfather", Message: model.MessageMergePending},
			exists:   false,
			relation: "grandfather",
			entries:  2,
		},
		{
			name:     "different profile is added",
			first:    model.Match{ID: "p", Relation: "grandfather"},
			second:   model.Match{ID: "q", Relation: "grandmother"},
			exists:   false,
			relation: "grandfather",
			entries:  2,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			st := session.NewStore().Get("s1")
			token := st.Begin("root", "match")

			var exists bool
			gt.True(t, st.Commit(token, func(tx *session.Tx) {
				gt.False(t, tx.AddMatch(tc.first))
				exists = tx.AddMatch(tc.second)
			}))

			gt.Equal(t, exists, tc.exists)
			matches := st.Matches()
			gt.A(t, matches).Length(tc.entries)
			gt.Equal(t, matches[0].Relation, tc.relation)
			gt.Equal(t, st.Status().Hits, 2)
			gt.Equal(t, st.Status().MatchCount, tc.entries)
		})
	}
}

func TestCommitGuard(t *testing.T) {
	st := session.NewStore().Get("s1")

	gt.False(t, st.Commit("", func(tx *session.Tx) {
		t.Error("idle session must not commit")
	}))

	first := st.Begin("root", "match")
	gt.True(t, st.Active(first))

	second := st.Begin("root", "match")
	gt.NotEqual(t, first, second)
	gt.False(t, st.Active(first))
	gt.False(t, st.Commit(first, func(tx *session.Tx) {
		tx.AddMatch(model.Match{ID: "stale"})
	}))
	gt.A(t, st.Matches()).Length(0)

	gt.True(t, st.Commit(second, func(tx *session.Tx) {
		tx.AddMatch(model.Match{ID: "fresh"})
	}))

	gt.True(t, st.Stop())
	gt.False(t, st.Stop())
	gt.False(t, st.Active(second))
	gt.False(t, st.Commit(second, func(tx *session.Tx) {
		tx.AddMatch(model.Match{ID: "late"})
	}))

	status := st.Status()
	gt.Equal(t, status.State, model.RunStateStopped)
	gt.False(t, status.Running)
	gt.A(t, st.Matches()).Length(1)
}

func TestFinish(t *testing.T) {
	st := session.NewStore().Get("s1")
	token := st.Begin("root", "ancestors")

	_, err := st.Finish(token, model.RunStateRunning, nil)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrInvalidRunState))

	_, err = st.Finish(token, model.RunState("bogus"), nil)
	gt.Error(t, err)

	ok, err := st.Finish(token, model.RunStateFailed, errors.New("boom"))
	gt.NoError(t, err)
	gt.True(t, ok)

	status := st.Status()
	gt.Equal(t, status.State, model.RunStateFailed)
	gt.Equal(t, status.Error, "boom")
	gt.False(t, status.Running)

	ok, err = st.Finish(token, model.RunStateCompleted, nil)
	gt.NoError(t, err)
	gt.False(t, ok)
	gt.Equal(t, st.Status().State, model.RunStateFailed)
}

func TestParentCounts(t *testing.T) {
	st := session.NewStore().Get("s1")
	token := st.Begin("root", "match")

	st.Commit(token, func(tx *session.Tx) {
		tx.AddParentCount(0, 2, 1)
		tx.AddParentCount(0, 2, 0)
		tx.AddParentCount(2, 4, 4)

		tx.AddParentMatch(1, "dad")
		tx.AddParentMatch(1, "dad")
		gt.Equal(t, tx.ParentMatch(1, "dad"), 2)
		gt.Equal(t, tx.ParentMatch(1, "mom"), 0)
		tx.ClearParentMatch(1)
		gt.Equal(t, tx.ParentMatch(1, "dad"), 0)
	})

	counts := st.Status().GenCounts
	gt.Equal(t, counts[0], model.GenCount{Count: 4, MasterCount: 1, Label: "parents"})
	gt.Equal(t, counts[2], model.GenCount{Count: 4, MasterCount: 4, Label: "great grandparents"})

	snap, err := st.Snapshot()
	gt.NoError(t, err)
	gt.A(t, snap.GenCounts).Length(2)
	gt.Equal(t, snap.GenCounts[0].Label, "parents")
	gt.Equal(t, snap.GenCounts[1].Label, "great grandparents")
}

func TestFrontier(t *testing.T) {
	st := session.NewStore().Get("s1")
	token := st.Begin("root", "match")

	st.Commit(token, func(tx *session.Tx) {
		tx.AppendFrontier("a", "b", "a")
		tx.AppendFrontier("b", "c")
		gt.True(t, tx.Queued("c"))
		tx.AddHistory("a", "b")
		gt.True(t, tx.Visited("a"))
		gt.False(t, tx.Visited("c"))
	})
	gt.Equal(t, st.Frontier(), []model.ProfileID{"a", "b", "c"})

	ids, ok := st.TakeFrontier(token)
	gt.True(t, ok)
	gt.Equal(t, ids, []model.ProfileID{"a", "b", "c"})
	gt.A(t, st.Frontier()).Length(0)

	// taken ids may be queued again
	st.Commit(token, func(tx *session.Tx) {
		tx.AppendFrontier("a")
	})
	gt.Equal(t, st.Frontier(), []model.ProfileID{"a"})

	_, ok = st.TakeFrontier("other")
	gt.False(t, ok)
}

func TestCountersAndHits(t *testing.T) {
	st := session.NewStore().Get("s1")
	token := st.Begin("root", "match")

	st.Commit(token, func(tx *session.Tx) {
		tx.AddCounters(session.Counters{Count: 5, MasterCount: 2, Pending: 1})
		tx.AddCounters(session.Counters{Count: 3, ParentConflicts: 1, Problems: 2})
		tx.AddMatch(model.Match{ID: "a"})
		tx.SetGeneration(3)
		tx.AddUnresolved("x")
		tx.SetAccessError()
	})

	status := st.Status()
	gt.Equal(t, status.Count, 8)
	gt.Equal(t, status.MasterCount, 2)
	gt.Equal(t, status.Pending, 1)
	gt.Equal(t, status.ParentConflicts, 1)
	gt.Equal(t, status.Problems, 2)
	gt.Equal(t, status.Generation, 3)
	gt.Equal(t, status.Stage, "2nd great grandparent's family")
	gt.Equal(t, status.Unresolved, []model.ProfileID{"x"})
	gt.True(t, status.AccessError)

	gt.Equal(t, st.ResetHits(), 1)
	gt.Equal(t, st.Status().Hits, 0)
	gt.Equal(t, st.Status().MatchCount, 1)

	// a new run starts from scratch
	st.Begin("other", "match")
	status = st.Status()
	gt.Equal(t, status.Count, 0)
	gt.Equal(t, status.MatchCount, 0)
	gt.Equal(t, status.Stage, "parent's family")
	gt.False(t, status.AccessError)
}

func TestSnapshotTree(t *testing.T) {
	st := session.NewStore().Get("s1")
	token := st.Begin("root", "ancestors")

	rec := &tree.Record{Name: "Root", ID: "root", Gender: "2"}
	st.Commit(token, func(tx *session.Tx) {
		tx.SetTree(rec, 1, 3)
	})
	_, err := st.Finish(token, model.RunStateCompleted, nil)
	gt.NoError(t, err)

	gt.Equal(t, st.Tree(), rec)
	snap, err := st.Snapshot()
	gt.NoError(t, err)
	gt.Equal(t, snap.SessionID, "s1")
	gt.Equal(t, snap.Root, model.ProfileID("root"))
	gt.Equal(t, snap.Mode, "ancestors")
	gt.Equal(t, snap.Status.TreeGeneration, 1)
	gt.Equal(t, snap.Status.TreeCount, 3)
	gt.S(t, snap.TreeJSON).Contains(`"id":"root"`)
	gt.True(t, time.Since(snap.FinishedAt) < time.Minute)
}

func TestStore(t *testing.T) {
	store := session.NewStore(session.WithTTL(time.Hour))

	a := store.Get("a")
	gt.Equal(t, store.Get("a"), a)
	store.Get("b")
	gt.Equal(t, store.Sessions(), []string{"a", "b"})

	_, ok := store.Lookup("c")
	gt.False(t, ok)

	token := a.Begin("root", "match")
	store.Expire("a")
	gt.False(t, a.Active(token))
	gt.Equal(t, a.Status().State, model.RunStateStopped)
	gt.Equal(t, store.Sessions(), []string{"b"})

	fresh := store.Get("a")
	gt.NotEqual(t, fresh, a)
	gt.Equal(t, fresh.Status().State, model.RunStateIdle)
}

func TestStoreEvictsIdleSessions(t *testing.T) {
	store := session.NewStore(session.WithTTL(40 * time.Millisecond))
	st := store.Get("idle")
	token := st.Begin("root", "match")

	gt.True(t, waitFor(func() bool { return !st.Active(token) }, 2*time.Second))
	_, ok := store.Lookup("idle")
	gt.False(t, ok)
}

func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}
