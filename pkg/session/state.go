package session

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kindred/pkg/metrics"
	"github.com/m-mizutani/kindred/pkg/model"
	"github.com/m-mizutani/kindred/pkg/tree"
)

// State is the crawl state of one session. All mutation made on behalf of a
// run goes through Commit so that a stopped or superseded run cannot write.
type State struct {
	mu sync.Mutex

	id    string
	token model.RunToken
	root  model.ProfileID
	mode  string

	status      model.Status
	matches     []model.Match
	parentMatch map[int]map[model.ProfileID]int
	genCounts   map[int]model.GenCount

	frontier []model.ProfileID
	pending  map[model.ProfileID]struct{}
	history  map[model.ProfileID]struct{}

	tree       *tree.Record
	finishedAt time.Time
}

func newState(id string) *State {
	s := &State{id: id}
	s.reset()
	s.status.State = model.RunStateIdle
	return s
}

func (s *State) ID() string { return s.id }

func (s *State) reset() {
	s.token = ""
	s.status = model.Status{
		Stage: model.StageLabel(0),
	}
	s.matches = nil
	s.parentMatch = make(map[int]map[model.ProfileID]int)
	s.genCounts = make(map[int]model.GenCount)
	s.frontier = nil
	s.pending = make(map[model.ProfileID]struct{})
	s.history = make(map[model.ProfileID]struct{})
	s.tree = nil
	s.finishedAt = time.Time{}
}

// Begin discards everything recorded so far and starts a new run rooted at
// root. Any run still holding the previous token is superseded.
func (s *State) Begin(root model.ProfileID, mode string) model.RunToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	s.root = root
	s.mode = mode
	s.token = model.NewRunToken()
	s.status.State = model.RunStateRunning
	s.status.Running = true
	return s.token
}

// Active reports whether token still owns a running crawl.
func (s *State) Active(token model.RunToken) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active(token)
}

func (s *State) active(token model.RunToken) bool {
	return token != "" && s.token == token && s.status.State == model.RunStateRunning
}

// Commit applies fn atomically if token still owns a running crawl. It
// reports whether fn was applied.
func (s *State) Commit(token model.RunToken, fn func(tx *Tx)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active(token) {
		return false
	}
	fn(&Tx{s: s})
	return true
}

// Stop ends the running crawl, keeping what it accumulated.
func (s *State) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.State != model.RunStateRunning {
		return false
	}
	s.status.State = model.RunStateStopped
	s.status.Running = false
	s.token = ""
	s.finishedAt = time.Now()
	return true
}

// Finish moves the run owned by token to a terminal state. A run that was
// stopped or superseded in the meantime is left untouched.
func (s *State) Finish(token model.RunToken, state model.RunState, cause error) (bool, error) {
	if err := state.Validate(); err != nil {
		return false, err
	}
	if !state.Terminal() {
		return false, goerr.Wrap(model.ErrInvalidRunState, "finish requires a terminal state", goerr.V("state", state))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active(token) {
		return false, nil
	}
	s.status.State = state
	s.status.Running = false
	if cause != nil {
		s.status.Error = cause.Error()
	}
	s.finishedAt = time.Now()
	return true, nil
}

func (s *State) Status() model.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.status
	st.MatchCount = len(s.matches)
	st.Unresolved = append([]model.ProfileID(nil), s.status.Unresolved...)
	if len(s.genCounts) > 0 {
		st.GenCounts = make(map[int]model.GenCount, len(s.genCounts))
		for gen, c := range s.genCounts {
			st.GenCounts[gen] = c
		}
	}
	return st
}

func (s *State) Matches() []model.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Match(nil), s.matches...)
}

// ResetHits clears the new-match counter and returns its previous value.
func (s *State) ResetHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	hits := s.status.Hits
	s.status.Hits = 0
	return hits
}

// Tree returns the last serialized tree, or nil before the first generation.
func (s *State) Tree() *tree.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree
}

// TrackedPaths counts the parent path entries still held for later
// generations.
func (s *State) TrackedPaths() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, m := range s.parentMatch {
		n += len(m)
	}
	return n
}

// Frontier returns the ids queued for the next generation.
func (s *State) Frontier() []model.ProfileID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ProfileID(nil), s.frontier...)
}

// TakeFrontier hands the queued ids to the run owning token and empties the
// queue.
func (s *State) TakeFrontier(token model.RunToken) ([]model.ProfileID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active(token) {
		return nil, false
	}
	ids := s.frontier
	s.frontier = nil
	s.pending = make(map[model.ProfileID]struct{})
	return ids, true
}

// Snapshot captures the state for persistence.
func (s *State) Snapshot() (*model.Snapshot, error) {
	s.mu.Lock()
	root, mode, tr, finished := s.root, s.mode, s.tree, s.finishedAt
	s.mu.Unlock()

	status := s.Status()
	snap := &model.Snapshot{
		SessionID:  s.id,
		Root:       root,
		Mode:       mode,
		Status:     status,
		Matches:    s.Matches(),
		FinishedAt: finished,
	}
	for _, gen := range slices.Sorted(maps.Keys(status.GenCounts)) {
		snap.GenCounts = append(snap.GenCounts, status.GenCounts[gen])
	}

	if tr != nil {
		raw, err := json.Marshal(tr)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to marshal tree", goerr.V("session", s.id))
		}
		snap.Tree = raw
		snap.TreeJSON = string(raw)
	}
	return snap, nil
}

// Tx is the view of a State inside Commit.
type Tx struct {
	s *State
}

// AddMatch records m and reports whether the profile was already matched.
// A parent relation is never replaced, and an aunt or uncle relation never
// replaces another one. The same message is not recorded twice for a
// profile, while a new message is added as a separate entry.
func (tx *Tx) AddMatch(m model.Match) bool {
	s := tx.s
	s.status.Hits++

	var found, sameMessage bool
	for i := range s.matches {
		existing := &s.matches[i]
		if existing.ID != m.ID {
			continue
		}
		found = true
		if overrides(existing.Relation, m.Relation) {
			existing.Relation = m.Relation
		}
		if existing.Message == m.Message {
			sameMessage = true
		}
	}

	if found && (m.Message == model.MessageNone || sameMessage) {
		return true
	}

	s.matches = append(s.matches, m)
	metrics.MatchesTotal.WithLabelValues(string(m.Message)).Inc()
	return false
}

// overrides reports whether relation next may replace current.
func overrides(current, next string) bool {
	switch {
	case strings.Contains(next, "aunt"), strings.Contains(next, "uncle"):
		return false
	case strings.Contains(current, "mother"), strings.Contains(current, "father"):
		return false
	}
	return true
}

// AddParentMatch counts one more path reaching id as a parent at gen.
func (tx *Tx) AddParentMatch(gen int, id model.ProfileID) {
	m, ok := tx.s.parentMatch[gen]
	if !ok {
		m = make(map[model.ProfileID]int)
		tx.s.parentMatch[gen] = m
	}
	m[id]++
}

func (tx *Tx) ParentMatch(gen int, id model.ProfileID) int {
	return tx.s.parentMatch[gen][id]
}

func (tx *Tx) ClearParentMatch(gen int) {
	delete(tx.s.parentMatch, gen)
}

// AddParentCount adds expected parent and master counts to generation gen.
func (tx *Tx) AddParentCount(gen, parents, masters int) {
	c, ok := tx.s.genCounts[gen]
	if !ok {
		c.Label = model.GenerationLabel(gen) + "s"
	}
	c.Count += parents
	c.MasterCount += masters
	tx.s.genCounts[gen] = c
}

// Counters are increments to the status counters.
type Counters struct {
	Count           int
	MasterCount     int
	Pending         int
	ParentConflicts int
	Problems        int
}

func (tx *Tx) AddCounters(c Counters) {
	st := &tx.s.status
	st.Count += c.Count
	st.MasterCount += c.MasterCount
	st.Pending += c.Pending
	st.ParentConflicts += c.ParentConflicts
	st.Problems += c.Problems
}

// AppendFrontier queues ids for the next generation, skipping ids already
// queued.
func (tx *Tx) AppendFrontier(ids ...model.ProfileID) {
	for _, id := range ids {
		if _, ok := tx.s.pending[id]; ok {
			continue
		}
		tx.s.pending[id] = struct{}{}
		tx.s.frontier = append(tx.s.frontier, id)
	}
}

// DropFrontier discards everything queued for the next generation.
func (tx *Tx) DropFrontier() {
	tx.s.frontier = nil
	tx.s.pending = make(map[model.ProfileID]struct{})
}

// Queued reports whether id waits in the frontier.
func (tx *Tx) Queued(id model.ProfileID) bool {
	_, ok := tx.s.pending[id]
	return ok
}

func (tx *Tx) Visited(id model.ProfileID) bool {
	_, ok := tx.s.history[id]
	return ok
}

func (tx *Tx) AddHistory(ids ...model.ProfileID) {
	for _, id := range ids {
		tx.s.history[id] = struct{}{}
	}
}

func (tx *Tx) SetGeneration(gen int) {
	tx.s.status.Generation = gen
	tx.s.status.Stage = model.StageLabel(gen)
}

func (tx *Tx) SetStage(stage string) {
	tx.s.status.Stage = stage
}

// SetTree publishes a serialized tree after gen generations over count
// positions.
func (tx *Tx) SetTree(rec *tree.Record, gen, count int) {
	tx.s.tree = rec
	tx.s.status.TreeGeneration = gen
	tx.s.status.TreeCount = count
}

func (tx *Tx) AddUnresolved(ids ...model.ProfileID) {
	tx.s.status.Unresolved = append(tx.s.status.Unresolved, ids...)
}

func (tx *Tx) SetAccessError() {
	tx.s.status.AccessError = true
}
