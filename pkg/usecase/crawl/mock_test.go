package crawl_test

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kindred/pkg/model"
)

// graph is an in-memory family graph standing in for the remote service.
type graph struct {
	mu sync.Mutex

	people   map[model.ProfileID]*model.Relative
	parents  map[model.ProfileID][]model.ProfileID
	children map[model.ProfileID][]model.ProfileID
	siblings map[model.ProfileID][]model.ProfileID
	projects map[int64]string

	// transient failures left per id
	failures map[model.ProfileID]int
	// ids whose fetch reports an invalid credential
	invalid map[model.ProfileID]bool

	onFetch func(ids []model.ProfileID)

	calls      [][]model.ProfileID
	followed   []model.ProfileID
	unfollowed []model.ProfileID
	refreshed  int
}

func newGraph() *graph {
	return &graph{
		people:   make(map[model.ProfileID]*model.Relative),
		parents:  make(map[model.ProfileID][]model.ProfileID),
		children: make(map[model.ProfileID][]model.ProfileID),
		siblings: make(map[model.ProfileID][]model.ProfileID),
		projects: map[int64]string{model.CuratorExchangeProject: "Curator Exchange", 42: "Mayflower", 7: "Huguenots"},
		failures: make(map[model.ProfileID]int),
		invalid:  make(map[model.ProfileID]bool),
	}
}

func (g *graph) add(id model.ProfileID, gender model.Gender, mods ...func(*model.Relative)) *model.Relative {
	r := &model.Relative{
		ID:     id,
		Name:   "Name " + string(id),
		Gender: gender,
		Public: true,
		Birth:  model.NewEvent(),
		Death:  model.NewEvent(),
	}
	for _, mod := range mods {
		mod(r)
	}
	g.people[id] = r
	return r
}

func (g *graph) link(child model.ProfileID, parents ...model.ProfileID) {
	g.parents[child] = append(g.parents[child], parents...)
	for _, p := range parents {
		g.children[p] = append(g.children[p], child)
	}
}

// pedigree adds a complete ancestry of depth generations above id. Fathers
// append "f" to the child's id, mothers append "m".
func (g *graph) pedigree(id model.ProfileID, depth int) {
	if _, ok := g.people[id]; !ok {
		g.add(id, model.GenderMale)
	}
	if depth == 0 {
		return
	}
	father, mother := id+"f", id+"m"
	g.add(father, model.GenderMale)
	g.add(mother, model.GenderFemale)
	g.link(id, father, mother)
	g.pedigree(father, depth-1)
	g.pedigree(mother, depth-1)
}

func byGender(g model.Gender, male, female, other model.Role) model.Role {
	switch g {
	case model.GenderMale:
		return male
	case model.GenderFemale:
		return female
	}
	return other
}

func (g *graph) relative(id model.ProfileID, role model.Role) *model.Relative {
	r := *g.people[id]
	r.Role = role
	return &r
}

func (g *graph) fragment(id model.ProfileID, filter model.RoleFilter) *model.FamilyFragment {
	p, ok := g.people[id]
	if !ok {
		return nil
	}
	f := &model.FamilyFragment{Focus: g.relative(id, model.FocusRole(p.Gender))}

	if filter.Parents {
		for _, pid := range g.parents[id] {
			role := byGender(g.people[pid].Gender, model.RoleFather, model.RoleMother, model.RoleParent)
			f.Relatives = append(f.Relatives, g.relative(pid, role))
		}
	}
	if filter.Siblings {
		for _, sid := range g.siblings[id] {
			role := byGender(g.people[sid].Gender, model.RoleBrother, model.RoleSister, model.RoleSibling)
			f.Relatives = append(f.Relatives, g.relative(sid, role))
		}
	}
	if filter.Children {
		for _, cid := range g.children[id] {
			role := byGender(g.people[cid].Gender, model.RoleSon, model.RoleDaughter, model.RoleChild)
			f.Relatives = append(f.Relatives, g.relative(cid, role))
		}
	}
	return f
}

func (g *graph) fetch(ids []model.ProfileID, filter model.RoleFilter) ([]*model.FamilyFragment, error) {
	g.mu.Lock()
	g.calls = append(g.calls, append([]model.ProfileID(nil), ids...))
	hook := g.onFetch
	for _, id := range ids {
		if g.invalid[id] {
			g.mu.Unlock()
			return nil, goerr.Wrap(model.ErrInvalidCredential, "mock", goerr.V("id", id))
		}
	}
	for _, id := range ids {
		if g.failures[id] > 0 {
			g.failures[id]--
			g.mu.Unlock()
			return nil, goerr.Wrap(model.ErrTransientFetch, "mock", goerr.V("id", id))
		}
	}
	g.mu.Unlock()

	if hook != nil {
		hook(ids)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*model.FamilyFragment
	for _, id := range ids {
		if f := g.fragment(id, filter); f != nil {
			out = append(out, f)
		}
	}
	return out, nil
}

func (g *graph) Group(ctx context.Context, ids []model.ProfileID, filter model.RoleFilter, fields []string) ([]*model.FamilyFragment, error) {
	return g.fetch(ids, filter)
}

func (g *graph) Unions(ctx context.Context, ids []model.ProfileID, filter model.RoleFilter) ([]*model.FamilyFragment, error) {
	return g.fetch(ids, filter)
}

func (g *graph) Detail(ctx context.Context, r *model.Relative) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	r.Merge(g.people[r.ID])
	return nil
}

func (g *graph) Projects(ctx context.Context, ids []int64) ([]model.Project, error) {
	out := make([]model.Project, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Project{ID: id, Name: g.projects[id]})
	}
	return out, nil
}

func (g *graph) Follow(ctx context.Context, id model.ProfileID, follow bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if follow {
		g.followed = append(g.followed, id)
	} else {
		g.unfollowed = append(g.unfollowed, id)
	}
	return nil
}

func (g *graph) RefreshCredential(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refreshed++
	return nil
}

type bufferCloser struct {
	*bytes.Buffer
}

func (bufferCloser) Close() error { return nil }

type mockStorage struct {
	mu      sync.Mutex
	objects map[string]*bytes.Buffer
}

func (s *mockStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = make(map[string]*bytes.Buffer)
	}
	buf := &bytes.Buffer{}
	s.objects[key] = buf
	return bufferCloser{buf}, nil
}

func (s *mockStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.objects[key]
	if !ok {
		return nil, goerr.New("not found", goerr.V("key", key))
	}
	return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}
