package family

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kindred/pkg/adapter"
	"github.com/m-mizutani/kindred/pkg/model"
	"github.com/m-mizutani/kindred/pkg/parser"
	"github.com/m-mizutani/kindred/pkg/utils/logging"
	"github.com/patrickmn/go-cache"
)

var (
	// MatchFields is requested when scanning families for matches.
	MatchFields = []string{"id", "name", "gender", "master_profile", "merge_pending", "public", "living", "deleted", "project_ids"}

	// UnionFields is the minimal shape needed to walk unions.
	UnionFields = []string{"id", "union", "living", "deleted"}

	// DetailFields refreshes a relative for display.
	DetailFields = []string{"id", "name", "gender", "master_profile", "merge_pending", "public", "claimed", "birth", "death", "living"}
)

const defaultDetailChunk = 35

// Service wraps the remote graph with the fetch strategies the crawler needs.
type Service struct {
	geni        adapter.Geni
	projects    *cache.Cache
	detailChunk int
}

type Option func(*Service)

// WithProjectTTL sets how long resolved project names are kept.
func WithProjectTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.projects = cache.New(ttl, ttl/2)
	}
}

func WithDetailChunk(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.detailChunk = n
		}
	}
}

func New(geni adapter.Geni, opts ...Option) *Service {
	s := &Service{
		geni:        geni,
		projects:    cache.New(24*time.Hour, time.Hour),
		detailChunk: defaultDetailChunk,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Group fetches the immediate families of ids. When the remote denies the
// whole batch, the batch is split in two interleaved halves and retried until
// the offending profile is isolated.
func (s *Service) Group(ctx context.Context, ids []model.ProfileID, filter model.RoleFilter, fields []string) ([]*model.FamilyFragment, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	body, err := s.geni.FetchFamily(ctx, ids, fields)
	if err != nil {
		return nil, err
	}

	fragments, err := parser.Parse(ctx, body, filter)
	if err == nil {
		return fragments, nil
	}
	if !errors.Is(err, model.ErrAccessDenied) {
		return nil, err
	}

	if len(ids) == 1 {
		return s.denied(ctx, ids[0])
	}

	var out []*model.FamilyFragment
	for _, half := range Bisect(ids) {
		sub, err := s.Group(ctx, half, filter, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// Bisect splits ids into even and odd positions.
func Bisect(ids []model.ProfileID) [2][]model.ProfileID {
	var halves [2][]model.ProfileID
	for i, id := range ids {
		halves[i%2] = append(halves[i%2], id)
	}
	return halves
}

// denied checks whether a single denied profile is private. A private profile
// becomes a fragment carrying an Access Denied relative; anything else is dropped.
func (s *Service) denied(ctx context.Context, id model.ProfileID) ([]*model.FamilyFragment, error) {
	body, err := s.geni.FetchProfiles(ctx, []model.ProfileID{id}, nil)
	if err != nil {
		return nil, err
	}

	r, hasPublic, err := parser.ParseProfile(body)
	if err != nil {
		logging.From(ctx).Debug("denied profile is unreadable", "id", id, "error", err)
		return nil, nil
	}
	if !hasPublic || r.Public {
		return nil, nil
	}

	fragment, err := parser.DeniedFragment(body)
	if err != nil {
		return nil, err
	}
	return []*model.FamilyFragment{fragment}, nil
}

// Unions fetches the union structure around ids, then refreshes every relative
// found with its profile detail.
func (s *Service) Unions(ctx context.Context, ids []model.ProfileID, filter model.RoleFilter) ([]*model.FamilyFragment, error) {
	fragments, err := s.Group(ctx, ids, filter, UnionFields)
	if err != nil {
		return nil, err
	}

	byID := make(map[model.ProfileID][]*model.Relative)
	var order []model.ProfileID
	for _, f := range fragments {
		for _, r := range f.Relatives {
			if _, ok := byID[r.ID]; !ok {
				order = append(order, r.ID)
			}
			byID[r.ID] = append(byID[r.ID], r)
		}
	}

	for _, chunk := range Chunk(order, s.detailChunk) {
		details, err := s.profiles(ctx, chunk)
		if err != nil {
			return nil, err
		}
		for id, detail := range details {
			for _, r := range byID[id] {
				r.Merge(detail)
			}
		}
	}

	return fragments, nil
}

// Detail refreshes r in place with its profile detail.
func (s *Service) Detail(ctx context.Context, r *model.Relative) error {
	details, err := s.profiles(ctx, []model.ProfileID{r.ID})
	if err != nil {
		return err
	}
	r.Merge(details[r.ID])
	return nil
}

func (s *Service) profiles(ctx context.Context, ids []model.ProfileID) (map[model.ProfileID]*model.Relative, error) {
	body, err := s.geni.FetchProfiles(ctx, ids, DetailFields)
	if err != nil {
		return nil, err
	}
	details, err := parser.ParseProfiles(ctx, body)
	if err != nil {
		if errors.Is(err, model.ErrAccessDenied) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to refresh profile detail", goerr.V("count", len(ids)))
	}
	return details, nil
}

// Projects resolves project ids to names, asking the remote only for ids not
// yet cached.
func (s *Service) Projects(ctx context.Context, ids []int64) ([]model.Project, error) {
	out := make([]model.Project, 0, len(ids))
	var missing []int64
	for _, id := range ids {
		if name, ok := s.projects.Get(projectKey(id)); ok {
			out = append(out, model.Project{ID: id, Name: name.(string)})
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	body, err := s.geni.FetchProjects(ctx, missing)
	if err != nil {
		return nil, err
	}
	projects, err := parser.ParseProjects(ctx, body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve projects", goerr.V("ids", missing))
	}

	for _, p := range projects {
		s.projects.Set(projectKey(p.ID), p.Name, cache.DefaultExpiration)
		out = append(out, p)
	}
	return out, nil
}

// Follow follows or unfollows a profile.
func (s *Service) Follow(ctx context.Context, id model.ProfileID, follow bool) error {
	if follow {
		return s.geni.Follow(ctx, id)
	}
	return s.geni.Unfollow(ctx, id)
}

func (s *Service) RefreshCredential(ctx context.Context) error {
	return s.geni.RefreshCredential(ctx)
}

// Chunk splits ids into consecutive slices of at most n.
func Chunk[T any](ids []T, n int) [][]T {
	if n < 1 {
		n = 1
	}
	var out [][]T
	for i := 0; i < len(ids); i += n {
		end := min(i+n, len(ids))
		out = append(out, ids[i:end])
	}
	return out
}

func projectKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
