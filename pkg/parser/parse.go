package parser

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kindred/pkg/model"
	"github.com/m-mizutani/kindred/pkg/utils/logging"
)

const (
	errInvalidToken = "Invalid access token"
	errAccessDenied = "Access Denied"
	errRateLimit    = "Rate limit exceeded."
)

// Parse decodes an immediate-family payload into one fragment per focus.
// Relatives whose derived role is rejected by filter are dropped.
func Parse(ctx context.Context, data []byte, filter model.RoleFilter) ([]*model.FamilyFragment, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, goerr.Wrap(model.ErrMalformedFragment, "failed to decode family payload",
			goerr.V("error", err.Error()))
	}

	var items []json.RawMessage
	switch {
	case p.Results != nil:
		items = p.Results
	case p.Nodes != nil && p.Focus != nil:
		items = []json.RawMessage{data}
	default:
		return nil, apiErrorOf(ctx, p.Error, data)
	}

	fragments := make([]*model.FamilyFragment, 0, len(items))
	for _, item := range items {
		fragment, err := parseFamily(item, filter)
		if err != nil {
			logging.From(ctx).Warn("skip malformed family", "error", err)
			continue
		}
		fragments = append(fragments, fragment)
	}
	return fragments, nil
}

// apiErrorOf maps the error object of a payload to a sentinel. Unknown errors
// are logged and yield an empty result.
func apiErrorOf(ctx context.Context, e *apiError, data []byte) error {
	if e == nil {
		logging.From(ctx).Warn("no results in family payload", "payload", string(data))
		return nil
	}

	switch e.Message {
	case errInvalidToken:
		return goerr.Wrap(model.ErrInvalidCredential, "remote rejected access token")
	case errAccessDenied:
		return goerr.Wrap(model.ErrAccessDenied, "remote denied access")
	case errRateLimit:
		return goerr.Wrap(model.ErrTransientFetch, "rate limit exceeded")
	}

	logging.From(ctx).Warn("remote returned error", "type", e.Type, "message", e.Message)
	return nil
}

func parseFamily(data json.RawMessage, filter model.RoleFilter) (*model.FamilyFragment, error) {
	var f family
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, goerr.Wrap(model.ErrMalformedFragment, "failed to decode family", goerr.V("error", err.Error()))
	}
	if f.Focus == nil || f.Focus.ID == "" {
		return nil, goerr.Wrap(model.ErrMalformedFragment, "family has no focus")
	}

	focus := toRelative(model.ProfileID(f.Focus.ID), f.Focus)
	if focus.Name == "" {
		focus.Name = "Unknown"
	}
	focus.Role = model.FocusRole(focus.Gender)

	fragment := &model.FamilyFragment{Focus: focus}

	unions := make(map[model.UnionID]*model.Union)
	keys := sortedKeys(f.Nodes)
	for _, key := range keys {
		if !strings.HasPrefix(key, "union") {
			continue
		}
		u := toUnion(model.UnionID(key), f.Nodes[key])
		unions[u.ID] = u
		fragment.Unions = append(fragment.Unions, u)
	}

	for _, key := range keys {
		if !strings.HasPrefix(key, "profile") {
			continue
		}
		node := f.Nodes[key]
		if node.Deleted {
			continue
		}

		id := model.ProfileID(key)
		for _, unionKey := range sortedKeys(node.Edges) {
			u, ok := unions[model.UnionID(unionKey)]
			if !ok {
				continue
			}

			r := toRelative(id, &node)
			role, adopted := u.Infer(id, model.EdgeRel(node.Edges[unionKey].Rel), r.Gender, focus.ID)
			if role == model.RoleUnknown || !filter.Allows(role) {
				continue
			}

			r.Role = role
			r.Union = u.ID
			r.Adopted = adopted
			if role.IsSpouse() {
				r.Status = u.Status
			}
			fragment.Relatives = append(fragment.Relatives, r)
		}
	}

	return fragment, nil
}

// DeniedFragment builds the fragment of a profile that refused to reveal its
// family. It has no focus and a single relative tagged Access Denied.
func DeniedFragment(data []byte) (*model.FamilyFragment, error) {
	var node rawNode
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, goerr.Wrap(model.ErrMalformedFragment, "failed to decode profile", goerr.V("error", err.Error()))
	}
	if node.ID == "" {
		return nil, goerr.Wrap(model.ErrMalformedFragment, "denied profile has no id")
	}

	r := toRelative(model.ProfileID(node.ID), &node)
	r.Role = model.RoleUnknown
	r.Message = model.MessageAccessDenied
	return &model.FamilyFragment{Relatives: []*model.Relative{r}}, nil
}

// ParseProfiles decodes a profile detail payload, single or batched, keyed by id.
func ParseProfiles(ctx context.Context, data []byte) (map[model.ProfileID]*model.Relative, error) {
	var p profilePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, goerr.Wrap(model.ErrMalformedFragment, "failed to decode profiles", goerr.V("error", err.Error()))
	}

	nodes := p.Results
	if nodes == nil {
		if p.ID == "" {
			return nil, apiErrorOf(ctx, p.Error, data)
		}
		nodes = []rawNode{p.rawNode}
	}

	out := make(map[model.ProfileID]*model.Relative, len(nodes))
	for i := range nodes {
		if nodes[i].ID == "" {
			continue
		}
		id := model.ProfileID(nodes[i].ID)
		out[id] = toRelative(id, &nodes[i])
	}
	return out, nil
}

// ParseProfile decodes a single profile. hasPublic reports whether the payload
// carried the public field at all.
func ParseProfile(data []byte) (r *model.Relative, hasPublic bool, err error) {
	var node rawNode
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, false, goerr.Wrap(model.ErrMalformedFragment, "failed to decode profile", goerr.V("error", err.Error()))
	}
	if node.ID == "" {
		return nil, false, goerr.Wrap(model.ErrMalformedFragment, "profile has no id")
	}
	return toRelative(model.ProfileID(node.ID), &node), node.Public != nil, nil
}

// ParseProjects decodes a project payload, single or batched.
func ParseProjects(ctx context.Context, data []byte) ([]model.Project, error) {
	var p projectPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, goerr.Wrap(model.ErrMalformedFragment, "failed to decode projects", goerr.V("error", err.Error()))
	}

	items := p.Results
	if items == nil {
		if p.ID == "" {
			return nil, apiErrorOf(ctx, p.Error, data)
		}
		items = []rawProject{p.rawProject}
	}

	projects := make([]model.Project, 0, len(items))
	for _, item := range items {
		id, ok := ProjectID(item.ID)
		if !ok {
			logging.From(ctx).Warn("skip project with bad id", "id", item.ID)
			continue
		}
		projects = append(projects, model.Project{ID: id, Name: item.Name})
	}
	return projects, nil
}

// ProjectID parses "project-123" or "123".
func ProjectID(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(s, "project-")), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func toUnion(id model.UnionID, node rawNode) *model.Union {
	u := &model.Union{
		ID:       id,
		Status:   model.UnionStatus(node.Status),
		Marriage: node.Marriage,
		Divorce:  node.Divorce,
	}
	for _, profile := range sortedKeys(node.Edges) {
		edge := node.Edges[profile]
		u.Edges = append(u.Edges, model.Edge{
			Profile: model.ProfileID(profile),
			Rel:     model.EdgeRel(edge.Rel),
			Union:   id,
			Adopted: len(edge.RelModifier) > 0,
		})
	}
	return u
}

func toRelative(id model.ProfileID, node *rawNode) *model.Relative {
	r := &model.Relative{
		ID:           id,
		Gender:       model.GenderUnknown,
		Master:       node.MasterProfile,
		MergePending: node.MergePending,
		Claimed:      node.Claimed,
		Public:       true,
		Birth:        toEvent(node.Birth),
		Death:        toEvent(node.Death),
	}
	if node.Name != nil {
		r.Name = *node.Name
	}
	if node.Gender != nil {
		r.Gender = model.ParseGender(*node.Gender)
	}
	if node.Public != nil {
		r.Public = *node.Public
	}
	if node.Living != nil {
		r.Living = *node.Living
	} else {
		r.Message = model.MessageAccessDenied
	}
	for _, p := range node.ProjectIDs {
		if n, ok := ProjectID(p); ok {
			r.Projects = append(r.Projects, n)
		}
	}
	return r
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
