package crawl

import (
	"sort"

	"github.com/m-mizutani/kindred/pkg/model"
)

// ProjectTally is the number of matched profiles in one project.
type ProjectTally struct {
	Project model.Project `json:"project"`
	Count   int           `json:"count"`
}

// Tally counts matched profiles per project, largest first. A profile is
// counted once per project however many matches it has.
func Tally(matches []model.Match) []ProjectTally {
	seen := make(map[int64]map[model.ProfileID]struct{})
	names := make(map[int64]string)

	for _, m := range matches {
		for _, p := range m.Projects {
			if _, ok := seen[p.ID]; !ok {
				seen[p.ID] = make(map[model.ProfileID]struct{})
			}
			seen[p.ID][m.ID] = struct{}{}
			if p.Name != "" {
				names[p.ID] = p.Name
			}
		}
	}

	out := make([]ProjectTally, 0, len(seen))
	for id, profiles := range seen {
		out = append(out, ProjectTally{
			Project: model.Project{ID: id, Name: names[id]},
			Count:   len(profiles),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Project.ID < out[j].Project.ID
	})
	return out
}
