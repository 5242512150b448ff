package crawl

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kindred/pkg/model"
	"github.com/m-mizutani/kindred/pkg/tree"
)

type Mode string

const (
	ModeMatch       Mode = "match"
	ModeAncestors   Mode = "ancestors"
	ModeDescendants Mode = "descendants"
)

// ProjectSelect decides which project memberships of a relative produce a
// match.
type ProjectSelect string

const (
	// ProjectExclude keeps projects allowed by the project and problem flags.
	ProjectExclude ProjectSelect = "exlist"
	// ProjectInclude additionally requires a tracked project.
	ProjectInclude ProjectSelect = "inlist"
	ProjectAll     ProjectSelect = "all"
)

// DefaultTreeLimit is the number of generations a tree run expands when no
// limit is given.
const DefaultTreeLimit = 4

// Options configures one crawl.
type Options struct {
	Mode  Mode
	Root  model.ProfileID
	Limit int

	// Match mode
	Master          bool
	MasterSelect    bool
	Project         bool
	Problem         bool
	Complete        bool
	ExcludeSiblings bool
	Merges          bool
	Follow          bool
	FollowSelect    bool
	ProjectSelect   ProjectSelect
	TrackedProjects []int64

	// Tree mode
	Adopt bool
	DNA   model.Gender
}

func (o Options) Validate() error {
	if o.Root == "" {
		return goerr.Wrap(model.ErrInvalidOption, "root profile is required")
	}
	if o.Limit < 0 {
		return goerr.Wrap(model.ErrInvalidOption, "limit must not be negative", goerr.V("limit", o.Limit))
	}

	switch o.Mode {
	case ModeMatch:
	case ModeAncestors, ModeDescendants:
		if depth := o.Direction().MaxDepth(); o.Limit > depth {
			return goerr.Wrap(model.ErrInvalidOption, "limit exceeds the maximum tree depth",
				goerr.V("limit", o.Limit), goerr.V("max", depth))
		}
	default:
		return goerr.Wrap(model.ErrInvalidOption, "unknown mode", goerr.V("mode", o.Mode))
	}

	switch o.ProjectSelect {
	case "", ProjectExclude, ProjectInclude, ProjectAll:
	default:
		return goerr.Wrap(model.ErrInvalidOption, "unknown project selection", goerr.V("select", o.ProjectSelect))
	}

	switch o.DNA {
	case "", model.GenderMale, model.GenderFemale:
	default:
		return goerr.Wrap(model.ErrInvalidOption, "dna marker must be male or female", goerr.V("dna", o.DNA))
	}
	return nil
}

// Direction is the tree direction of a tree mode.
func (o Options) Direction() tree.Direction {
	if o.Mode == ModeDescendants {
		return tree.Descendants
	}
	return tree.Ancestors
}

func (o Options) withDefaults() Options {
	if o.ProjectSelect == "" {
		o.ProjectSelect = ProjectExclude
	}
	if o.Mode != ModeMatch && o.Limit == 0 {
		o.Limit = DefaultTreeLimit
	}
	return o
}
