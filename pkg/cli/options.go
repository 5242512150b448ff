package cli

import (
	"slices"

	"github.com/m-mizutani/kindred/pkg/model"
	"github.com/m-mizutani/kindred/pkg/usecase/crawl"
	"github.com/urfave/cli/v3"
)

// matchParams holds match mode flags until they become crawl options.
type matchParams struct {
	limit           int64
	master          bool
	nonMaster       bool
	project         bool
	problem         bool
	complete        bool
	excludeSiblings bool
	merges          bool
	follow          bool
	unfollow        bool
	projectSelect   string
	tracked         []int64
}

func matchFlags(p *matchParams) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Generations to crawl (0 crawls until the tree runs out)",
			Sources:     cli.EnvVars("KINDRED_LIMIT"),
			Destination: &p.limit,
		},
		&cli.BoolFlag{
			Name:        "master",
			Usage:       "Match master profiles",
			Destination: &p.master,
		},
		&cli.BoolFlag{
			Name:        "non-master",
			Usage:       "Match public profiles that are not master profiles",
			Destination: &p.nonMaster,
		},
		&cli.BoolFlag{
			Name:        "projects",
			Usage:       "Match profiles that belong to projects",
			Destination: &p.project,
		},
		&cli.BoolFlag{
			Name:        "problem",
			Usage:       "Match problem profiles and parent conflicts",
			Destination: &p.problem,
		},
		&cli.BoolFlag{
			Name:        "complete",
			Usage:       "Count expected parents per generation",
			Destination: &p.complete,
		},
		&cli.BoolFlag{
			Name:        "exclude-siblings",
			Usage:       "Only inspect parents, not their siblings",
			Destination: &p.excludeSiblings,
		},
		&cli.BoolFlag{
			Name:        "merges",
			Usage:       "Match profiles with pending merges",
			Destination: &p.merges,
		},
		&cli.BoolFlag{
			Name:        "follow",
			Usage:       "Follow every public relative inspected",
			Destination: &p.follow,
		},
		&cli.BoolFlag{
			Name:        "unfollow",
			Usage:       "Unfollow every public relative inspected",
			Destination: &p.unfollow,
		},
		&cli.StringFlag{
			Name:        "project-select",
			Usage:       "Project selection (exlist, inlist, all)",
			Value:       string(crawl.ProjectExclude),
			Sources:     cli.EnvVars("KINDRED_PROJECT_SELECT"),
			Destination: &p.projectSelect,
		},
		&cli.IntSliceFlag{
			Name:        "tracked-project",
			Usage:       "Project id kept by the inlist selection (repeatable)",
			Sources:     cli.EnvVars("KINDRED_TRACKED_PROJECTS"),
			Destination: &p.tracked,
		},
	}
}

func (p *matchParams) options(root string) crawl.Options {
	return crawl.Options{
		Mode:            crawl.ModeMatch,
		Root:            model.ProfileID(root),
		Limit:           int(p.limit),
		Master:          p.master || p.nonMaster,
		MasterSelect:    p.master,
		Project:         p.project,
		Problem:         p.problem,
		Complete:        p.complete,
		ExcludeSiblings: p.excludeSiblings,
		Merges:          p.merges,
		Follow:          p.follow || p.unfollow,
		FollowSelect:    p.follow,
		ProjectSelect:   crawl.ProjectSelect(p.projectSelect),
		TrackedProjects: p.tracked,
	}
}

// treeParams holds tree mode flags until they become crawl options.
type treeParams struct {
	limit       int64
	descendants bool
	adopted     bool
	dna         string
}

func treeFlags(p *treeParams) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Generations to expand",
			Value:       crawl.DefaultTreeLimit,
			Sources:     cli.EnvVars("KINDRED_TREE_LIMIT"),
			Destination: &p.limit,
		},
		&cli.BoolFlag{
			Name:        "descendants",
			Usage:       "Grow the tree downwards instead of through ancestors",
			Destination: &p.descendants,
		},
		&cli.BoolFlag{
			Name:        "adopted",
			Usage:       "Follow adoptive parents instead of natural ones",
			Destination: &p.adopted,
		},
		&cli.StringFlag{
			Name:        "dna",
			Usage:       "Keep descendants carrying a marker inherited along this line (male, female)",
			Destination: &p.dna,
		},
	}
}

func (p *treeParams) options(root string) crawl.Options {
	opts := crawl.Options{
		Mode:  crawl.ModeAncestors,
		Root:  model.ProfileID(root),
		Limit: int(p.limit),
		Adopt: p.adopted,
		DNA:   model.Gender(p.dna),
	}
	if p.descendants {
		opts.Mode = crawl.ModeDescendants
	}
	return opts
}

// withoutFlag drops the flag called name, for commands combining flag sets.
func withoutFlag(flags []cli.Flag, name string) []cli.Flag {
	var out []cli.Flag
	for _, f := range flags {
		if !slices.Contains(f.Names(), name) {
			out = append(out, f)
		}
	}
	return out
}
