package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kindred/pkg/model"
	"github.com/m-mizutani/kindred/pkg/usecase/crawl"
	"github.com/m-mizutani/kindred/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func matchCommand() *cli.Command {
	var (
		cfg    config
		params matchParams
		tally  bool
		asJSON bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "tally",
			Usage:       "Print matched profiles per project instead of the matches",
			Destination: &tally,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Print JSON",
			Destination: &asJSON,
		},
	}
	flags = append(flags, matchFlags(&params)...)
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, geniFlags(&cfg)...)
	flags = append(flags, crawlFlags(&cfg)...)
	flags = append(flags, repositoryFlags(&cfg)...)

	return &cli.Command{
		Name:      "match",
		Usage:     "Walk the ancestors of a profile and flag relatives",
		ArgsUsage: "<profile-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("exactly one profile id is required")
			}

			uc, sessionID, err := runCrawl(ctx, &cfg, params.options(c.Args().First()))
			if err != nil {
				return err
			}

			w := c.Root().Writer
			matches := uc.Matches(sessionID)
			switch {
			case tally && asJSON:
				return printJSON(w, crawl.Tally(matches))
			case tally:
				for _, t := range crawl.Tally(matches) {
					fmt.Fprintf(w, "%d\t%s\t%d\n", t.Project.ID, t.Project.Name, t.Count)
				}
			case asJSON:
				return printJSON(w, matches)
			default:
				printMatches(w, matches)
				printCounts(w, uc.PollStatus(sessionID))
			}
			return nil
		},
	}
}

// runCrawl runs one crawl to its end with a progress spinner. An interrupt
// stops the crawl and keeps what it found.
func runCrawl(ctx context.Context, cfg *config, opts crawl.Options) (*crawl.UseCase, string, error) {
	if err := opts.Validate(); err != nil {
		return nil, "", err
	}

	logger := cfg.newLogger()
	ctx = logging.With(ctx, logger)

	stopMetrics := serveMetrics(ctx, cfg.metricsAddr)
	defer stopMetrics()

	uc, cleanup, err := cfg.newCrawl(ctx)
	if err != nil {
		return nil, "", err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	sessionID := uuid.NewString()
	done := watch(uc, sessionID)
	err = uc.Run(ctx, sessionID, opts)
	done()

	status := uc.PollStatus(sessionID)
	switch {
	case err == nil, errors.Is(err, model.ErrSuperseded):
	case status.State == model.RunStateStopped:
		logger.Warn("crawl interrupted, showing partial results", "session", sessionID)
	default:
		return nil, "", goerr.Wrap(err, "crawl failed", goerr.V("session", sessionID), goerr.V("root", opts.Root))
	}
	return uc, sessionID, nil
}

func printMatches(w io.Writer, matches []model.Match) {
	for _, m := range matches {
		detail := string(m.Message)
		for _, p := range m.Projects {
			if detail != "" {
				detail += ", "
			}
			detail += fmt.Sprintf("%s (%d)", p.Name, p.ID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, m.Relation, m.Name, detail)
	}
}

func printCounts(w io.Writer, st *model.Status) {
	fmt.Fprintf(w, "\n%d profiles inspected, %d master, %d merge pending, %d parent conflicts, %d problems\n",
		st.Count, st.MasterCount, st.Pending, st.ParentConflicts, st.Problems)

	for gen := 0; ; gen++ {
		c, ok := st.GenCounts[gen]
		if !ok {
			break
		}
		fmt.Fprintf(w, "%s\t%d\t%d master\n", c.Label, c.Count, c.MasterCount)
	}
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to marshal output")
	}
	fmt.Fprintf(w, "%s\n", string(data))
	return nil
}
