package cli

import (
	"context"
	"encoding/json"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func treeCommand() *cli.Command {
	var (
		cfg    config
		params treeParams
		output string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "Write the tree to this file instead of stdout",
			Destination: &output,
		},
	}
	flags = append(flags, treeFlags(&params)...)
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, geniFlags(&cfg)...)
	flags = append(flags, crawlFlags(&cfg)...)
	flags = append(flags, repositoryFlags(&cfg)...)

	return &cli.Command{
		Name:      "tree",
		Usage:     "Build the lineage tree of a profile",
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

			rec := uc.PollTree(sessionID)
			if rec == nil {
				return goerr.New("no tree was built", goerr.V("session", sessionID))
			}

			w := c.Root().Writer
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return goerr.Wrap(err, "failed to create output file", goerr.V("path", output))
				}
				defer f.Close()
				w = f
			}

			if err := json.NewEncoder(w).Encode(rec); err != nil {
				return goerr.Wrap(err, "failed to write tree")
			}
			return nil
		},
	}
}
