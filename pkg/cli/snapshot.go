package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func snapshotCommand() *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "Inspect results of finished crawls",
		Commands: []*cli.Command{
			snapshotGetCommand(),
			snapshotListCommand(),
		},
	}
}

func snapshotGetCommand() *cli.Command {
	var cfg config

	flags := []cli.Flag{}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, repositoryFlags(&cfg)...)

	return &cli.Command{
		Name:      "get",
		Usage:     "Show the snapshot of a session",
		ArgsUsage: "<session-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("exactly one session id is required")
			}
			cfg.newLogger()

			repo, cleanup, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			snap, err := repo.GetSnapshot(ctx, c.Args().First())
			if err != nil {
				return goerr.Wrap(err, "failed to get snapshot")
			}
			return printJSON(c.Root().Writer, snap)
		},
	}
}

func snapshotListCommand() *cli.Command {
	var (
		cfg    config
		offset int64
		limit  int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "offset",
			Usage:       "Offset for pagination",
			Sources:     cli.EnvVars("KINDRED_LIST_OFFSET"),
			Destination: &offset,
		},
		&cli.IntFlag{
			Name:        "limit",
			Usage:       "Maximum number of snapshots to list",
			Value:       20,
			Sources:     cli.EnvVars("KINDRED_LIST_LIMIT"),
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, repositoryFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List snapshots, most recent first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.newLogger()

			repo, cleanup, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			snaps, err := repo.ListSnapshots(ctx, int(offset), int(limit))
			if err != nil {
				return goerr.Wrap(err, "failed to list snapshots")
			}

			for _, s := range snaps {
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s\t%s\t%d matches\t%s\n",
					s.SessionID, s.Root, s.Mode, s.Status.State, len(s.Matches), s.FinishedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}
