package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "kindred",
		Usage: "Crawl a genealogy graph for curator matches and lineage trees",
		Commands: []*cli.Command{
			matchCommand(),
			treeCommand(),
			consoleCommand(),
			snapshotCommand(),
			schemaCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
