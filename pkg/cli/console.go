package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kindred/pkg/model"
	"github.com/m-mizutani/kindred/pkg/tree"
	"github.com/m-mizutani/kindred/pkg/usecase/crawl"
	"github.com/m-mizutani/kindred/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// crawler is the crawl use case as the console drives it.
type crawler interface {
	StartCrawl(ctx context.Context, sessionID string, opts crawl.Options) error
	PollStatus(sessionID string) *model.Status
	PollTree(sessionID string) *tree.Record
	Matches(sessionID string) []model.Match
	Sessions() []string
	Stop(ctx context.Context, sessionID string)
}

func consoleCommand() *cli.Command {
	var (
		cfg     config
		match   matchParams
		lineage treeParams
	)

	// limits are given per crawl in the console
	flags := withoutFlag(matchFlags(&match), "limit")
	flags = append(flags, withoutFlag(treeFlags(&lineage), "limit")...)
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, geniFlags(&cfg)...)
	flags = append(flags, crawlFlags(&cfg)...)
	flags = append(flags, repositoryFlags(&cfg)...)

	return &cli.Command{
		Name:  "console",
		Usage: "Start crawls in the background and inspect them interactively",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = logging.With(ctx, cfg.newLogger())

			stopMetrics := serveMetrics(ctx, cfg.metricsAddr)
			defer stopMetrics()

			uc, cleanup, err := cfg.newCrawl(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			home, _ := os.UserHomeDir()
			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "kindred> ",
				HistoryFile:     filepath.Join(home, ".kindred_history"),
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return goerr.Wrap(err, "failed to start console")
			}
			defer rl.Close()

			con := newConsole(uc, rl.Stdout(), match, lineage)
			fmt.Fprintf(rl.Stdout(), "Session %s. Type 'help' for commands.\n", con.session)

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					continue
				}
				if err != nil {
					if errors.Is(err, io.EOF) {
						return nil
					}
					return goerr.Wrap(err, "failed to read input")
				}

				if !con.execute(ctx, line) {
					return nil
				}
			}
		},
	}
}

type console struct {
	uc      crawler
	w       io.Writer
	session string
	match   matchParams
	lineage treeParams
}

func newConsole(uc crawler, w io.Writer, match matchParams, lineage treeParams) *console {
	return &console{
		uc:      uc,
		w:       w,
		session: uuid.NewString(),
		match:   match,
		lineage: lineage,
	}
}

const consoleHelp = `match <profile-id> [limit]        start a match crawl
ancestors <profile-id> [limit]    start an ancestor tree
descendants <profile-id> [limit]  start a descendant tree
status                            show progress of the current session
matches                           list matches found so far
tally                             count matched profiles per project
tree                              print the current tree as JSON
stop                              stop the running crawl
session [id]                      show or switch the session
sessions                          list live sessions and their state
exit                              leave the console`

// execute runs one console line. It returns false when the console should
// exit.
func (x *console) execute(ctx context.Context, line string) bool {
	args := strings.Fields(line)
	if len(args) == 0 {
		return true
	}

	switch args[0] {
	case "exit", "quit":
		return false

	case "help":
		fmt.Fprintln(x.w, consoleHelp)

	case "match", "ancestors", "descendants":
		if err := x.start(ctx, args[0], args[1:]); err != nil {
			fmt.Fprintf(x.w, "error: %v\n", err)
		}

	case "status":
		st := x.uc.PollStatus(x.session)
		fmt.Fprintf(x.w, "%s\t%s\n", st.State, describe(st))
		if st.AccessError {
			fmt.Fprintln(x.w, "access token rejected, log in again")
		}
		if len(st.Unresolved) > 0 {
			fmt.Fprintf(x.w, "unresolved: %v\n", st.Unresolved)
		}
		if st.Error != "" {
			fmt.Fprintf(x.w, "error: %s\n", st.Error)
		}

	case "matches":
		printMatches(x.w, x.uc.Matches(x.session))

	case "tally":
		for _, t := range crawl.Tally(x.uc.Matches(x.session)) {
			fmt.Fprintf(x.w, "%d\t%s\t%d\n", t.Project.ID, t.Project.Name, t.Count)
		}

	case "tree":
		rec := x.uc.PollTree(x.session)
		if rec == nil {
			fmt.Fprintln(x.w, "no tree yet")
			break
		}
		if err := json.NewEncoder(x.w).Encode(rec); err != nil {
			fmt.Fprintf(x.w, "error: %v\n", err)
		}

	case "stop":
		x.uc.Stop(ctx, x.session)
		fmt.Fprintf(x.w, "%s\n", x.uc.PollStatus(x.session).State)

	case "session":
		if len(args) > 1 {
			x.session = args[1]
		}
		fmt.Fprintln(x.w, x.session)

	case "sessions":
		for _, id := range x.uc.Sessions() {
			mark := " "
			if id == x.session {
				mark = "*"
			}
			fmt.Fprintf(x.w, "%s %s\t%s\n", mark, id, x.uc.PollStatus(id).State)
		}

	default:
		fmt.Fprintf(x.w, "unknown command %q, type 'help'\n", args[0])
	}
	return true
}

func (x *console) start(ctx context.Context, mode string, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return goerr.New("usage: " + mode + " <profile-id> [limit]")
	}

	var opts crawl.Options
	if mode == "match" {
		opts = x.match.options(args[0])
	} else {
		params := x.lineage
		params.descendants = mode == "descendants"
		opts = params.options(args[0])
	}

	if len(args) == 2 {
		limit, err := strconv.Atoi(args[1])
		if err != nil {
			return goerr.Wrap(err, "limit must be a number", goerr.V("limit", args[1]))
		}
		opts.Limit = limit
	}

	if err := x.uc.StartCrawl(ctx, x.session, opts); err != nil {
		return err
	}
	fmt.Fprintf(x.w, "started %s crawl of %s\n", opts.Mode, opts.Root)
	return nil
}
