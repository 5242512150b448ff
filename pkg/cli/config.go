package cli

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kindred/pkg/adapter"
	"github.com/m-mizutani/kindred/pkg/policy"
	"github.com/m-mizutani/kindred/pkg/repository"
	"github.com/m-mizutani/kindred/pkg/service/family"
	"github.com/m-mizutani/kindred/pkg/session"
	"github.com/m-mizutani/kindred/pkg/usecase/crawl"
	"github.com/m-mizutani/kindred/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string

	// Remote graph
	accessToken  string
	refreshToken string
	appID        string
	appSecret    string
	baseURL      string
	rateLimit    float64
	rateBurst    int64
	projectTTL   time.Duration

	// Crawl
	matchWorkers int64
	treeWorkers  int64
	attempts     int64
	sessionTTL   time.Duration
	policyDir    string

	// Repository
	backend  string
	redisURL string
	project  string
	database string

	// Tree export
	bucket string
	prefix string

	metricsAddr string
}

// globalFlags returns logging and metrics flags with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Aliases:     []string{"l"},
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("KINDRED_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       "console",
			Sources:     cli.EnvVars("KINDRED_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
		&cli.StringFlag{
			Name:        "metrics-addr",
			Usage:       "Serve Prometheus metrics on this address, e.g. :9090",
			Sources:     cli.EnvVars("KINDRED_METRICS_ADDR"),
			Destination: &cfg.metricsAddr,
		},
	}
}

// geniFlags returns flags for the remote graph API with destination config
func geniFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "access-token",
			Aliases:     []string{"t"},
			Usage:       "OAuth access token of the remote graph API",
			Sources:     cli.EnvVars("KINDRED_ACCESS_TOKEN"),
			Destination: &cfg.accessToken,
		},
		&cli.StringFlag{
			Name:        "refresh-token",
			Usage:       "OAuth refresh token used when the access token expires",
			Sources:     cli.EnvVars("KINDRED_REFRESH_TOKEN"),
			Destination: &cfg.refreshToken,
		},
		&cli.StringFlag{
			Name:        "app-id",
			Usage:       "OAuth application id",
			Sources:     cli.EnvVars("KINDRED_APP_ID"),
			Destination: &cfg.appID,
		},
		&cli.StringFlag{
			Name:        "app-secret",
			Usage:       "OAuth application secret",
			Sources:     cli.EnvVars("KINDRED_APP_SECRET"),
			Destination: &cfg.appSecret,
		},
		&cli.StringFlag{
			Name:        "base-url",
			Usage:       "Base URL of the remote graph API",
			Sources:     cli.EnvVars("KINDRED_BASE_URL"),
			Destination: &cfg.baseURL,
		},
		&cli.FloatFlag{
			Name:        "rate-limit",
			Usage:       "Requests per second sent to the remote graph API (0 disables pacing)",
			Value:       10,
			Sources:     cli.EnvVars("KINDRED_RATE_LIMIT"),
			Destination: &cfg.rateLimit,
		},
		&cli.IntFlag{
			Name:        "rate-burst",
			Value:       10,
			Sources:     cli.EnvVars("KINDRED_RATE_BURST"),
			Destination: &cfg.rateBurst,
		},
		&cli.DurationFlag{
			Name:        "project-ttl",
			Usage:       "How long resolved project names are cached",
			Value:       24 * time.Hour,
			Sources:     cli.EnvVars("KINDRED_PROJECT_TTL"),
			Destination: &cfg.projectTTL,
		},
	}
}

// crawlFlags returns flags for the crawler itself with destination config
func crawlFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "match-workers",
			Usage:       "Concurrent fetches in match mode",
			Value:       30,
			Sources:     cli.EnvVars("KINDRED_MATCH_WORKERS"),
			Destination: &cfg.matchWorkers,
		},
		&cli.IntFlag{
			Name:        "tree-workers",
			Usage:       "Concurrent fetches in tree mode",
			Value:       8,
			Sources:     cli.EnvVars("KINDRED_TREE_WORKERS"),
			Destination: &cfg.treeWorkers,
		},
		&cli.IntFlag{
			Name:        "attempts",
			Usage:       "Fetch attempts per batch on transient failures",
			Value:       3,
			Sources:     cli.EnvVars("KINDRED_ATTEMPTS"),
			Destination: &cfg.attempts,
		},
		&cli.DurationFlag{
			Name:        "session-ttl",
			Usage:       "Idle time after which a session is dropped",
			Value:       session.DefaultTTL,
			Sources:     cli.EnvVars("KINDRED_SESSION_TTL"),
			Destination: &cfg.sessionTTL,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego policies flagging relatives (package match)",
			Sources:     cli.EnvVars("KINDRED_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket receiving exported trees",
			Sources:     cli.EnvVars("KINDRED_BUCKET"),
			Destination: &cfg.bucket,
		},
		&cli.StringFlag{
			Name:        "prefix",
			Usage:       "Object prefix of exported trees",
			Value:       "trees",
			Sources:     cli.EnvVars("KINDRED_PREFIX"),
			Destination: &cfg.prefix,
		},
	}
}

// repositoryFlags returns flags selecting the snapshot backend with destination config
func repositoryFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repository",
			Usage:       "Snapshot backend (memory, redis, firestore)",
			Value:       "memory",
			Sources:     cli.EnvVars("KINDRED_REPOSITORY"),
			Destination: &cfg.backend,
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Usage:       "Redis URL, e.g. redis://localhost:6379/0",
			Sources:     cli.EnvVars("KINDRED_REDIS_URL"),
			Destination: &cfg.redisURL,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("KINDRED_PROJECT", "GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("KINDRED_DATABASE", "FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
	}
}

// newLogger installs the configured logger as the default one
func (cfg *config) newLogger() *slog.Logger {
	var opts []logging.Option
	if cfg.logFormat == "json" {
		opts = append(opts, logging.WithJSON())
	}
	logger := logging.New(cfg.logLevel, os.Stderr, opts...)
	logging.SetDefault(logger)
	return logger
}

// newGeni creates a new remote graph client
func (cfg *config) newGeni() (*adapter.GeniClient, error) {
	if cfg.accessToken == "" {
		return nil, goerr.New("access-token is required")
	}

	opts := []adapter.GeniOption{
		adapter.WithRateLimit(cfg.rateLimit, int(cfg.rateBurst)),
	}
	if cfg.baseURL != "" {
		opts = append(opts, adapter.WithBaseURL(cfg.baseURL))
	}
	if cfg.refreshToken != "" {
		opts = append(opts,
			adapter.WithRefreshToken(cfg.refreshToken),
			adapter.WithAppCredential(cfg.appID, cfg.appSecret),
		)
	}
	return adapter.NewGeni(cfg.accessToken, opts...), nil
}

// newFamily creates the family service on top of the remote graph client
func (cfg *config) newFamily() (*family.Service, error) {
	geni, err := cfg.newGeni()
	if err != nil {
		return nil, err
	}
	return family.New(geni, family.WithProjectTTL(cfg.projectTTL)), nil
}

// newRepository creates the snapshot repository. The returned function
// releases its connection.
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, func(), error) {
	switch cfg.backend {
	case "", "memory":
		return repository.NewMemory(), func() {}, nil

	case "redis":
		if cfg.redisURL == "" {
			return nil, nil, goerr.New("redis-url is required")
		}
		repo, err := repository.NewRedis(ctx, cfg.redisURL)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, closer(ctx, repo.Close), nil

	case "firestore":
		if cfg.project == "" {
			return nil, nil, goerr.New("project is required")
		}
		if cfg.database == "" {
			return nil, nil, goerr.New("database is required")
		}
		repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, closer(ctx, repo.Close), nil
	}

	return nil, nil, goerr.New("unknown repository backend", goerr.V("repository", cfg.backend))
}

func closer(ctx context.Context, fn func() error) func() {
	return func() {
		if err := fn(); err != nil {
			logging.From(ctx).Warn("failed to close repository", "error", err)
		}
	}
}

// newStorage creates the tree export storage, or nil when no bucket is set
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	if cfg.bucket == "" {
		return nil, nil
	}

	storage, err := adapter.NewStorage(ctx, cfg.bucket, cfg.prefix)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

// newPolicy loads the match policy, or nil when no directory is set
func (cfg *config) newPolicy(ctx context.Context) (*policy.Engine, error) {
	if cfg.policyDir == "" {
		return nil, nil
	}
	engine, err := policy.New(ctx, cfg.policyDir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load policy", goerr.V("dir", cfg.policyDir))
	}
	return engine, nil
}

func (cfg *config) newStore() *session.Store {
	return session.NewStore(session.WithTTL(cfg.sessionTTL))
}

// newCrawl wires every collaborator of the crawl use case. The returned
// function releases them.
func (cfg *config) newCrawl(ctx context.Context) (*crawl.UseCase, func(), error) {
	families, err := cfg.newFamily()
	if err != nil {
		return nil, nil, err
	}

	repo, closeRepo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, nil, err
	}

	opts := []crawl.Option{
		crawl.WithRepository(repo),
		crawl.WithMatchPool(int(cfg.matchWorkers), 0),
		crawl.WithTreePool(int(cfg.treeWorkers), 0),
		crawl.WithAttempts(int(cfg.attempts)),
	}

	storage, err := cfg.newStorage(ctx)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}
	if storage != nil {
		opts = append(opts, crawl.WithStorage(storage))
	}

	engine, err := cfg.newPolicy(ctx)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}
	if engine != nil {
		opts = append(opts, crawl.WithPolicy(engine))
	}

	return crawl.New(cfg.newStore(), families, opts...), closeRepo, nil
}
