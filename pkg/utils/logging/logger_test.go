package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kindred/pkg/utils/logging"
)

func TestLevels(t *testing.T) {
	testCases := map[string]struct {
		level string
		shown []string
		quiet []string
	}{
		"debug":   {level: "debug", shown: []string{"fetching", "generation done", "retrying", "crawl failed"}},
		"info":    {level: "info", shown: []string{"generation done", "retrying", "crawl failed"}, quiet: []string{"fetching"}},
		"warning": {level: "warning", shown: []string{"retrying", "crawl failed"}, quiet: []string{"fetching", "generation done"}},
		"error":   {level: "ERROR", shown: []string{"crawl failed"}, quiet: []string{"fetching", "generation done", "retrying"}},
		"unknown": {level: "verbose", shown: []string{"generation done"}, quiet: []string{"fetching"}},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := logging.New(tc.level, buf)
			logger.Debug("fetching")
			logger.Info("generation done")
			logger.Warn("retrying")
			logger.Error("crawl failed")

			for _, msg := range tc.shown {
				gt.S(t, buf.String()).Contains(msg)
			}
			for _, msg := range tc.quiet {
				gt.S(t, buf.String()).NotContains(msg)
			}
		})
	}
}

func TestJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("info", buf, logging.WithJSON())

	err := goerr.New("fetch failed", goerr.V("ids", []string{"profile-1"}))
	logger.Warn("batch left unresolved", "session", "s1", "error", err)

	var record map[string]any
	gt.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	gt.Equal(t, record["msg"], any("batch left unresolved"))
	gt.Equal(t, record["session"], any("s1"))

	attr, ok := record["error"].(map[string]any)
	gt.True(t, ok)
	gt.Equal(t, attr["message"], any("fetch failed"))
	gt.Equal(t, attr["ids"], any([]any{"profile-1"}))
}

func TestWithAndFrom(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("debug", buf).With("session", "s1")

	ctx := logging.With(context.Background(), logger)
	gt.Equal(t, logging.From(ctx), logger)

	logging.From(ctx).Info("crawl started")
	gt.S(t, buf.String()).Contains("crawl started")
	gt.S(t, buf.String()).Contains("s1")
}

func TestFromUsesDefault(t *testing.T) {
	prev := logging.Default()
	defer logging.SetDefault(prev)

	buf := &bytes.Buffer{}
	custom := logging.New("warn", buf)
	logging.SetDefault(custom)

	retrieved := logging.From(context.Background())
	gt.Equal(t, retrieved, custom)
	retrieved.Warn("session evicted")
	gt.S(t, buf.String()).Contains("session evicted")
}
