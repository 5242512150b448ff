package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/kindred/pkg/model"
	"github.com/m-mizutani/kindred/pkg/utils/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// statusPoller is the part of the crawl use case progress reporting needs.
type statusPoller interface {
	PollStatus(sessionID string) *model.Status
}

// watch shows a spinner describing the session's progress until the returned
// function is called.
func watch(uc statusPoller, sessionID string) func() {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Start()

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.Lock()
				s.Suffix = " " + describe(uc.PollStatus(sessionID))
				s.Unlock()
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
		s.Stop()
	}
}

func describe(st *model.Status) string {
	if st.TreeGeneration > 0 {
		return fmt.Sprintf("generation %d, %d profiles placed", st.TreeGeneration, st.TreeCount)
	}
	return fmt.Sprintf("%s: %d inspected, %d matches", st.Stage, st.Count, st.MatchCount)
}

// serveMetrics exposes the Prometheus registry on addr until the returned
// function is called. An empty addr serves nothing.
func serveMetrics(ctx context.Context, addr string) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.From(ctx).Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.From(ctx).Error("metrics server stopped", "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.From(ctx).Warn("failed to shut down metrics server", "error", err)
		}
	}
}
