// Package bootstrap hydrates the session store once at process start.
package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/portal/internal/allauth"
)

// Bootstrap outcomes reported to the Recorder.
const (
	OutcomeAuthenticated = "authenticated"
	OutcomeAnonymous     = "anonymous"
	OutcomeFailed        = "failed"
)

// StatusFetcher reads the remote session status.
type StatusFetcher interface {
	GetAuthStatus(ctx context.Context) (*allauth.AuthResult, error)
}

// Hydrator receives the user of an authenticated session.
type Hydrator interface {
	Login(allauth.User)
}

// Recorder counts bootstrap outcomes.
type Recorder interface {
	ObserveBootstrap(outcome string)
}

// Option configures a Sequence.
type Option func(*Sequence)

// WithConfig primes cache alongside the status call.
func WithConfig(cache *ConfigCache) Option {
	return func(s *Sequence) { s.config = cache }
}

// WithTimeout bounds the whole sequence.
func WithTimeout(d time.Duration) Option {
	return func(s *Sequence) { s.timeout = d }
}

// WithRecorder reports the outcome of the sequence.
func WithRecorder(r Recorder) Option {
	return func(s *Sequence) { s.recorder = r }
}

// Sequence runs the startup status check exactly once.
type Sequence struct {
	fetcher  StatusFetcher
	store    Hydrator
	logger   *slog.Logger
	config   *ConfigCache
	recorder Recorder
	timeout  time.Duration

	once  sync.Once
	ready chan struct{}
}

// New builds a Sequence. It does nothing until Run is called.
func New(fetcher StatusFetcher, store Hydrator, logger *slog.Logger, opts ...Option) *Sequence {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Sequence{
		fetcher: fetcher,
		store:   store,
		logger:  logger,
		timeout: 10 * time.Second,
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run queries the session status and hydrates the store. Failures are logged
// and leave the store empty. Only the first call does any work; later calls
// return immediately.
func (s *Sequence) Run(ctx context.Context) {
	s.once.Do(func() {
		defer close(s.ready)
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		var g errgroup.Group
		g.Go(func() error {
			s.hydrate(ctx)
			return nil
		})
		if s.config != nil {
			g.Go(func() error {
				if _, err := s.config.Get(ctx); err != nil {
					s.logger.Warn("bootstrap config fetch failed", slog.Any("error", err))
				}
				return nil
			})
		}
		_ = g.Wait()
	})
}

func (s *Sequence) hydrate(ctx context.Context) {
	start := time.Now()
	res, err := s.fetcher.GetAuthStatus(ctx)
	outcome := OutcomeAnonymous
	switch {
	case err != nil:
		outcome = OutcomeFailed
		s.logger.Error("bootstrap status check failed", slog.Any("error", err), slog.Duration("elapsed", time.Since(start)))
	case res == nil:
		outcome = OutcomeFailed
		s.logger.Error("bootstrap status check returned no result", slog.Duration("elapsed", time.Since(start)))
	case res.Authenticated():
		outcome = OutcomeAuthenticated
		s.store.Login(*res.User)
		s.logger.Info("bootstrap restored session", slog.String("user", res.User.ID.String()), slog.Duration("elapsed", time.Since(start)))
	default:
		s.logger.Info("bootstrap found no session", slog.Int("status", res.Status), slog.Duration("elapsed", time.Since(start)))
	}
	if s.recorder != nil {
		s.recorder.ObserveBootstrap(outcome)
	}
}

// Ready reports whether Run has finished.
func (s *Sequence) Ready() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// Done is closed once Run has finished.
func (s *Sequence) Done() <-chan struct{} { return s.ready }

// Gate serves loading in place of next until the sequence has finished.
func (s *Sequence) Gate(loading http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.Ready() {
				loading.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoadingHandler is the plain fallback page shown while the sequence runs.
func LoadingHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Refresh", "1")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Starting up...\n"))
	})
}
