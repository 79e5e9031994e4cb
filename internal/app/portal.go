package app

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/portal/internal/account"
	"github.com/odyssey-erp/portal/internal/allauth"
	"github.com/odyssey-erp/portal/internal/auth"
	"github.com/odyssey-erp/portal/internal/bootstrap"
	"github.com/odyssey-erp/portal/internal/guard"
	"github.com/odyssey-erp/portal/internal/observability"
	"github.com/odyssey-erp/portal/internal/session"
	"github.com/odyssey-erp/portal/internal/shared"
	"github.com/odyssey-erp/portal/internal/view"
)

// Portal is the wired application: one allauth client, one session store and
// the router serving them.
type Portal struct {
	Handler   http.Handler
	Client    *allauth.Client
	Store     *session.Store
	Config    *bootstrap.ConfigCache
	Bootstrap *bootstrap.Sequence
}

// NewPortal wires the portal components. Run Bootstrap.Run once the server
// is listening; pages answer with the loading page until it finishes.
func NewPortal(cfg *Config, logger *slog.Logger, rdb redis.UniversalClient, metrics *observability.Metrics) (*Portal, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	opts := []allauth.Option{
		allauth.WithLogger(logger),
		allauth.WithClientKind(allauth.ClientKind(cfg.AllauthClient)),
		allauth.WithTimeout(cfg.AllauthTimeout),
		allauth.WithPasswordResetPath(cfg.AllauthReset),
	}
	if metrics != nil {
		opts = append(opts, allauth.WithObserver(metrics))
	}
	client, err := allauth.New(cfg.AllauthURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("allauth client: %w", err)
	}

	templates, err := view.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}

	store := session.NewStore()
	configCache := bootstrap.NewConfigCache(client)
	bootOpts := []bootstrap.Option{
		bootstrap.WithConfig(configCache),
		bootstrap.WithTimeout(cfg.BootstrapTimeout),
	}
	if metrics != nil {
		bootOpts = append(bootOpts, bootstrap.WithRecorder(metrics))
	}
	seq := bootstrap.New(client, store, logger, bootOpts...)

	sessions := shared.NewSessionManager(rdb, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrf := shared.NewCSRFManager(cfg.CSRFSecret)

	store.Subscribe(func(u *allauth.User) {
		if u == nil {
			logger.Info("session store cleared")
			return
		}
		logger.Info("session store signed in", slog.String("user", u.ID.String()))
	})

	handler := NewRouter(RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessions,
		CSRFManager:    csrf,
		Store:          store,
		Bootstrap:      seq,
		Rules:          guard.DefaultRules(),
		AuthHandler:    auth.NewHandler(logger, client, configCache, store, templates, csrf, cfg.FrontendURL),
		AccountHandler: account.NewHandler(logger, client, configCache, store, templates, csrf),
		Metrics:        metrics,
	})

	return &Portal{
		Handler:   handler,
		Client:    client,
		Store:     store,
		Config:    configCache,
		Bootstrap: seq,
	}, nil
}
