// Command server runs the parley LLM gateway.
//
// Configuration is loaded from a YAML file (discovered at ./config.yaml
// or /etc/parley/config.yaml, or given with -config) with PARLEY_*
// environment variable overrides. See the config package for the full
// layering rules.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parley-llm/parley/pkg/auth"
	"github.com/parley-llm/parley/pkg/auth/apikey"
	"github.com/parley-llm/parley/pkg/auth/jwt"
	"github.com/parley-llm/parley/pkg/config"
	"github.com/parley-llm/parley/pkg/llm"
	_ "github.com/parley-llm/parley/pkg/llm/providers"
	"github.com/parley-llm/parley/pkg/observability"
	"github.com/parley-llm/parley/pkg/server"
	"github.com/parley-llm/parley/pkg/storage"
	"github.com/parley-llm/parley/pkg/storage/memory"
	"github.com/parley-llm/parley/pkg/storage/postgres"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client, err := llm.New(cfg.Provider.Name, llm.ProviderOptions{
		APIKey:  cfg.Provider.APIKey,
		BaseURL: cfg.Provider.BaseURL,
		Model:   cfg.Provider.DefaultModel,
		Timeout: cfg.Provider.Timeout,
	})
	if err != nil {
		return fmt.Errorf("creating provider client: %w", err)
	}
	defer client.Close()

	slog.Info("provider ready",
		"provider", client.Provider(),
		"default_model", cfg.Provider.DefaultModel,
		"capabilities", fmt.Sprintf("%+v", client.Capabilities()),
	)

	store, err := buildStore(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	chain, err := buildAuthChain(cfg)
	if err != nil {
		return fmt.Errorf("configuring auth: %w", err)
	}

	handler := server.NewHandler(client, store, server.HandlerConfig{})

	mux := http.NewServeMux()
	mux.Handle("/", handler)
	if cfg.Observability.Metrics.Enabled {
		mux.Handle("GET "+cfg.Observability.Metrics.Path, promhttp.Handler())
	}

	stack := server.Chain(
		server.Recovery(),
		server.RequestID(),
		server.Logging(slog.Default()),
		observability.MetricsMiddleware,
		auth.Middleware(chain, auth.DefaultBypassEndpoints),
	)(mux)

	srv := server.New(stack,
		server.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
	)

	return srv.ListenAndServe()
}

// buildStore creates the completion log backend named by the config.
func buildStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Type {
	case "memory":
		slog.Info("storage enabled", "type", "memory", "max_size", cfg.Storage.MaxSize)
		return memory.New(cfg.Storage.MaxSize), nil
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("storage enabled", "type", "postgres")
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

// buildAuthChain assembles the authenticator chain from the config.
// With auth disabled the chain defaults to Yes (anonymous identity);
// any configured authenticator flips the default to No.
func buildAuthChain(cfg *config.Config) (*auth.AuthChain, error) {
	switch cfg.Auth.Type {
	case "none":
		return &auth.AuthChain{DefaultDecision: auth.Yes}, nil
	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			entries = append(entries, apikey.RawKeyEntry{
				Key:      k.Key,
				Identity: auth.Identity{Subject: k.Subject},
			})
		}
		return &auth.AuthChain{
			Authenticators:  []auth.Authenticator{apikey.New(entries)},
			DefaultDecision: auth.No,
		}, nil
	case "jwt":
		validator := jwt.New(jwt.Config{
			Secret: cfg.Auth.JWT.Secret,
			Issuer: cfg.Auth.JWT.Issuer,
		})
		return &auth.AuthChain{
			Authenticators:  []auth.Authenticator{validator},
			DefaultDecision: auth.No,
		}, nil
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Auth.Type)
	}
}
