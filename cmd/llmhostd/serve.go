package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"llmhost/internal/config"
	"llmhost/internal/httpapi"
	"llmhost/internal/manager"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP daemon",
		Example: "  llmhostd serve --config llmhost.yaml\n  LLMHOST_DEFAULT_MODEL=gemma-3-4b-it-Q4_K_M.gguf llmhostd serve --addr :9090",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			log, closer, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closer.Close()
			return runServe(cmd.Context(), cfg, appDeps{log: log, reg: prometheus.DefaultRegisterer})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address, e.g. :8080 (overrides config)")
	return cmd
}

// configureHTTP applies the HTTP settings of cfg to the httpapi package.
func configureHTTP(cfg config.Config, d appDeps) {
	httpapi.SetLogger(d.log)
	httpapi.SetDefaultLogLevel(cfg.Log.Level)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetInferTimeoutSeconds(int64(cfg.InferTimeoutSeconds))
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers)
	httpapi.SetSwaggerEnabled(cfg.Swagger)
}

// runServe serves until ctx is cancelled or SIGINT/SIGTERM arrives. On the
// way out it cancels the running generation, drains HTTP and unloads.
func runServe(ctx context.Context, cfg config.Config, d appDeps) error {
	mgr, err := buildManager(cfg, d)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configureHTTP(cfg, d)
	httpapi.SetBaseContext(ctx)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.log.Info().Str("addr", cfg.Addr).Str("models_dir", cfg.ModelsDir).Msg("llmhostd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		preload(gctx, mgr, cfg, d)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		d.log.Info().Msg("shutting down")
		if err := mgr.Cancel(); err != nil {
			d.log.Warn().Err(err).Msg("cancel on shutdown")
		}
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shCtx)
		mgr.Unload()
		if err != nil {
			d.log.Error().Err(err).Msg("graceful shutdown error")
		}
		return err
	})
	return g.Wait()
}

// preload runs the dependency checks and loads the default model, if any,
// so the first request does not pay for it. Failures are logged only.
func preload(ctx context.Context, mgr *manager.Manager, cfg config.Config, d appDeps) {
	rep, err := mgr.SanityCheck()
	if err != nil {
		d.log.Warn().Err(err).Msg("sanity check failed")
		return
	}
	d.log.Info().Strs("devices", rep.Devices).Int("models", rep.Registry).Strs("unreadable", rep.Unreadable).Msg("sanity check")
	if cfg.DefaultModel == "" {
		return
	}
	if rep.MissingDef {
		d.log.Warn().Str("model", cfg.DefaultModel).Msg("default model not in registry")
		return
	}
	if _, err := mgr.EnsureModel(ctx, cfg.DefaultModel, -1); err != nil {
		d.log.Warn().Err(err).Str("model", cfg.DefaultModel).Msg("preload failed")
	}
}
