package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dlddu/registry-oauth/internal/auth"
	"github.com/dlddu/registry-oauth/internal/handler"
	"github.com/dlddu/registry-oauth/internal/ratelimit"
	"github.com/dlddu/registry-oauth/internal/repository"
	"github.com/dlddu/registry-oauth/internal/service"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authorization server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx)
		},
	}
	cmd.Flags().String("address", ":8080", "listen address")
	cmd.Flags().Bool("migrate", false, "apply database migrations before serving")
	mustBind(c.v.BindPFlag("server.address", cmd.Flags().Lookup("address")))
	mustBind(c.v.BindPFlag("database.migrate_on_start", cmd.Flags().Lookup("migrate")))
	return cmd
}

func (c *cli) serve(ctx context.Context) error {
	rt, err := c.newRuntime(ctx, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.pool != nil && c.v.GetBool("database.migrate_on_start") {
		if _, err := repository.Migrate(ctx, rt.pool); err != nil {
			return err
		}
	}

	limiter, closeLimiter, err := c.newLimiter()
	if err != nil {
		return err
	}
	defer closeLimiter()

	srv := &http.Server{
		Addr: c.cfg.Server.Address,
		Handler: handler.NewRouter(handler.RouterConfig{
			OAuth:        rt.oauth,
			Store:        rt.tx,
			Users:        auth.UserHeader{Header: c.cfg.Auth.UserHeader, Validate: service.ValidateUserID},
			Limiter:      limiter,
			Metrics:      rt.metrics,
			Gatherer:     rt.registry,
			Logger:       c.logger,
			ProxyHeaders: c.cfg.Server.TrustProxyHeaders,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.logger.Info("authorization server listening", "address", srv.Addr, "store", c.cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		c.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if c.cfg.Sweep.Interval > 0 {
		sweeper := service.NewSweeper(rt.tx, rt.tokens, c.logger)
		g.Go(func() error {
			return sweeper.Run(ctx, c.cfg.Sweep.Interval)
		})
	}

	return g.Wait()
}

// newLimiter returns nil when rate limiting is disabled
func (c *cli) newLimiter() (ratelimit.Limiter, func(), error) {
	rl := c.cfg.RateLimit
	if rl.RequestsPerSecond == 0 || rl.Burst == 0 {
		return nil, func() {}, nil
	}
	if c.cfg.Redis.URL == "" {
		return ratelimit.NewMemoryLimiter(rl.RequestsPerSecond, rl.Burst), func() {}, nil
	}

	client, err := ratelimit.NewRedisClient(c.cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			c.logger.Warn("closing redis client", "error", err)
		}
	}
	return ratelimit.NewRedisLimiter(client, "registry-oauth:ratelimit:", rl.RequestsPerSecond, rl.Burst), closeFn, nil
}
