package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/paiban/courierplan/internal/handler"
	"github.com/paiban/courierplan/internal/metrics"
	"github.com/paiban/courierplan/internal/middleware"
	"github.com/paiban/courierplan/pkg/logger"
)

func newServeCmd(c *cli) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动HTTP分配服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				c.cfg.App.Port = port
			}
			return c.serve(cmd.Context())
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 7012, "监听端口")
	return cmd
}

// newServer 组装路由与中间件
func (c *cli) newServer(ctx context.Context) (*http.Server, func(), error) {
	p, closeFn, err := c.pipeline(ctx, nil)
	if err != nil {
		return nil, nil, err
	}

	allocation := handler.NewAllocationHandler(p, handler.ScenarioDefaults{
		Deadlines: c.deadlines(),
		Reduced:   c.cfg.Scenario.Reduced,
		SweepFrom: c.cfg.Scenario.SweepFrom,
		SweepTo:   c.cfg.Scenario.SweepTo,
		MaxPoints: c.cfg.Scenario.SweepMaxPoints,
		Workers:   c.cfg.Scenario.Workers,
		Observer:  metrics.Recorder{},
	})

	checks := map[string]handler.HealthChecker{}
	if c.resolver != nil {
		for name, hc := range c.resolver.HealthChecks() {
			checks[name] = hc
		}
	}

	mux := http.NewServeMux()

	// 系统端点
	mux.HandleFunc("/health", handler.Health(checks))
	mux.HandleFunc("/version", handler.Version(handler.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}))

	// API v1 端点
	handler.Routes(mux, allocation)

	// 监控端点
	if c.cfg.Metrics.Enabled {
		mux.Handle(c.cfg.Metrics.Path, metrics.Handler())
	}

	// 中间件执行顺序：recovery -> requestID -> rateLimit -> cors -> logging -> handler
	limiter := rate.NewLimiter(rate.Limit(c.cfg.API.RateLimit), c.cfg.API.Burst)
	h := middleware.Chain(mux,
		middleware.Recovery,
		middleware.RequestID,
		middleware.RateLimit(limiter),
		middleware.CORS(c.cfg.API.CORSOrigins),
		middleware.Logging,
	)
	if c.cfg.API.Timeout > 0 {
		h = http.TimeoutHandler(h, c.cfg.API.Timeout, `{"error":true,"code":"TIMEOUT","message":"请求超时"}`)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", c.cfg.App.Port),
		Handler:      h,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: c.cfg.API.Timeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return server, closeFn, nil
}

func (c *cli) serve(ctx context.Context) error {
	server, closeFn, err := c.newServer(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Int("port", c.cfg.App.Port).
			Str("version", Version).
			Str("backend", c.cfg.Solver.Backend).
			Str("url", fmt.Sprintf("http://localhost:%d", c.cfg.App.Port)).
			Str("api_docs", fmt.Sprintf("http://localhost:%d/api/v1/", c.cfg.App.Port)).
			Msg("服务器启动")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errCh:
		if ok {
			logger.Error().Err(err).Msg("服务器启动失败")
			return err
		}
		return nil
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info().Msg("正在关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
		return err
	}

	logger.Info().Msg("服务器已关闭")
	return nil
}
