package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xvix-labs/xvix-floor/internal/logging"
	"github.com/xvix-labs/xvix-floor/pkg/cache"
	"github.com/xvix-labs/xvix-floor/pkg/httpserver"
	"github.com/xvix-labs/xvix-floor/pkg/policy"
	"github.com/xvix-labs/xvix-floor/pkg/protocol"
	"github.com/xvix-labs/xvix-floor/pkg/supply"
)

var (
	GitTag    = "dev"
	GitCommit = "unknown"
)

func main() {
	var (
		addr       = flag.String("addr", getEnv("XVIX_HTTP_ADDR", ":8080"), "HTTP listen address")
		policyPath = flag.String("policy", getEnv("XVIX_POLICY_PATH", ""), "Path to policy YAML file (empty uses defaults)")
		logLevel   = flag.String("log-level", getEnv("XVIX_LOG_LEVEL", "info"), "Log level")
		dev        = flag.Bool("dev", false, "Development logging")
		ttl        = flag.Duration("ttl", 30*time.Second, "Snapshot cache TTL")
		keeper     = flag.Duration("keeper", time.Minute, "How often to attempt a rebase")
		ratePerMin = flag.Int("rate", 60, "Requests per minute per client")
		burst      = flag.Int("burst", 120, "Request burst per client")
	)
	flag.Parse()

	log, err := logging.New(*logLevel, *dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(log, *addr, *policyPath, *ttl, *keeper, *ratePerMin, *burst); err != nil {
		log.Fatal("xvixd stopped", zap.Error(err))
	}
}

func run(log *zap.Logger, addr, policyPath string, ttl, keeper time.Duration, ratePerMin, burst int) error {
	pol := policy.Default()
	if policyPath != "" {
		var err error
		if pol, err = policy.Load(policyPath); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}

	clk := clock.New()
	pr, err := protocol.New(pol, clk, log)
	if err != nil {
		return err
	}
	c := cache.NewSnapshotCache(supply.NewComputer(pr), cache.Options{TTL: ttl, Clock: clk, Logger: log.Named("cache")})
	srv := httpserver.New(httpserver.Config{
		Cache:      c,
		RatePerMin: ratePerMin,
		Burst:      burst,
		Clock:      clk,
		Logger:     log.Named("http"),
	})
	hs := &http.Server{Addr: addr, Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.Run(ctx) })
	g.Go(func() error {
		t := clk.Ticker(keeper)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				pr.Rebase()
			}
		}
	})
	g.Go(func() error {
		log.Info("xvix ops API listening",
			zap.String("addr", addr),
			zap.String("symbol", pol.Token.Symbol),
			zap.String("git_tag", GitTag),
			zap.String("git_commit", GitCommit))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return hs.Shutdown(sctx)
	})
	return g.Wait()
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
