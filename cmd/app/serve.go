package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/local/assistgate/internal/api"
	"github.com/local/assistgate/internal/archive"
	"github.com/local/assistgate/internal/ask"
	"github.com/local/assistgate/internal/filetype"
	"github.com/local/assistgate/internal/limiter"
	"github.com/local/assistgate/internal/metrics"
	"github.com/local/assistgate/internal/pdftext"
	"github.com/local/assistgate/internal/statuscheck"
	"github.com/local/assistgate/internal/storage"
	"github.com/local/assistgate/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetString("port"); port != "" {
			cfg.Server.Port = port
		}
		return serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().String("port", "", "listen port (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	// Redis is optional: without it sessions and quotas live in process memory.
	var (
		rdb      *redis.Client
		sessions store.Sessions
		quota    limiter.Quota
		breaker  ask.Breaker
	)
	if cfg.Redis.URL != "" {
		var err error
		rdb, err = store.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		sessions = store.NewRedisSessions(rdb, cfg.Limits.SessionTTL)
		quota = limiter.NewRedisHourly(rdb, cfg.Limits.PerHour)
		if cfg.Upstream.BreakerBase > 0 {
			breaker = ask.NewRedisBreaker(rdb, cfg.Upstream.BreakerBase, cfg.Upstream.BreakerMax)
		}
		log.Info().Msg("redis connected; sessions and rate limits are shared")
	} else {
		sessions = store.NewMemorySessions(cfg.Limits.SessionTTL)
		quota = limiter.NewMemoryHourly(cfg.Limits.PerHour)
		if cfg.Upstream.BreakerBase > 0 {
			breaker = ask.NewMemoryBreaker(cfg.Upstream.BreakerBase, cfg.Upstream.BreakerMax)
		}
		log.Warn().Msg("REDIS_URL not set; sessions and rate limits are per process")
	}

	statusOpts := statuscheck.Options{AskURL: cfg.Upstream.AskURL, Extractors: cfg.Convert.Extractors}
	if rdb != nil {
		statusOpts.Redis = pingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	var (
		archiver *archive.Archiver
		pool     *archive.Pool
	)
	if cfg.Archive.Enabled() {
		if rdb == nil {
			return errors.New("ARCHIVE_BUCKET requires REDIS_URL for the archive queue")
		}
		s3c, err := storage.NewS3Client(ctx, storage.Options{
			Bucket:    cfg.Archive.Bucket,
			Region:    cfg.Archive.Region,
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
		})
		if err != nil {
			return err
		}
		q, err := archive.NewRedisQueue(ctx, rdb, cfg.Archive.Stream, cfg.Archive.Group)
		if err != nil {
			return err
		}
		archiver = archive.NewArchiver(q, cfg.Archive.Prefix, cfg.Archive.Passphrase)
		host, _ := os.Hostname()
		pool = archive.NewPool(archive.Config{
			Concurrency:  cfg.Archive.Workers,
			ConsumerName: "archiver-" + host,
		}, q, s3c)
		pool.Start(ctx)
		statusOpts.S3 = s3c
		statusOpts.S3Bucket = s3c.Bucket()
		log.Info().Str("bucket", s3c.Bucket()).Bool("sealed", cfg.Archive.Passphrase != "").Int("workers", cfg.Archive.Workers).Msg("artifact archive enabled")
	}

	srv := api.New(api.Dependencies{
		Asker: ask.NewClient(ask.Options{
			URL:        cfg.Upstream.AskURL,
			Timeout:    cfg.Upstream.Timeout,
			MaxRetries: cfg.Upstream.MaxRetries,
			RetryBase:  cfg.Upstream.RetryBase,
			Breaker:    breaker,
		}),
		Sessions:       sessions,
		Quota:          quota,
		Inflight:       limiter.NewInflight(1),
		Extractor:      pdftext.New(cfg.Convert.Extractors, cfg.Convert.MinTextChars),
		Detector:       filetype.New(),
		Archiver:       archiver,
		Status:         statuscheck.New(statusOpts),
		MaxUploadBytes: int64(cfg.Convert.MaxUploadMB) << 20,
		Gzip:           cfg.Server.Gzip,
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("ask_url", cfg.Upstream.AskURL).Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if pool != nil {
		stop()
		pool.Wait()
	}
	log.Info().Msg("shutdown complete")
	return nil
}
