package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/couchbase/gocb/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"relay/internal/couchbase"
	"relay/internal/readmodel"
	"relay/internal/relay"
	"relay/internal/relay/channel"
	"relay/internal/relay/consumer"
	"relay/internal/relay/metrics"
	"relay/internal/relay/registry"
	"relay/internal/relay/router"
	"relay/internal/relay/tracing"
	"relay/internal/transport/ws"
)

type Config struct {
	CouchbaseConnectionString string        `env:"COUCHBASE_CONNECTION_STRING" envDefault:"couchbase://localhost"`
	CouchbaseUsername         string        `env:"COUCHBASE_USERNAME" envDefault:"Administrator"`
	CouchbasePassword         string        `env:"COUCHBASE_PASSWORD" envDefault:"password"`
	CouchbaseBucketName       string        `env:"COUCHBASE_BUCKET_NAME" envDefault:"relay"`
	CouchbaseScopeName        string        `env:"COUCHBASE_SCOPE_NAME" envDefault:"default"`
	RedisAddr                 string        `env:"REDIS_ADDR"`
	SnapshotCacheTTL          time.Duration `env:"SNAPSHOT_CACHE_TTL" envDefault:"30s"`
	ChannelName               string        `env:"CHANNEL_NAME" envDefault:"notifications"`
	SubscriptionName          string        `env:"SUBSCRIPTION_NAME" envDefault:"fanout"`
	ConsumerBatchSize         int           `env:"CONSUMER_BATCH_SIZE" envDefault:"50"`
	PullInterval              time.Duration `env:"PULL_INTERVAL" envDefault:"100ms"`
	WSPort                    int           `env:"WS_PORT" envDefault:"8080"`
	WSTimeout                 time.Duration `env:"WS_TIMEOUT" envDefault:"30s"`
	LogLevel                  string        `env:"LOG_LEVEL" envDefault:"info"`
	MetricsPort               int           `env:"METRICS_PORT" envDefault:"9090"`
	MetricsTimeout            time.Duration `env:"METRICS_TIMEOUT" envDefault:"30s"`
	TracingServiceName        string        `env:"TRACING_SERVICE_NAME" envDefault:"relay"`
	TracingServiceVersion     string        `env:"TRACING_SERVICE_VERSION" envDefault:"1.0.0"`
	JaegerEndpoint            string        `env:"JAEGER_ENDPOINT" envDefault:"localhost:4318"`
	TracingSampleRate         float64       `env:"TRACING_SAMPLE_RATE" envDefault:"1.0"`
	ShutdownTimeout           time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to parse environment variables: %v", err)
	}

	config := zap.NewProductionConfig()

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Printf("invalid log level %q, defaulting to info: %v", cfg.LogLevel, err)
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	logger, err := config.Build(zap.AddCaller())
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	metricsRegistry := metrics.NewRegistry()
	metricsRegistry.SetSystemInfo(cfg.TracingServiceVersion, time.Now().Format(time.RFC3339))

	metricsServer := metrics.NewServer(
		metrics.ServerConfig{
			Port:    cfg.MetricsPort,
			Timeout: cfg.MetricsTimeout,
		},
		metricsRegistry,
		logger,
	)

	go func() {
		if err := metricsServer.Start(context.Background()); err != nil {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	logger.Info("metrics server started",
		zap.String("endpoint", fmt.Sprintf("http://localhost:%d/metrics", cfg.MetricsPort)),
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.MetricsPort)),
	)

	tracingConfig := tracing.Config{
		ServiceName:    cfg.TracingServiceName,
		ServiceVersion: cfg.TracingServiceVersion,
		JaegerEndpoint: cfg.JaegerEndpoint,
		SampleRate:     cfg.TracingSampleRate,
	}
	tracer, tracingCleanup, err := tracing.NewTracer(tracingConfig)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingCleanup(shutdownCtx); err != nil {
			logger.Error("failed to cleanup tracing", zap.Error(err))
		}
	}()

	sessions := registry.New()

	hub, err := ws.NewHub(sessions, metricsRegistry, logger)
	if err != nil {
		log.Fatalf("failed to create hub: %v", err)
	}

	wsServer, err := ws.NewServer(
		ws.ServerConfig{
			Port:    cfg.WSPort,
			Timeout: cfg.WSTimeout,
		},
		hub,
		sessions,
		logger,
	)
	if err != nil {
		log.Fatalf("failed to create websocket server: %v", err)
	}

	cns, cluster := newFanout(cfg, hub, metricsRegistry, tracer, logger)

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sig:
			logger.Info("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return wsServer.Start(gctx)
	})

	if cns != nil {
		g.Go(func() error {
			return runPullLoop(gctx, cns, cfg.PullInterval, cfg.ShutdownTimeout, logger)
		})
	}

	logger.Info("relay started",
		zap.String("channel", cfg.ChannelName),
		zap.String("subscription", cfg.SubscriptionName),
		zap.Int("ws_port", cfg.WSPort),
	)

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("error in goroutine", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := metricsServer.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop metrics server", zap.Error(err))
	}
	if cluster != nil {
		if err := cluster.Close(nil); err != nil {
			logger.Error("failed to close couchbase cluster", zap.Error(err))
		}
	}

	logger.Info("relay stopped")
}

// newFanout wires the durable channel, router, and consumer stacks. The
// channel being unconfigured or unreachable is not fatal: live sessions
// still connect and subscribe, nothing fans out.
func newFanout(cfg Config, hub *ws.Hub, metricsRegistry *metrics.Registry, tracer *tracing.Tracer, logger *zap.Logger) (relay.Consumer, *gocb.Cluster) {
	if cfg.CouchbaseConnectionString == "" {
		logger.Warn("no couchbase connection string, running without the durable channel")
		return nil, nil
	}

	cluster, bucket, err := newCouchbase(cfg)
	if err != nil {
		logger.Warn("couchbase unreachable, running without the durable channel", zap.Error(err))
		return nil, nil
	}

	degrade := func(msg string, err error) (relay.Consumer, *gocb.Cluster) {
		logger.Warn(msg+", running without the durable channel", zap.Error(err))
		if cerr := cluster.Close(nil); cerr != nil {
			logger.Error("failed to close couchbase cluster", zap.Error(cerr))
		}
		return nil, nil
	}

	records, err := relay.NewRecordsStore(cluster, bucket, cfg.CouchbaseScopeName)
	if err != nil {
		return degrade("failed to create records store", err)
	}
	cursors, err := relay.NewCursorsStore(cluster, bucket, cfg.CouchbaseScopeName)
	if err != nil {
		return degrade("failed to create cursors store", err)
	}
	offsets, err := relay.NewOffsetsStore(cluster, bucket, cfg.CouchbaseScopeName)
	if err != nil {
		return degrade("failed to create offsets store", err)
	}
	leases, err := relay.NewLeasesStore(cluster, bucket, cfg.CouchbaseScopeName)
	if err != nil {
		return degrade("failed to create leases store", err)
	}
	snapshots, err := relay.NewSnapshotsStore(cluster, bucket, cfg.CouchbaseScopeName)
	if err != nil {
		return degrade("failed to create snapshots store", err)
	}

	transactions, err := couchbase.NewTransactions(cluster)
	if err != nil {
		return degrade("failed to create transactions", err)
	}

	baseChannel, err := channel.NewChannel(
		records,
		cursors,
		offsets,
		leases,
		transactions,
		cfg.ChannelName,
		cfg.CouchbaseBucketName,
		cfg.CouchbaseScopeName,
	)
	if err != nil {
		return degrade("failed to create channel", err)
	}
	metricsChannel := channel.NewMetricsChannel(baseChannel, metricsRegistry)
	chn := channel.NewTracedChannel(metricsChannel, tracer)

	gateway, err := readmodel.NewGateway(snapshots)
	if err != nil {
		return degrade("failed to create read-model gateway", err)
	}

	var readModel relay.ReadModel = gateway
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		readModel = readmodel.NewCache(gateway, redisClient, cfg.SnapshotCacheTTL)
		logger.Info("snapshot cache enabled",
			zap.String("redis_addr", cfg.RedisAddr),
			zap.Duration("ttl", cfg.SnapshotCacheTTL),
		)
	}

	baseRouter, err := router.NewRouter(readModel, metricsRegistry, logger)
	if err != nil {
		return degrade("failed to create router", err)
	}
	metricsRouter := router.NewMetricsRouter(baseRouter, metricsRegistry)
	rtr := router.NewTracedRouter(metricsRouter, tracer)

	baseConsumer, err := consumer.NewConsumer(chn, rtr, hub, metricsRegistry, logger, cfg.SubscriptionName, cfg.ConsumerBatchSize)
	if err != nil {
		return degrade("failed to create consumer", err)
	}
	metricsConsumer := consumer.NewMetricsConsumer(baseConsumer, metricsRegistry, cfg.SubscriptionName)

	return consumer.NewTracedConsumer(metricsConsumer, tracer, cfg.SubscriptionName), cluster
}

// runPullLoop drives the consumer until ctx is cancelled. Each pull runs
// under its own detached context bounded by drainTimeout, so a shutdown
// waits for the in-flight batch instead of aborting it mid-route.
func runPullLoop(ctx context.Context, cns relay.Consumer, interval, drainTimeout time.Duration, logger *zap.Logger) error {
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			pullCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
			processed, err := cns.Pull(pullCtx)
			cancel()
			if err != nil {
				logger.Error("pull failed", zap.Error(err))
				continue
			}
			if processed > 0 {
				logger.Debug("processed records", zap.Int("count", processed))
			}
		}
	}
}

func newCouchbase(config Config) (*gocb.Cluster, *gocb.Bucket, error) {
	cluster, err := gocb.Connect(config.CouchbaseConnectionString, gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: config.CouchbaseUsername,
			Password: config.CouchbasePassword,
		},
		TimeoutsConfig: gocb.TimeoutsConfig{
			ConnectTimeout: 10 * time.Second,
			KVTimeout:      5 * time.Second,
			QueryTimeout:   30 * time.Second,
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to cluster: %w", err)
	}

	bucket := cluster.Bucket(config.CouchbaseBucketName)

	err = bucket.WaitUntilReady(5*time.Second, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("bucket not ready: %w", err)
	}

	return cluster, bucket, nil
}
