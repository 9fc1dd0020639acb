package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"gorm.io/gorm"

	aiadapter "github.com/remlyo/remlyo-api/internal/adapters/ai"
	cacheadapter "github.com/remlyo/remlyo-api/internal/adapters/cache"
	eventadapter "github.com/remlyo/remlyo-api/internal/adapters/events"
	grpcadapter "github.com/remlyo/remlyo-api/internal/adapters/grpc"
	httpadapter "github.com/remlyo/remlyo-api/internal/adapters/http"
	"github.com/remlyo/remlyo-api/internal/adapters/metrics"
	"github.com/remlyo/remlyo-api/internal/adapters/payments"
	"github.com/remlyo/remlyo-api/internal/adapters/postgres"
	"github.com/remlyo/remlyo-api/internal/adapters/security"
	"github.com/remlyo/remlyo-api/internal/application"
	"github.com/remlyo/remlyo-api/internal/ports"
)

// localWebhookSecret signs offline-gateway webhooks when no Stripe secret is configured.
const localWebhookSecret = "whsec_local_dev"

type Runtime struct {
	cfg       Config
	logger    *slog.Logger
	db        *gorm.DB
	redis     *redis.Client
	repos     postgres.Repositories
	service   *application.Service
	signer    *security.JWTSigner
	metrics   *metrics.Metrics
	publisher ports.EventPublisher
	closers   []func() error
}

// NewRuntime connects every backing store, applies migrations and assembles the service.
// Redis, Kafka, Stripe and Gemini are optional; absent settings select in-process fallbacks.
func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("bootstrapping remlyo api", "service", cfg.ServiceID, "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	r := &Runtime{cfg: cfg, logger: logger}
	if err := r.init(ctx); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Runtime) init(ctx context.Context) error {
	cfg := r.cfg

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("gorm sql db: %w", err)
	}
	r.db = db
	r.closers = append(r.closers, sqlDB.Close)

	if err := postgres.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	r.repos = postgres.NewRepositories(db)

	var (
		lockouts    ports.LockoutStore
		revocations ports.SessionRevocationStore
		flowCache   ports.FlowStatusCache
		quotas      ports.QuotaCounter
	)
	if cfg.RedisURL != "" {
		client, err := cacheadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		r.redis = client
		r.closers = append(r.closers, client.Close)
		lockouts = cacheadapter.NewRedisLockoutStore(client)
		revocations = cacheadapter.NewRedisSessionRevocationStore(client)
		flowCache = cacheadapter.NewRedisFlowStatusCache(client)
		quotas = cacheadapter.NewRedisQuotaCounter(client)
	} else {
		r.logger.Warn("REDIS_URL not set; using in-process cache, lockout and quota state")
		mem := cacheadapter.NewMemory()
		lockouts, revocations, flowCache, quotas = mem, mem, mem.Flows(), mem
	}

	signer, err := security.NewJWTSigner(cfg.JWTKeyID, cfg.JWTPrivateKeyPEM, cfg.JWTPublicKeyPEM)
	if err != nil {
		if !cfg.AllowEphemeralJWT {
			return fmt.Errorf("init jwt signer: %w", err)
		}
		r.logger.Warn("using ephemeral JWT keys for local/dev runtime")
		signer, err = security.NewEphemeralJWTSigner(cfg.JWTKeyID)
		if err != nil {
			return fmt.Errorf("init ephemeral jwt signer: %w", err)
		}
	}
	r.signer = signer

	var gateway ports.PaymentGateway
	if cfg.StripeSecretKey != "" {
		gateway, err = payments.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
		if err != nil {
			return fmt.Errorf("init stripe gateway: %w", err)
		}
	} else {
		secret := cfg.StripeWebhookSecret
		if secret == "" {
			secret = localWebhookSecret
		}
		r.logger.Warn("STRIPE_SECRET_KEY not set; using offline payment gateway")
		gateway = payments.NewOfflineGateway(secret)
	}

	var generator ports.RemedyGenerator
	if cfg.GeminiAPIKey != "" {
		g, err := aiadapter.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return fmt.Errorf("init gemini generator: %w", err)
		}
		generator = g
	} else {
		r.logger.Warn("GEMINI_API_KEY not set; AI remedy generation disabled")
	}

	if len(cfg.KafkaBrokers) > 0 {
		kp, err := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix)
		if err != nil {
			return fmt.Errorf("init kafka publisher: %w", err)
		}
		r.publisher = kp
		r.closers = append(r.closers, kp.Close)
	} else {
		r.publisher = eventadapter.NewLoggingPublisher(r.logger)
	}

	r.metrics = metrics.New("remlyo")
	r.service = application.NewService(application.Dependencies{
		Config:      cfg.ServiceConfig(),
		Users:       r.repos.Users,
		Sessions:    r.repos.Sessions,
		Recovery:    r.repos.Recovery,
		Profiles:    r.repos.Profiles,
		Consents:    r.repos.Consents,
		Ailments:    r.repos.Ailments,
		Remedies:    r.repos.Remedies,
		Reviews:     r.repos.Reviews,
		Moderation:  r.repos.Moderation,
		Billing:     r.repos.Billing,
		Affiliates:  r.repos.Affiliates,
		Outbox:      r.repos.Outbox,
		Idempotency: r.repos.Idempotency,
		Lockouts:    lockouts,
		Revocations: revocations,
		FlowCache:   flowCache,
		Quotas:      quotas,
		Hasher:      security.NewBcryptHasher(cfg.BcryptCost),
		TokenSigner: signer,
		Payments:    gateway,
		Generator:   generator,
		Metrics:     r.metrics,
	})
	return nil
}

func (r *Runtime) Config() Config                { return r.cfg }
func (r *Runtime) Service() *application.Service { return r.service }
func (r *Runtime) Logger() *slog.Logger          { return r.logger }

// Ready pings the database and, when configured, Redis.
func (r *Runtime) Ready(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if r.redis != nil {
		if err := r.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Handler builds the HTTP router; exposed for in-process tests.
func (r *Runtime) Handler() http.Handler {
	return httpadapter.NewRouter(httpadapter.NewHandler(r.service, httpadapter.Options{
		Observer:       r.metrics,
		MetricsHandler: r.metrics.Handler(),
		Ready:          r.Ready,
		AllowedOrigins: r.cfg.CORSOrigins,
		TrustedProxies: r.cfg.TrustedProxies,
	}))
}

// RunAPI serves HTTP and gRPC until the context is canceled or SIGINT/SIGTERM arrives.
func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer r.Close()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", r.cfg.HTTPPort),
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	grpcServer, healthSrv := grpcadapter.NewServer(grpcadapter.NewInternalServer(r.service, r.signer))
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen gRPC: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.logger.Info("http server started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		r.logger.Info("grpc server started", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		r.logger.Info("shutdown started")
		healthSrv.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})
	return g.Wait()
}

// RunWorker drives the outbox relay and the subscription expiry sweep.
func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer r.Close()

	outbox := eventadapter.NewOutboxWorker(r.logger, r.repos.Outbox, r.publisher, r.metrics, eventadapter.RelayConfig{
		Interval:   r.cfg.OutboxPollInterval,
		BatchSize:  r.cfg.OutboxBatchSize,
		ClaimTTL:   r.cfg.OutboxClaimTTL,
		MaxRetries: r.cfg.OutboxMaxRetries,
	})
	expiry := eventadapter.NewExpiryWorker(r.logger, r.service, r.cfg.ExpiryInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(outbox.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(expiry.Run(gctx)) })
	r.logger.Info("worker started")
	return g.Wait()
}

// Close releases connections in reverse acquisition order. Safe to call twice.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.logger.Warn("close failed", "error", err)
		}
	}
	r.closers = nil
}

func ignoreCanceled(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
