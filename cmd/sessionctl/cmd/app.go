package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"go.pilab.hu/recovery/cache"
	"go.pilab.hu/recovery/cache/bolt"
	rediscache "go.pilab.hu/recovery/cache/redis"
	"go.pilab.hu/recovery/config"
	"go.pilab.hu/recovery/domain"
	"go.pilab.hu/recovery/internal/audit"
	"go.pilab.hu/recovery/internal/auth"
	"go.pilab.hu/recovery/internal/federation"
	"go.pilab.hu/recovery/internal/identity"
	"go.pilab.hu/recovery/internal/metrics"
	"go.pilab.hu/recovery/internal/telemetry"
	"go.pilab.hu/recovery/log"
	"go.pilab.hu/recovery/mongodb"
	"go.pilab.hu/recovery/navigation"
	"go.pilab.hu/recovery/session"
	"go.pilab.hu/recovery/tracing"
)

// app is the wired object graph behind every command.
type app struct {
	logger   log.Logger
	registry *prometheus.Registry
	prompter *TerminalPrompter
	provider *identity.Provider
	manager  *session.Manager

	closers []func(ctx context.Context) error
}

// newApp connects the stores, restores the provider session and starts the manager.
func newApp(ctx context.Context, cfg *config.SessionConfig, logger log.Logger, in io.Reader, out io.Writer) (_ *app, err error) {
	a := &app{logger: logger, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	var traceOut io.Writer
	if cfg.OtelStdout {
		traceOut = os.Stderr
	}
	tp, err := tracing.InitTracerProvider(cfg.OtelServiceName, traceOut)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer provider: %w", err)
	}
	a.addCloser(tp.Shutdown)

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sessionMetrics := metrics.NewSessionMetrics(a.registry)
	mp, err := telemetry.InitMeterProvider(a.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize meter provider: %w", err)
	}
	a.addCloser(func(ctx context.Context) error { return telemetry.Shutdown(ctx, mp) })

	client, err := mongodb.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return nil, err
	}
	a.addCloser(func(ctx context.Context) error {
		mongodb.Close(ctx, client)
		return nil
	})
	db := client.Database(cfg.MongoDBName)

	accounts, err := mongodb.NewAccountRepository(ctx, db)
	if err != nil {
		return nil, err
	}

	store, err := a.openCache(cfg)
	if err != nil {
		return nil, err
	}

	exchangers, err := buildExchangers(cfg)
	if err != nil {
		return nil, err
	}

	a.prompter = NewTerminalPrompter(in, out)
	a.provider = identity.NewProvider(
		exchangers,
		a.prompter,
		accounts,
		auth.NewBcryptPasswordHasher(bcrypt.DefaultCost),
		store,
		identity.Options{
			MinPasswordLength: cfg.MinPasswordLength,
			Logger:            logger,
			Audit:             openAudit(cfg.AuditLog),
		},
	)
	if err := a.provider.Restore(ctx); err != nil {
		return nil, err
	}

	a.manager = session.NewManager(
		a.provider,
		mongodb.NewProfileStore(db),
		store,
		navigation.Logging{Logger: logger},
		session.Options{
			CacheKey:        cfg.CacheKey,
			PostAuthTarget:  cfg.PostAuthTarget,
			SignedOutTarget: cfg.SignedOutTarget,
			SeedFromCache:   cfg.SeedFromCache,
			Logger:          logger,
			Metrics:         sessionMetrics,
		},
	)
	if err := a.manager.Start(ctx); err != nil {
		return nil, err
	}
	a.addCloser(func(context.Context) error { return a.manager.Close() })

	return a, nil
}

func (a *app) openCache(cfg *config.SessionConfig) (domain.SessionCache, error) {
	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.addCloser(func(context.Context) error { return client.Close() })
		return rediscache.NewSessionCache(client, cfg.RedisKeyPrefix, cfg.CacheTTL), nil
	case config.CacheBackendMemory:
		c := cache.NewMemorySessionCache(cfg.CacheTTL)
		a.addCloser(func(context.Context) error { return c.Close() })
		return c, nil
	default:
		c, err := bolt.Open(cfg.BoltPath, bolt.DefaultBucketName)
		if err != nil {
			return nil, err
		}
		a.addCloser(func(context.Context) error { return c.Close() })
		return c, nil
	}
}

// openAudit returns an audit logger for "stdout", "stderr" or nothing.
func openAudit(target string) *audit.Logger {
	switch target {
	case "stdout":
		return audit.New(os.Stdout)
	case "stderr":
		return audit.New(os.Stderr)
	default:
		return nil
	}
}

func buildExchangers(cfg *config.SessionConfig) ([]federation.Exchanger, error) {
	var out []federation.Exchanger
	if pc, ok := cfg.Google(); ok {
		g, err := federation.NewGoogleProvider(pc)
		if err != nil {
			return nil, fmt.Errorf("google: %w", err)
		}
		out = append(out, g)
	}
	if pc, ok := cfg.Apple(); ok {
		ap, err := federation.NewAppleProvider(pc)
		if err != nil {
			return nil, fmt.Errorf("apple: %w", err)
		}
		out = append(out, ap)
	}
	return out, nil
}

func (a *app) addCloser(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn(ctx, "Shutdown finished with errors", log.Fields{"error": err.Error()})
	}
}

// withApp builds the app for one command run and waits for restoration.
func withApp(ctx context.Context, in io.Reader, out io.Writer, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(ctx, appConfig, appLogger, in, out)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if err := a.manager.WaitReady(ctx); err != nil {
		return err
	}
	return fn(ctx, a)
}
