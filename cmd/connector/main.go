// Command connector runs a data space connector.
//
// Usage:
//
//	connector -config /etc/connector/config.yaml
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sebplorenz/DataspaceConnector/internal/auth"
	"github.com/sebplorenz/DataspaceConnector/internal/clearinghouse"
	"github.com/sebplorenz/DataspaceConnector/internal/config"
	"github.com/sebplorenz/DataspaceConnector/internal/handler"
	"github.com/sebplorenz/DataspaceConnector/internal/keystore"
	"github.com/sebplorenz/DataspaceConnector/internal/server"
	"github.com/sebplorenz/DataspaceConnector/internal/storage"
	"github.com/sebplorenz/DataspaceConnector/internal/storage/memory"
	"github.com/sebplorenz/DataspaceConnector/internal/storage/mongodb"
	"github.com/sebplorenz/DataspaceConnector/internal/storage/postgres"
	"github.com/sebplorenz/DataspaceConnector/internal/storage/s3store"
	"github.com/sebplorenz/DataspaceConnector/internal/usagecontrol"
	"github.com/sebplorenz/DataspaceConnector/pkg/message"
	"github.com/sebplorenz/DataspaceConnector/pkg/msh"
	"github.com/sebplorenz/DataspaceConnector/pkg/transport"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connector: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connector: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("connector stopped", zap.Error(err))
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	keys, err := keystore.NewProvider(&cfg.Security.Keys)
	if err != nil {
		return fmt.Errorf("loading keys: %w", err)
	}

	var identity server.IdentityProvider
	if cfg.Security.Keys.PrivateKeyFile != "" {
		issuer, err := auth.NewIssuer(auth.IssuerConfig{
			Issuer:   cfg.Security.Issuer,
			Subject:  cfg.Connector.ID,
			Audience: cfg.Security.Audience,
			TTL:      cfg.Security.TokenTTL,
			Keys:     keys,
		})
		if err != nil {
			return fmt.Errorf("creating token issuer: %w", err)
		}
		identity = issuer
	} else {
		logger.Warn("no signing key configured, messages are sent without a security token")
	}

	var validator msh.TokenValidator
	if !cfg.Security.DisableTokenValidation {
		v, err := auth.NewValidator(auth.ValidatorConfig{
			Issuer:   cfg.Security.Issuer,
			Audience: cfg.Security.Audience,
			JWKSUrl:  cfg.Security.JWKSUrl,
			Leeway:   cfg.Security.Leeway,
			Keys:     keys,
			Logger:   logger.Named("auth"),
		})
		if err != nil {
			return fmt.Errorf("creating token validator: %w", err)
		}
		validator = v
	} else {
		logger.Warn("inbound token validation is disabled")
	}

	exchangeMetrics := msh.NewMetrics(reg)
	builder := message.NewBuilder()

	httpsConfig := transport.DefaultHTTPSConfig()
	httpsConfig.Timeout = cfg.Transport.Timeout
	httpsConfig.BreakerMaxFailures = cfg.Transport.BreakerMaxFailures
	httpsConfig.BreakerOpenTimeout = cfg.Transport.BreakerOpenTimeout

	engine, err := msh.NewEngine(msh.EngineConfig{
		Builder:   builder,
		Sender:    transport.NewHTTPSClient(httpsConfig),
		Validator: validator,
		Metrics:   exchangeMetrics,
		Logger:    logger.Named("exchange"),
	})
	if err != nil {
		return fmt.Errorf("creating exchange engine: %w", err)
	}

	clearingHouse := clearinghouse.NewClient(engine, clearinghouse.Config{URI: cfg.ClearingHouse.URI}, logger)
	var auditor msh.Auditor
	if clearingHouse.Enabled() {
		engine.SetAuditor(clearingHouse)
		auditor = clearingHouse
	}

	counter, err := usageCounter(ctx, cfg.UsageControl.Redis)
	if err != nil {
		return err
	}
	ucMetrics := usagecontrol.NewMetrics(reg)

	h, err := handler.New(handler.Config{
		Builder:           builder,
		Agreements:        store,
		Artifacts:         store,
		Catalog:           store,
		PolicyNegotiation: cfg.UsageControl.PolicyNegotiation,
		PEP: usagecontrol.NewPEP(usagecontrol.PEPConfig{
			Counter: counter,
			Metrics: ucMetrics,
			Logger:  logger.Named("pep"),
		}),
		Executor: usagecontrol.NewExecutor(usagecontrol.ExecutorConfig{
			Reporter: clearingHouse,
			Counter:  counter,
			Metrics:  ucMetrics,
			Logger:   logger.Named("pep"),
		}),
		AgreementLogger: clearingHouse,
		Auditor:         auditor,
		Logger:          logger.Named("handler"),
	})
	if err != nil {
		return fmt.Errorf("creating handlers: %w", err)
	}

	var replays *msh.ReplayGuard
	if window := cfg.Connector.ReplayWindow; window > 0 {
		replays = msh.NewReplayGuard(window)
		go replays.Run(ctx, window)
	}

	dispatcher := msh.NewDispatcher(msh.DispatcherConfig{
		Validator:       validator,
		InboundVersions: cfg.Connector.InboundModelVersions,
		Replays:         replays,
		Metrics:         exchangeMetrics,
		Logger:          logger.Named("dispatcher"),
	})
	h.Register(dispatcher)

	srv, err := server.New(cfg, server.Options{
		Store:      store,
		Dispatcher: dispatcher,
		Identity:   identity,
		Gatherer:   reg,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	var primary storage.Store
	switch cfg.Type {
	case config.StorageMongoDB:
		s, err := mongodb.NewStore(ctx, &mongodb.Config{
			URI:            cfg.MongoDB.URI,
			Database:       cfg.MongoDB.Database,
			GridFSBucket:   cfg.MongoDB.GridFS.BucketName,
			ChunkSizeBytes: int32(cfg.MongoDB.GridFS.ChunkSizeBytes),
		})
		if err != nil {
			return nil, err
		}
		primary = s
	case config.StoragePostgres:
		s, err := postgres.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		primary = s
	default:
		primary = memory.NewStore()
	}

	if cfg.S3.Bucket == "" {
		return primary, nil
	}
	artifacts, err := s3store.NewStore(ctx, s3store.Config{
		Bucket:    cfg.S3.Bucket,
		Region:    cfg.S3.Region,
		Endpoint:  cfg.S3.Endpoint,
		Prefix:    cfg.S3.Prefix,
		PathStyle: cfg.S3.PathStyle,
	})
	if err != nil {
		primary.Close(ctx)
		return nil, err
	}
	return storage.Combine(primary, artifacts), nil
}

func usageCounter(ctx context.Context, cfg config.RedisConfig) (usagecontrol.UsageCounter, error) {
	if cfg.Address == "" {
		return usagecontrol.NewMemoryCounter(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return usagecontrol.NewRedisCounter(client), nil
}
