package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"ocpihub/internal/adminauth"
	"ocpihub/internal/assets"
	"ocpihub/internal/assets/slowstorage"
	"ocpihub/internal/commandlog"
	"ocpihub/internal/events"
	"ocpihub/internal/ocpi"
	"ocpihub/internal/party"
	"ocpihub/internal/platform/config"
	"ocpihub/internal/platform/httpserver"
	"ocpihub/internal/platform/logger"
	"ocpihub/internal/platform/metrics"
	platformredis "ocpihub/internal/platform/redis"
	"ocpihub/internal/registration"
	"ocpihub/internal/registration/versionsclient"
	httptransport "ocpihub/internal/transport/http"
)

// main wires high-level dependencies, replays the command logs, exposes the
// HTTP router, and keeps the server lifecycle small. Business logic lives in
// the internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	partyLog, err := commandlog.Open(cfg.PartyLogPath)
	if err != nil {
		log.Error("open party command log", "error", err)
		os.Exit(1)
	}
	defer partyLog.Close()

	assetLog, err := commandlog.Open(cfg.AssetLogPath)
	if err != nil {
		log.Error("open asset command log", "error", err)
		os.Exit(1)
	}
	defer assetLog.Close()

	notifier := events.NewNotifier(log)

	if len(cfg.KafkaBrokers) > 0 {
		sink, err := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			sink.Close(flushCtx)
		}()
		sink.Subscribe(notifier)
	}

	registry := party.NewRegistry(partyLog, log)

	var keepRemoved assets.KeepRemovedEVSEs
	if !cfg.KeepRemovedEVSEs {
		keepRemoved = func(ocpi.EVSE) bool { return false }
	}

	var lookups assets.Lookups

	rdb, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	var redisStore *slowstorage.RedisStore
	if rdb != nil {
		defer rdb.Close()
		redisStore = slowstorage.NewRedisStore(rdb.Client, "ocpihub", 0, log)
		lookups.TokenStatus = slowstorage.Cached(redisStore.TokenStatusLookup, time.Minute)
		lookups.Tariff = redisStore.TariffLookup
	}

	var pgStore *slowstorage.PostgresStore
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		pgStore = slowstorage.NewPostgresStore(pool, log)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			log.Error("prepare postgres schema", "error", err)
			os.Exit(1)
		}
		lookups.Location = slowstorage.Cached(pgStore.LocationLookup, time.Minute)
		lookups.CDR = slowstorage.Cached(pgStore.CDRLookup, time.Minute)
	}

	store := assets.New(assets.Config{
		Log:             assetLog,
		Logger:          log,
		Notifier:        notifier,
		AllowDowngrades: cfg.AllowDowngrades,
		KeepRemoved:     keepRemoved,
		TariffTolerance: cfg.TariffTolerance,
		Lookups:         lookups,
	})

	// Rebuild state before subscribing the write-through mirrors, so replay
	// does not re-publish history.
	g, replayCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n := 0
		err := partyLog.Replay(replayCtx, func(rec commandlog.Record) error {
			if err := registry.Apply(rec); err != nil {
				return err
			}
			n++
			return nil
		}, func(line string, err error) {
			log.Warn("skipping unreplayable party command", "error", err, "line", line)
		})
		m.Replayed("parties", n)
		return err
	})
	g.Go(func() error {
		n, err := store.Replay(replayCtx, assetLog)
		m.Replayed("assets", n)
		return err
	})
	if err := g.Wait(); err != nil {
		log.Error("command log replay failed", "error", err)
		os.Exit(1)
	}

	if redisStore != nil {
		redisStore.Subscribe(notifier, store.Tariffs.Versions)
	}
	if pgStore != nil {
		pgStore.Subscribe(notifier)
	}

	regService := registration.NewService(registry, versionsclient.Factory, registration.OwnIdentity{
		CountryCode: cfg.CountryCode,
		PartyID:     cfg.PartyID,
		Role:        cfg.Role,
		BusinessDetails: ocpi.BusinessDetails{
			Name:    cfg.PartyName,
			Website: cfg.PartyWebsite,
		},
		VersionsURL: cfg.VersionsURL(),
	}, m, log)

	jwtService := adminauth.NewJWTService(cfg.JWTSigningKey, "ocpihub", "ocpihub-admin")

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:          log,
		Metrics:         m,
		Registry:        registry,
		Assets:          store,
		Registration:    regService,
		JWTValidator:    jwtService,
		BaseURL:         cfg.ExternalBaseURL,
		TariffTolerance: cfg.TariffTolerance,
	})

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting ocpihub", "addr", cfg.Addr, "party", cfg.CountryCode+"*"+cfg.PartyID, "role", cfg.Role)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
