// main wires dependencies and runs the server lifecycle. Business logic lives
// in the internal service packages.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"fundledger/internal/chain/checkpoint"
	"fundledger/internal/chain/sealer"
	"fundledger/internal/chain/verifier"
	decisionhandler "fundledger/internal/decision/handler"
	decisionservice "fundledger/internal/decision/service"
	decisionstore "fundledger/internal/decision/store"
	"fundledger/internal/events/relay"
	eventstore "fundledger/internal/events/store"
	"fundledger/internal/platform/config"
	"fundledger/internal/platform/httpserver"
	"fundledger/internal/platform/logger"
	"fundledger/internal/platform/metrics"
	"fundledger/internal/platform/middleware"
	"fundledger/internal/platform/postgres"
	platformredis "fundledger/internal/platform/redis"
	ruleshandler "fundledger/internal/rules/handler"
	rulesservice "fundledger/internal/rules/service"
	rulesstore "fundledger/internal/rules/store"
	"fundledger/pkg/platform/middleware/requestid"
	"fundledger/pkg/platform/middleware/requesttime"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores: postgres when configured, in-memory otherwise.
	var (
		records  decisionstore.Store
		rulesets rulesstore.RuleSetStore
		rules    rulesstore.CompositeRuleStore
		outbox   eventstore.Outbox
	)
	if cfg.Postgres.DSN != "" {
		db, err := postgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			log.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Error("postgres migrate failed", "error", err)
			os.Exit(1)
		}
		records = decisionstore.NewPostgres(db)
		rulesets = rulesstore.NewPostgresRuleSets(db)
		rules = rulesstore.NewPostgresCompositeRules(db)
		outbox = eventstore.NewPostgres(db)
	} else {
		log.Warn("no postgres DSN configured, using in-memory stores")
		records = decisionstore.NewInMemory()
		rulesets = rulesstore.NewInMemoryRuleSets()
		rules = rulesstore.NewInMemoryCompositeRules()
		outbox = eventstore.NewInMemory()
	}

	verifierOpts := []verifier.Option{verifier.WithLogger(log)}
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connect failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		verifierOpts = append(verifierOpts, verifier.WithCheckpoint(checkpoint.NewRedis(redisClient)))
	}
	chainVerifier := verifier.New(records, verifierOpts...)

	chainSealer := sealer.New(records,
		sealer.WithInterval(cfg.Worker.SealInterval),
		sealer.WithLogger(log))

	decisionSvc := decisionservice.New(records, rulesets, rules,
		decisionservice.WithLogger(log),
		decisionservice.WithMetrics(m),
		decisionservice.WithOutbox(outbox),
		decisionservice.WithVerifier(chainVerifier),
		decisionservice.WithSealer(chainSealer))

	rulesSvc := rulesservice.New(rulesets, rules,
		rulesservice.WithLogger(log),
		rulesservice.WithMetrics(m),
		rulesservice.WithOutbox(outbox))

	validator := middleware.NewJWTValidator(cfg.Server.JWTSigningKey)

	router := chi.NewRouter()
	router.Use(requestid.Middleware)
	router.Use(requesttime.Middleware)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, log))
		decisionhandler.New(decisionSvc, log).Register(r)
		ruleshandler.New(rulesSvc, log).Register(r)
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting fundledger", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	group.Go(func() error {
		if err := chainSealer.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.Kafka.Brokers...),
			kgo.DefaultProduceTopic(cfg.Kafka.Topic),
			kgo.RequiredAcks(kgo.AllISRAcks()),
		)
		if err != nil {
			log.Error("kafka connect failed", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		outboxRelay := relay.New(outbox, producer, cfg.Kafka.Topic,
			relay.WithInterval(cfg.Worker.RelayInterval),
			relay.WithLogger(log))
		group.Go(func() error {
			if err := outboxRelay.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		log.Warn("no kafka brokers configured, outbox relay disabled")
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
