// Command server wires the verification engine and runs it: HTTP surface,
// inactivity sweep, document-session reaper and audit relay under one
// supervision group. Business logic lives in the internal packages.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	adminpkg "securevault/internal/admin"
	"securevault/internal/audit"
	"securevault/internal/audit/relay"
	auditmem "securevault/internal/audit/store/memory"
	auditpg "securevault/internal/audit/store/postgres"
	"securevault/internal/docsession"
	httpapi "securevault/internal/http"
	"securevault/internal/inactivity"
	"securevault/internal/notify"
	"securevault/internal/objectstore"
	"securevault/internal/platform/config"
	"securevault/internal/platform/httpserver"
	"securevault/internal/platform/logger"
	"securevault/internal/platform/metrics"
	"securevault/internal/platform/middleware"
	pgplatform "securevault/internal/platform/postgres"
	redisplatform "securevault/internal/platform/redis"
	"securevault/internal/succession"
	succstore "securevault/internal/succession/store"
	"securevault/internal/token"
	nomineehandler "securevault/internal/verification/handler"
	vservice "securevault/internal/verification/service"
	vstore "securevault/internal/verification/store"
	txcontext "securevault/pkg/platform/tx"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := pgplatform.Open(cfg.Postgres)
	if err != nil {
		log.Error("postgres unavailable", "err", err)
		os.Exit(1)
	}
	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "err", err)
		os.Exit(1)
	}

	var (
		users      succstore.UserStore
		nominees   succstore.NomineeStore
		assets     succstore.AssetStore
		requests   vstore.RequestStore
		documents  vstore.DocumentStore
		auditStore audit.Store
		txRunner   txcontext.Runner
	)
	if db != nil {
		users = succstore.NewPostgresUsers(db)
		nominees = succstore.NewPostgresNominees(db)
		assets = succstore.NewPostgresAssets(db)
		requests = vstore.NewPostgresRequests(db)
		documents = vstore.NewPostgresDocuments(db)
		auditStore = auditpg.New(db)
		txRunner = pgplatform.NewTxRunner(db)
	} else {
		log.Warn("POSTGRES_URL unset, using in-memory stores")
		users = succstore.NewInMemoryUsers()
		nominees = succstore.NewInMemoryNominees()
		assets = succstore.NewInMemoryAssets()
		requests = vstore.NewInMemoryRequests()
		documents = vstore.NewInMemoryDocuments()
		auditStore = auditmem.NewInMemory()
		txRunner = txcontext.Passthrough{}
	}

	var (
		tokenStore   token.Store
		sessionStore docsession.Store
	)
	if redisClient != nil {
		tokenStore = token.NewRedisStore(redisClient.Client)
		sessionStore = docsession.NewRedisStore(redisClient.Client)
	} else {
		log.Warn("REDIS_URL unset, using in-memory token and session stores")
		tokenStore = token.NewInMemoryStore()
		sessionStore = docsession.NewInMemoryStore()
	}

	recorder := audit.NewRecorder(auditStore)
	tokens := token.NewService(tokenStore, cfg.Workflow.TokenTTL)
	objects := objectstore.NewInMemory()
	notifier := notify.NewLogNotifier(log)

	engine := vservice.NewEngine(vservice.Config{
		Requests:  requests,
		Documents: documents,
		Nominees:  nominees,
		Tokens:    tokens,
		Objects:   objects,
		Audit:     recorder,
		Notifier:  notifier,
		Metrics:   m,
		Tx:        txRunner,
		Logger:    log,
		Workflow:  cfg.Workflow,
	})
	gate := adminpkg.NewGate(adminpkg.GateConfig{
		Requests:  requests,
		Documents: documents,
		Assets:    assets,
		Nominees:  nominees,
		Tokens:    tokens,
		Audit:     recorder,
		Notifier:  notifier,
		Metrics:   m,
		Tx:        txRunner,
		Logger:    log,
		Workflow:  cfg.Workflow,
	})
	sessions := docsession.NewService(sessionStore, documents, objects, recorder, m, log, cfg.Workflow.DocSessionTTL)
	monitor := inactivity.NewMonitor(users, assets, engine, recorder, m, txRunner, log)
	vault := succession.NewService(users, nominees, assets, engine, recorder, txRunner, log)

	validator := middleware.NewJWTValidator(cfg.Server.AdminJWTSecret)
	nomineeHandler := nomineehandler.New(engine, log, cfg.Workflow.MaxUploadBytes)
	adminHandler := adminpkg.NewHandler(gate, sessions, validator, log)
	ownerHandler := succession.NewHandler(vault, monitor, validator, log)

	checks := map[string]httpapi.HealthCheck{}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if redisClient != nil {
		checks["redis"] = redisClient.Health
	}
	router := httpapi.NewRouter(log, checks, nomineeHandler, adminHandler, ownerHandler)
	srv := httpserver.New(cfg.Server.Addr, router)

	g, ctx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		err := monitor.Run(ctx, cfg.Workflow.SweepInterval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := sessions.Run(ctx, cfg.Workflow.DocSessionTTL/2)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if len(cfg.Kafka.Brokers) > 0 && db != nil {
		producer, err := relay.NewKafkaProducer(rootCtx, cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix)
		if err != nil {
			log.Error("kafka unavailable", "err", err)
			os.Exit(1)
		}
		defer producer.Close()
		auditRelay := relay.New(db, producer, log, cfg.Kafka.RelayInterval, cfg.Kafka.RelayBatch)
		g.Go(func() error {
			err := auditRelay.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("server exited", "err", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
