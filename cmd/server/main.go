// Command server runs the matrix progression engine: the HTTP API, the
// notification worker, and (when brokers are configured) the member-joined
// consumer, all sharing one wired service graph.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"matrixpay/internal/enrollment"
	enrollmenthandler "matrixpay/internal/enrollment/handler"
	"matrixpay/internal/ledger"
	ledgerhandler "matrixpay/internal/ledger/handler"
	ledgerservice "matrixpay/internal/ledger/service"
	"matrixpay/internal/network"
	netservice "matrixpay/internal/network/service"
	"matrixpay/internal/notifier"
	"matrixpay/internal/platform/config"
	"matrixpay/internal/platform/httpserver"
	"matrixpay/internal/platform/logger"
	"matrixpay/internal/platform/metrics"
	"matrixpay/internal/platform/middleware"
	"matrixpay/internal/platform/postgres"
	platformredis "matrixpay/internal/platform/redis"
	"matrixpay/internal/stage"
	stageservice "matrixpay/internal/stage/service"
	httptransport "matrixpay/internal/transport/http"
	"matrixpay/internal/treequery"
	treequeryhandler "matrixpay/internal/treequery/handler"
	"matrixpay/migrations"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	health := map[string]httptransport.HealthChecker{}

	db, err := postgres.Open(cfg.PostgresURL)
	if err != nil {
		return err
	}

	var (
		netStore    network.Store
		completions stage.CompletionStore
		ledgerStore ledger.Store
	)
	if db != nil {
		defer db.Close()
		if err := migrations.Apply(ctx, db); err != nil {
			return err
		}
		netStore = network.NewPostgres(db)
		completions = stage.NewPostgresCompletionStore(db)
		ledgerStore = ledger.NewPostgres(db)
		health["postgres"] = db.Ping
		log.Info("using postgres stores")
	} else {
		netStore = network.NewInMemoryStore()
		completions = stage.NewInMemoryCompletionStore()
		ledgerStore = ledger.NewInMemoryStore()
		log.Warn("no postgres URL configured, using in-memory stores")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		health["redis"] = func() error { return redisClient.Health(context.Background()) }
	}

	var sinks []notifier.Sink
	if sink := notifier.NewRedisSink(redisClient); sink != nil {
		sinks = append(sinks, sink)
	}
	kafkaSink, err := notifier.NewKafkaSink(cfg.Kafka)
	if err != nil {
		return err
	}
	if kafkaSink != nil {
		defer kafkaSink.Close()
		if err := kafkaSink.EnsureTopics(ctx); err != nil {
			return err
		}
		sinks = append(sinks, kafkaSink)
	}
	events := notifier.New(log, 256, sinks...)

	graph, err := netservice.New(netStore)
	if err != nil {
		return err
	}
	ledgerSvc, err := ledgerservice.New(ledgerStore, events, log, m)
	if err != nil {
		return err
	}
	engine, err := stageservice.New(graph, completions, ledgerSvc, events, log, m)
	if err != nil {
		return err
	}
	trees, err := treequery.New(graph, engine, ledgerSvc)
	if err != nil {
		return err
	}
	enroll, err := enrollment.New(graph, engine, events, log, m)
	if err != nil {
		return err
	}

	consumer, err := notifier.NewConsumer(cfg.Kafka, log, func(ctx context.Context, p notifier.MemberJoinedPayload) error {
		return enroll.ProcessMemberJoined(ctx, enrollment.JoinEvent{
			MemberID:    p.MemberID,
			DisplayName: p.DisplayName,
			Handle:      p.Handle,
			SponsorCode: p.SponsorCode,
		})
	})
	if err != nil {
		return err
	}

	validator := middleware.NewHMACValidator(cfg.JWTSigningKey)
	router := httptransport.NewRouter(log, m, health,
		enrollmenthandler.New(enroll, log, cfg.EventSharedToken),
		ledgerhandler.New(ledgerSvc, log, validator, cfg.EventSharedToken),
		treequeryhandler.New(trees, graph, log, validator),
	)
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return events.Run(ctx)
	})
	if consumer != nil {
		g.Go(func() error {
			log.Info("consuming member-joined events", "group", cfg.Kafka.ConsumerGroup)
			return consumer.Run(ctx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
