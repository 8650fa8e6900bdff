package main

import (
	"context"
	"errors"
	"log"
	"net"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"zero-trust-session-core/internal/app"
	"zero-trust-session-core/internal/config"
	healthhandler "zero-trust-session-core/internal/health/handler"
	identityhandler "zero-trust-session-core/internal/identity/handler"
	"zero-trust-session-core/internal/server"
	"zero-trust-session-core/internal/session"
	"zero-trust-session-core/internal/telemetry"
	telemetryotel "zero-trust-session-core/internal/telemetry/otel"
	"zero-trust-session-core/internal/telemetry/producer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTelEndpoint, cfg.OTelServiceName, cfg.OTelInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()

	// Security events go to Kafka when configured, otherwise to the OTel log pipeline.
	var events telemetry.EventEmitter
	kafkaProducer := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.TelemetryKafkaTopic)
	if kafkaProducer != nil {
		events = kafkaProducer
		log.Printf("telemetry: emitting events to kafka topic %s", cfg.TelemetryKafkaTopic)
	} else {
		events = telemetryotel.NewEventEmitter(providers.LoggerProvider)
	}

	core, err := app.New(ctx, cfg, app.Options{Events: events, Meter: providers.Meter("ztsession")})
	if err != nil {
		log.Fatalf("app: %v", err)
	}
	defer core.Close()

	var pinger healthhandler.Pinger
	if core.DB != nil {
		pinger = core.DB
	}
	checker := healthhandler.NewChecker(pinger, core.Policy)

	grpcServer, hs := server.NewServer(server.Deps{
		Auth:    core.Auth,
		Admins:  core.Admins,
		Audit:   core.Audit,
		Events:  events,
		Tracing: cfg.OTelEndpoint != "",
	})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	sweeper := session.NewSweeper(core.Sessions, cfg.SessionCleanupInterval())
	sweeper.OnSweep = func(ctx context.Context, removed int64) { core.Metrics.SessionsSwept(ctx, removed) }

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return checker.Run(gctx, hs, 10*time.Second, identityhandler.ServiceName) })
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down gRPC server...")
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Printf("server: %v", err)
	}
	log.Println("gRPC server stopped")

	// Let in-flight async emits finish before the exporters shut down.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Printf("kafka: close: %v", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel: shutdown: %v", err)
	}
}
