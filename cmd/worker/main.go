package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"campaigns/internal/awsutil"
	"campaigns/internal/campaign"
	"campaigns/internal/config"
	"campaigns/internal/dispatch"
	"campaigns/internal/httpserver"
	"campaigns/internal/logging"
	"campaigns/internal/observability"
	"campaigns/internal/providers/whatsapp"
	sqsqueue "campaigns/internal/queue/sqs"
	"campaigns/internal/quota"
	"campaigns/internal/store/pg"
	"campaigns/internal/trigger"
	"campaigns/internal/worker"
)

func main() {
	cfg := config.LoadWorker()
	logging.Init("worker", cfg.LogFormat, cfg.LogLevel)

	tickInterval := mustDuration("TICK_INTERVAL", cfg.TickInterval)
	staleLeaseAfter := mustDuration("STALE_LEASE_AFTER", cfg.StaleLeaseAfter)

	ctx, cancel := context.WithCancel(context.Background())

	db, err := pg.NewPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("worker db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	dbStore := pg.New(db)

	sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
	if err != nil {
		slog.Error("worker sqs client init failed", "err", err)
		os.Exit(1)
	}

	startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
	defer startupCancel()
	if err := db.Ping(startupCtx); err != nil {
		slog.Error("db not reachable", "err", err)
		os.Exit(1)
	}
	if _, err := sqsClient.GetQueueAttributes(startupCtx, &sqs.GetQueueAttributesInput{
		QueueUrl:       &cfg.EventsQueueURL,
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	}); err != nil {
		slog.Error("sqs not reachable", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	svc := &campaign.Service{Store: dbStore, MaxRecipients: cfg.MaxRecipientsPerCampaign}
	limiter := &quota.Limiter{Store: dbStore}
	evaluator := &trigger.Evaluator{Store: dbStore, Starter: svc}

	wa := &whatsapp.Client{
		AccessToken: cfg.WhatsAppAccessToken,
		HTTP:        &http.Client{Timeout: 8 * time.Second},
		BaseURL:     cfg.WhatsAppBaseURL,
		APIVersion:  cfg.WhatsAppAPIVersion,
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "whatsapp",
		MaxRequests: 3,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 10 },
	})

	dispatcher := &dispatch.Dispatcher{
		Ledger:    dbStore,
		Quota:     limiter,
		Templates: dbStore,
		Sender:    wa,
		Tracker:   dbStore,
		Breaker:   cb,
	}

	loop := &worker.Loop{
		Store:           dbStore,
		Dispatcher:      dispatcher,
		Triggers:        evaluator,
		Stats:           svc,
		Quota:           limiter,
		Interval:        tickInterval,
		BatchSize:       cfg.BatchSize,
		StaleLeaseAfter: staleLeaseAfter,
		Throttle:        rate.NewLimiter(rate.Limit(cfg.SendRPS), cfg.SendBurst),
	}

	// health + metrics servers
	healthMux := httpserver.New().Mux
	healthMux.Use(httpserver.Logging)
	healthMux.HandleFunc("/healthz", httpserver.Healthz()).Methods(http.MethodGet)
	healthMux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second,
		func(c context.Context) error { return db.Ping(c) },
		func(c context.Context) error {
			_, err := sqsClient.GetQueueAttributes(c, &sqs.GetQueueAttributesInput{
				QueueUrl:       &cfg.EventsQueueURL,
				AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
			})
			return err
		},
	)).Methods(http.MethodGet)

	healthSrv := &http.Server{Addr: ":" + cfg.Port, Handler: healthMux}
	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: promhttp.Handler()}

	healthErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker health listening", "port", cfg.Port)
		healthErrCh <- healthSrv.ListenAndServe()
	}()
	metricsErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker metrics listening", "port", cfg.MetricsPort)
		metricsErrCh <- metricsSrv.ListenAndServe()
	}()

	// domain event bus -> trigger evaluator
	consumer := &sqsqueue.EventConsumer{
		SQS:      sqsClient,
		QueueURL: cfg.EventsQueueURL,
		Options: sqsqueue.Options{
			WaitTimeSeconds:   cfg.SQSWaitTime,
			MaxMessages:       cfg.SQSMaxMsgs,
			VisibilityTimeout: cfg.SQSVizTimeout,
		},
	}
	pollErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker starting event poll", "queue_url", cfg.EventsQueueURL)
		pollErrCh <- consumer.Poll(ctx, cfg.EventConcurrency, func(ctx context.Context, env sqsqueue.Envelope) error {
			return evaluator.HandleEvent(ctx, env.Topic, env.Payload)
		})
	}()

	slog.Info("worker delivery loop starting",
		"tick_interval", tickInterval.String(),
		"batch_size", cfg.BatchSize,
		"stale_lease_after", staleLeaseAfter.String(),
	)
	loop.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-pollErrCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("worker event poll failed", "err", err)
			os.Exit(1)
		}
	case err := <-healthErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("worker health server failed", "err", err)
			os.Exit(1)
		}
	case err := <-metricsErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("worker metrics server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("worker shutdown", "signal", sig.String())
	}

	cancel()
	loop.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	select {
	case <-pollErrCh:
	case <-time.After(10 * time.Second):
		slog.Info("worker shutdown timeout waiting for event poll")
	}
}

func mustDuration(name, raw string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Error("invalid duration", "env", name, "value", raw, "err", err)
		os.Exit(1)
	}
	return d
}
