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

	"campaigns/internal/awsutil"
	"campaigns/internal/config"
	"campaigns/internal/domain"
	"campaigns/internal/httpserver"
	"campaigns/internal/logging"
	"campaigns/internal/observability"
	sqsqueue "campaigns/internal/queue/sqs"
	"campaigns/internal/store"
	"campaigns/internal/store/pg"
	"campaigns/internal/util"
)

func main() {
	cfg := config.LoadWebhookProcessor()
	logging.Init("webhook-processor", cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())

	db, err := pg.NewPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("webhook-processor db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	dbStore := pg.New(db)

	sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
	if err != nil {
		slog.Error("webhook-processor sqs client init failed", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	consumer := &sqsqueue.StatusConsumer{
		SQS:      sqsClient,
		QueueURL: cfg.StatusEventsQueueURL,
		Options: sqsqueue.Options{
			WaitTimeSeconds:   cfg.SQSWaitTime,
			MaxMessages:       cfg.SQSMaxMsgs,
			VisibilityTimeout: cfg.SQSVizTimeout,
		},
	}

	healthMux := httpserver.New().Mux
	healthMux.Use(httpserver.Logging)
	healthMux.HandleFunc("/healthz", httpserver.Healthz()).Methods(http.MethodGet)
	healthMux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second,
		func(c context.Context) error { return db.Ping(c) },
		func(c context.Context) error {
			_, err := sqsClient.GetQueueAttributes(c, &sqs.GetQueueAttributesInput{
				QueueUrl:       &cfg.StatusEventsQueueURL,
				AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
			})
			return err
		},
	)).Methods(http.MethodGet)

	healthSrv := &http.Server{Addr: ":" + cfg.Port, Handler: healthMux}
	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: promhttp.Handler()}

	healthErrCh := make(chan error, 1)
	go func() {
		slog.Info("webhook-processor health listening", "port", cfg.Port)
		healthErrCh <- healthSrv.ListenAndServe()
	}()
	metricsErrCh := make(chan error, 1)
	go func() {
		slog.Info("webhook-processor metrics listening", "port", cfg.MetricsPort)
		metricsErrCh <- metricsSrv.ListenAndServe()
	}()

	pollErrCh := make(chan error, 1)
	go func() {
		slog.Info("webhook-processor starting poll", "queue_url", cfg.StatusEventsQueueURL)
		pollErrCh <- consumer.Poll(ctx, cfg.ProcessorConcurrency, func(ctx context.Context, ev sqsqueue.StatusEvent) error {
			return processStatusEvent(ctx, dbStore, ev)
		})
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-pollErrCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("webhook-processor poll failed", "err", err)
			os.Exit(1)
		}
	case err := <-healthErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("webhook-processor health server failed", "err", err)
			os.Exit(1)
		}
	case err := <-metricsErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("webhook-processor metrics server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("webhook-processor shutdown", "signal", sig.String())
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	select {
	case <-pollErrCh:
	case <-time.After(10 * time.Second):
		slog.Info("webhook-processor shutdown timeout waiting for poll loop")
	}
}

// processStatusEvent applies one provider delivery callback to the tracking
// record and the recipient ledger. A callback arriving before the send path
// has persisted its provider message id returns an error so SQS retries it.
func processStatusEvent(ctx context.Context, st *pg.Store, ev sqsqueue.StatusEvent) error {
	var newStatus domain.RecipientStatus
	switch ev.Status {
	case "delivered":
		newStatus = domain.RecipientDelivered
	case "read":
		newStatus = domain.RecipientRead
	case "failed":
		newStatus = domain.RecipientFailed
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dbCancel()

	if newStatus != "" {
		applied, err := st.ApplyProviderStatus(dbCtx, store.ProviderMsgUpdate{
			ProviderMsgID: ev.ProviderMsgID,
			NewStatus:     newStatus,
			ErrorCode:     ev.ErrorCode,
			Now:           util.NowUTC(),
		})
		if err != nil {
			return err
		}
		if !applied {
			return errors.New("no message for provider_msg_id yet")
		}
		observability.DeliveryEvents.WithLabelValues(ev.Status).Inc()
	}

	return st.InsertDeliveryEvent(dbCtx, store.DeliveryEventInsert{
		Provider:      ev.Provider,
		ProviderMsgID: ev.ProviderMsgID,
		VendorStatus:  ev.Status,
		ErrorCode:     ev.ErrorCode,
		OccurredAt:    &ev.ReceivedAt,
	})
}
