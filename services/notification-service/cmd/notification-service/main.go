package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/mycontacts-app/mycontacts/libs/config"
	"github.com/mycontacts-app/mycontacts/libs/httpx"
	"github.com/mycontacts-app/mycontacts/libs/kafkax"
	otelx "github.com/mycontacts-app/mycontacts/libs/otel"
	"github.com/mycontacts-app/mycontacts/libs/pubsub"
	"github.com/mycontacts-app/mycontacts/libs/runtime"
	"github.com/mycontacts-app/mycontacts/services/notification-service/internal/consumer"
	"github.com/mycontacts-app/mycontacts/services/notification-service/internal/dispatch"
	"github.com/mycontacts-app/mycontacts/services/notification-service/internal/email"
	"github.com/mycontacts-app/mycontacts/services/notification-service/internal/notify"
)

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	kafkaBrokers, err := config.RequiredString("KAFKA_BROKERS")
	if err != nil {
		panic(err)
	}
	operator, err := config.RequiredString("NOTIFY_EMAIL_ADDRESS")
	if err != nil {
		panic(err)
	}

	mailer := email.NewSMTPSender(
		config.String("SMTP_HOST", "mailpit"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", "no-reply@mycontacts.local"),
		config.String("SMTP_USERNAME", ""),
		config.String("SMTP_PASSWORD", ""),
	)
	notifier := notify.New(mailer, operator, logger)
	dispatcher := dispatch.New(notifier.Handlers())

	sub, err := pubsub.NewKafkaSubscription(logger, pubsub.SubscriptionConfig{
		Brokers:           kafkaBrokers,
		Topic:             config.String("KAFKA_CONSUME_TOPIC", "contacts.events.v1"),
		GroupID:           config.String("KAFKA_GROUP_ID", "notification-service"),
		MaxInFlight:       config.Int("MAX_IN_FLIGHT", 8),
		MaxDeliveries:     config.Int("MAX_DELIVERIES", 5),
		RedeliveryBackoff: config.Duration("REDELIVERY_BACKOFF", 2*time.Second),
		DrainTimeout:      config.Duration("DRAIN_TIMEOUT", 20*time.Second),
	})
	if err != nil {
		logger.Error("kafka subscription setup failed", "err", err)
		panic(err)
	}

	consumerErr := make(chan error, 1)
	go func() {
		consumerErr <- consumer.New(logger, sub, dispatcher).Run(ctx)
	}()

	mux := runtime.NewBaseMux(
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		if err := <-consumerErr; err != nil {
			logger.Error("consumer stopped with error", "err", err)
			exitCode = 1
		}
	case err := <-consumerErr:
		// The consumer only returns early on unrecoverable broker failure;
		// exit non-zero so the supervisor restarts the process.
		if err != nil {
			logger.Error("consumer terminated", "err", err)
			exitCode = 1
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("worker stopped")
	os.Exit(exitCode)
}
