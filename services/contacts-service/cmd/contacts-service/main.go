package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mycontacts-app/mycontacts/libs/config"
	"github.com/mycontacts-app/mycontacts/libs/db"
	"github.com/mycontacts-app/mycontacts/libs/httpx"
	"github.com/mycontacts-app/mycontacts/libs/kafkax"
	otelx "github.com/mycontacts-app/mycontacts/libs/otel"
	"github.com/mycontacts-app/mycontacts/libs/pubsub"
	"github.com/mycontacts-app/mycontacts/libs/runtime"
	"github.com/mycontacts-app/mycontacts/services/contacts-service/internal/handlers"
	"github.com/mycontacts-app/mycontacts/services/contacts-service/internal/migrate"
	"github.com/mycontacts-app/mycontacts/services/contacts-service/internal/publisher"
	"github.com/mycontacts-app/mycontacts/services/contacts-service/internal/storage"
)

func splitCSV(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func main() {
	service := config.String("SERVICE_NAME", "contacts-service")
	port, err := config.Port("PORT", "5000")
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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	tokenSecret, err := config.RequiredString("ACCESS_TOKEN_SECRET")
	if err != nil {
		panic(err)
	}
	kafkaBrokers, err := config.RequiredString("KAFKA_BROKERS")
	if err != nil {
		panic(err)
	}
	topic := config.String("KAFKA_TOPIC", "contacts.events.v1")

	if err := migrate.Up(dbURL); err != nil {
		logger.Error("migrations failed", "err", err)
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	kafkaPublisher, err := pubsub.NewKafkaPublisher(pubsub.PublisherConfig{
		Brokers: kafkaBrokers,
		Topic:   topic,
	})
	if err != nil {
		logger.Error("kafka publisher setup failed", "err", err)
		panic(err)
	}
	defer kafkaPublisher.Close()

	userRepo := storage.NewUserRepository(pool)
	contactRepo := storage.NewContactRepository(pool)
	eventPublisher := publisher.New(kafkaPublisher)

	userHandler := handlers.NewUserHandler(userRepo, tokenSecret)
	contactHandler := handlers.NewContactHandler(contactRepo, eventPublisher, logger)
	requireAuth := handlers.RequireAuth(tokenSecret)

	mux := runtime.NewBaseMux(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)},
	)
	mux.HandleFunc("/api/users/register", userHandler.Register)
	mux.HandleFunc("/api/users/login", userHandler.Login)
	mux.Handle("/api/users/current", requireAuth(http.HandlerFunc(userHandler.Current)))
	mux.Handle("/api/contacts", requireAuth(http.HandlerFunc(contactHandler.Collection)))
	mux.Handle("/api/contacts/", requireAuth(http.HandlerFunc(contactHandler.Item)))

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitCSV(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         10 * time.Minute,
		}),
	}
	rateLimit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if redisAddr := strings.TrimSpace(config.String("REDIS_ADDR", "")); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer rdb.Close()
		limiter := httpx.NewRedisRateLimiter(rdb, rateLimit, time.Minute, service)
		middlewares = append(middlewares, limiter.Middleware(logger, true))
	} else {
		middlewares = append(middlewares, httpx.NewRateLimiter(rateLimit, time.Minute).Middleware())
	}

	handler := httpx.Chain(mux, middlewares...)
	handler = otelhttp.NewHandler(handler, "contacts")
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

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
