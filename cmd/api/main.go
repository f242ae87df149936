package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobur-yusupov/daylog-sub000/internal/config"
	"github.com/bobur-yusupov/daylog-sub000/internal/infrastructure/dynamo"
	jwtinfra "github.com/bobur-yusupov/daylog-sub000/internal/infrastructure/jwt"
	"github.com/bobur-yusupov/daylog-sub000/internal/infrastructure/smtp"
	"github.com/bobur-yusupov/daylog-sub000/internal/infrastructure/sns"
	transporthttp "github.com/bobur-yusupov/daylog-sub000/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	// JWT provider is optional: without keys the API still serves the
	// public flows, but authenticated routes are left unprotected.
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		log.Printf("WARN: JWT provider not available: %v", err)
	}

	// SMTP mailer.
	mailer := smtp.NewMailer(cfg)

	// SNS security-alert publisher, disabled when no topic ARN is configured.
	alerts, err := sns.NewPublisher(cfg)
	if err != nil {
		log.Printf("WARN: SNS alert publisher not available: %v", err)
	}

	deps := &transporthttp.Deps{
		UserRepo:    dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users),
		SessionRepo: dynamo.NewSessionRepo(dynamoClient, cfg.DynamoTables.Sessions),
		OtpRepo:     dynamo.NewOtpRepo(dynamoClient, cfg.DynamoTables.OtpTokens),
		FlowRepo:    dynamo.NewFlowRepo(dynamoClient, cfg.DynamoTables.FlowSessions),
		Mailer:      mailer,
		Alerts:      alerts,
		JWTProvider: jwtProvider,
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
