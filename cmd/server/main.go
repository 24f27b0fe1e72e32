// @title Guestlist API
// @version 1.0
// @description Event registration with capacity, waitlists and mailings.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"guestlist/config"
	_ "guestlist/docs"
	"guestlist/internal/adapters/auth"
	"guestlist/internal/adapters/email"
	deliveryhttp "guestlist/internal/delivery/http"
	"guestlist/internal/delivery/http/controllers"
	"guestlist/internal/delivery/http/middleware"
	"guestlist/internal/domain"
	"guestlist/internal/repository/postgres"
	"guestlist/internal/repository/redis"
	"guestlist/internal/services"
	"guestlist/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := config.NewLogger()
	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.DBUrl)
	if err != nil {
		logger.Error("open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	startupCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := db.PingContext(startupCtx); err != nil {
		logger.Error("db ping", "err", err)
		os.Exit(1)
	}
	if err := migrations.Apply(startupCtx, db); err != nil {
		logger.Error("apply migrations", "err", err)
		os.Exit(1)
	}

	eventRepo := postgres.NewEventRepository(db)
	participantRepo := postgres.NewParticipantRepository(db)
	activityRepo := postgres.NewActivityRepository(db)
	userRepo := postgres.NewUserRepository(db)
	mailingRepo := postgres.NewMailingRepository(db)
	queueRepo := postgres.NewEmailQueueRepository(db)
	tx := postgres.NewTransactor(db)

	mailer, err := email.NewMailer(email.MailerConfig{
		Provider:    cfg.Mail.Provider,
		FromAddress: cfg.Mail.FromAddress,
		FromName:    cfg.Mail.FromName,
		SES: email.SESConfig{
			Region:             cfg.Mail.AWSRegion,
			AccessKeyID:        cfg.Mail.AWSAccessKeyID,
			SecretAccessKey:    cfg.Mail.AWSSecretAccessKey,
			InsecureSkipVerify: cfg.Mail.SESInsecureSkipVerify,
		},
	}, logger)
	if err != nil {
		logger.Error("create mailer", "err", err)
		os.Exit(1)
	}

	rateStore, closeStore, err := newRateLimitStore(startupCtx, cfg, db)
	if err != nil {
		logger.Error("rate limit store", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	retry := services.RetryPolicy{MaxRetries: cfg.Dispatch.MaxRetries, BaseBackoff: cfg.Dispatch.BaseBackoff}
	authSvc := services.NewAuthService(userRepo, auth.NewBcryptHasher(bcrypt.DefaultCost), auth.NewJWTIssuer(cfg.JWTSecret), cfg.JWTExpiry)
	eventSvc := services.NewEventService(eventRepo, participantRepo, cfg.RequestTimeout)
	participantSvc := services.NewParticipantService(eventRepo, participantRepo, activityRepo, tx, logger, cfg.RequestTimeout)
	rsvpSvc := services.NewRsvpService(eventRepo, participantRepo, activityRepo, tx, logger, cfg.RequestTimeout)
	mailingSvc := services.NewMailingService(
		eventRepo, participantRepo, userRepo, mailingRepo, queueRepo,
		mailer, email.NewMailingRenderer(), tx,
		services.MailingConfig{
			DirectSendThreshold: cfg.Dispatch.DirectSendThreshold,
			PublicBaseURL:       cfg.PublicBaseURL,
			Retry:               retry,
		},
		logger,
		// Direct sends pace and retry inline, so they get more room than plain reads.
		cfg.RequestTimeout+time.Minute,
	)
	dispatcher := services.NewDispatcher(queueRepo, mailer, services.DispatcherConfig{
		BatchSize:  cfg.Dispatch.BatchSize,
		SendDelay:  cfg.Dispatch.SendDelay,
		ClaimLease: cfg.Dispatch.ClaimLease,
		Retry:      retry,
	}, logger)

	router := deliveryhttp.NewRouter(deliveryhttp.RouterConfig{
		Logger:         logger,
		Verifier:       auth.NewJWTVerifier(cfg.JWTSecret),
		Limiter:        services.NewRateLimiter(rateStore, logger),
		LoginRule:      domain.RateLimitRule{Prefix: domain.RateLimitPrefixLogin, MaxRequests: cfg.RateLimit.LoginMax, Window: cfg.RateLimit.LoginWindow},
		RsvpRule:       domain.RateLimitRule{Prefix: domain.RateLimitPrefixRsvp, MaxRequests: cfg.RateLimit.RsvpMax, Window: cfg.RateLimit.RsvpWindow},
		ClientKey:      middleware.ClientIP(cfg.RateLimit.KeyHeader, cfg.RateLimit.TrustProxy),
		AllowedOrigins: cfg.AllowedOrigins,
	}, deliveryhttp.Controllers{
		Auth:        controllers.NewAuthController(logger, authSvc),
		Event:       controllers.NewEventController(logger, eventSvc),
		Participant: controllers.NewParticipantController(logger, participantSvc),
		Rsvp:        controllers.NewRsvpController(logger, rsvpSvc),
		Mailing:     controllers.NewMailingController(logger, mailingSvc),
		Health:      controllers.NewHealthController(logger, db),
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatchDone := make(chan struct{})
	if cfg.Dispatch.Interval > 0 {
		go func() {
			defer close(dispatchDone)
			logger.Info("dispatcher started", "interval", cfg.Dispatch.Interval, "batch_size", cfg.Dispatch.BatchSize)
			dispatcher.Run(stopCtx, cfg.Dispatch.Interval)
		}()
	} else {
		close(dispatchDone)
		logger.Info("in-process dispatcher disabled")
	}

	srvErr := make(chan error, 1)
	go func() {
		logger.Info("api listening", "addr", server.Addr, "env", cfg.Environment)
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
		}
		stop()
	case <-stopCtx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown error", "err", err)
	}
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		logger.Warn("dispatcher did not stop before shutdown timeout")
	}
	logger.Info("server stopped")
}

// newRateLimitStore picks the counter backend. The returned func releases it.
func newRateLimitStore(ctx context.Context, cfg *config.Config, db *sql.DB) (domain.RateLimitStore, func(), error) {
	if cfg.RateLimit.Backend != "redis" {
		return postgres.NewRateLimitRepository(db), func() {}, nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	return redis.NewRateLimitStore(rdb), func() { _ = rdb.Close() }, nil
}
