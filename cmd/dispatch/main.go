// Command dispatch drains the email queue once and exits. It is meant for cron-style schedulers;
// the server runs the same cycle in process when DISPATCH_INTERVAL is set.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"guestlist/config"
	"guestlist/internal/adapters/email"
	"guestlist/internal/repository/postgres"
	"guestlist/internal/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "dispatch:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	batchSize := flag.Int("batch-size", cfg.Dispatch.BatchSize, "maximum queue rows claimed in one cycle")
	timeout := flag.Duration("timeout", 5*time.Minute, "upper bound for the whole cycle")
	flag.Parse()

	logger := config.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	db, err := sql.Open("postgres", cfg.DBUrl)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}

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
		return fmt.Errorf("create mailer: %w", err)
	}

	dispatcher := services.NewDispatcher(postgres.NewEmailQueueRepository(db), mailer, services.DispatcherConfig{
		BatchSize:  *batchSize,
		SendDelay:  cfg.Dispatch.SendDelay,
		ClaimLease: cfg.Dispatch.ClaimLease,
		Retry:      services.RetryPolicy{MaxRetries: cfg.Dispatch.MaxRetries, BaseBackoff: cfg.Dispatch.BaseBackoff},
	}, logger)

	res, err := dispatcher.RunCycle(ctx)
	if err != nil {
		return fmt.Errorf("dispatch cycle: %w", err)
	}
	logger.Info("dispatch finished", "sent", res.Sent, "failed", res.Failed)
	return nil
}
