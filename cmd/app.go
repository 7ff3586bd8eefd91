package main

import (
	"context"
	"fmt"

	"contactrelay/internal/alert"
	"contactrelay/internal/config"
	"contactrelay/internal/db"
	"contactrelay/internal/mail"
	"contactrelay/internal/queue"
	"contactrelay/internal/relay"
	"contactrelay/internal/store"
	"contactrelay/internal/utils"
)

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	redis   *utils.RedisClient
	store   store.Store
	alerts  alert.Sink
	queue   *queue.Queue
	mailer  *mail.Mailer
	runner  *queue.Runner
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	if cfg.Redis.Addr != "" {
		rc, err := utils.NewRedisClient(cfg.Redis)
		if err != nil {
			if cfg.Storage.Driver == "redis" || cfg.Drain.Mode == "asynq" {
				return nil, err
			}
			log.Warn("redis unavailable, falling back to in-process rate limiting: %v", err)
		} else {
			a.redis = rc
			a.closers = append(a.closers, rc.Close)
		}
	}

	s, err := a.openStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.store = s

	if cfg.Alert.WebhookURL != "" {
		a.alerts = alert.NewWebhookSink(cfg.Alert.WebhookURL, cfg.Alert.Format, cfg.Alert.Timeout)
	} else {
		log.Warn("no alert webhook configured, delivery failures are only logged")
		a.alerts = alert.Nop{}
	}

	a.queue = queue.New(a.store, queue.Options{
		Key:          cfg.Queue.Key,
		MaxConflicts: cfg.Queue.MaxConflicts,
		StaleAfter:   cfg.Drain.StaleAfter,
		Alerts:       a.alerts,
	})
	a.mailer = mail.NewMailer(a.sender(), cfg.Mail.To, cfg.Mail.FromAutoReply)
	a.runner = queue.NewRunner(a.queue, a.mailer, cfg.Drain.AttemptBudget, cfg.Drain.Timeout)

	return a, nil
}

func (a *app) openStore(ctx context.Context) (store.Store, error) {
	switch a.cfg.Storage.Driver {
	case "memory":
		log.Warn("using the in-memory store, queued mail is lost on restart")
		return store.NewMemory(), nil
	case "file", "":
		return store.NewFile(a.cfg.Storage.BasePath)
	case "redis":
		if a.redis == nil {
			return nil, fmt.Errorf("STORE_DRIVER=redis needs REDIS_ADDR")
		}
		return store.NewRedis(a.redis.Client, "contactrelay:"), nil
	case "postgres":
		if err := db.Connect(a.cfg); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return store.NewPostgres(db.GetDB()), nil
	case "s3":
		s3cfg := a.cfg.Storage.S3
		return store.NewS3FromConfig(ctx, store.S3Config{
			Bucket:    s3cfg.Bucket,
			Region:    s3cfg.Region,
			Endpoint:  s3cfg.Endpoint,
			AccessKey: s3cfg.AccessKey,
			SecretKey: s3cfg.SecretKey,
			Prefix:    s3cfg.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", a.cfg.Storage.Driver)
	}
}

func (a *app) sender() relay.Sender {
	if a.cfg.Mail.Transport == "smtp" {
		log.Info("sending mail over SMTP via %s", a.cfg.SMTP.Host)
		return relay.NewSMTPSender(relay.SMTPConfig{
			Host:     a.cfg.SMTP.Host,
			Port:     a.cfg.SMTP.Port,
			Username: a.cfg.SMTP.Username,
			Password: a.cfg.SMTP.Password,
			From:     a.cfg.SMTP.From,
		})
	}
	return relay.NewClient(relay.Config{
		URL:        a.cfg.Relay.URL,
		Token:      a.cfg.Relay.Token,
		HMACSecret: a.cfg.Relay.HMACSecret,
		Timeout:    a.cfg.Relay.Timeout,
	})
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn("shutdown: %v", err)
		}
	}
}
