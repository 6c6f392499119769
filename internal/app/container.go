package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	cachememory "github.com/strogmv/mailrelay/internal/adapter/cache/memory"
	"github.com/strogmv/mailrelay/internal/adapter/cache/redis"
	natsadapter "github.com/strogmv/mailrelay/internal/adapter/events/nats"
	"github.com/strogmv/mailrelay/internal/adapter/mailer/smtp"
	repomemory "github.com/strogmv/mailrelay/internal/adapter/repository/memory"
	"github.com/strogmv/mailrelay/internal/adapter/repository/postgres"
	"github.com/strogmv/mailrelay/internal/adapter/storage/s3"
	"github.com/strogmv/mailrelay/internal/config"
	"github.com/strogmv/mailrelay/internal/pkg/auth"
	"github.com/strogmv/mailrelay/internal/pkg/circuitbreaker"
	"github.com/strogmv/mailrelay/internal/port"
	"github.com/strogmv/mailrelay/internal/service"
	transport "github.com/strogmv/mailrelay/internal/transport/http"
)

// Container owns the process's connections and builds components from them.
type Container struct {
	Config *config.Config
	DB     *pgxpool.Pool
	Redis  *goredis.Client
	NATS   *natsadapter.Client

	Tx          port.TxManager
	Users       port.UserRepository
	Outbox      port.OutboxRepository
	Idempotency port.IdempotencyStore
	Lock        port.DeliveryLock
}

// NewContainer opens the store selected by STORE_DRIVER. The postgres driver
// pairs with Redis; the memory driver keeps everything in process.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{Config: cfg}

	switch cfg.StoreDriver {
	case "memory":
		store := repomemory.NewStore()
		c.Tx, c.Users, c.Outbox = store, store.Users(), store.Outbox()
		cache := cachememory.NewStore()
		c.Idempotency, c.Lock = cache, cache
		slog.Warn("using in-memory store; state is lost on exit")
	default:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		c.DB = pool
		c.Tx = postgres.NewTxManager(pool)
		c.Users = postgres.NewUserRepository(pool)
		c.Outbox = postgres.NewOutboxRepository(pool)

		c.Redis = redis.NewClient(redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: cfg.RedisPoolSize,
		})
		if err := redis.Ping(ctx, c.Redis); err != nil {
			c.Close()
			return nil, err
		}
		c.Idempotency = redis.NewIdempotencyStore(c.Redis)
		c.Lock = redis.NewDeliveryLock(c.Redis)
	}
	return c, nil
}

func (c *Container) Topology() natsadapter.Topology {
	cfg := c.Config
	return natsadapter.Topology{
		Stream:             cfg.StreamName,
		Subjects:           cfg.StreamSubjects,
		Subject:            cfg.StreamSubject,
		MaxMsgs:            cfg.StreamMaxMsgs,
		MaxMsgSize:         cfg.StreamMaxMsgSize,
		DuplicateWindow:    cfg.StreamDuplicateWindow,
		DeadLetterStream:   cfg.DLQStreamName,
		DeadLetterSubject:  cfg.DLQSubject,
		DeadLetterSubjects: cfg.DLQStreamSubjects,
		DeadLetterMaxMsgs:  cfg.DLQMaxMsgs,
	}
}

// ConnectNATS connects once and makes sure both streams exist.
func (c *Container) ConnectNATS(ctx context.Context, name string) error {
	if c.NATS != nil {
		return nil
	}
	client, err := natsadapter.NewClient(c.Config.NATSURL, name)
	if err != nil {
		return err
	}
	if err := client.EnsureStreams(ctx, c.Topology()); err != nil {
		client.Close()
		return err
	}
	c.NATS = client
	return nil
}

func (c *Container) Registration() *service.Registration {
	signer := auth.NewSigner(c.Config.ConfirmTokenSecret, c.Config.ConfirmTokenTTL)
	return service.NewRegistration(c.Tx, c.Users, c.Outbox, signer)
}

// Relay requires ConnectNATS.
func (c *Container) Relay() *service.PollingRelay {
	pub := natsadapter.NewPublisher(c.NATS.JetStream(), c.Config.StreamName)
	return service.NewPollingRelay(c.Tx, c.Outbox, pub, service.RelayConfig{
		Subject:      c.Config.StreamSubject,
		BatchSize:    c.Config.RelayBatchSize,
		PollInterval: c.Config.RelayPollInterval,
		MaxBackoff:   c.Config.RelayMaxBackoff,
	})
}

// DeliveryConsumer requires ConnectNATS.
func (c *Container) DeliveryConsumer() *service.DeliveryConsumer {
	cfg := c.Config
	mailer := &smtp.Client{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
		TLS:      smtp.TLSMode(cfg.SMTPTLS),

		DialTimeout: cfg.SMTPDialTimeout,
	}
	breaker := circuitbreaker.NewBreaker(cfg.SMTPBreakerThreshold, cfg.SMTPBreakerTimeout, 1)
	sender := smtp.NewConfirmationSender(mailer, breaker, cfg.FrontendURL)
	deadLetters := natsadapter.NewPublisher(c.NATS.JetStream(), cfg.DLQStreamName)
	return service.NewDeliveryConsumer(c.Idempotency, c.Lock, sender, deadLetters, service.DeliveryConfig{
		MaxAttempts:       cfg.MaxAttempts,
		RetryDelay:        cfg.RetryDelay,
		AttemptTimeout:    cfg.AttemptTimeout,
		IdempotencyTTL:    cfg.IdempotencyTTL,
		RetryCounterTTL:   cfg.RetryCounterTTL,
		LockTTL:           cfg.ConsumerAckWait,
		DeadLetterSubject: cfg.DLQSubject,
	})
}

// StreamConsumer requires ConnectNATS.
func (c *Container) StreamConsumer() *natsadapter.Consumer {
	return natsadapter.NewConsumer(c.NATS.JetStream(), natsadapter.ConsumerOptions{
		Stream:  c.Config.StreamName,
		Durable: c.Config.ConsumerName,
		Subject: c.Config.StreamSubject,
		AckWait: c.Config.ConsumerAckWait,
		Workers: c.Config.DeliveryWorkers,
	})
}

// DeadLetterOps requires ConnectNATS. The archive is only wired when a bucket
// is configured.
func (c *Container) DeadLetterOps(ctx context.Context) (*service.DeadLetterOps, error) {
	js := c.NATS.JetStream()
	reader := natsadapter.NewDeadLetters(js, c.Config.DLQStreamName)
	pub := natsadapter.NewPublisher(js, c.Config.StreamName)
	var storage port.ObjectStorage
	if c.Config.DLQArchiveBucket != "" {
		client, err := s3.New(ctx, c.Config.AWSRegion, c.Config.DLQArchiveBucket, c.Config.S3Endpoint)
		if err != nil {
			return nil, err
		}
		storage = client
	}
	return service.NewDeadLetterOps(reader, pub, c.Idempotency, storage, c.Config.StreamSubject), nil
}

// Checks lists readiness probes for whatever this process connected.
func (c *Container) Checks() []transport.Check {
	var checks []transport.Check
	if c.DB != nil {
		checks = append(checks, transport.Check{Name: "postgres", Fn: c.DB.Ping})
	}
	if c.Redis != nil {
		checks = append(checks, transport.Check{Name: "redis", Fn: func(ctx context.Context) error {
			return redis.Ping(ctx, c.Redis)
		}})
	}
	if c.NATS != nil {
		checks = append(checks, transport.Check{Name: "nats", Fn: func(context.Context) error {
			if !c.NATS.IsConnected() {
				return fmt.Errorf("not connected")
			}
			return nil
		}})
	}
	return checks
}

func (c *Container) HTTPServer() *http.Server {
	router := transport.NewRouter(transport.NewAuthHandler(c.Registration()), transport.RouterConfig{
		AllowedOrigins: c.Config.CORSAllowedOrigins,
		Checks:         c.Checks(),
	})
	return &http.Server{
		Addr:              c.Config.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (c *Container) Close() {
	if c.NATS != nil {
		c.NATS.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		c.DB.Close()
	}
}
