package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR" env-default:":8080"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`
	StoreDriver string `env:"STORE_DRIVER" env-default:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`

	RedisAddr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" env-default:"10"`

	NATSURL string `env:"NATS_URL" env-default:"nats://localhost:4222"`

	StreamName            string        `env:"STREAM_NAME" env-default:"email-stream"`
	StreamSubjects        []string      `env:"STREAM_SUBJECTS" env-default:"email.>"`
	StreamSubject         string        `env:"STREAM_SUBJECT" env-default:"email.send"`
	StreamMaxMsgs         int64         `env:"STREAM_MAX_MSGS" env-default:"100"`
	StreamMaxMsgSize      int32         `env:"STREAM_MAX_MSG_SIZE" env-default:"10485760"`
	StreamDuplicateWindow time.Duration `env:"STREAM_DUPLICATE_WINDOW" env-default:"5m"`

	DLQStreamName     string   `env:"DLQ_STREAM_NAME" env-default:"dead-letters-stream"`
	DLQStreamSubjects []string `env:"DLQ_STREAM_SUBJECTS" env-default:"dead.>"`
	DLQSubject        string   `env:"DLQ_SUBJECT" env-default:"dead.email.send"`
	DLQMaxMsgs        int64    `env:"DLQ_MAX_MSGS" env-default:"1000"`

	ConsumerName    string        `env:"CONSUMER_NAME" env-default:"email-consumer"`
	ConsumerAckWait time.Duration `env:"CONSUMER_ACK_WAIT" env-default:"60s"`
	DeliveryWorkers int           `env:"DELIVERY_WORKERS" env-default:"2"`

	MaxAttempts     int           `env:"DELIVERY_MAX_ATTEMPTS" env-default:"3"`
	RetryDelay      time.Duration `env:"DELIVERY_RETRY_DELAY" env-default:"5s"`
	AttemptTimeout  time.Duration `env:"DELIVERY_ATTEMPT_TIMEOUT" env-default:"4s"`
	IdempotencyTTL  time.Duration `env:"IDEMPOTENCY_TTL" env-default:"24h"`
	RetryCounterTTL time.Duration `env:"RETRY_COUNTER_TTL" env-default:"10s"`

	RelayPollInterval time.Duration `env:"RELAY_POLL_INTERVAL" env-default:"500ms"`
	RelayBatchSize    int           `env:"RELAY_BATCH_SIZE" env-default:"50"`
	RelayMaxBackoff   time.Duration `env:"RELAY_MAX_BACKOFF" env-default:"30s"`

	SMTPHost             string        `env:"SMTP_HOST"`
	SMTPPort             string        `env:"SMTP_PORT" env-default:"465"`
	SMTPUser             string        `env:"SMTP_USER"`
	SMTPPass             string        `env:"SMTP_PASS"`
	SMTPFrom             string        `env:"SMTP_FROM"`
	SMTPTLS              string        `env:"SMTP_TLS" env-default:"implicit"`
	SMTPDialTimeout      time.Duration `env:"SMTP_DIAL_TIMEOUT" env-default:"3s"`
	SMTPBreakerThreshold int           `env:"SMTP_BREAKER_THRESHOLD" env-default:"5"`
	SMTPBreakerTimeout   time.Duration `env:"SMTP_BREAKER_TIMEOUT" env-default:"30s"`

	FrontendURL        string        `env:"FRONTEND_URL" env-default:"http://localhost:3000"`
	ConfirmTokenSecret string        `env:"CONFIRM_TOKEN_SECRET" env-required:"true"`
	ConfirmTokenTTL    time.Duration `env:"CONFIRM_TOKEN_TTL" env-default:"1h"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" env-default:"*"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	DLQArchiveBucket string `env:"DLQ_ARCHIVE_BUCKET"`
	AWSRegion        string `env:"AWS_REGION" env-default:"us-east-1"`
	S3Endpoint       string `env:"S3_ENDPOINT"`
}

// Load reads the configuration from the environment, or from the given file
// with environment overrides when path is not empty.
func Load(path string) (*Config, error) {
	var cfg Config

	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.MaxAttempts < 1 {
		errs = append(errs, errors.New("DELIVERY_MAX_ATTEMPTS must be at least 1"))
	}
	if c.RetryDelay <= 0 {
		errs = append(errs, errors.New("DELIVERY_RETRY_DELAY must be positive"))
	}
	if c.AttemptTimeout <= 0 {
		errs = append(errs, errors.New("DELIVERY_ATTEMPT_TIMEOUT must be positive"))
	}
	if c.SMTPDialTimeout <= 0 || c.SMTPDialTimeout > c.AttemptTimeout {
		errs = append(errs, errors.New("SMTP_DIAL_TIMEOUT must be positive and not longer than DELIVERY_ATTEMPT_TIMEOUT"))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_TTL must be positive"))
	}
	if c.RetryCounterTTL <= 0 {
		errs = append(errs, errors.New("RETRY_COUNTER_TTL must be positive"))
	}
	// The counter only limits a burst of retries; the idempotency window governs redelivery.
	if c.RetryCounterTTL >= c.IdempotencyTTL {
		errs = append(errs, errors.New("RETRY_COUNTER_TTL must be shorter than IDEMPOTENCY_TTL"))
	}
	// A slow failure followed by the nak delay must land inside the counter
	// window, or the count restarts at 1 and the message never exhausts.
	if c.RetryDelay+c.AttemptTimeout >= c.RetryCounterTTL {
		errs = append(errs, errors.New("DELIVERY_RETRY_DELAY + DELIVERY_ATTEMPT_TIMEOUT must be shorter than RETRY_COUNTER_TTL"))
	}
	if c.DeliveryWorkers < 1 {
		errs = append(errs, errors.New("DELIVERY_WORKERS must be at least 1"))
	}
	if c.RelayBatchSize < 1 {
		errs = append(errs, errors.New("RELAY_BATCH_SIZE must be at least 1"))
	}
	if c.RelayPollInterval <= 0 {
		errs = append(errs, errors.New("RELAY_POLL_INTERVAL must be positive"))
	}
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	switch c.SMTPTLS {
	case "implicit", "starttls", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown SMTP_TLS mode %q", c.SMTPTLS))
	}
	return errors.Join(errs...)
}
