package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	ConnectionURL  string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"` // ConnectionURL in the form redis://:password@host:port/db.
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`             // RetryAttempts is the number of connection attempts at startup.
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`            // RetryInterval is the wait between connection attempts.
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`          // ConnectTimeout bounds the whole connection phase.
}

var (
	ErrFailedToParseConnString = errors.New("failed to parse redis connection string")
	ErrNotReady                = errors.New("redis is not ready")
	ErrHealthcheckFailed       = errors.New("redis healthcheck failed")
)

// Connect establishes a Redis client, retrying until the server answers a
// ping or the connect timeout expires.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opt, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseConnString, err)
	}

	for range cfg.RetryAttempts {
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, ErrNotReady
}

// Healthcheck adapts a client ping to the func(ctx) error shape health
// endpoints expect.
func Healthcheck(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
