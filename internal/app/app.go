package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fidoochat/internal/auth"
	"fidoochat/internal/backend"
	"fidoochat/internal/composer"
	"fidoochat/internal/config"
	"fidoochat/internal/feed"
	"fidoochat/internal/login"
	"fidoochat/internal/queue"
	"fidoochat/internal/redis"
	"fidoochat/internal/session"
	"fidoochat/internal/storage"
)

// App is the component graph shared by the web and terminal front-ends.
type App struct {
	Config   *config.Config
	Log      *zap.Logger
	Provider auth.Provider
	Session  *session.Store
	Backend  *backend.Client
	Feed     *feed.Store
	Composer *composer.Composer
	Login    *login.Flow

	unbind  func()
	closers []func() error
}

// New wires every component from cfg. Close releases the feed transport.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a, err := NewSession(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	src, closeSrc, err := NewSource(cfg.Feed, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.attachFeed(src, closeSrc)
	return a, nil
}

// NewSession wires authentication, the session and the composer without
// connecting to the feed transport. Feed is nil.
func NewSession(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	client, err := backend.New(cfg.Backend.BaseURL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithLogger(log))
	if err != nil {
		return nil, err
	}

	var opts []auth.Option
	if cfg.Auth.SessionFile != "" {
		opts = append(opts, auth.WithTokenStore(auth.NewFileTokenStore(cfg.Auth.SessionFile)))
	}
	provider := auth.NewIdentityToolkit(cfg.Auth.APIKey, cfg.Auth.Endpoint, cfg.Auth.TokenEndpoint, cfg.Auth.Timeout, opts...)

	if user, err := provider.Restore(); err != nil {
		log.Warn("restore session", zap.String("file", cfg.Auth.SessionFile), zap.Error(err))
	} else if user != nil {
		log.Debug("session restored", zap.String("email", user.Email))
	}

	return build(ctx, cfg, log, provider, client), nil
}

func build(ctx context.Context, cfg *config.Config, log *zap.Logger, p auth.Provider, client *backend.Client) *App {
	sess := session.New(log)
	a := &App{
		Config:   cfg,
		Log:      log,
		Provider: p,
		Session:  sess,
		Backend:  client,
		Composer: composer.New(sess, client, log),
		Login:    login.New(p, client, log),
	}
	a.unbind = sess.Bind(ctx, p)
	return a
}

func (a *App) attachFeed(src feed.Source, closeSrc func() error) {
	a.Feed = feed.NewStore(src, feed.DefaultQuery(a.Config.Feed.Collection), a.Log)
	if closeSrc != nil {
		a.closers = append(a.closers, closeSrc)
	}
}

// NewSource builds the feed source for the configured transport. The
// returned func closes the underlying connections, if any.
func NewSource(cfg config.FeedConfig, log *zap.Logger) (feed.Source, func() error, error) {
	switch cfg.Transport {
	case config.TransportRedis:
		rdb, err := redis.New(cfg.Redis.Addr)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return feed.NewRedisSource(rdb, cfg.Redis.Channel, log), rdb.Close, nil
	case config.TransportPostgres:
		pg, err := storage.NewPostgres(cfg.Postgres.DSN, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return feed.NewPostgresSource(pg, cfg.Postgres.Channel, log), pg.Close, nil
	case config.TransportKafka:
		pg, err := storage.NewPostgres(cfg.Postgres.DSN, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		// Every front-end needs every change, so each process gets its own
		// consumer group unless one is configured.
		group := cfg.Kafka.GroupID
		if group == "" {
			group = "fidoochat-" + uuid.NewString()
		}
		n, err := queue.NewKafkaNotifier(cfg.Kafka.Brokers, group, cfg.Kafka.Topic, log)
		if err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("connect kafka: %w", err)
		}
		closeAll := func() error { return errors.Join(n.Close(), pg.Close()) }
		return feed.NewKafkaSource(pg, n, log), closeAll, nil
	case config.TransportPoll:
		return feed.NewPollSource(cfg.Poll.URL, cfg.Poll.Interval, log), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown feed transport %q", cfg.Transport)
	}
}

func (a *App) Close() error {
	a.unbind()
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
