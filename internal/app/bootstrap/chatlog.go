package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/wolfman30/chat-moderator/internal/chatlog"
	appconfig "github.com/wolfman30/chat-moderator/internal/config"
	"github.com/wolfman30/chat-moderator/pkg/logging"
)

// Chatlog is the selected chat log backend together with its lifecycle
// hooks.
type Chatlog struct {
	Store   chatlog.Store
	Backend string
	// Ping reports backend reachability for health checks.
	Ping  func(ctx context.Context) error
	Close func()
}

// BuildChatlog opens the backend named by CHATLOG_BACKEND.
func BuildChatlog(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Chatlog, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	noop := func() {}

	switch cfg.ChatlogBackend {
	case appconfig.ChatlogFile, "":
		store, err := chatlog.NewFileStore(cfg.ChatlogDir)
		if err != nil {
			return nil, err
		}
		logger.Info("chat log backend ready", "backend", appconfig.ChatlogFile, "dir", cfg.ChatlogDir)
		return &Chatlog{Store: store, Backend: appconfig.ChatlogFile, Close: noop}, nil

	case appconfig.ChatlogRedis:
		client := BuildRedisClient(ctx, cfg, logger, true)
		if client == nil {
			return nil, fmt.Errorf("bootstrap: redis unavailable at %s", cfg.RedisAddr)
		}
		logger.Info("chat log backend ready", "backend", appconfig.ChatlogRedis, "addr", cfg.RedisAddr)
		return &Chatlog{
			Store:   chatlog.NewRedisStore(client),
			Backend: appconfig.ChatlogRedis,
			Ping:    func(ctx context.Context) error { return client.Ping(ctx).Err() },
			Close:   func() { _ = client.Close() },
		}, nil

	case appconfig.ChatlogPostgres:
		pool, err := BuildPostgresPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("chat log backend ready", "backend", appconfig.ChatlogPostgres)
		return &Chatlog{
			Store:   chatlog.NewPostgresStore(pool),
			Backend: appconfig.ChatlogPostgres,
			Ping:    pool.Ping,
			Close:   pool.Close,
		}, nil

	case appconfig.ChatlogDynamo:
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		client := dynamodb.NewFromConfig(awsCfg)
		table := cfg.ChatlogTable
		logger.Info("chat log backend ready", "backend", appconfig.ChatlogDynamo, "table", table)
		return &Chatlog{
			Store:   chatlog.NewDynamoStore(client, table),
			Backend: appconfig.ChatlogDynamo,
			Ping: func(ctx context.Context) error {
				return chatlog.PingDynamoTable(ctx, client, table)
			},
			Close: noop,
		}, nil

	default:
		return nil, fmt.Errorf("bootstrap: unknown chat log backend %q", cfg.ChatlogBackend)
	}
}
