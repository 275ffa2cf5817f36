package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"

	appconfig "github.com/wolfman30/chat-moderator/internal/config"
	"github.com/wolfman30/chat-moderator/internal/llm"
	"github.com/wolfman30/chat-moderator/internal/moderation"
	"github.com/wolfman30/chat-moderator/internal/observability/metrics"
	"github.com/wolfman30/chat-moderator/pkg/logging"
)

// stubReply lets the stub provider run the full pipeline locally.
const stubReply = `{"is_anomaly": false, "reason": "", "analysis": {"attacker": "", "victim": ""}}`

// Oracle is the configured classifier plus the clients it holds open.
type Oracle struct {
	*moderation.Oracle
	Breaker *llm.BreakerClient
	closers []io.Closer
}

func (o *Oracle) Close() error {
	var errs []error
	for _, c := range o.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func providerSettings(cfg *appconfig.Config, model string) llm.Settings {
	return llm.Settings{
		OllamaBaseURL:   cfg.OllamaBaseURL,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		GeminiAPIKey:    cfg.GeminiAPIKey,
		GeminiModel:     model,
		AWSRegion:       cfg.AWSRegion,
		AWSEndpoint:     cfg.AWSEndpointOverride,
		StubReply:       stubReply,
	}
}

// BuildOracle wires provider -> optional fallback -> circuit breaker ->
// moderation oracle.
func BuildOracle(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, m *metrics.ModerationMetrics) (*Oracle, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	out := &Oracle{}
	primary, err := llm.NewProvider(ctx, cfg.OracleProvider, providerSettings(cfg, cfg.OracleModel))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: primary oracle provider: %w", err)
	}
	out.track(primary)
	client := primary

	if cfg.OracleFallbackProvider != "" {
		fallbackModel := cfg.OracleFallbackModel
		if fallbackModel == "" {
			fallbackModel = cfg.OracleModel
		}
		fallback, err := llm.NewProvider(ctx, cfg.OracleFallbackProvider, providerSettings(cfg, fallbackModel))
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("bootstrap: fallback oracle provider: %w", err)
		}
		out.track(fallback)
		client = llm.NewFallbackClient(primary, fallback, fallbackModel, logger.Logger)
		logger.Info("oracle fallback enabled", "provider", cfg.OracleFallbackProvider, "model", fallbackModel)
	}

	if cfg.OracleBreakerFailures > 0 {
		out.Breaker = llm.NewBreakerClient("oracle", client, uint32(cfg.OracleBreakerFailures), cfg.OracleBreakerCooldown)
		client = out.Breaker
	}

	out.Oracle = moderation.NewOracle(client, cfg.OracleModel,
		moderation.WithTimeout(cfg.OracleTimeout),
		moderation.WithLogger(logger),
		moderation.WithMetrics(m),
		moderation.WithProvider(cfg.OracleProvider),
	)
	logger.Info("moderation oracle ready", "provider", cfg.OracleProvider, "model", cfg.OracleModel)
	return out, nil
}

func (o *Oracle) track(c llm.Client) {
	if closer, ok := c.(io.Closer); ok {
		o.closers = append(o.closers, closer)
	}
}
