package llm

import (
	"context"
	"log/slog"
)

// FallbackClient wraps a primary client with a fallback provider.
// If the primary fails, the same request is sent to the fallback once.
type FallbackClient struct {
	primary       Client
	fallback      Client
	fallbackModel string
	logger        *slog.Logger
}

// NewFallbackClient creates a fallback-enabled client. When fallbackModel is
// set it replaces the request model for the fallback call, since model
// identifiers rarely carry across providers.
func NewFallbackClient(primary, fallback Client, fallbackModel string, logger *slog.Logger) *FallbackClient {
	if primary == nil {
		panic("llm: primary client cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackClient{
		primary:       primary,
		fallback:      fallback,
		fallbackModel: fallbackModel,
		logger:        logger,
	}
}

func (c *FallbackClient) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}

	c.logger.Warn("primary LLM failed, attempting fallback",
		"error", err.Error(),
		"fallback_available", c.fallback != nil,
	)
	if c.fallback == nil || ctx.Err() != nil {
		return Response{}, err
	}

	if c.fallbackModel != "" {
		req.Model = c.fallbackModel
	}
	fallbackResp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		c.logger.Error("fallback LLM also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		return Response{}, fallbackErr
	}

	c.logger.Info("fallback LLM succeeded after primary failure")
	return fallbackResp, nil
}
