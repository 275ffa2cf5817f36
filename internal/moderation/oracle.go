package moderation

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/chat-moderator/internal/llm"
	"github.com/wolfman30/chat-moderator/internal/observability/metrics"
	"github.com/wolfman30/chat-moderator/pkg/logging"
)

// DefaultOracleTimeout bounds one classification round-trip.
const DefaultOracleTimeout = 30 * time.Second

const maxLoggedReply = 512

// Classifier produces a verdict for message given the rendered history
// that preceded it.
type Classifier interface {
	Classify(ctx context.Context, history, message string) Verdict
}

// Oracle classifies chat messages with a language model. Every failure
// degrades to a default verdict; Classify never returns an error.
type Oracle struct {
	client   llm.Client
	model    string
	provider string
	timeout  time.Duration
	logger   *logging.Logger
	metrics  *metrics.ModerationMetrics
	tracer   trace.Tracer
}

type OracleOption func(*Oracle)

// WithTimeout overrides DefaultOracleTimeout. Zero disables the bound.
func WithTimeout(d time.Duration) OracleOption {
	return func(o *Oracle) { o.timeout = d }
}

func WithLogger(logger *logging.Logger) OracleOption {
	return func(o *Oracle) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMetrics(m *metrics.ModerationMetrics) OracleOption {
	return func(o *Oracle) { o.metrics = m }
}

// WithProvider labels latency metrics and spans with the provider name.
func WithProvider(name string) OracleOption {
	return func(o *Oracle) { o.provider = name }
}

func NewOracle(client llm.Client, model string, opts ...OracleOption) *Oracle {
	if client == nil {
		panic("moderation: llm client cannot be nil")
	}
	o := &Oracle{
		client:   client,
		model:    model,
		provider: "unknown",
		timeout:  DefaultOracleTimeout,
		logger:   logging.Default(),
		tracer:   otel.Tracer("chatmod.internal.moderation.oracle"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Classify issues exactly one model call. Transport errors, timeouts and
// empty replies yield TransportFailureVerdict; undecodable replies yield
// ParseFailureVerdict.
func (o *Oracle) Classify(ctx context.Context, history, message string) Verdict {
	ctx, span := o.tracer.Start(ctx, "moderation.classify", trace.WithAttributes(
		attribute.String("llm.provider", o.provider),
		attribute.String("llm.model", o.model),
	))
	defer span.End()

	callCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := o.client.Complete(callCtx, llm.UserPrompt(o.model, BuildPrompt(history, message), 0))
	o.metrics.ObserveOracleLatency(o.provider, time.Since(start).Seconds())

	var verdict Verdict
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "oracle call failed")
		o.logger.Error("moderation oracle call failed",
			"error", err,
			"provider", o.provider,
			"model", o.model,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		verdict = TransportFailureVerdict()
	case strings.TrimSpace(resp.Text) == "":
		o.logger.Error("moderation oracle returned an empty reply", "provider", o.provider, "model", o.model)
		verdict = TransportFailureVerdict()
	default:
		verdict = ParseVerdict(resp.Text)
		if verdict.Outcome == OutcomeParseFailure {
			o.logger.Warn("moderation oracle reply was not valid JSON",
				"provider", o.provider,
				"reply", truncate(resp.Text, maxLoggedReply),
			)
		}
	}

	span.SetAttributes(
		attribute.String("moderation.outcome", string(verdict.Outcome)),
		attribute.Bool("moderation.is_anomaly", verdict.IsAnomaly),
	)
	o.metrics.ObserveClassification(string(verdict.Outcome))
	return verdict
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
