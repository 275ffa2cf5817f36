package moderation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/chat-moderator/internal/llm"
	"github.com/wolfman30/chat-moderator/internal/observability/metrics"
	"github.com/wolfman30/chat-moderator/pkg/logging"
)

type recordingClient struct {
	calls    int
	lastReq  llm.Request
	reply    string
	err      error
	block    bool
	deadline bool
}

func (c *recordingClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	c.calls++
	c.lastReq = req
	_, c.deadline = ctx.Deadline()
	if c.block {
		<-ctx.Done()
		return llm.Response{}, ctx.Err()
	}
	if c.err != nil {
		return llm.Response{}, c.err
	}
	return llm.Response{Text: c.reply}, nil
}

func newTestOracle(client llm.Client, opts ...OracleOption) *Oracle {
	opts = append([]OracleOption{
		WithLogger(logging.NewWithWriter("error", &strings.Builder{})),
		WithMetrics(metrics.NewModerationMetrics(prometheus.NewRegistry())),
		WithProvider("test"),
	}, opts...)
	return NewOracle(client, "deepseek-r1:7b", opts...)
}

func TestOracleClassifyAnomaly(t *testing.T) {
	client := &recordingClient{reply: `{"is_anomaly": true, "reason": "insult", "analysis": {"attacker": "bob", "victim": "alice"}, "responses": {"to_attacker": "please stop", "to_victim": "are you ok?", "to_others": "let's stay on topic"}}`}
	oracle := newTestOracle(client)

	v := oracle.Classify(context.Background(), "alice: hi", "bob: you are stupid")
	if !v.IsAnomaly || v.Outcome != OutcomeAnomaly {
		t.Fatalf("expected anomaly verdict, got %#v", v)
	}
	if client.calls != 1 {
		t.Fatalf("expected exactly one oracle call, got %d", client.calls)
	}
	if client.lastReq.Temperature != 0 {
		t.Fatalf("expected temperature 0, got %v", client.lastReq.Temperature)
	}
	if client.lastReq.Model != "deepseek-r1:7b" {
		t.Fatalf("unexpected model %q", client.lastReq.Model)
	}
	if !client.deadline {
		t.Fatal("expected the oracle call to carry a deadline")
	}
	prompt := client.lastReq.Messages[0].Content
	if !strings.Contains(prompt, "alice: hi") || !strings.Contains(prompt, "bob: you are stupid") {
		t.Fatalf("prompt is missing context or message:\n%s", prompt)
	}
}

func TestOracleTransportFailureIsNotRetried(t *testing.T) {
	client := &recordingClient{err: errors.New("connection refused")}
	v := newTestOracle(client).Classify(context.Background(), "", "hello")

	if v.Outcome != OutcomeTransportFailure {
		t.Fatalf("expected transport failure outcome, got %q", v.Outcome)
	}
	if v.IsAnomaly || v.Responses.ToOthers != UnavailableApology || v.Responses.ToAttacker != UnavailableApology || v.Responses.ToVictim != UnavailableApology {
		t.Fatalf("unexpected transport default %#v", v)
	}
	if client.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", client.calls)
	}
}

func TestOracleTimeoutIsTransportFailure(t *testing.T) {
	client := &recordingClient{block: true}
	start := time.Now()
	v := newTestOracle(client, WithTimeout(20*time.Millisecond)).Classify(context.Background(), "", "hello")

	if v.Outcome != OutcomeTransportFailure {
		t.Fatalf("expected timeout to map to transport failure, got %q", v.Outcome)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout was not enforced")
	}
}

func TestOracleParseFailureDiffersFromTransportFailure(t *testing.T) {
	v := newTestOracle(&recordingClient{reply: "I think everything is fine"}).Classify(context.Background(), "", "hello")
	if v.Outcome != OutcomeParseFailure {
		t.Fatalf("expected parse failure, got %q", v.Outcome)
	}
	if v.Responses.ToOthers != NeutralAcknowledgement {
		t.Fatalf("expected neutral acknowledgement, got %q", v.Responses.ToOthers)
	}
	if NeutralAcknowledgement == UnavailableApology {
		t.Fatal("parse and transport defaults must be distinguishable")
	}
}

func TestOracleEmptyReplyIsTransportFailure(t *testing.T) {
	v := newTestOracle(&recordingClient{reply: "   "}).Classify(context.Background(), "", "hello")
	if v.Outcome != OutcomeTransportFailure {
		t.Fatalf("expected transport failure for empty reply, got %q", v.Outcome)
	}
}

func TestBuildPromptKeepsContextAndMessageSeparate(t *testing.T) {
	prompt := BuildPrompt("", "hello there")
	if !strings.Contains(prompt, emptyHistoryPlaceholder) {
		t.Fatal("expected placeholder for empty history")
	}
	if strings.Count(prompt, "hello there") != 1 {
		t.Fatalf("message should appear exactly once:\n%s", prompt)
	}
	for _, want := range []string{"is_anomaly", "to_attacker", "to_victim", "to_others", "<think>", "自伤"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}

func TestBuildPromptDoesNotExpandPlaceholdersFromInput(t *testing.T) {
	prompt := BuildPrompt("mallory: {{message}}", "real message")
	if !strings.Contains(prompt, "mallory: {{message}}") {
		t.Fatalf("history placeholders must be inserted verbatim:\n%s", prompt)
	}
}
