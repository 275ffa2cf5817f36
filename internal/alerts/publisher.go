package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/wolfman30/chat-moderator/internal/moderation"
	"github.com/wolfman30/chat-moderator/internal/observability/metrics"
	"github.com/wolfman30/chat-moderator/pkg/logging"
)

// Publisher delivers alert events downstream.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends each event as one SQS message.
type SQSPublisher struct {
	client   sqsAPI
	queueURL string
}

func NewSQSPublisher(client *sqs.Client, queueURL string) *SQSPublisher {
	if client == nil {
		panic("alerts: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("alerts: SQS queueURL cannot be empty")
	}
	return &SQSPublisher{client: client, queueURL: queueURL}
}

func (p *SQSPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("alerts: marshal event: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("alerts: failed to send SQS message: %w", err)
	}
	return nil
}

// LogPublisher writes alerts to the service log when no queue is configured.
type LogPublisher struct {
	logger *logging.Logger
}

func NewLogPublisher(logger *logging.Logger) *LogPublisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.logger.Warn("moderation alert",
		"event_id", event.ID,
		"type", event.Type,
		"conversation_id", event.ConversationID,
		"speaker", event.Speaker,
		"reason", event.Reason,
		"attacker", event.Attacker,
		"victim", event.Victim,
		"self_harm", event.SelfHarm,
	)
	return nil
}

// Notifier publishes flagged verdicts in the background so responses are
// never held up by alert delivery.
type Notifier struct {
	publisher Publisher
	logger    *logging.Logger
	metrics   *metrics.ModerationMetrics
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewNotifier(publisher Publisher, logger *logging.Logger, m *metrics.ModerationMetrics) *Notifier {
	if publisher == nil {
		panic("alerts: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Notifier{publisher: publisher, logger: logger, metrics: m, timeout: 10 * time.Second}
}

// Notify publishes an alert when v is anomalous and reports whether one
// was scheduled.
func (n *Notifier) Notify(conversationID, speaker, message string, v moderation.Verdict) bool {
	if n == nil {
		return false
	}
	event, ok := NewFlaggedEvent(conversationID, speaker, message, v)
	if !ok {
		return false
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.publisher.Publish(ctx, event); err != nil {
			n.metrics.ObserveAlert("failed")
			n.logger.Error("failed to publish moderation alert", "event_id", event.ID, "conversation_id", conversationID, "error", err)
			return
		}
		n.metrics.ObserveAlert("sent")
		n.logger.Debug("moderation alert published", "event_id", event.ID, "self_harm", event.SelfHarm)
	}()
	return true
}

// Wait blocks until in-flight alerts finish or ctx expires.
func (n *Notifier) Wait(ctx context.Context) error {
	if n == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
