package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerClient stops calling a failing provider for a cool-down period.
// While the breaker is open Complete fails fast with gobreaker.ErrOpenState.
type BreakerClient struct {
	next    Client
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerClient(name string, next Client, maxFailures uint32, cooldown time.Duration) *BreakerClient {
	if next == nil {
		panic("llm: breaker requires a client")
	}
	if maxFailures == 0 {
		maxFailures = 5
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	}
	return &BreakerClient{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (c *BreakerClient) Complete(ctx context.Context, req Request) (Response, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.next.Complete(ctx, req)
	})
	if err != nil {
		return Response{}, fmt.Errorf("breaker (%s): %w", c.breaker.Name(), err)
	}
	return out.(Response), nil
}

// State reports the breaker state, e.g. "closed" or "open".
func (c *BreakerClient) State() string {
	return c.breaker.State().String()
}
