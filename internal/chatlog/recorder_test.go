package chatlog

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/chat-moderator/internal/observability/metrics"
	"github.com/wolfman30/chat-moderator/pkg/logging"
)

type memoryStore struct {
	mu      sync.Mutex
	entries []Entry
	block   chan struct{}
	err     error
}

func (m *memoryStore) Append(_ context.Context, e Entry) error {
	if m.block != nil {
		<-m.block
	}
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryStore) ListDay(_ context.Context, conv string, _ time.Time) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if e.ConversationID == conv {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryStore) Recent(ctx context.Context, conv string, n int) ([]Entry, error) {
	all, _ := m.ListDay(ctx, conv, time.Time{})
	return tail(all, n), nil
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func gatheredValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

func TestRecorder_CloseDrainsQueuedEntries(t *testing.T) {
	store := &memoryStore{}
	rec := NewRecorder(store, 8)

	for i := 0; i < 5; i++ {
		assert.True(t, rec.Record(Entry{ConversationID: "c", Message: "m"}))
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rec.Close(ctx))
	assert.Equal(t, 5, store.count())

	assert.False(t, rec.Record(Entry{ConversationID: "c"}), "closed recorder must reject entries")
	require.NoError(t, rec.Close(ctx), "second close is a no-op")
}

func TestRecorder_FullBufferDropsWithoutBlocking(t *testing.T) {
	store := &memoryStore{block: make(chan struct{})}
	reg := prometheus.NewRegistry()
	m := metrics.NewModerationMetrics(reg)
	var buf bytes.Buffer
	rec := NewRecorder(store, 1, WithRecorderMetrics(m), WithRecorderLogger(logging.NewWithWriter("info", &buf)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			rec.Record(Entry{ConversationID: "c"})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full buffer")
	}

	assert.GreaterOrEqual(t, gatheredValue(t, reg, "chatmod_chatlog_dropped_total"), float64(8))
	assert.Contains(t, buf.String(), "chat log buffer full")

	close(store.block)
	require.NoError(t, rec.Close(context.Background()))
}

func TestRecorder_StoreFailureIsCounted(t *testing.T) {
	store := &memoryStore{err: errors.New("disk full")}
	reg := prometheus.NewRegistry()
	m := metrics.NewModerationMetrics(reg)
	var buf bytes.Buffer
	rec := NewRecorder(store, 4,
		WithRecorderMetrics(m),
		WithBackendName("file"),
		WithRecorderLogger(logging.NewWithWriter("info", &buf)),
	)

	rec.Record(Entry{ConversationID: "c"})
	require.NoError(t, rec.Close(context.Background()))

	assert.Equal(t, float64(1), gatheredValue(t, reg, "chatmod_chatlog_write_failures_total"))
	assert.Contains(t, buf.String(), "disk full")
}

func TestRecorder_CloseHonorsContext(t *testing.T) {
	store := &memoryStore{block: make(chan struct{})}
	rec := NewRecorder(store, 4)
	rec.Record(Entry{ConversationID: "c"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rec.Close(ctx), context.DeadlineExceeded)
	close(store.block)
}
