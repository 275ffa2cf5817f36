package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/chat-moderator/internal/chatlog"
	"github.com/wolfman30/chat-moderator/internal/moderation"
	"github.com/wolfman30/chat-moderator/pkg/logging"
)

type scriptedClassifier struct {
	mu       sync.Mutex
	verdict  moderation.Verdict
	messages []string
	contexts []string
}

func (c *scriptedClassifier) Classify(_ context.Context, history, message string) moderation.Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contexts = append(c.contexts, history)
	c.messages = append(c.messages, message)
	return c.verdict
}

type captureRecorder struct {
	mu      sync.Mutex
	entries []chatlog.Entry
}

func (r *captureRecorder) Record(e chatlog.Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return true
}

type captureNotifier struct{ verdicts []moderation.Verdict }

func (n *captureNotifier) Notify(_, _, _ string, v moderation.Verdict) bool {
	n.verdicts = append(n.verdicts, v)
	return v.IsAnomaly
}

type captureBroadcaster struct{ conversations []string }

func (b *captureBroadcaster) Broadcast(conv, _, _ string, _ moderation.Result) {
	b.conversations = append(b.conversations, conv)
}

type stubArchiver struct {
	enabled bool
	key     string
	err     error
	conv    string
	day     time.Time
}

func (a *stubArchiver) Enabled() bool { return a.enabled }

func (a *stubArchiver) ArchiveDay(_ context.Context, conv string, day time.Time) (string, error) {
	a.conv, a.day = conv, day
	return a.key, a.err
}

type fixture struct {
	classifier  *scriptedClassifier
	recorder    *captureRecorder
	notifier    *captureNotifier
	broadcaster *captureBroadcaster
	handler     *Handler
}

func newFixture(t *testing.T, store chatlog.Store, archiver Archiver) *fixture {
	t.Helper()
	f := &fixture{
		classifier:  &scriptedClassifier{verdict: moderation.CleanVerdict()},
		recorder:    &captureRecorder{},
		notifier:    &captureNotifier{},
		broadcaster: &captureBroadcaster{},
	}
	registry := moderation.NewRegistry(f.classifier, 5)
	svc := NewService(registry,
		WithRecorder(f.recorder),
		WithNotifier(f.notifier),
		WithBroadcaster(f.broadcaster),
		WithLogger(logging.Default()),
	)
	f.handler = NewHandler(svc, store, archiver, "AI助手", logging.Default())
	return f
}

func postJSON(t *testing.T, fn http.HandlerFunc, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	fn(w, req)
	return w
}

func TestHandler_Chat_MissingFields(t *testing.T) {
	f := newFixture(t, nil, nil)

	for _, payload := range []map[string]string{
		{"message": "hi"},
		{"user": "小明"},
		{"user": "  ", "message": "hi"},
	} {
		w := postJSON(t, f.handler.Chat, "/chat", payload)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"missing required fields"}`, w.Body.String())
	}
	assert.Empty(t, f.classifier.messages, "classifier must not run for rejected requests")
}

func TestHandler_Chat_InvalidBody(t *testing.T) {
	f := newFixture(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{"))
	w := httptest.NewRecorder()
	f.handler.Chat(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Chat_AnomalyResolvedForSpeaker(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.classifier.verdict = moderation.Verdict{
		IsAnomaly: true,
		Reason:    "人身攻击",
		Analysis:  moderation.Analysis{Attacker: "小明", Victim: "小红"},
		Responses: moderation.Responses{ToAttacker: "请注意言辞", ToVictim: "别难过", ToOthers: "大家友好交流"},
		Outcome:   moderation.OutcomeAnomaly,
	}

	w := postJSON(t, f.handler.Chat, "/chat", ChatRequest{User: "小明", Message: "你真笨", ConversationID: "room-1"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp ChatResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "room-1", resp.ConversationID)
	assert.Equal(t, "请注意言辞", resp.Response)
	assert.True(t, resp.IsAnomaly)
	assert.Equal(t, "人身攻击", resp.Reason)
	assert.Equal(t, "人身攻击", resp.AnomalyReason)
	assert.Equal(t, "小红", resp.Analysis.Victim)
	assert.False(t, resp.Cleared)

	require.Len(t, f.recorder.entries, 1)
	assert.Equal(t, "room-1", f.recorder.entries[0].ConversationID)
	assert.Equal(t, "请注意言辞", f.recorder.entries[0].ViewerResponse)
	require.Len(t, f.notifier.verdicts, 1)
	assert.True(t, f.notifier.verdicts[0].IsAnomaly)
	assert.Equal(t, []string{"room-1"}, f.broadcaster.conversations)
}

func TestHandler_Chat_ContextAndClear(t *testing.T) {
	f := newFixture(t, nil, nil)

	postJSON(t, f.handler.Chat, "/chat", ChatRequest{User: "A", Message: "hi"})
	postJSON(t, f.handler.Chat, "/chat", ChatRequest{User: "B", Message: "hello"})

	w := postJSON(t, f.handler.Chat, "/chat", ChatRequest{User: "A", Message: " Clear "})
	require.Equal(t, http.StatusOK, w.Code)
	var resp ChatResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Cleared)
	assert.Equal(t, moderation.ClearedAcknowledgement, resp.Response)
	assert.Equal(t, "default", resp.ConversationID)

	postJSON(t, f.handler.Chat, "/chat", ChatRequest{User: "A", Message: "again"})

	require.Len(t, f.classifier.contexts, 3, "control token must not reach the classifier")
	assert.Equal(t, "A: hi", f.classifier.contexts[1])
	assert.Empty(t, f.classifier.contexts[2])
	require.Len(t, f.recorder.entries, 4)
	assert.True(t, f.recorder.entries[2].Cleared)
	assert.Equal(t, string(moderation.OutcomeCleared), f.recorder.entries[2].Outcome)
}

func TestHandler_Reset(t *testing.T) {
	f := newFixture(t, nil, nil)
	postJSON(t, f.handler.Chat, "/chat", ChatRequest{User: "A", Message: "hi", ConversationID: "r"})

	w := postJSON(t, f.handler.Reset, "/chat/reset", map[string]string{"conversation_id": "r"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cleared":true`)

	postJSON(t, f.handler.Chat, "/chat", ChatRequest{User: "B", Message: "next", ConversationID: "r"})
	require.Len(t, f.classifier.contexts, 2)
	assert.Empty(t, f.classifier.contexts[1])

	require.Len(t, f.recorder.entries, 3)
	reset := f.recorder.entries[1]
	assert.True(t, reset.Cleared)
	assert.Equal(t, "admin", reset.Speaker)
	assert.Equal(t, moderation.ControlClear, reset.Message)
	assert.Equal(t, string(moderation.OutcomeCleared), reset.Outcome)

	req := httptest.NewRequest(http.MethodPost, "/chat/reset", nil)
	w = httptest.NewRecorder()
	f.handler.Reset(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"conversation_id":"default"`)
}

func TestHandler_History(t *testing.T) {
	store, err := chatlog.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ts := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(context.Background(), chatlog.Entry{
		ID: "entry-1", ConversationID: "room", Timestamp: ts, Speaker: "小明", Message: "你好",
		ViewerResponse: moderation.NeutralAcknowledgement, Verdict: moderation.CleanVerdict(),
	}))
	f := newFixture(t, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/chat/history?conversation_id=room&date=2025-03-14", nil)
	w := httptest.NewRecorder()
	f.handler.History(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Messages []chatlog.HistoryMessage `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "entry-1_user", resp.Messages[0].ID)
	assert.Equal(t, "entry-1_ai", resp.Messages[1].ID)
	assert.Equal(t, "AI助手", resp.Messages[1].Sender)

	req = httptest.NewRequest(http.MethodGet, "/chat/history?date=14-03-2025", nil)
	w = httptest.NewRecorder()
	f.handler.History(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_HistoryWithoutStore(t *testing.T) {
	f := newFixture(t, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/chat/history", nil)
	w := httptest.NewRecorder()
	f.handler.History(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"messages":[]}`, w.Body.String())
}

func TestHandler_Archive(t *testing.T) {
	disabled := newFixture(t, nil, &stubArchiver{})
	w := postJSON(t, disabled.handler.Archive, "/admin/archive", map[string]string{"conversation_id": "room"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	archiver := &stubArchiver{enabled: true, key: "chat-logs/room/2025/03/14.json"}
	f := newFixture(t, nil, archiver)
	w = postJSON(t, f.handler.Archive, "/admin/archive", map[string]string{"conversation_id": "room", "date": "2025-03-14"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), archiver.key)
	assert.Equal(t, "room", archiver.conv)
	assert.Equal(t, "2025-03-14", archiver.day.Format(dateLayout))

	archiver.err = errors.New("s3 down")
	w = postJSON(t, f.handler.Archive, "/admin/archive", map[string]string{"conversation_id": "room", "date": "2025-03-14"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestService_SubmitRejectsBlank(t *testing.T) {
	svc := NewService(moderation.NewRegistry(&scriptedClassifier{verdict: moderation.CleanVerdict()}, 5))
	_, err := svc.Submit(context.Background(), "", "", "hi")
	assert.ErrorIs(t, err, ErrMissingFields)

	res, err := svc.Submit(context.Background(), "", "A", "hi")
	require.NoError(t, err)
	assert.False(t, res.Cleared)
	assert.Equal(t, moderation.NeutralAcknowledgement, res.ViewerResponse)
}
