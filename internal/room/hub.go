package room

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/wolfman30/chat-moderator/internal/moderation"
	"github.com/wolfman30/chat-moderator/pkg/logging"
)

// Submitter handles chat messages that arrive over a viewer's socket.
type Submitter interface {
	Submit(ctx context.Context, conversationID, speaker, message string) (moderation.Result, error)
}

// InboundMessage is what a viewer sends.
type InboundMessage struct {
	Type string `json:"type"` // "message", "ping"
	Text string `json:"text"`
}

// OutboundMessage is what a viewer receives.
type OutboundMessage struct {
	Type           string `json:"type"` // "joined", "moderation", "pong", "error"
	ConversationID string `json:"conversation_id,omitempty"`
	Viewer         string `json:"viewer,omitempty"`
	Speaker        string `json:"speaker,omitempty"`
	Message        string `json:"message,omitempty"`
	Text           string `json:"text,omitempty"`
	IsAnomaly      bool   `json:"is_anomaly,omitempty"`
	Cleared        bool   `json:"cleared,omitempty"`
}

const (
	outboundBuffer = 32
	writeTimeout   = 10 * time.Second
)

// viewerConn owns one socket. Messages are queued and written by writeLoop,
// so a viewer that stops reading never stalls the caller.
type viewerConn struct {
	viewer    string
	conn      *websocket.Conn
	out       chan OutboundMessage
	done      chan struct{}
	closeOnce sync.Once
}

func newViewerConn(viewer string, conn *websocket.Conn) *viewerConn {
	return &viewerConn{
		viewer: viewer,
		conn:   conn,
		out:    make(chan OutboundMessage, outboundBuffer),
		done:   make(chan struct{}),
	}
}

// send queues msg without blocking. A full queue closes the viewer.
func (v *viewerConn) send(msg OutboundMessage) bool {
	select {
	case <-v.done:
		return false
	default:
	}
	select {
	case v.out <- msg:
		return true
	default:
		v.close()
		return false
	}
}

func (v *viewerConn) writeLoop() {
	for {
		select {
		case <-v.done:
			return
		case msg := <-v.out:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := websocket.JSON.Send(v.conn, msg); err != nil {
				v.close()
				return
			}
		}
	}
}

func (v *viewerConn) close() {
	v.closeOnce.Do(func() {
		close(v.done)
		if v.conn != nil {
			_ = v.conn.Close()
		}
	})
}

// Hub tracks the viewers watching each conversation and fans moderation
// results out to them, each viewer getting the response drafted for them.
type Hub struct {
	logger    *logging.Logger
	submitter Submitter

	mu    sync.RWMutex
	rooms map[string]map[*viewerConn]struct{}
}

func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{logger: logger, rooms: make(map[string]map[*viewerConn]struct{})}
}

// SetSubmitter lets viewers post messages over their socket.
func (h *Hub) SetSubmitter(s Submitter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.submitter = s
}

// Viewers returns the number of connected viewers in a conversation.
func (h *Hub) Viewers(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// Broadcast delivers one handled message to every viewer in the conversation.
func (h *Hub) Broadcast(conversationID, speaker, message string, res moderation.Result) {
	if h == nil {
		return
	}
	h.mu.RLock()
	viewers := make([]*viewerConn, 0, len(h.rooms[conversationID]))
	for v := range h.rooms[conversationID] {
		viewers = append(viewers, v)
	}
	h.mu.RUnlock()

	for _, v := range viewers {
		out := OutboundMessage{
			Type:           "moderation",
			ConversationID: conversationID,
			Viewer:         v.viewer,
			Speaker:        speaker,
			Message:        message,
			Text:           moderation.Select(res.Verdict, v.viewer),
			IsAnomaly:      res.Verdict.IsAnomaly,
			Cleared:        res.Cleared,
		}
		if !v.send(out) {
			h.leave(conversationID, v)
			h.logger.Warn("room: viewer dropped", "conversation_id", conversationID, "viewer", v.viewer)
		}
	}
}

// HandleWebSocket upgrades to WebSocket and joins the viewer to a room.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Hub) serveWS(conn *websocket.Conn, r *http.Request) {
	convID := moderation.NormalizeConversationID(r.URL.Query().Get("conversation_id"))
	viewer := strings.TrimSpace(r.URL.Query().Get("viewer"))
	if viewer == "" {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "missing viewer parameter"})
		return
	}

	vc := newViewerConn(viewer, conn)
	go vc.writeLoop()
	defer vc.close()
	h.join(convID, vc)
	defer h.leave(convID, vc)

	vc.send(OutboundMessage{Type: "joined", ConversationID: convID, Viewer: viewer})
	h.logger.Info("room: viewer joined", "conversation_id", convID, "viewer", viewer)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("room: connection closed", "conversation_id", convID, "viewer", viewer, "error", err)
			return
		}

		switch msg.Type {
		case "ping":
			vc.send(OutboundMessage{Type: "pong"})
		case "message":
			if strings.TrimSpace(msg.Text) == "" {
				continue
			}
			h.submit(r.Context(), vc, convID, msg.Text)
		}
	}
}

func (h *Hub) submit(ctx context.Context, vc *viewerConn, convID, text string) {
	h.mu.RLock()
	s := h.submitter
	h.mu.RUnlock()
	if s == nil {
		vc.send(OutboundMessage{Type: "error", Text: "sending over the socket is disabled"})
		return
	}
	if _, err := s.Submit(ctx, convID, vc.viewer, text); err != nil {
		h.logger.Error("room: submit failed", "conversation_id", convID, "viewer", vc.viewer, "error", err)
		vc.send(OutboundMessage{Type: "error", Text: "message could not be processed"})
	}
}

func (h *Hub) join(convID string, vc *viewerConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[convID]
	if !ok {
		room = make(map[*viewerConn]struct{})
		h.rooms[convID] = room
	}
	room[vc] = struct{}{}
}

func (h *Hub) leave(convID string, vc *viewerConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[convID]
	delete(room, vc)
	if len(room) == 0 {
		delete(h.rooms, convID)
	}
}
