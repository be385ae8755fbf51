package rpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biosecure/internal/casefile"
	"biosecure/internal/dispatch"
	"biosecure/internal/pipeline"
	"biosecure/internal/stage"
)

type passStage struct{ name string }

func (s passStage) Name() string { return s.name }
func (s passStage) Run(_ context.Context, cf casefile.CaseFile) (casefile.CaseFile, error) {
	return cf, nil
}

// pipelineConversation runs a two-stage pipeline for every message.
type pipelineConversation struct {
	orch *pipeline.Orchestrator
}

func (p pipelineConversation) Handle(ctx context.Context, sessionID, message string) dispatch.Reply {
	cf, _ := casefile.New("gs://b/insect1.png")
	sess := casefile.Detached(sessionID)
	if err := sess.Commit(cf); err != nil {
		return dispatch.Reply{SessionID: sessionID, Message: err.Error(), Failed: true}
	}
	out, err := p.orch.Run(ctx, sess)
	if err != nil {
		return dispatch.Reply{SessionID: sessionID, Message: err.Error(), Failed: true}
	}
	return dispatch.Reply{SessionID: sessionID, Message: "done: " + message, Case: &out}
}

func dialChat(t *testing.T, h *ChatHandler, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleChatWS))
	t.Cleanup(srv.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+query, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readOut(t *testing.T, conn *websocket.Conn) chatWSOutbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var out chatWSOutbound
	require.NoError(t, conn.ReadJSON(&out))
	return out
}

func TestChatWSStreamsStagesThenReply(t *testing.T) {
	orch := pipeline.New([]stage.Stage{passStage{"identification"}, passStage{"reporting"}})
	conn := dialChat(t, NewChatHandler(pipelineConversation{orch: orch}, nil), "?session_id=s1")

	assert.Equal(t, "ready", readOut(t, conn).Type)

	require.NoError(t, conn.WriteJSON(chatWSInbound{Type: "send", Message: "analyze"}))

	var types, stages []string
	for {
		out := readOut(t, conn)
		types = append(types, out.Type)
		if out.Stage != "" {
			stages = append(stages, out.Stage)
		}
		if out.Type == "reply" {
			require.NotNil(t, out.Reply)
			assert.Equal(t, "done: analyze", out.Reply.Message)
			assert.False(t, out.Reply.Failed)
			break
		}
	}
	assert.Equal(t, []string{"stage_started", "stage_finished", "stage_started", "stage_finished", "reply"}, types)
	assert.Equal(t, []string{"identification", "identification", "reporting", "reporting"}, stages)
}

func TestChatWSControlMessages(t *testing.T) {
	orch := pipeline.New(nil)
	conn := dialChat(t, NewChatHandler(pipelineConversation{orch: orch}, nil), "?session_id=s1")
	readOut(t, conn)

	require.NoError(t, conn.WriteJSON(chatWSInbound{Type: "ping"}))
	assert.Equal(t, "pong", readOut(t, conn).Type)

	require.NoError(t, conn.WriteJSON(chatWSInbound{Type: "send", SessionID: "other"}))
	out := readOut(t, conn)
	assert.Equal(t, "error", out.Type)
	assert.Equal(t, "sessionId mismatch", out.Message)

	require.NoError(t, conn.WriteJSON(chatWSInbound{Type: "dance"}))
	out = readOut(t, conn)
	assert.Equal(t, "invalid_argument", out.Code)
	assert.Contains(t, out.Message, "unsupported type")
}

func TestChatWSRequiresSession(t *testing.T) {
	h := NewChatHandler(pipelineConversation{}, nil)
	rec := httptest.NewRecorder()
	h.HandleChatWS(rec, httptest.NewRequest(http.MethodGet, "/ws/chat", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
