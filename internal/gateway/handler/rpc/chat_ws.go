package rpc

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"biosecure/internal/dispatch"
	"biosecure/internal/pipeline"

	"github.com/gorilla/websocket"
)

// ChatHandler serves the conversational websocket. Stage progress for a
// message is streamed before its reply.
type ChatHandler struct {
	conv Conversation
	log  *slog.Logger
}

func NewChatHandler(conv Conversation, log *slog.Logger) *ChatHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ChatHandler{conv: conv, log: log}
}

const (
	chatWSWriteWait = 10 * time.Second
	chatWSPongWait  = 60 * time.Second
	chatWSPingEvery = (chatWSPongWait * 9) / 10
)

var chatWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type chatWSInbound struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message,omitempty"`
}

type chatWSOutbound struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	CaseID    string          `json:"caseId,omitempty"`
	Stage     string          `json:"stage,omitempty"`
	ElapsedMS int64           `json:"elapsedMs,omitempty"`
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
	Reply     *dispatch.Reply `json:"reply,omitempty"`
}

// wsObserver forwards stage boundaries of one run to the socket.
type wsObserver struct {
	sessionID string
	writeCh   chan chatWSOutbound
}

func (o wsObserver) StageStarted(_ context.Context, caseID, stage string) {
	pushChatWS(o.writeCh, chatWSOutbound{Type: "stage_started", SessionID: o.sessionID, CaseID: caseID, Stage: stage})
}

func (o wsObserver) StageFinished(_ context.Context, caseID, stage string, elapsed time.Duration, err error) {
	out := chatWSOutbound{
		Type:      "stage_finished",
		SessionID: o.sessionID,
		CaseID:    caseID,
		Stage:     stage,
		ElapsedMS: elapsed.Milliseconds(),
	}
	if err != nil {
		out.Code = "failed"
		out.Message = err.Error()
	}
	pushChatWS(o.writeCh, out)
}

func (h *ChatHandler) HandleChatWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	conn, err := chatWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(chatWSPongWait)); err != nil {
		h.log.Warn("chat.ws.deadline_failed", "session_id", sessionID, "err", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(chatWSPongWait))
	})

	writeCh := make(chan chatWSOutbound, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(chatWSPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(chatWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(chatWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	pushChatWS(writeCh, chatWSOutbound{Type: "ready", SessionID: sessionID})
	h.log.Info("chat.ws.connected", "session_id", sessionID)

	// Pipeline runs take minutes, so messages are handled off the read loop
	// and one at a time per socket.
	var (
		busy     atomic.Bool
		inflight sync.WaitGroup
	)
	defer func() {
		cancel()
		inflight.Wait()
		<-writerDone
	}()

	for {
		var in chatWSInbound
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		msgType := strings.ToLower(strings.TrimSpace(in.Type))
		if v := strings.TrimSpace(in.SessionID); v != "" && v != sessionID {
			pushChatWS(writeCh, chatWSOutbound{
				Type:    "error",
				Code:    "invalid_argument",
				Message: "sessionId mismatch",
			})
			continue
		}

		switch msgType {
		case "ping":
			pushChatWS(writeCh, chatWSOutbound{Type: "pong"})
		case "send":
			if !busy.CompareAndSwap(false, true) {
				pushChatWS(writeCh, chatWSOutbound{
					Type:    "error",
					Code:    "busy",
					Message: "the previous message is still being processed",
				})
				continue
			}
			inflight.Add(1)
			go func(message string) {
				defer inflight.Done()
				defer busy.Store(false)
				runCtx := pipeline.WithRunObserver(ctx, wsObserver{sessionID: sessionID, writeCh: writeCh})
				reply := h.conv.Handle(runCtx, sessionID, message)
				pushChatWS(writeCh, chatWSOutbound{Type: "reply", SessionID: sessionID, Reply: &reply})
			}(in.Message)
		case "":
			pushChatWS(writeCh, chatWSOutbound{
				Type:    "error",
				Code:    "invalid_argument",
				Message: "type is required",
			})
		default:
			pushChatWS(writeCh, chatWSOutbound{
				Type:    "error",
				Code:    "invalid_argument",
				Message: "unsupported type: " + msgType,
			})
		}
	}
}

// pushChatWS never blocks: when the buffer is full the oldest event is
// dropped.
func pushChatWS(writeCh chan chatWSOutbound, out chatWSOutbound) {
	if writeCh == nil {
		return
	}
	select {
	case writeCh <- out:
		return
	default:
	}
	select {
	case <-writeCh:
	default:
	}
	select {
	case writeCh <- out:
	default:
	}
}
