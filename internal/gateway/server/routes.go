package server

import (
	"net/http"

	"biosecure/internal/gateway/handler"
	"biosecure/internal/gateway/handler/rpc"
	"biosecure/internal/gateway/middleware"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewMux(
	caseHandler *rpc.CaseHandler,
	chatHandler *rpc.ChatHandler,
	debugHandler *handler.DebugHandler,
	gatherer prometheus.Gatherer,
) http.Handler {
	mux := http.NewServeMux()

	// RPC Handlers
	mux.Handle(rpc.NewCaseServiceHandler(caseHandler))

	// Websocket
	mux.HandleFunc("/ws/chat", chatHandler.HandleChatWS)

	// Ops Handlers
	mux.HandleFunc("/healthz", debugHandler.HandleHealth)
	mux.HandleFunc("/debug/case", debugHandler.HandleCase)
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// Middleware
	return middleware.CORS(mux)
}
