package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"biosecure/internal/archive"
	"biosecure/internal/casefile"
	"biosecure/internal/common"
	"biosecure/internal/dispatch"
	"biosecure/internal/geocode"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

const CaseServiceName = "biosecure.v1.CaseService"

const (
	DispatchProcedure    = "/" + CaseServiceName + "/Dispatch"
	GetCaseProcedure     = "/" + CaseServiceName + "/GetCase"
	InvestigateProcedure = "/" + CaseServiceName + "/Investigate"
)

// Conversation handles one chat message for a session.
type Conversation interface {
	Handle(ctx context.Context, sessionID, message string) dispatch.Reply
}

// CaseService is everything the case RPCs need from the dispatcher.
type CaseService interface {
	Conversation
	Case(sessionID string) (casefile.CaseFile, bool)
	ArchivedCase(ctx context.Context, caseID string) (casefile.CaseFile, error)
	Investigate(ctx context.Context, imageURI, place string) (casefile.CaseFile, error)
}

type CaseHandler struct {
	svc CaseService
}

func NewCaseHandler(svc CaseService) *CaseHandler {
	return &CaseHandler{svc: svc}
}

// NewCaseServiceHandler mounts the case procedures under one path prefix.
// Messages are google.protobuf.Struct, so JSON clients post plain objects.
func NewCaseServiceHandler(h *CaseHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	dispatchHandler := connect.NewUnaryHandler(DispatchProcedure, h.Dispatch, opts...)
	getCaseHandler := connect.NewUnaryHandler(GetCaseProcedure, h.GetCase, opts...)
	investigateHandler := connect.NewUnaryHandler(InvestigateProcedure, h.Investigate, opts...)
	return "/" + CaseServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case DispatchProcedure:
			dispatchHandler.ServeHTTP(w, r)
		case GetCaseProcedure:
			getCaseHandler.ServeHTTP(w, r)
		case InvestigateProcedure:
			investigateHandler.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// Dispatch relays one chat message. Case failures are part of the reply,
// not RPC errors.
func (h *CaseHandler) Dispatch(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	sessionID := stringField(req.Msg, "sessionId")
	if sessionID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("sessionId is required"))
	}
	reply := h.svc.Handle(ctx, sessionID, stringField(req.Msg, "message"))
	return structResponse(reply)
}

// GetCase returns the live case for sessionId, or the archived case for caseId.
func (h *CaseHandler) GetCase(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	if sessionID := stringField(req.Msg, "sessionId"); sessionID != "" {
		cf, ok := h.svc.Case(sessionID)
		if !ok {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %s has no case", sessionID))
		}
		return structResponse(cf)
	}
	caseID := stringField(req.Msg, "caseId")
	if caseID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("sessionId or caseId is required"))
	}
	cf, err := h.svc.ArchivedCase(ctx, caseID)
	if err != nil {
		return nil, toCaseError(err)
	}
	return structResponse(cf)
}

// Investigate runs a whole case in one call.
func (h *CaseHandler) Investigate(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	cf, err := h.svc.Investigate(ctx, stringField(req.Msg, "imageUri"), stringField(req.Msg, "location"))
	if err != nil {
		return nil, toCaseError(err)
	}
	return structResponse(cf)
}

// toCaseError maps case failures onto Connect codes. Causes that say more
// than the kind (a rejected address, a missing archive entry, a client that
// went away) are checked first.
func toCaseError(err error) error {
	var statusErr *geocode.StatusError
	switch {
	case errors.Is(err, archive.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.As(err, &statusErr):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	}
	if kind, ok := common.KindOf(err); ok {
		switch kind {
		case common.KindMissingInput, common.KindIncompleteCaseFile:
			return connect.NewError(connect.CodeFailedPrecondition, err)
		case common.KindExternalService:
			return connect.NewError(connect.CodeUnavailable, err)
		case common.KindReportPublish:
			return connect.NewError(connect.CodeInternal, err)
		}
	}
	switch {
	case errors.Is(err, geocode.ErrNetwork):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

func stringField(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(s.GetFields()[key].GetStringValue())
}

// structResponse converts v through its JSON form so the wire shape matches
// the json tags used everywhere else.
func structResponse(v any) (*connect.Response[structpb.Struct], error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}
