package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"biosecure/internal/archive"
	"biosecure/internal/casefile"
)

// CaseLookup is the read side of the dispatcher.
type CaseLookup interface {
	Case(sessionID string) (casefile.CaseFile, bool)
	ArchivedCase(ctx context.Context, caseID string) (casefile.CaseFile, error)
}

type DebugHandler struct {
	cases  CaseLookup
	stages []string
}

func NewDebugHandler(cases CaseLookup, stages []string) *DebugHandler {
	return &DebugHandler{cases: cases, stages: stages}
}

func (h *DebugHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"stages": h.stages,
	})
}

// HandleCase returns the live case for session_id or the archived case for
// case_id.
func (h *DebugHandler) HandleCase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	if sessionID := strings.TrimSpace(q.Get("session_id")); sessionID != "" {
		cf, ok := h.cases.Case(sessionID)
		if !ok {
			http.Error(w, "session has no case", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, cf)
		return
	}
	caseID := strings.TrimSpace(q.Get("case_id"))
	if caseID == "" {
		http.Error(w, "session_id or case_id is required", http.StatusBadRequest)
		return
	}
	cf, err := h.cases.ArchivedCase(r.Context(), caseID)
	switch {
	case errors.Is(err, archive.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, cf)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
