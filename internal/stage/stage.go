// Package stage holds the four investigation steps. Each stage reads a case
// file, calls its collaborators, and returns an updated copy; it never
// touches the input or the session.
package stage

import (
	"context"
	"log/slog"

	"biosecure/internal/casefile"
	"biosecure/internal/common"
)

const (
	NameIdentification = "identification"
	NameThreatAnalysis = "threat_analysis"
	NameRiskAssessment = "risk_assessment"
	NameReporting      = "reporting"
)

// Stage is one step of the investigation. On error the returned case file is
// meaningless and must be discarded.
type Stage interface {
	Name() string
	Run(ctx context.Context, cf casefile.CaseFile) (casefile.CaseFile, error)
}

// Apply runs s against the case committed in sess and commits the result.
// It is how a single stage is invoked outside the pipeline.
func Apply(ctx context.Context, s Stage, sess casefile.Session) (casefile.CaseFile, error) {
	cf, ok := sess.Get()
	if !ok {
		return casefile.CaseFile{}, common.MissingInput(s.Name(), "no case file in session %s", sess.ID())
	}
	next, err := s.Run(ctx, cf)
	if err != nil {
		return cf, err
	}
	if err := sess.Commit(next); err != nil {
		return cf, err
	}
	return next, nil
}

func loggerOr(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With(slog.String("stage", name))
}
