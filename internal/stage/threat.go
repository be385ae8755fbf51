package stage

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"biosecure/internal/casefile"
	"biosecure/internal/common"
	"biosecure/internal/extract"
	"biosecure/internal/llm"
)

// ThreatAnalysis looks the species up in the threat register and attaches
// a summary of the regulator's page.
type ThreatAnalysis struct {
	LLM        llm.Generator
	Classifier extract.Classifier
	Log        *slog.Logger
}

func (s *ThreatAnalysis) Name() string { return NameThreatAnalysis }

func (s *ThreatAnalysis) Run(ctx context.Context, cf casefile.CaseFile) (casefile.CaseFile, error) {
	if len(cf.Missing(casefile.SectionIdentification)) > 0 {
		return cf, common.MissingInput(s.Name(), "No identification found in CaseFile.")
	}
	species := cf.Identification.TopGuess
	query := speciesQuery(cf.Identification)

	var (
		summary string
		class   extract.Classification
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := s.LLM.Generate(gctx, llm.Request{Prompt: mpiSummaryPrompt(query), Search: true})
		if err != nil {
			return common.ExternalService(s.Name(), "MPI summary call failed", err)
		}
		summary = out
		return nil
	})
	g.Go(func() error {
		out, err := s.Classifier.Classify(gctx, species)
		if err != nil {
			return common.ExternalService(s.Name(), "threat register lookup failed", err)
		}
		class = out
		return nil
	})
	if err := g.Wait(); err != nil {
		return cf, err
	}

	loggerOr(s.Log, s.Name()).InfoContext(ctx, "stage.threat.done",
		"case_id", cf.CaseID, "threat_level", class.ThreatLevel, "status_nz", class.StatusNZ)
	return cf.WithThreatProfile(casefile.ThreatProfile{
		StatusNZ:    class.StatusNZ,
		ThreatLevel: class.ThreatLevel,
		Hosts:       class.Hosts,
		Impact:      class.Impact,
		MPISummary:  summary,
	}), nil
}
