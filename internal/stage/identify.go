package stage

import (
	"context"
	"log/slog"

	"biosecure/internal/casefile"
	"biosecure/internal/common"
	"biosecure/internal/extract"
	"biosecure/internal/llm"
)

// Identification asks the vision model what the insect is.
type Identification struct {
	LLM llm.Generator
	Log *slog.Logger
}

func (s *Identification) Name() string { return NameIdentification }

func (s *Identification) Run(ctx context.Context, cf casefile.CaseFile) (casefile.CaseFile, error) {
	if len(cf.Missing(casefile.SectionImage)) > 0 {
		return cf, common.MissingInput(s.Name(), "No image URI found in CaseFile.")
	}
	text, err := s.LLM.Generate(ctx, llm.Request{
		Prompt:   identifyPrompt,
		ImageURI: cf.ImageURI,
		Search:   true,
	})
	if err != nil {
		return cf, common.ExternalService(s.Name(), "identification model call failed", err)
	}
	id := casefile.Identification{
		TopGuess:   text,
		CommonName: extract.CommonName(text),
		// The model gives no calibrated score.
		Confidence: casefile.ConfidenceHigh,
	}
	loggerOr(s.Log, s.Name()).InfoContext(ctx, "stage.identification.done",
		"case_id", cf.CaseID, "common_name", id.CommonName)
	return cf.WithIdentification(id), nil
}
