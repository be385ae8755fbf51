package stage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"biosecure/internal/casefile"
	"biosecure/internal/common"
	"biosecure/internal/notify"
	"biosecure/internal/report"
)

// Publisher uploads a rendered report and returns its public link.
type Publisher interface {
	Publish(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Linker maps a stored image reference to a link usable in the report.
type Linker interface {
	Link(ctx context.Context, uri string) string
}

// Reporting renders, publishes and announces the final report.
type Reporting struct {
	Renderer  *report.Renderer
	Publisher Publisher
	Images    Linker
	Notifier  notify.Notifier
	Log       *slog.Logger
}

func (s *Reporting) Name() string { return NameReporting }

func (s *Reporting) Run(ctx context.Context, cf casefile.CaseFile) (casefile.CaseFile, error) {
	missing := cf.Missing(
		casefile.SectionIdentification,
		casefile.SectionThreatProfile,
		casefile.SectionRiskAssessment,
		casefile.SectionLocation,
	)
	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, m := range missing {
			names[i] = string(m)
		}
		return cf, common.IncompleteCaseFile(s.Name(), "CaseFile is incomplete for final reporting (missing %s).", strings.Join(names, ", "))
	}
	log := loggerOr(s.Log, s.Name())

	imageURL := cf.ImageURI
	if s.Images != nil {
		imageURL = s.Images.Link(ctx, cf.ImageURI)
	}
	body, err := s.Renderer.Render(cf, imageURL)
	if err != nil {
		return cf, common.ReportPublish(s.Name(), "failed to render report", err)
	}
	url, err := s.Publisher.Publish(ctx, report.NewKey(), body, report.ContentType)
	if err != nil {
		return cf, common.ReportPublish(s.Name(), "failed to publish report", err)
	}
	log.InfoContext(ctx, "stage.reporting.published", "case_id", cf.CaseID, "url", url)

	if s.Notifier != nil {
		n := notify.Notification{
			CaseID:     cf.CaseID,
			Title:      fmt.Sprintf("Biosecurity Alert: %s", cf.Identification.CommonName),
			ReportURL:  url,
			AlertLevel: string(cf.RiskAssessment.AlertLevel),
		}
		if err := s.Notifier.Notify(ctx, n); err != nil {
			log.WarnContext(ctx, "stage.reporting.notify_failed", "case_id", cf.CaseID, "err", err)
		}
	}
	return cf.WithReportURL(url), nil
}
