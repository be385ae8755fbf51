// Package report renders the incident report distributed for a finished case.
//
// Fields are interpolated as-is. Model output ends up in the page unescaped,
// so reports must only be served from a bucket that hosts nothing else.
package report

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/google/uuid"

	"biosecure/internal/casefile"
)

const ContentType = "text/html; charset=utf-8"

//go:embed report.html.tmpl
var reportTemplate string

type Reference struct {
	Title string
	URL   string
}

// DefaultReferences are listed on every report.
var DefaultReferences = []Reference{
	{Title: "MPI: Brown Marmorated Stink Bug", URL: "https://www.mpi.govt.nz/biosecurity/major-pest-and-disease-threats/brown-marmorated-stink-bug/"},
	{Title: "Landcare Research: Brown Marmorated Stink Bug", URL: "https://www.landcareresearch.co.nz/tools-and-resources/identification/what-is-this-bug/brown-marmorated-stink-bug/"},
}

type Renderer struct {
	tmpl       *template.Template
	references []Reference
}

func NewRenderer(refs []Reference) (*Renderer, error) {
	if refs == nil {
		refs = DefaultReferences
	}
	tmpl, err := template.New("report").
		Option("missingkey=error").
		Funcs(template.FuncMap{"join": func(s []string) string { return strings.Join(s, ", ") }}).
		Parse(reportTemplate)
	if err != nil {
		return nil, fmt.Errorf("report: parse template: %w", err)
	}
	return &Renderer{tmpl: tmpl, references: refs}, nil
}

type view struct {
	Case       casefile.CaseFile
	ImageURL   string
	MapURL     string
	References []Reference
}

// Render produces the HTML page. The case must carry location,
// identification, threat profile and risk assessment.
func (r *Renderer) Render(cf casefile.CaseFile, imageURL string) ([]byte, error) {
	if missing := cf.Missing(
		casefile.SectionIdentification,
		casefile.SectionThreatProfile,
		casefile.SectionRiskAssessment,
		casefile.SectionLocation,
	); len(missing) > 0 {
		return nil, fmt.Errorf("report: case %s is missing %v", cf.CaseID, missing)
	}
	var buf bytes.Buffer
	err := r.tmpl.Execute(&buf, view{
		Case:       cf,
		ImageURL:   imageURL,
		MapURL:     MapURL(cf.Location.Lat, cf.Location.Lon),
		References: r.references,
	})
	if err != nil {
		return nil, fmt.Errorf("report: render: %w", err)
	}
	return buf.Bytes(), nil
}

// MapURL is an embeddable map centred on the coordinates.
func MapURL(lat, lon float64) string {
	return fmt.Sprintf("https://maps.google.com/maps?q=%v,%v&hl=en&z=14&output=embed", lat, lon)
}

// NewKey returns a fresh object key for a report.
func NewKey() string {
	return "reports/report-" + uuid.NewString() + ".html"
}
