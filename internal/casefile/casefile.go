// Package casefile holds the per-incident record threaded through the
// investigation pipeline and the session store that owns it.
package casefile

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Status is the lifecycle state of a case. Values are ordered.
type Status string

const (
	StatusInitiated      Status = "Initiated"
	StatusIdentified     Status = "Identified"
	StatusThreatAssessed Status = "ThreatAssessed"
	StatusRiskAssessed   Status = "RiskAssessed"
	StatusReported       Status = "Reported"
)

var statusOrder = []Status{
	StatusInitiated,
	StatusIdentified,
	StatusThreatAssessed,
	StatusRiskAssessed,
	StatusReported,
}

// Rank returns the position of s in the lifecycle, or -1 if s is unknown.
func (s Status) Rank() int {
	return slices.Index(statusOrder, s)
}

func (s Status) Valid() bool { return s.Rank() >= 0 }

// Before reports whether s comes strictly earlier in the lifecycle than other.
func (s Status) Before(other Status) bool {
	return s.Rank() < other.Rank()
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

type ThreatLevel string

const (
	ThreatLow  ThreatLevel = "LOW"
	ThreatHigh ThreatLevel = "HIGH"
)

type AlertLevel string

const (
	AlertLow      AlertLevel = "LOW"
	AlertModerate AlertLevel = "MODERATE"
	AlertHigh     AlertLevel = "HIGH"
	AlertCritical AlertLevel = "CRITICAL"
	AlertUnknown  AlertLevel = "UNKNOWN"
)

// ParseAlertLevel maps an upper- or lower-case label to an AlertLevel.
func ParseAlertLevel(s string) (AlertLevel, bool) {
	switch lvl := AlertLevel(strings.ToUpper(strings.TrimSpace(s))); lvl {
	case AlertLow, AlertModerate, AlertHigh, AlertCritical, AlertUnknown:
		return lvl, true
	}
	return "", false
}

type Location struct {
	Description string  `json:"description,omitempty"`
	Lat         float64 `json:"lat" validate:"latitude"`
	Lon         float64 `json:"lon" validate:"longitude"`
}

type Identification struct {
	TopGuess   string     `json:"topGuess"`
	CommonName string     `json:"commonName"`
	Confidence Confidence `json:"confidence"`
}

type ThreatProfile struct {
	StatusNZ    string      `json:"statusNZ"`
	ThreatLevel ThreatLevel `json:"threatLevel"`
	Hosts       []string    `json:"hosts"`
	Impact      string      `json:"impact,omitempty"`
	MPISummary  string      `json:"mpiSummary"`
}

type RiskAssessment struct {
	Summary      string     `json:"summary"`
	AlertLevel   AlertLevel `json:"alertLevel"`
	NearbyAssets []string   `json:"nearbyAssets"`
	// ForecastAvailable is false when the narrative was written without
	// weather data because the forecast query failed.
	ForecastAvailable bool `json:"forecastAvailable"`
}

// CaseFile is the aggregate for one biosecurity case. Treat values as
// immutable: the With* helpers and Advance return modified copies.
type CaseFile struct {
	CaseID         string          `json:"caseId"`
	ImageURI       string          `json:"imageUri"`
	Status         Status          `json:"status"`
	Location       *Location       `json:"location"`
	Identification *Identification `json:"identification"`
	ThreatProfile  *ThreatProfile  `json:"threatProfile"`
	RiskAssessment *RiskAssessment `json:"riskAssessment"`
	ReportURL      string          `json:"reportUrl,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

var validate = validator.New()

// New creates an Initiated case for the given image reference.
func New(imageURI string) (CaseFile, error) {
	imageURI = strings.TrimSpace(imageURI)
	if imageURI == "" {
		return CaseFile{}, fmt.Errorf("casefile: image uri is required")
	}
	now := time.Now().UTC()
	return CaseFile{
		CaseID:    uuid.NewString(),
		ImageURI:  imageURI,
		Status:    StatusInitiated,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NewLocation returns a Location after checking the coordinates are on the
// globe.
func NewLocation(description string, lat, lon float64) (Location, error) {
	loc := Location{Description: strings.TrimSpace(description), Lat: lat, Lon: lon}
	if err := loc.Validate(); err != nil {
		return Location{}, err
	}
	return loc, nil
}

func (l Location) Validate() error {
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("casefile: invalid coordinates (%v, %v): %w", l.Lat, l.Lon, err)
	}
	return nil
}

// Clone returns a deep copy so later edits never reach earlier readers.
func (c CaseFile) Clone() CaseFile {
	out := c
	if c.Location != nil {
		loc := *c.Location
		out.Location = &loc
	}
	if c.Identification != nil {
		id := *c.Identification
		out.Identification = &id
	}
	if c.ThreatProfile != nil {
		tp := *c.ThreatProfile
		tp.Hosts = slices.Clone(c.ThreatProfile.Hosts)
		out.ThreatProfile = &tp
	}
	if c.RiskAssessment != nil {
		ra := *c.RiskAssessment
		ra.NearbyAssets = slices.Clone(c.RiskAssessment.NearbyAssets)
		out.RiskAssessment = &ra
	}
	return out
}

// Advance returns a copy whose status is the later of the current status and
// target. Status never moves backwards.
func (c CaseFile) Advance(target Status) CaseFile {
	out := c.Clone()
	if target.Valid() && out.Status.Before(target) {
		out.Status = target
	}
	out.UpdatedAt = time.Now().UTC()
	return out
}

func (c CaseFile) WithLocation(loc Location) CaseFile {
	out := c.Clone()
	out.Location = &loc
	out.UpdatedAt = time.Now().UTC()
	return out
}

func (c CaseFile) WithIdentification(id Identification) CaseFile {
	out := c.Clone()
	out.Identification = &id
	return out.Advance(StatusIdentified)
}

func (c CaseFile) WithThreatProfile(tp ThreatProfile) CaseFile {
	out := c.Clone()
	tp.Hosts = slices.Clone(tp.Hosts)
	if tp.Hosts == nil {
		tp.Hosts = []string{}
	}
	out.ThreatProfile = &tp
	return out.Advance(StatusThreatAssessed)
}

func (c CaseFile) WithRiskAssessment(ra RiskAssessment) CaseFile {
	out := c.Clone()
	ra.NearbyAssets = slices.Clone(ra.NearbyAssets)
	if ra.NearbyAssets == nil {
		ra.NearbyAssets = []string{}
	}
	out.RiskAssessment = &ra
	return out.Advance(StatusRiskAssessed)
}

// WithReportURL records the published report and marks the case Reported.
func (c CaseFile) WithReportURL(url string) CaseFile {
	out := c.Clone()
	out.ReportURL = url
	return out.Advance(StatusReported)
}

// Section names an optional part of the case file.
type Section string

const (
	SectionImage          Section = "imageUri"
	SectionLocation       Section = "location"
	SectionIdentification Section = "identification"
	SectionThreatProfile  Section = "threatProfile"
	SectionRiskAssessment Section = "riskAssessment"
)

// Missing returns the requested sections that are absent, in argument order.
func (c CaseFile) Missing(sections ...Section) []Section {
	var out []Section
	for _, s := range sections {
		if !c.has(s) {
			out = append(out, s)
		}
	}
	return out
}

func (c CaseFile) has(s Section) bool {
	switch s {
	case SectionImage:
		return strings.TrimSpace(c.ImageURI) != ""
	case SectionLocation:
		return c.Location != nil
	case SectionIdentification:
		return c.Identification != nil && strings.TrimSpace(c.Identification.TopGuess) != ""
	case SectionThreatProfile:
		return c.ThreatProfile != nil
	case SectionRiskAssessment:
		return c.RiskAssessment != nil
	}
	return false
}

// Validate checks the invariants a commit must preserve relative to the
// previously committed value. prev may be nil for the first commit.
func Validate(prev *CaseFile, next CaseFile) error {
	if strings.TrimSpace(next.CaseID) == "" {
		return fmt.Errorf("casefile: case id is required")
	}
	if !next.Status.Valid() {
		return fmt.Errorf("casefile: unknown status %q", next.Status)
	}
	if next.Location != nil {
		if err := next.Location.Validate(); err != nil {
			return err
		}
	}
	if prev == nil {
		return nil
	}
	if prev.CaseID != next.CaseID {
		return fmt.Errorf("casefile: case id is immutable (%s -> %s)", prev.CaseID, next.CaseID)
	}
	if next.Status.Before(prev.Status) {
		return fmt.Errorf("casefile: status cannot regress from %s to %s", prev.Status, next.Status)
	}
	return nil
}
