package extract

import (
	"context"
	"slices"
	"strings"

	"biosecure/internal/casefile"
)

// Classification is the biosecurity standing of a species.
type Classification struct {
	StatusNZ    string
	ThreatLevel casefile.ThreatLevel
	Hosts       []string
	Impact      string
}

// Benign is the classification of any species not listed as a threat.
func Benign() Classification {
	return Classification{StatusNZ: "Benign", ThreatLevel: casefile.ThreatLow, Hosts: []string{}}
}

// Classifier looks up the threat standing of a species. Implementations may
// front a real biosecurity register; TableClassifier is the built-in one.
type Classifier interface {
	Classify(ctx context.Context, species string) (Classification, error)
}

// ThreatEntry is one row of the known-threat table. An entry matches when any
// of its Match strings occurs in the species text (case-sensitive).
type ThreatEntry struct {
	Name        string               `yaml:"name"`
	Match       []string             `yaml:"match"`
	StatusNZ    string               `yaml:"status_nz"`
	ThreatLevel casefile.ThreatLevel `yaml:"threat_level"`
	Hosts       []string             `yaml:"hosts"`
	Impact      string               `yaml:"impact"`
}

type TableClassifier struct {
	entries []ThreatEntry
}

func NewTableClassifier(entries []ThreatEntry) *TableClassifier {
	return &TableClassifier{entries: slices.Clone(entries)}
}

func (c *TableClassifier) Classify(_ context.Context, species string) (Classification, error) {
	return c.lookup(species), nil
}

func (c *TableClassifier) lookup(species string) Classification {
	for _, e := range c.entries {
		for _, m := range e.Match {
			if m == "" || !strings.Contains(species, m) {
				continue
			}
			hosts := slices.Clone(e.Hosts)
			if hosts == nil {
				hosts = []string{}
			}
			return Classification{
				StatusNZ:    e.StatusNZ,
				ThreatLevel: e.ThreatLevel,
				Hosts:       hosts,
				Impact:      e.Impact,
			}
		}
	}
	return Benign()
}
