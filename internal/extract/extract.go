// Package extract derives structured case fields from free-form model output.
// Every extractor is a pure function with a fixed fallback value.
package extract

import (
	"strings"

	"biosecure/internal/casefile"
)

// UnknownCommonName is returned when no common name can be found.
const UnknownCommonName = "Unknown"

// CommonName pulls the species' common name out of an identification
// sentence such as "The insect is a Spotted Lanternfly (Lycorma delicatula).".
// It takes the text after the first "is a " up to the next " (" or the end
// of the string.
func CommonName(text string) string {
	const marker = "is a "
	i := strings.Index(text, marker)
	if i < 0 {
		return UnknownCommonName
	}
	rest := text[i+len(marker):]
	if j := strings.Index(rest, " ("); j >= 0 {
		rest = rest[:j]
	}
	name := strings.TrimSpace(rest)
	if name == "" {
		return UnknownCommonName
	}
	return name
}

// AlertRule maps a keyword to the alert level it signals. Rules are checked in
// slice order, so earlier rules take priority.
type AlertRule struct {
	Keyword string              `yaml:"keyword"`
	Level   casefile.AlertLevel `yaml:"level"`
}

// AlertLevel scans a risk narrative for the first rule (by priority, not by
// position in the text) whose keyword occurs, ignoring case.
func AlertLevel(text string, rules []AlertRule) casefile.AlertLevel {
	lower := strings.ToLower(text)
	for _, r := range rules {
		kw := strings.ToLower(strings.TrimSpace(r.Keyword))
		if kw == "" {
			continue
		}
		if strings.Contains(lower, kw) {
			return r.Level
		}
	}
	return casefile.AlertUnknown
}

// AssetTerm maps a keyword found in a narrative to the asset label recorded
// on the case. Several keywords may share one label.
type AssetTerm struct {
	Keyword string `yaml:"keyword"`
	Asset   string `yaml:"asset"`
}

// NearbyAssets returns the asset label of every term whose keyword occurs in
// text, ignoring case, in table order. Labels may repeat.
func NearbyAssets(text string, terms []AssetTerm) []string {
	lower := strings.ToLower(text)
	out := []string{}
	for _, t := range terms {
		kw := strings.ToLower(strings.TrimSpace(t.Keyword))
		if kw == "" || !strings.Contains(lower, kw) {
			continue
		}
		label := t.Asset
		if label == "" {
			label = t.Keyword
		}
		out = append(out, label)
	}
	return out
}
