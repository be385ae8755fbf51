package extract

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"biosecure/internal/casefile"
)

//go:embed default_policy.yaml
var defaultPolicyYAML []byte

// Policy holds the keyword and lookup tables the extractors run on. It is
// loaded from YAML so the tables can change without touching stage code.
type Policy struct {
	AlertRules []AlertRule   `yaml:"alert_rules"`
	AssetTerms []AssetTerm   `yaml:"asset_terms"`
	Threats    []ThreatEntry `yaml:"threats"`
}

// DefaultPolicy returns the built-in tables.
func DefaultPolicy() Policy {
	p, err := parsePolicy(defaultPolicyYAML)
	if err != nil {
		panic(fmt.Sprintf("extract: embedded policy is invalid: %v", err))
	}
	return p
}

// LoadPolicy reads a policy file. An empty path yields the defaults, and any
// section the file leaves out keeps its default table.
func LoadPolicy(path string) (Policy, error) {
	def := DefaultPolicy()
	path = strings.TrimSpace(path)
	if path == "" {
		return def, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy %s: %w", path, err)
	}
	p, err := parsePolicy(raw)
	if err != nil {
		return Policy{}, fmt.Errorf("parse policy %s: %w", path, err)
	}
	if len(p.AlertRules) == 0 {
		p.AlertRules = def.AlertRules
	}
	if len(p.AssetTerms) == 0 {
		p.AssetTerms = def.AssetTerms
	}
	if len(p.Threats) == 0 {
		p.Threats = def.Threats
	}
	return p, nil
}

func parsePolicy(raw []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Policy{}, err
	}
	for i, r := range p.AlertRules {
		lvl, ok := casefile.ParseAlertLevel(string(r.Level))
		if !ok {
			return Policy{}, fmt.Errorf("alert rule %d: unknown level %q", i, r.Level)
		}
		p.AlertRules[i].Level = lvl
	}
	for i, e := range p.Threats {
		switch lvl := casefile.ThreatLevel(strings.ToUpper(string(e.ThreatLevel))); lvl {
		case casefile.ThreatLow, casefile.ThreatHigh:
			p.Threats[i].ThreatLevel = lvl
		default:
			return Policy{}, fmt.Errorf("threat %q: unknown level %q", e.Name, e.ThreatLevel)
		}
		if len(e.Match) == 0 {
			return Policy{}, fmt.Errorf("threat %q: match list is empty", e.Name)
		}
	}
	return p, nil
}
