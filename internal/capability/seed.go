package capability

import (
	_ "embed"

	"gopkg.in/yaml.v3"
)

// profileSeed is one entry of the construction-time profile table. Pricing
// figures are grounded on the per-1M-token rates the pack's pricing table
// uses, converted to cost-per-1k for spec.md §4.11's cost formula;
// quality/latency seeds are rough vendor-published ballparks, refined in
// place by UpdateLatency as real traffic lands.
type profileSeed struct {
	Provider  string   `yaml:"provider"`
	Model     string   `yaml:"model"`
	Caps      []string `yaml:"capabilities"`
	Quality   float64  `yaml:"quality_score"`
	CtxWindow int      `yaml:"context_window"`
	CostIn    float64  `yaml:"cost_per_1k_input"`
	CostOut   float64  `yaml:"cost_per_1k_output"`
	Latency   float64  `yaml:"seed_latency_ms"`
}

//go:embed profiles.yaml
var profilesYAML []byte

// loadDefaultProfiles parses the embedded profile table. A malformed
// document would only ever ship from a broken build, so a parse failure
// panics at package init rather than silently starting with an empty map.
func loadDefaultProfiles() []profileSeed {
	var seeds []profileSeed
	if err := yaml.Unmarshal(profilesYAML, &seeds); err != nil {
		panic("capability: malformed profiles.yaml: " + err.Error())
	}
	return seeds
}

var defaultProfiles = loadDefaultProfiles()
