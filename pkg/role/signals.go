package role

// Thresholds turn raw signal readings into evidence states. A reading
// strictly above its threshold is high; anything else, NaN included, is low.
type Thresholds struct {
	CognitiveLoad   float64 `koanf:"cognitive_load_threshold" yaml:"cognitive_load_threshold"`
	TeamPerformance float64 `koanf:"team_performance_threshold" yaml:"team_performance_threshold"`
	Reliance        float64 `koanf:"reliance_threshold" yaml:"reliance_threshold"`
}

// DefaultThresholds match the scales the conversation backend reports:
// load and performance on 1..7, reliance as a 0..1 ratio.
func DefaultThresholds() Thresholds {
	return Thresholds{CognitiveLoad: 4, TeamPerformance: 4, Reliance: 0.5}
}

// Level returns High when value > threshold, otherwise Low.
func Level(value, threshold float64) string {
	if value > threshold {
		return High
	}
	return Low
}

// Evidence discretises the three readings into network evidence.
func (t Thresholds) Evidence(cognitiveLoad, teamPerformance, reliance float64) map[string]string {
	return map[string]string{
		VarCognitiveLoad:   Level(cognitiveLoad, t.CognitiveLoad),
		VarTeamPerformance: Level(teamPerformance, t.TeamPerformance),
		VarReliance:        Level(reliance, t.Reliance),
	}
}

// InferFromSignals discretises the readings with t and infers the role.
func InferFromSignals(t Thresholds, cognitiveLoad, teamPerformance, reliance float64) (Role, error) {
	ev := t.Evidence(cognitiveLoad, teamPerformance, reliance)
	return InferRole(ev[VarCognitiveLoad], ev[VarTeamPerformance], ev[VarReliance])
}
