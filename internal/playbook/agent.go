package playbook

import "strings"

// knownAgentMarkers maps a substring found in a session path to the
// agent name it implies (spec.md §4.D addBullet source-agent
// derivation).
var knownAgentMarkers = []struct {
	marker string
	agent  string
}{
	{".claude", "claude"},
	{".cursor", "cursor"},
	{".codex", "codex"},
	{".aider", "aider"},
}

// DeriveSourceAgent heuristically identifies the authoring agent from
// a session path by substring match against known markers.
func DeriveSourceAgent(sessionPath string) string {
	lower := strings.ToLower(sessionPath)
	for _, km := range knownAgentMarkers {
		if strings.Contains(lower, km.marker) {
			return km.agent
		}
	}
	return "unknown"
}
