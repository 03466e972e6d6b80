package ai

import "strings"

// JoinInstructions concatenates the global instruction and a persona
// instruction, in that order, separated by a blank line. Empty parts are
// skipped.
func JoinInstructions(global, persona string) string {
	parts := make([]string, 0, 2)
	if g := strings.TrimSpace(global); g != "" {
		parts = append(parts, g)
	}
	if p := strings.TrimSpace(persona); p != "" {
		parts = append(parts, p)
	}
	return strings.Join(parts, "\n\n")
}
