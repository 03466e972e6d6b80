package persona

import (
	"encoding/json"
	"strings"
)

// Icon is the closed set of icons a persona can show.
type Icon string

const (
	IconSparkles  Icon = "sparkles"
	IconCode      Icon = "code"
	IconPen       Icon = "pen"
	IconBook      Icon = "book"
	IconBriefcase Icon = "briefcase"
	IconLightbulb Icon = "lightbulb"
	IconChat      Icon = "chat"
)

// DefaultIcon is shown for unknown icon names.
const DefaultIcon = IconSparkles

var knownIcons = map[Icon]struct{}{
	IconSparkles:  {},
	IconCode:      {},
	IconPen:       {},
	IconBook:      {},
	IconBriefcase: {},
	IconLightbulb: {},
	IconChat:      {},
}

// ParseIcon maps a stored icon name onto the enumeration.
func ParseIcon(raw string) Icon {
	icon := Icon(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := knownIcons[icon]; ok {
		return icon
	}
	return DefaultIcon
}

// UnmarshalJSON normalizes unknown names to DefaultIcon.
func (i *Icon) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*i = ParseIcon(raw)
	return nil
}

// Persona ("Gem") is a reusable system-instruction preset.
type Persona struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        Icon   `json:"icon"`
	Instruction string `json:"instruction"`
}

// Seed provides the presets written when the catalog is empty.
func Seed() []Persona {
	return []Persona{
		{
			ID:          "coding-partner",
			Name:        "Coding partner",
			Icon:        IconCode,
			Instruction: "You are a pragmatic senior engineer. Answer with working code first, then a short explanation. Point out edge cases and failure modes.",
		},
		{
			ID:          "writing-editor",
			Name:        "Writing editor",
			Icon:        IconPen,
			Instruction: "You are a careful editor. Improve clarity and flow while keeping the author's voice. Return the revised text, then list the notable changes.",
		},
		{
			ID:          "brainstormer",
			Name:        "Brainstormer",
			Icon:        IconLightbulb,
			Instruction: "Generate many distinct ideas quickly. Group them by theme and mark the three most promising ones.",
		},
	}
}
