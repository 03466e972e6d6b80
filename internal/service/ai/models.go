package ai

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// MediaKind selects the generation modality.
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
)

// ThinkingMode is the extra generation config behind a thinking pseudo-model.
type ThinkingMode struct {
	Model  string
	Budget int32
}

// thinkingModels maps pseudo-model ids onto real ids plus a thinking budget.
var thinkingModels = map[string]ThinkingMode{
	"gemini-2.5-pro-thinking":   {Model: "gemini-2.5-pro", Budget: 32768},
	"gemini-2.5-flash-thinking": {Model: "gemini-2.5-flash", Budget: 24576},
}

// ResolveModel translates a pseudo-model id. Real ids pass through with a nil
// thinking mode.
func ResolveModel(id string) (string, *ThinkingMode) {
	if mode, ok := thinkingModels[id]; ok {
		return mode.Model, &mode
	}
	return id, nil
}

// ModelInfo is one entry of the hosted model catalog.
type ModelInfo struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName,omitempty"`
	Actions     []string `json:"actions,omitempty"`
}

// withThinkingVariants appends the pseudo-models whose base model is listed.
func withThinkingVariants(models []ModelInfo) []ModelInfo {
	present := make(map[string]bool, len(models))
	for _, m := range models {
		present[m.Name] = true
	}
	out := append([]ModelInfo(nil), models...)
	ids := make([]string, 0, len(thinkingModels))
	for id := range thinkingModels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if present[thinkingModels[id].Model] && !present[id] {
			out = append(out, ModelInfo{Name: id, DisplayName: thinkingModels[id].Model + " (thinking)"})
		}
	}
	return out
}

var familyVersion = regexp.MustCompile(`^(imagen|veo)-(\d+)(?:\.(\d+))?`)

type rankedModel struct {
	name  string
	major int
	minor int
	tier  int
}

// SelectFallback picks the best alternative to failed for kind: highest
// generation first, then ultra over standard over fast.
func SelectFallback(kind MediaKind, models []ModelInfo, failed string) (string, bool) {
	family := "imagen"
	if kind == KindVideo {
		family = "veo"
	}
	failed = strings.TrimPrefix(failed, "models/")

	var ranked []rankedModel
	for _, m := range models {
		name := strings.TrimPrefix(m.Name, "models/")
		if name == failed {
			continue
		}
		match := familyVersion.FindStringSubmatch(name)
		if match == nil || match[1] != family {
			continue
		}
		r := rankedModel{name: name, tier: 1}
		r.major, _ = strconv.Atoi(match[2])
		if match[3] != "" {
			r.minor, _ = strconv.Atoi(match[3])
		}
		switch {
		case strings.Contains(name, "ultra"):
			r.tier = 2
		case strings.Contains(name, "fast"):
			r.tier = 0
		}
		ranked = append(ranked, r)
	}
	if len(ranked) == 0 {
		return "", false
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.major != b.major {
			return a.major > b.major
		}
		if a.minor != b.minor {
			return a.minor > b.minor
		}
		if a.tier != b.tier {
			return a.tier > b.tier
		}
		return a.name > b.name
	})
	return ranked[0].name, true
}
