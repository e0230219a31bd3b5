// internal/graph/format.go
package graph

import (
	"fmt"
	"sort"
	"strings"
)

func confidenceMarker(confidence float64) string {
	switch {
	case confidence >= 0.75:
		return tierHighMarker
	case confidence >= 0.45:
		return tierMediumMarker
	default:
		return tierLowMarker
	}
}

// FormatContextForPrompt renders a SearchResult as LLM-facing context text,
// grouping entities by community, emitting up to five highest-confidence
// paths per entity with a confidence-tier marker, a "(learned Mon DD)"
// citation, and a "[NO LONGER TRUE]" marker on invalidated edges.
func FormatContextForPrompt(result *SearchResult) string {
	if result == nil || len(result.Entities) == 0 {
		return ""
	}

	byCommunity := map[string][]EntityResult{}
	var communityOrder []string
	for _, e := range result.Entities {
		if _, ok := byCommunity[e.Community]; !ok {
			communityOrder = append(communityOrder, e.Community)
		}
		byCommunity[e.Community] = append(byCommunity[e.Community], e)
	}

	var b strings.Builder
	for _, community := range communityOrder {
		if community != "" {
			fmt.Fprintf(&b, "## %s\n", strings.ReplaceAll(community, "_", " "))
		}
		for _, entity := range byCommunity[community] {
			fmt.Fprintf(&b, "- %s\n", entity.Name)
			paths := append([]PathHop{}, entity.Paths...)
			sort.Slice(paths, func(i, j int) bool { return paths[i].Confidence > paths[j].Confidence })
			if len(paths) > 5 {
				paths = paths[:5]
			}
			for _, p := range paths {
				line := fmt.Sprintf("  %s %s", confidenceMarker(p.Confidence), describePath(p))
				line += fmt.Sprintf(" (learned %s)", p.LearnedAt.Format("Jan 2"))
				if !p.IsActive {
					line += " [NO LONGER TRUE]"
				}
				b.WriteString(line + "\n")
			}
		}
	}
	return b.String()
}

func describePath(p PathHop) string {
	if p.Via == "" {
		return fmt.Sprintf("%s -> %s", p.Edge1Label, p.Node)
	}
	return fmt.Sprintf("%s -> %s -> %s -> %s", p.Edge1Label, p.Via, p.Edge2Label, p.Node)
}
