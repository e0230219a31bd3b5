// internal/outlet/security.go
package outlet

import "log"

// ApplySecurityGate implements spec.md §4.6 step 2 / §7's security kind: if
// web search results were in context this turn, every action marker is
// unconditionally discarded (defense-in-depth against indirect prompt
// injection riding in on retrieved pages), and the count is logged.
func ApplySecurityGate(markers []Marker, usedWebSearch bool) []Marker {
	if !usedWebSearch || len(markers) == 0 {
		return markers
	}
	log.Printf("SECURITY: Stripped %d action marker(s)", len(markers))
	return nil
}
