// internal/playbook/synth.go
package playbook

import (
	"regexp"
	"strings"
)

var numberedLineRe = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*])\s+(.+)$`)

// ParseSteps extracts numbered or bullet-formatted lines from a free-form
// solution description into a Playbook's steps[], per spec.md §4.7's
// auto-playbook synthesis rule. Lines that don't look like a step are
// dropped rather than forcing the whole solution into a single step.
func ParseSteps(solution string) []Step {
	var steps []Step
	n := 0
	for _, line := range strings.Split(solution, "\n") {
		m := numberedLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n++
		steps = append(steps, Step{Step: n, Action: strings.TrimSpace(m[1])})
	}
	return steps
}

// DifficultyFromSteps assigns difficulty purely by step count, per spec.md
// §4.7: <=3 easy, <=7 medium, else hard.
func DifficultyFromSteps(n int) Difficulty {
	switch {
	case n <= 3:
		return DifficultyEasy
	case n <= 7:
		return DifficultyMedium
	default:
		return DifficultyHard
	}
}

// ShouldSynthesize implements the resolved Open Question: the length
// predicate `len(solution) > 100` wins over any step-count heuristic
// whenever the two disagree, so this function checks length and the
// existing-playbook-similarity guard only.
func ShouldSynthesize(success bool, solution string, bestExistingMatch float64) bool {
	return success && len(solution) > 100 && bestExistingMatch < 0.5
}
