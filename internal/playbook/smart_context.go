// internal/playbook/smart_context.go
package playbook

import (
	"fmt"
	"strings"

	"go-llama/internal/skill"
)

const smartContextLimit = 3

// Advisor answers get_smart_context / assess_task_difficulty queries by
// combining the playbook store with the skill library, per spec.md §4.7.
type Advisor struct {
	playbooks *Store
	skills    *skill.Store
}

func NewAdvisor(playbooks *Store, skills *skill.Store) *Advisor {
	return &Advisor{playbooks: playbooks, skills: skills}
}

// GetSmartContext returns the best-matching playbooks, skill names, and a
// natural-language recommendation for the given task.
func (a *Advisor) GetSmartContext(task string, technologies []string) (*SmartContext, error) {
	playbooks, err := a.playbooks.FindMatchingPlaybooks(task, technologies, smartContextLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to find matching playbooks: %w", err)
	}

	var skillNames []string
	var solutions []string
	if a.skills != nil {
		matches, err := a.skills.FindMatchingSkills(task, 0.2, smartContextLimit)
		if err == nil {
			for _, sk := range matches {
				skillNames = append(skillNames, sk.Name)
				if sk.Strategy != "" {
					solutions = append(solutions, sk.Strategy)
				}
			}
		}
	}

	return &SmartContext{
		Playbooks:      playbooks,
		SkillNames:     skillNames,
		Solutions:      solutions,
		Recommendation: recommend(playbooks, skillNames),
	}, nil
}

func recommend(playbooks []*Playbook, skillNames []string) string {
	if len(playbooks) == 0 && len(skillNames) == 0 {
		return "No prior playbook or skill matches this task; proceed from first principles."
	}
	var parts []string
	if len(playbooks) > 0 {
		parts = append(parts, fmt.Sprintf("follow the %q playbook (%s, %d steps)", playbooks[0].Name, playbooks[0].Difficulty, len(playbooks[0].Steps)))
	}
	if len(skillNames) > 0 {
		parts = append(parts, "apply skill(s): "+strings.Join(skillNames, ", "))
	}
	return "Recommended: " + strings.Join(parts, "; ")
}
