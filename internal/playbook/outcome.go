// internal/playbook/outcome.go
package playbook

import (
	"fmt"
	"log"
	"strings"
	"time"

	"go-llama/internal/skill"
)

const (
	clusterWindow             = time.Hour
	clusterSuccessThreshold   = 3
	clusterRateThreshold      = 0.7
	autoSkillCreationHourlyCap = 5
)

// Recorder reacts to completed-task outcomes: EMA skill updates,
// rate-limited pattern-clustered auto-skill generation, and auto-playbook
// synthesis, per spec.md §4.7.
type Recorder struct {
	playbooks *Store
	skills    *skill.Store
}

func NewRecorder(playbooks *Store, skills *skill.Store) *Recorder {
	return &Recorder{playbooks: playbooks, skills: skills}
}

// RecordOutcome runs all three outcome-triggered behaviors in sequence. Each
// step degrades independently — a failure in auto-skill generation must not
// prevent the EMA update or the outcome log write, per spec.md §7's "a turn
// always completes" contract.
func (r *Recorder) RecordOutcome(o Outcome) error {
	for _, id := range o.SkillIDs {
		if _, err := r.skills.UpdateConfidence(id, o.Success); err != nil {
			log.Printf("[Playbook] WARNING: failed to update skill %s confidence: %v", id, err)
		}
	}

	if err := r.playbooks.LogOutcome(o); err != nil {
		return fmt.Errorf("failed to log outcome: %w", err)
	}

	if err := r.maybeAutoCreateSkill(o); err != nil {
		log.Printf("[Playbook] WARNING: auto-skill clustering failed: %v", err)
	}

	if err := r.maybeSynthesizePlaybook(o); err != nil {
		log.Printf("[Playbook] WARNING: auto-playbook synthesis failed: %v", err)
	}

	return nil
}

// maybeAutoCreateSkill implements the pattern-clustering rule: if the
// cluster matching this outcome's (keywords, technologies) has had at least
// 3 successes at a >=70% success rate within the last hour, and fewer than 5
// auto-skill creations have happened in that same window, synthesize a new
// observed skill from the cluster.
func (r *Recorder) maybeAutoCreateSkill(o Outcome) error {
	if len(o.Keywords) == 0 && len(o.Technologies) == 0 {
		return nil
	}
	total, successes, err := r.playbooks.ClusterStats(o.Keywords, o.Technologies, clusterWindow)
	if err != nil {
		return err
	}
	if total == 0 {
		return nil
	}
	rate := float64(successes) / float64(total)
	if successes < clusterSuccessThreshold || rate < clusterRateThreshold {
		return nil
	}
	creations, err := r.playbooks.CountRecentAutoSkillCreations(clusterWindow)
	if err != nil {
		return err
	}
	if creations >= autoSkillCreationHourlyCap {
		log.Printf("[Playbook] auto-skill creation rate-limit hit (%d in the last hour)", creations)
		return nil
	}

	name := "auto_" + strings.Join(o.Keywords, "_")
	if existing, err := r.skills.ListByName(name); err == nil && existing != nil {
		return nil
	}
	sk := &skill.Skill{
		Name:            name,
		SkillType:       skill.TypeRetrievalCombo,
		Description:     fmt.Sprintf("auto-clustered from %d successful outcomes on %v/%v", successes, o.Keywords, o.Technologies),
		TriggerPatterns: append(append([]string{}, o.Keywords...), o.Technologies...),
		Confidence:      0.5,
		State:           skill.StateCandidate,
		SourceOf:        skill.SourceObserved,
	}
	if err := r.skills.AddSkill(sk); err != nil {
		return err
	}
	if err := r.playbooks.RecordAutoSkillCreation(); err != nil {
		return err
	}
	log.Printf("[Playbook] auto-created skill %q from outcome cluster (%d/%d successes)", name, successes, total)
	return nil
}

// maybeSynthesizePlaybook implements spec.md §4.7's auto-playbook synthesis
// rule, using the resolved length-predicate-wins Open Question via
// ShouldSynthesize.
func (r *Recorder) maybeSynthesizePlaybook(o Outcome) error {
	bestMatch, err := r.playbooks.BestMatchScore(o.Task, o.Technologies)
	if err != nil {
		return err
	}
	if !ShouldSynthesize(o.Success, o.Solution, bestMatch) {
		return nil
	}
	steps := ParseSteps(o.Solution)
	p := &Playbook{
		Name:         "auto: " + truncate(o.Task, 60),
		TaskType:     o.QueryType,
		Difficulty:   DifficultyFromSteps(len(steps)),
		Steps:        steps,
		Technologies: o.Technologies,
		Keywords:     o.Keywords,
		Confidence:   0.5,
		GeneratedBy:  GeneratedAutoFromOutcome,
	}
	if err := r.playbooks.AddPlaybook(p); err != nil {
		return err
	}
	log.Printf("[Playbook] auto-synthesized playbook %q (%d steps, difficulty=%s)", p.Name, len(steps), p.Difficulty)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
