// internal/playbook/types.go
package playbook

import "time"

// Difficulty is a playbook's or task's estimated difficulty tier.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// GeneratedBy records how a playbook came to exist.
type GeneratedBy string

const (
	GeneratedManual        GeneratedBy = "manual"
	GeneratedAutoFromOutcome GeneratedBy = "auto_from_outcome"
)

// Step is one line of a playbook's procedure.
type Step struct {
	Step     int
	Action   string
	Template string
	Verify   string
}

// Playbook is an ordered, step-by-step procedure generated by a
// high-capability model for later consumption by lower-capability models,
// per spec.md's Playbook entity.
type Playbook struct {
	ID            string
	Name          string
	TaskType      string
	Difficulty    Difficulty
	Steps         []Step
	DecisionTree  string // free-form notes on branch points, if any
	CodeTemplates []string
	Guardrails    []string
	Examples      []string
	Technologies  []string
	Keywords      []string
	Confidence    float64
	TimesUsed     int
	SuccessCount  int
	FailureCount  int
	GeneratedBy   GeneratedBy
	CreatedAt     time.Time
}

// Outcome is one recorded result of a completed task — the unit the Playbook
// & Outcome Subsystem reacts to (EMA skill updates, pattern-clustered
// auto-skill generation, auto-playbook synthesis), per spec.md §4.7.
type Outcome struct {
	Task         string
	QueryType    string
	Keywords     []string
	Technologies []string
	Success      bool
	Solution     string // the full text of how the task was solved, if any
	SkillIDs     []string
}

// SmartContext is what get_smart_context returns: the best-matching
// playbooks, skills, solutions, and a natural-language recommendation.
type SmartContext struct {
	Playbooks      []*Playbook
	SkillNames     []string
	Solutions      []string
	Recommendation string
}

// DifficultyAssessment is what assess_task_difficulty returns.
type DifficultyAssessment struct {
	Difficulty         Difficulty
	CanWeakModelHandle bool
	Reasoning          string
}
