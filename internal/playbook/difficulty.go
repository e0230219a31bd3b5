// internal/playbook/difficulty.go
package playbook

import "strings"

// hardKeywords/easyKeywords are the keyword classes spec.md §4.7 names for
// assess_task_difficulty's heuristic blend.
var hardKeywords = []string{"refactor", "architect", "migrate", "security", "redesign", "rewrite", "optimize"}
var easyKeywords = []string{"add", "fix typo", "update", "rename", "bump", "tweak"}

// smartModels/weakModels classify current_model by name substring, per
// spec.md's "tier of current_model via name substring match against
// SMART/WEAK lists" rule.
var smartModels = []string{"opus", "gpt-4", "o1", "o3", "sonnet"}
var weakModels = []string{"haiku", "mini", "gpt-3.5", "small", "llama-7b", "llama-8b"}

// AssessTaskDifficulty blends playbook availability, keyword class, and
// model tier into a difficulty estimate and a can-weak-model-handle verdict.
func (a *Advisor) AssessTaskDifficulty(task, currentModel string) (DifficultyAssessment, error) {
	taskLower := strings.ToLower(task)

	playbooks, err := a.playbooks.FindMatchingPlaybooks(task, nil, 1)
	if err != nil {
		return DifficultyAssessment{}, err
	}
	hasPlaybook := len(playbooks) > 0

	keywordTier := classifyKeywords(taskLower)
	modelTier := classifyModel(strings.ToLower(currentModel))

	difficulty := DifficultyMedium
	reasoning := "no strong signal either way"
	switch {
	case hasPlaybook && playbooks[0].Difficulty != "":
		difficulty = playbooks[0].Difficulty
		reasoning = "matched an existing playbook"
	case keywordTier == DifficultyHard:
		difficulty = DifficultyHard
		reasoning = "task keywords suggest structural/security-sensitive work"
	case keywordTier == DifficultyEasy:
		difficulty = DifficultyEasy
		reasoning = "task keywords suggest a small, mechanical change"
	}

	canWeak := difficulty == DifficultyEasy || (difficulty == DifficultyMedium && hasPlaybook)
	if modelTier == "weak" && difficulty == DifficultyHard {
		canWeak = false
	}
	if modelTier == "smart" {
		canWeak = canWeak || difficulty != DifficultyHard
	}

	return DifficultyAssessment{Difficulty: difficulty, CanWeakModelHandle: canWeak, Reasoning: reasoning}, nil
}

func classifyKeywords(taskLower string) Difficulty {
	for _, kw := range hardKeywords {
		if strings.Contains(taskLower, kw) {
			return DifficultyHard
		}
	}
	for _, kw := range easyKeywords {
		if strings.Contains(taskLower, kw) {
			return DifficultyEasy
		}
	}
	return DifficultyMedium
}

func classifyModel(modelLower string) string {
	for _, m := range smartModels {
		if strings.Contains(modelLower, m) {
			return "smart"
		}
	}
	for _, m := range weakModels {
		if strings.Contains(modelLower, m) {
			return "weak"
		}
	}
	return "unknown"
}
