// internal/playbook/difficulty_test.go
package playbook

import "testing"

func TestAssessTaskDifficultyEasyKeywords(t *testing.T) {
	a, _, _ := newTestAdvisor(t)
	got, err := a.AssessTaskDifficulty("rename the config field", "gpt-4")
	if err != nil {
		t.Fatalf("AssessTaskDifficulty: %v", err)
	}
	if got.Difficulty != DifficultyEasy {
		t.Errorf("expected easy difficulty, got %s", got.Difficulty)
	}
	if !got.CanWeakModelHandle {
		t.Error("expected an easy task to be weak-model-handleable")
	}
}

func TestAssessTaskDifficultyHardKeywordsBlockWeakModel(t *testing.T) {
	a, _, _ := newTestAdvisor(t)
	got, err := a.AssessTaskDifficulty("refactor the authentication module for security", "claude-haiku")
	if err != nil {
		t.Fatalf("AssessTaskDifficulty: %v", err)
	}
	if got.Difficulty != DifficultyHard {
		t.Errorf("expected hard difficulty, got %s", got.Difficulty)
	}
	if got.CanWeakModelHandle {
		t.Error("expected a hard task on a weak model to not be weak-model-handleable")
	}
}

func TestClassifyModelSubstringMatch(t *testing.T) {
	if classifyModel("claude-3-opus-20240229") != "smart" {
		t.Error("expected opus to classify as smart")
	}
	if classifyModel("gpt-3.5-turbo") != "weak" {
		t.Error("expected gpt-3.5 to classify as weak")
	}
	if classifyModel("some-unknown-model") != "unknown" {
		t.Error("expected an unrecognized model to classify as unknown")
	}
}
