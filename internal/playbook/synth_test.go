// internal/playbook/synth_test.go
package playbook

import (
	"strings"
	"testing"
)

func TestParseStepsExtractsNumberedLines(t *testing.T) {
	solution := "Intro paragraph.\n1. Install the dependency\n2. Configure the client\n3. Run the migration\nSome trailing notes."
	steps := ParseSteps(solution)
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d: %v", len(steps), steps)
	}
	if steps[0].Action != "Install the dependency" {
		t.Errorf("unexpected first step: %q", steps[0].Action)
	}
	if steps[2].Step != 3 {
		t.Errorf("expected third step numbered 3, got %d", steps[2].Step)
	}
}

func TestParseStepsHandlesBulletLists(t *testing.T) {
	solution := "- set up the environment\n- write the test\n- ship it"
	steps := ParseSteps(solution)
	if len(steps) != 3 {
		t.Fatalf("expected 3 bullet steps, got %d", len(steps))
	}
}

func TestParseStepsReturnsEmptyForProse(t *testing.T) {
	steps := ParseSteps("Just a plain paragraph describing what happened, no list structure at all.")
	if len(steps) != 0 {
		t.Errorf("expected no steps parsed from unstructured prose, got %d", len(steps))
	}
}

func TestDifficultyFromStepsBoundaries(t *testing.T) {
	cases := []struct {
		n    int
		want Difficulty
	}{
		{1, DifficultyEasy}, {3, DifficultyEasy},
		{4, DifficultyMedium}, {7, DifficultyMedium},
		{8, DifficultyHard}, {20, DifficultyHard},
	}
	for _, c := range cases {
		if got := DifficultyFromSteps(c.n); got != c.want {
			t.Errorf("DifficultyFromSteps(%d) = %s, want %s", c.n, got, c.want)
		}
	}
}

func TestShouldSynthesizeRequiresSuccessAndLength(t *testing.T) {
	if ShouldSynthesize(false, strings.Repeat("x", 200), 0) {
		t.Error("expected failed outcomes to never synthesize")
	}
	if ShouldSynthesize(true, "too short", 0) {
		t.Error("expected short solutions to never synthesize")
	}
}

func TestShouldSynthesizeLongSolutionBlockedBySimilarPlaybook(t *testing.T) {
	long := strings.Repeat("x", 150)
	if ShouldSynthesize(true, long, 0.9) {
		t.Error("expected a near-duplicate existing playbook to block synthesis")
	}
	if !ShouldSynthesize(true, long, 0.2) {
		t.Error("expected synthesis when no similar playbook exists and the solution is long enough")
	}
}
