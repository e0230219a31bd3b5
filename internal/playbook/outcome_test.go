// internal/playbook/outcome_test.go
package playbook

import (
	"strings"
	"testing"

	"go-llama/internal/skill"
)

func newTestRecorder(t *testing.T) (*Recorder, *Store, *skill.Store) {
	t.Helper()
	pbStore := newTestStore(t)
	skStore, err := skill.Open(":memory:")
	if err != nil {
		t.Fatalf("skill.Open: %v", err)
	}
	t.Cleanup(func() { _ = skStore.Close() })
	return NewRecorder(pbStore, skStore), pbStore, skStore
}

func TestRecordOutcomeUpdatesSkillConfidence(t *testing.T) {
	r, _, skStore := newTestRecorder(t)
	sk := &skill.Skill{
		Name: "trace_first", SkillType: skill.TypeSearchStrategy,
		Confidence: 0.5, State: skill.StateCandidate, SourceOf: skill.SourceObserved,
	}
	if err := skStore.AddSkill(sk); err != nil {
		t.Fatalf("AddSkill: %v", err)
	}

	if err := r.RecordOutcome(Outcome{Task: "debug a crash", Success: true, SkillIDs: []string{sk.ID}}); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}

	updated, err := skStore.GetSkill(sk.ID)
	if err != nil {
		t.Fatalf("GetSkill: %v", err)
	}
	if updated.Confidence <= 0.5 {
		t.Errorf("expected confidence to rise after a successful outcome, got %v", updated.Confidence)
	}
}

func TestRecordOutcomeSynthesizesPlaybookOnLongSuccessfulSolution(t *testing.T) {
	r, pbStore, _ := newTestRecorder(t)
	solution := "1. " + strings.Repeat("set up the dependency carefully and verify it works end to end ", 2) + "\n2. run the test suite\n3. deploy"

	if err := r.RecordOutcome(Outcome{
		Task: "add a new integration", Success: true, Solution: solution,
		Keywords: []string{"integration"}, Technologies: []string{"go"},
	}); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}

	count, err := pbStore.CountPlaybooks()
	if err != nil {
		t.Fatalf("CountPlaybooks: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 auto-synthesized playbook, got %d", count)
	}
}

func TestRecordOutcomeSkipsSynthesisOnShortSolution(t *testing.T) {
	r, pbStore, _ := newTestRecorder(t)
	if err := r.RecordOutcome(Outcome{Task: "add a new integration", Success: true, Solution: "did it"}); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	count, err := pbStore.CountPlaybooks()
	if err != nil {
		t.Fatalf("CountPlaybooks: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no playbook synthesized from a short solution, got %d", count)
	}
}

func TestRecordOutcomeAutoCreatesSkillAfterClusterThreshold(t *testing.T) {
	r, _, skStore := newTestRecorder(t)
	for i := 0; i < 3; i++ {
		if err := r.RecordOutcome(Outcome{Task: "deploy", Success: true, Keywords: []string{"deploy"}, Technologies: []string{"k8s"}}); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}

	got, err := skStore.ListByName("auto_deploy")
	if err != nil {
		t.Fatalf("expected an auto-created skill after 3 successes at 100%% rate, got error: %v", err)
	}
	if got.State != skill.StateCandidate {
		t.Errorf("expected auto-created skill to start as candidate, got %s", got.State)
	}
}
