// internal/playbook/smart_context_test.go
package playbook

import (
	"testing"

	"go-llama/internal/skill"
)

func newTestAdvisor(t *testing.T) (*Advisor, *Store, *skill.Store) {
	t.Helper()
	pbStore := newTestStore(t)
	skStore, err := skill.Open(":memory:")
	if err != nil {
		t.Fatalf("skill.Open: %v", err)
	}
	t.Cleanup(func() { _ = skStore.Close() })
	return NewAdvisor(pbStore, skStore), pbStore, skStore
}

func TestGetSmartContextReturnsNoSignalRecommendationWhenEmpty(t *testing.T) {
	a, _, _ := newTestAdvisor(t)
	ctx, err := a.GetSmartContext("do something nobody has ever done", nil)
	if err != nil {
		t.Fatalf("GetSmartContext: %v", err)
	}
	if len(ctx.Playbooks) != 0 || len(ctx.SkillNames) != 0 {
		t.Fatalf("expected no matches, got %+v", ctx)
	}
	if ctx.Recommendation == "" {
		t.Error("expected a non-empty recommendation even with no matches")
	}
}

func TestGetSmartContextSurfacesMatchingPlaybookAndSkill(t *testing.T) {
	a, pbStore, skStore := newTestAdvisor(t)
	addTestPlaybook(t, pbStore)
	if err := skStore.AddSkill(&skill.Skill{
		Name: "migration_helper", SkillType: skill.TypeRetrievalCombo,
		Strategy: "Check for existing migrations before writing a new one.",
		TriggerPatterns: []string{"postgres migration", "schema"},
		Confidence: 0.7, State: skill.StateVerified, SourceOf: skill.SourceObserved,
	}); err != nil {
		t.Fatalf("AddSkill: %v", err)
	}

	ctx, err := a.GetSmartContext("I need to write a postgres migration for the schema", []string{"postgres"})
	if err != nil {
		t.Fatalf("GetSmartContext: %v", err)
	}
	if len(ctx.Playbooks) != 1 {
		t.Errorf("expected 1 matching playbook, got %d", len(ctx.Playbooks))
	}
	if len(ctx.SkillNames) != 1 || ctx.SkillNames[0] != "migration_helper" {
		t.Errorf("expected matching skill name, got %v", ctx.SkillNames)
	}
}
