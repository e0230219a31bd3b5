// internal/skill/store_test.go
package skill

import (
	"context"
	"math"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func addTestSkill(t *testing.T, s *Store, confidence float64) *Skill {
	t.Helper()
	sk := &Skill{
		Name:            "debugging_trace",
		SkillType:       TypeSearchStrategy,
		Strategy:        "Ask for the stack trace before proposing a fix.",
		TriggerPatterns: []string{"stack trace error", "debugging"},
		Confidence:      confidence,
		State:           StateCandidate,
		SourceOf:        SourceObserved,
	}
	if err := s.AddSkill(sk); err != nil {
		t.Fatalf("AddSkill: %v", err)
	}
	return sk
}

func TestUpdateConfidenceTenConsecutiveSuccesses(t *testing.T) {
	s := newTestStore(t)
	sk := addTestSkill(t, s, 0.5)

	var confidence float64
	var err error
	for i := 0; i < 10; i++ {
		confidence, err = s.UpdateConfidence(sk.ID, true)
		if err != nil {
			t.Fatalf("UpdateConfidence: %v", err)
		}
	}

	if confidence < 0.82 {
		t.Fatalf("after 10 consecutive successes from 0.5, confidence = %.4f, want >= 0.82", confidence)
	}

	got, err := s.GetSkill(sk.ID)
	if err != nil {
		t.Fatalf("GetSkill: %v", err)
	}
	if got.State != StateMastered && got.State != StateVerified {
		t.Errorf("expected skill to have been promoted, got state %q", got.State)
	}
}

func TestUpdateConfidenceFiveConsecutiveFailures(t *testing.T) {
	s := newTestStore(t)
	sk := addTestSkill(t, s, 0.85)

	var confidence float64
	var err error
	for i := 0; i < 5; i++ {
		confidence, err = s.UpdateConfidence(sk.ID, false)
		if err != nil {
			t.Fatalf("UpdateConfidence: %v", err)
		}
	}

	if confidence > 0.5 {
		t.Fatalf("after 5 consecutive failures from 0.85, confidence = %.4f, want <= 0.5", confidence)
	}
}

func TestUpdateConfidenceClampsToBounds(t *testing.T) {
	s := newTestStore(t)
	sk := addTestSkill(t, s, 0.98)

	var confidence float64
	for i := 0; i < 50; i++ {
		c, err := s.UpdateConfidence(sk.ID, true)
		if err != nil {
			t.Fatalf("UpdateConfidence: %v", err)
		}
		confidence = c
	}
	if confidence > 0.99 {
		t.Fatalf("confidence exceeded upper clamp: %.4f", confidence)
	}

	sk2 := addTestSkill(t, s, 0.1)
	sk2.Name = "other_skill"
	sk2.ID = ""
	if err := s.AddSkill(sk2); err != nil {
		t.Fatalf("AddSkill: %v", err)
	}
	for i := 0; i < 50; i++ {
		c, err := s.UpdateConfidence(sk2.ID, false)
		if err != nil {
			t.Fatalf("UpdateConfidence: %v", err)
		}
		confidence = c
	}
	if confidence < 0.05 {
		t.Fatalf("confidence exceeded lower clamp: %.4f", confidence)
	}
}

func TestNextStateTransitions(t *testing.T) {
	cases := []struct {
		current    State
		confidence float64
		succeeded  int
		want       State
	}{
		{StateCandidate, 0.9, 5, StateVerified},
		{StateCandidate, 0.7, 2, StateVerified},
		{StateMastered, 0.95, 10, StateMastered},
		{StateVerified, 0.1, 0, StateDeprecated},
		{StateCandidate, 0.5, 0, StateCandidate},
	}
	for _, c := range cases {
		got := nextState(c.current, c.confidence, c.succeeded)
		if got != c.want {
			t.Errorf("nextState(%s, %.2f, %d) = %s, want %s", c.current, c.confidence, c.succeeded, got, c.want)
		}
	}
}

func TestFindMatchingSkillsRanksByScoreTimesConfidence(t *testing.T) {
	s := newTestStore(t)
	high := &Skill{
		Name: "high_conf", SkillType: TypeSearchStrategy, Strategy: "a",
		TriggerPatterns: []string{"stack trace"}, Confidence: 0.9, State: StateVerified,
	}
	low := &Skill{
		Name: "low_conf", SkillType: TypeSearchStrategy, Strategy: "b",
		TriggerPatterns: []string{"stack trace error debugging"}, Confidence: 0.2, State: StateVerified,
	}
	if err := s.AddSkill(high); err != nil {
		t.Fatalf("AddSkill: %v", err)
	}
	if err := s.AddSkill(low); err != nil {
		t.Fatalf("AddSkill: %v", err)
	}

	results, err := s.FindMatchingSkills("I have a stack trace error from debugging", 0.0, 5)
	if err != nil {
		t.Fatalf("FindMatchingSkills: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(results))
	}
	if results[0].Name != "high_conf" {
		t.Errorf("expected high_conf to rank first (match 1.3 x confidence 0.9 beats 1.0 x 0.2), got %q first", results[0].Name)
	}
}

func TestFindMatchingSkillsExcludesBelowMinConfidence(t *testing.T) {
	s := newTestStore(t)
	addTestSkill(t, s, 0.3)

	results, err := s.FindMatchingSkills("stack trace error", 0.4, 5)
	if err != nil {
		t.Fatalf("FindMatchingSkills: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected skill below minConfidence to be excluded, got %d results", len(results))
	}
}

func TestComputeMatchScoreSubstringBonus(t *testing.T) {
	query := "debugging a stack trace"
	score := computeMatchScore(query, tokenSet(query), "stack trace")
	if score < 1.0 {
		t.Errorf("expected substring bonus to push score >= 1.0, got %.3f", score)
	}
}

func TestRecordCorrectionAppliesExactPenalty(t *testing.T) {
	s := newTestStore(t)
	sk := addTestSkill(t, s, 0.7)

	newConfidence, err := s.RecordCorrection(&Correction{
		Type:           CorrectionRegenerate,
		ConversationID: "conv-1",
		SkillName:      sk.Name,
		SkillID:        sk.ID,
		QueryType:      "technical_code",
	})
	if err != nil {
		t.Fatalf("RecordCorrection: %v", err)
	}
	want := 0.62
	if math.Abs(newConfidence-want) > 1e-9 {
		t.Errorf("RecordCorrection(regenerate) on 0.7 = %.4f, want %.4f", newConfidence, want)
	}

	stats, err := s.CorrectionStatsFor()
	if err != nil {
		t.Fatalf("CorrectionStatsFor: %v", err)
	}
	if len(stats) != 1 || stats[0].TimesRegenerated != 1 {
		t.Errorf("expected correction_stats to record one regenerate event, got %+v", stats)
	}
}

func TestApplyPenaltyFloorsAtOnePointOne(t *testing.T) {
	s := newTestStore(t)
	sk := addTestSkill(t, s, 0.12)

	confidence, err := s.ApplyPenalty(sk.ID, 0.12)
	if err != nil {
		t.Fatalf("ApplyPenalty: %v", err)
	}
	if confidence != 0.1 {
		t.Errorf("ApplyPenalty should floor at 0.1, got %.4f", confidence)
	}
}

func TestBumpConfidenceCappedRespectsMax(t *testing.T) {
	s := newTestStore(t)
	sk := addTestSkill(t, s, 0.68)

	confidence, err := s.BumpConfidenceCapped(sk.ID, 0.05, 0.7)
	if err != nil {
		t.Fatalf("BumpConfidenceCapped: %v", err)
	}
	if confidence != 0.7 {
		t.Errorf("BumpConfidenceCapped(0.68, +0.05, cap 0.7) = %.4f, want 0.7", confidence)
	}
}

func TestMaybeReflectAppliesImprovedStrategyOnLowScore(t *testing.T) {
	s := newTestStore(t)
	sk := addTestSkill(t, s, 0.6)
	sk.TimesUsed = 1

	eval := &Evaluation{
		SkillID:         sk.ID,
		Score:           2.0,
		QueryText:       "how do I fix this null pointer exception",
		ResponseSnippet: "Null pointer exceptions happen when a reference is nil. " +
			"This is a very long restatement of concepts that goes on and on about nil references " +
			"and pointers in general without addressing the specific exception at hand here at all really.",
	}

	refl := MaybeReflect(context.Background(), nil, s, sk, eval)
	if refl == nil {
		t.Fatal("expected a reflection for a sub-3.0 score with TimesUsed>=1")
	}
	if refl.RootCause == "" {
		t.Error("expected a non-empty root cause diagnosis")
	}
}

func TestMaybeReflectSkipsWhenNeverUsed(t *testing.T) {
	s := newTestStore(t)
	sk := addTestSkill(t, s, 0.6)
	sk.TimesUsed = 0

	refl := MaybeReflect(context.Background(), nil, s, sk, &Evaluation{SkillID: sk.ID, Score: 1.0, QueryText: "x", ResponseSnippet: "y"})
	if refl != nil {
		t.Error("expected no reflection when skill has never been used")
	}
}

func TestCurriculumAutoSeedInsertsUpToCap(t *testing.T) {
	s := newTestStore(t)
	engine := NewCurriculumEngine(s)

	engine.AutoSeed(5)

	count, err := s.CountSkills()
	if err != nil {
		t.Fatalf("CountSkills: %v", err)
	}
	if count == 0 {
		t.Fatal("expected AutoSeed to insert at least one skill")
	}
	if count > 5 {
		t.Errorf("AutoSeed(5) inserted %d skills, want <= 5", count)
	}
}

func TestCurriculumTickDebouncesWithin300Seconds(t *testing.T) {
	s := newTestStore(t)
	engine := NewCurriculumEngine(s)

	engine.Tick()
	before, err := s.CountSkills()
	if err != nil {
		t.Fatalf("CountSkills: %v", err)
	}

	engine.Tick() // immediate second call should be a no-op under the 300s debounce
	after, err := s.CountSkills()
	if err != nil {
		t.Fatalf("CountSkills: %v", err)
	}
	if after != before {
		t.Errorf("expected second immediate Tick to be debounced, skill count changed %d -> %d", before, after)
	}
}
