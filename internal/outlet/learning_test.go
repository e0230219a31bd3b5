// internal/outlet/learning_test.go
package outlet

import "testing"

func TestLooksDurableRejectsQuestions(t *testing.T) {
	if looksDurable("What database do you use?") {
		t.Error("expected a question to be rejected as non-durable")
	}
}

func TestLooksDurableAcceptsPreferenceStatements(t *testing.T) {
	cases := []string{
		"I always use tabs over spaces",
		"My project is named Atlas",
		"We use Postgres for storage",
	}
	for _, c := range cases {
		if !looksDurable(c) {
			t.Errorf("expected %q to be treated as durable", c)
		}
	}
}

func TestLooksDurableRejectsTransientChitChat(t *testing.T) {
	if looksDurable("Thanks, that helps a lot") {
		t.Error("expected generic chit-chat to be rejected as non-durable")
	}
}

func TestSplitSentencesTrimsAndFilters(t *testing.T) {
	got := splitSentences("First sentence. Second sentence.\nThird one.")
	want := []string{"First sentence", "Second sentence", "Third one"}
	if len(got) != len(want) {
		t.Fatalf("expected %d sentences, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestFirstWordFallsBackWhenEmpty(t *testing.T) {
	if got := firstWord(""); got != "RELATES_TO" {
		t.Errorf("expected fallback RELATES_TO, got %q", got)
	}
	if got := firstWord("support Windows XP"); got != "support" {
		t.Errorf("expected first word 'support', got %q", got)
	}
}

func TestNegativeKnowledgeRegexMatchesCommonForms(t *testing.T) {
	cases := []string{
		"Redis does not support multi-document transactions",
		"The API doesn't accept negative offsets",
		"Legacy mode is not supported anymore",
	}
	for _, c := range cases {
		if m := negativeKnowledgeRe.FindStringSubmatch(c); m == nil {
			t.Errorf("expected negative-knowledge pattern to match %q", c)
		}
	}
}

func TestLearningDispatcherDispatchReturnsUniqueIDs(t *testing.T) {
	d := NewLearningDispatcher(nil, nil, nil, 1, 32)
	defer d.Stop()
	id1 := d.Dispatch(LearningTask{UserID: "u1", Response: "We always use Go."})
	id2 := d.Dispatch(LearningTask{UserID: "u1", Response: "We always use Rust."})
	if id1 == id2 {
		t.Errorf("expected distinct task ids, got %q twice", id1)
	}
}

func TestLearningDispatcherStatsTrackDispatched(t *testing.T) {
	d := NewLearningDispatcher(nil, nil, nil, 1, 32)
	d.Dispatch(LearningTask{UserID: "u1", Response: "We always use Go."})
	d.Stop()
	dispatched, _, _ := d.Stats()
	if dispatched != 1 {
		t.Errorf("expected 1 dispatched task, got %d", dispatched)
	}
}
