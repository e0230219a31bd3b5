// internal/memory/evolution_test.go
package memory

import (
	"context"
	"errors"
	"testing"
)

func TestHeuristicKeywordsRanksByFrequencyAndSkipsStopwords(t *testing.T) {
	text := "Postgres migrations are tricky. Postgres migrations need care. This sentence has stopwords about that."
	got := heuristicKeywords(text, 3)
	if len(got) == 0 {
		t.Fatal("expected at least one keyword")
	}
	if got[0] != "postgres" && got[0] != "migrations" {
		t.Errorf("expected a high-frequency term first, got %v", got)
	}
	for _, w := range got {
		if stopwords[w] {
			t.Errorf("expected stopwords to be excluded, found %q", w)
		}
	}
}

func TestHeuristicKeywordsRespectsLimit(t *testing.T) {
	got := heuristicKeywords("alpha beta gamma delta epsilon zeta eta theta", 3)
	if len(got) > 3 {
		t.Errorf("expected at most 3 keywords, got %d", len(got))
	}
}

func TestUnionCappedDeduplicatesAndCaps(t *testing.T) {
	got := unionCapped([]string{"go", "postgres"}, []string{"Go", "redis", "postgres", "qdrant"}, 3)
	if len(got) != 3 {
		t.Fatalf("expected exactly 3 tags, got %v", got)
	}
	seen := map[string]bool{}
	for _, w := range got {
		if seen[w] {
			t.Errorf("expected no duplicates, found repeat %q", w)
		}
		seen[w] = true
	}
}

type fakeLLMService struct {
	jsonErr  error
	jsonFill func(target interface{})
	textOut  string
	textErr  error
}

func (f *fakeLLMService) GenerateJSON(ctx context.Context, prompt string, target interface{}) error {
	if f.jsonErr != nil {
		return f.jsonErr
	}
	if f.jsonFill != nil {
		f.jsonFill(target)
	}
	return nil
}

func (f *fakeLLMService) GenerateText(ctx context.Context, prompt string) (string, error) {
	return f.textOut, f.textErr
}

func TestEvolveFallsBackToSimilarityDefaultWhenLLMUnavailable(t *testing.T) {
	e := NewEvolver(nil, nil, nil)
	decision := e.evolve(context.Background(), &Memory{Content: "new fact"}, Memory{Content: "related fact"})
	if !decision.ShouldLink || decision.ShouldUpdate {
		t.Errorf("expected default link-not-update decision, got %+v", decision)
	}
}

func TestEvolveFallsBackWhenLLMErrors(t *testing.T) {
	e := NewEvolver(nil, nil, &fakeLLMService{jsonErr: errors.New("llm unreachable")})
	decision := e.evolve(context.Background(), &Memory{Content: "new fact"}, Memory{Content: "related fact"})
	if !decision.ShouldLink || decision.ShouldUpdate {
		t.Errorf("expected fallback decision on LLM error, got %+v", decision)
	}
}

func TestEvolveUsesLLMDecisionWhenAvailable(t *testing.T) {
	llm := &fakeLLMService{jsonFill: func(target interface{}) {
		if d, ok := target.(*linkDecision); ok {
			*d = linkDecision{ShouldLink: false, ShouldUpdate: true, Confidence: 0.95}
		}
	}}
	e := NewEvolver(nil, nil, llm)
	decision := e.evolve(context.Background(), &Memory{Content: "new fact"}, Memory{Content: "related fact"})
	if decision.ShouldLink || !decision.ShouldUpdate {
		t.Errorf("expected LLM's should_update decision to be used, got %+v", decision)
	}
}

func TestEnrichFallsBackToHeuristicWhenLLMUnavailable(t *testing.T) {
	e := NewEvolver(nil, nil, nil)
	mem := &Memory{Content: "Postgres migrations are tricky and need careful review."}
	e.enrich(context.Background(), mem)
	if len(mem.ConceptTags) == 0 {
		t.Error("expected heuristic fallback to populate concept tags")
	}
}
