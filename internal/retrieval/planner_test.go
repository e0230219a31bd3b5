package retrieval

import "testing"

func TestAnalyzeSimpleGreeting(t *testing.T) {
	p := NewPlanner(nil)
	plan := p.Analyze("hi", nil, nil)
	if plan.Decision != DecisionNone {
		t.Errorf("expected decision=none for greeting, got %s", plan.Decision)
	}
	if plan.Complexity != ComplexitySimple {
		t.Errorf("expected complexity=simple, got %s", plan.Complexity)
	}
	if plan.MaxResults != 0 {
		t.Errorf("expected max_results=0 for simple query, got %d", plan.MaxResults)
	}
}

func TestAnalyzeMemoryTrigger(t *testing.T) {
	p := NewPlanner(nil)
	plan := p.Analyze("like I said, our project uses FastAPI", nil, nil)
	if plan.Decision == DecisionNone {
		t.Errorf("expected non-none decision for a memory-trigger query, got %s", plan.Decision)
	}
}

func TestAnalyzeCodeSignal(t *testing.T) {
	p := NewPlanner(nil)
	plan := p.Analyze("why does my golang function throw a nil pointer exception stack trace", nil, nil)
	if plan.Decision == DecisionNone {
		t.Errorf("expected retrieval for a debugging+code query, got none")
	}
}

func TestAnalyzeNeverPanics(t *testing.T) {
	p := NewPlanner(nil)
	plan := p.Analyze("", nil, nil)
	if plan.Decision == "" {
		t.Errorf("expected a decision even for an empty query")
	}
}

func TestExtractTechnologies(t *testing.T) {
	techs := ExtractTechnologies("I'm debugging a Golang service talking to Postgres")
	found := map[string]bool{}
	for _, t := range techs {
		found[t] = true
	}
	if !found["golang"] || !found["postgres"] {
		t.Errorf("expected golang and postgres in %v", techs)
	}
}
