// internal/retrieval/planner.go
package retrieval

import (
	"log"
	"strings"
)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "and": true, "or": true, "but": true, "in": true, "on": true,
	"at": true, "to": true, "for": true, "of": true, "with": true, "that": true,
	"this": true, "it": true, "as": true, "be": true, "by": true, "from": true,
	"do": true, "does": true, "can": true, "you": true, "your": true, "my": true,
	"what": true, "how": true, "why": true,
}

// Planner is the Adaptive Retrieval Planner: classifies a query and decides
// which sources to consult, learning per-strategy success rates over time.
type Planner struct {
	learner *Learner
}

// NewPlanner constructs a Planner backed by the given outcome learner
// (nil is valid — the planner then falls back to pure rule-based scoring).
func NewPlanner(learner *Learner) *Planner {
	return &Planner{learner: learner}
}

// Analyze classifies query and returns a retrieval plan. It never returns an
// error: on any internal failure it degrades to {decision: hybrid, confidence: 0.3}.
func (p *Planner) Analyze(query string, history []string, technologies []string) (plan Plan) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[RetrievalPlanner] recovered from panic analyzing query: %v", r)
			plan = Plan{Decision: DecisionHybrid, Complexity: ComplexityModerate, Confidence: 0.3, Reasoning: "fallback after internal error"}
		}
	}()

	trimmed := strings.TrimSpace(query)
	if len(trimmed) < 15 && simplePatterns.score(trimmed) > 0 {
		return Plan{
			Decision:   DecisionNone,
			Complexity: ComplexitySimple,
			Confidence: 0.95,
			Reasoning:  "simple greeting/acknowledgment",
			MaxResults: 0,
		}
	}

	code := codePatterns.score(query)
	debug := debuggingPatterns.score(query)
	arch := architecturePatterns.score(query)
	memTrig := memoryTriggerPatterns.score(query)
	external := externalKnowledgePatterns.score(query)

	total := code + debug + arch + memTrig + external
	complexity := classifyComplexity(total, arch, external)

	decision, reasoning := decide(code, debug, arch, memTrig, external)

	confidence := 0.5 + 0.08*float64(total)
	if confidence > 0.9 {
		confidence = 0.9
	}

	if p.learner != nil {
		terms := ExtractSearchTerms(query)
		if learnedDecision, learnedConf, ok := p.learner.LearnedBoost(decision, terms, technologies); ok {
			if learnedConf-confidence > 0.15 {
				decision = learnedDecision
				confidence = learnedConf
				reasoning = "learned boost override: " + reasoning
			} else {
				confidence += learnedConf * 0.3
				if confidence > 0.95 {
					confidence = 0.95
				}
			}
		}
	}

	return Plan{
		Decision:      decision,
		Complexity:    complexity,
		Confidence:    confidence,
		Reasoning:     reasoning,
		MaxResults:    maxResultsFor(complexity),
		SearchQueries: buildSearchQueries(query, technologies),
	}
}

func classifyComplexity(total, arch, external int) Complexity {
	switch {
	case arch >= 2 || external >= 2:
		return ComplexitySpecialized
	case total <= 0:
		return ComplexitySimple
	case total <= 2:
		return ComplexityModerate
	default:
		return ComplexityComplex
	}
}

// decide applies the spec's decision-rule precedence — first match wins.
func decide(code, debug, arch, memTrig, external int) (Decision, string) {
	switch {
	case memTrig >= 2 && code < 2:
		return DecisionMemory, "strong memory-trigger signal"
	case arch >= 2 || external >= 2:
		return DecisionHybrid, "architecture/external-knowledge signal"
	case debug >= 2:
		return DecisionHybrid, "strong debugging signal"
	case code >= 2:
		return DecisionGraph, "strong code signal"
	case (code + debug + arch) >= 2:
		return DecisionHybrid, "combined technical signal"
	case (code + debug) >= 1:
		return DecisionSearch, "light code/debug signal"
	case memTrig >= 1:
		return DecisionMemory, "light memory-trigger signal"
	default:
		return DecisionNone, "no retrieval signal"
	}
}

func maxResultsFor(c Complexity) int {
	switch c {
	case ComplexitySimple:
		return 0
	case ComplexityModerate:
		return 3
	case ComplexityComplex:
		return 5
	case ComplexitySpecialized:
		return 8
	default:
		return 3
	}
}

// ExtractSearchTerms filters stopwords and short tokens, keeping order.
func ExtractSearchTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()[]{}")
		if len(f) <= 2 || stopwords[f] {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

// ExtractTechnologies scans the query for any of the hardcoded known
// technology names.
func ExtractTechnologies(query string) []string {
	lower := strings.ToLower(query)
	var found []string
	for _, tech := range knownTechnologies {
		if strings.Contains(lower, tech) {
			found = append(found, tech)
		}
	}
	return found
}

func buildSearchQueries(query string, technologies []string) []string {
	terms := ExtractSearchTerms(query)
	if len(terms) == 0 {
		return []string{query}
	}
	base := strings.Join(terms, " ")
	queries := []string{base}
	for _, tech := range technologies {
		queries = append(queries, base+" "+tech)
	}
	return queries
}
