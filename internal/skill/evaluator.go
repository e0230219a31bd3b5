// internal/skill/evaluator.go
package skill

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"
)

var citationRe = regexp.MustCompile(`(?i)\[\d+\]|https?://|source:|according to`)
var bulletRe = regexp.MustCompile(`(?m)^\s*[-*•]\s`)
var acknowledgmentRe = regexp.MustCompile(`(?i)\b(sorry|apologize|let me (fix|correct)|my mistake|you'?re right)\b`)

const evalTimeout = 15 * time.Second

// evalPrompt mirrors the compact evaluation prompt: a 1-5 score plus a
// one-sentence reason, designed to fit in a single small-model call.
const evalPrompt = `You are a response quality evaluator. Score this AI response.

USER QUERY: %s
SKILL APPLIED: %s — %s
AI RESPONSE (first 800 chars): %s

Score 1-5:
1 = Wrong/harmful/irrelevant
2 = Partially relevant but incomplete or inaccurate
3 = Adequate but could be better
4 = Good, addresses the query well
5 = Excellent, comprehensive and well-structured

Respond with ONLY this JSON:
{"score": <1-5>, "reasoning": "<one sentence>"}`

// EvaluateWithLLM tries LLM-based evaluation first, falling back to the
// heuristic Evaluate when llmSvc is nil, the call errors, or the score
// doesn't parse, per spec.md §4.5's "tries LLM-based evaluation first...
// falls back to heuristics" and §5's 15s evaluation timeout.
func EvaluateWithLLM(ctx context.Context, llmSvc LLMService, query, response string, sk *Skill) (float64, string) {
	if llmSvc == nil {
		return Evaluate(query, response, sk)
	}

	snippet := truncate(response, 800)
	prompt := fmt.Sprintf(evalPrompt, truncate(query, 300), sk.Name, truncate(sk.Description, 200), snippet)

	callCtx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	var result struct {
		Score     float64 `json:"score"`
		Reasoning string  `json:"reasoning"`
	}
	if err := llmSvc.GenerateJSON(callCtx, prompt, &result); err != nil {
		log.Printf("[Evaluator] WARNING: LLM evaluation failed, falling back to heuristics: %v", err)
		return Evaluate(query, response, sk)
	}

	score := result.Score
	if score < 1 {
		score = 1
	}
	if score > 5 {
		score = 5
	}
	reasoning := result.Reasoning
	if reasoning == "" {
		reasoning = "LLM evaluation"
	}
	return score, reasoning
}

// Evaluate scores how well a response performed for the given skill using
// structural heuristics only. This is the degraded-mode fallback
// EvaluateWithLLM uses when no LLM is available or its call fails.
func Evaluate(query, response string, sk *Skill) (float64, string) {
	score := 3.0 // neutral baseline
	var reasons []string

	queryWords := len(strings.Fields(query))
	responseWords := len(strings.Fields(response))
	switch {
	case queryWords > 10 && responseWords > 100:
		score += 0.3
		reasons = append(reasons, "good_length")
	case responseWords < 20:
		score -= 0.5
		reasons = append(reasons, "too_short")
	case responseWords > 50:
		score += 0.1
		reasons = append(reasons, "adequate_length")
	}

	switch sk.SkillType {
	case TypeSearchStrategy, TypeRetrievalCombo:
		if citationRe.MatchString(response) {
			score += 0.5
			reasons = append(reasons, "has_citations")
		}
		if bulletRe.MatchString(response) {
			score += 0.2
			reasons = append(reasons, "has_structure")
		}
	case TypeResponseFormat:
		if strings.Contains(response, "```") {
			score += 0.5
			reasons = append(reasons, "has_code_block")
		}
	case TypeErrorRecovery:
		if acknowledgmentRe.MatchString(response) {
			score += 0.3
			reasons = append(reasons, "acknowledges_issue")
		}
	}

	if responseWords > 5 && queryOverlapRatio(query, response) > 0.8 {
		score -= 0.5
		reasons = append(reasons, "mostly_repeats_query")
	}

	if score < 1 {
		score = 1
	}
	if score > 5 {
		score = 5
	}

	reasoning := "neutral"
	if len(reasons) > 0 {
		reasoning = strings.Join(reasons, ", ")
	}
	return score, fmt.Sprintf("Heuristic eval: %s", reasoning)
}

func queryOverlapRatio(query, response string) float64 {
	qWords := strings.Fields(strings.ToLower(query))
	if len(qWords) == 0 {
		return 0
	}
	rWords := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(response)) {
		rWords[w] = true
	}
	matched := 0
	for _, w := range qWords {
		if rWords[w] {
			matched++
		}
	}
	return float64(matched) / float64(len(qWords))
}
