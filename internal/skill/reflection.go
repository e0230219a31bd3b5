// internal/skill/reflection.go
package skill

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

const maxRevisions = 5
const reflectionTimeout = 20 * time.Second

// reflectionPrompt asks the LLM to diagnose the failure and propose a fix,
// mirroring the original reflection engine's structured-output contract.
const reflectionPrompt = `You are a strategy improvement analyst. A response strategy was applied but scored poorly.

ORIGINAL QUERY: %s
STRATEGY APPLIED: %s
AI RESPONSE (first 600 chars): %s
EVALUATION SCORE: %.1f/5
EVALUATION REASONING: %s

Analyze what went wrong and propose an improved strategy.

Respond with ONLY this JSON:
{
  "failure_diagnosis": "<1-2 sentences explaining what went wrong>",
  "root_cause": "<one of: wrong_format, missing_info, too_verbose, off_topic, wrong_approach, incomplete>",
  "improved_strategy": "<the full revised strategy text, 2-4 sentences>",
  "confidence_in_fix": <0.0-1.0 how confident you are this fix will work>
}`

// MaybeReflect triggers Reflection & Evolution only when the evaluation
// scored below 3.0, the skill has actually been used, and it hasn't already
// been revised 5 times, per spec.md §4.5. Tries LLM-based diagnosis first
// (ctx, 20s timeout per spec.md §5), falling back to the structural-mismatch
// heuristic when llmSvc is nil or the call fails.
func MaybeReflect(ctx context.Context, llmSvc LLMService, store *Store, sk *Skill, eval *Evaluation) *Reflection {
	if eval.Score >= 3.0 {
		return nil
	}
	if sk.TimesUsed < 1 {
		return nil
	}
	if sk.RevisionCount >= maxRevisions {
		return nil
	}

	refl := diagnoseWithLLM(ctx, llmSvc, sk, eval)

	if refl.ConfidenceInFix >= 0.3 && refl.ImprovedStrategy != sk.Strategy {
		if err := store.UpdateStrategy(sk.ID, refl.ImprovedStrategy); err != nil {
			log.Printf("[Reflection] WARNING: failed to apply improved strategy for %q: %v", sk.Name, err)
		} else {
			refl.Applied = true
			if _, err := store.BumpConfidenceCapped(sk.ID, 0.05, 0.7); err != nil {
				log.Printf("[Reflection] WARNING: failed to bump confidence after evolution: %v", err)
			}
			if sk.State == StateMastered {
				_ = store.DemoteToVerified(sk.ID)
			}
			log.Printf("[Reflection] evolved skill %q strategy (root_cause=%s)", sk.Name, refl.RootCause)
		}
	}
	return refl
}

// diagnoseWithLLM asks the model to diagnose the failure and propose a fix,
// falling back to the heuristic diagnose when llmSvc is nil, the call
// errors, or the response doesn't parse into a usable reflection.
func diagnoseWithLLM(ctx context.Context, llmSvc LLMService, sk *Skill, eval *Evaluation) *Reflection {
	if llmSvc == nil {
		return diagnose(sk, eval)
	}

	prompt := fmt.Sprintf(reflectionPrompt, eval.QueryText, sk.Strategy, truncate(eval.ResponseSnippet, 600), eval.Score, eval.Reasoning)

	callCtx, cancel := context.WithTimeout(ctx, reflectionTimeout)
	defer cancel()

	var result struct {
		FailureDiagnosis string  `json:"failure_diagnosis"`
		RootCause        string  `json:"root_cause"`
		ImprovedStrategy string  `json:"improved_strategy"`
		ConfidenceInFix  float64 `json:"confidence_in_fix"`
	}
	if err := llmSvc.GenerateJSON(callCtx, prompt, &result); err != nil {
		log.Printf("[Reflection] WARNING: LLM reflection failed, falling back to heuristics: %v", err)
		return diagnose(sk, eval)
	}
	if result.FailureDiagnosis == "" || result.ImprovedStrategy == "" {
		log.Printf("[Reflection] WARNING: LLM reflection response incomplete, falling back to heuristics")
		return diagnose(sk, eval)
	}

	return &Reflection{
		SkillID:          sk.ID,
		EvaluationID:     eval.ID,
		FailureDiagnosis: result.FailureDiagnosis,
		RootCause:        RootCause(result.RootCause),
		ImprovedStrategy: result.ImprovedStrategy,
		ConfidenceInFix:  result.ConfidenceInFix,
	}
}

// diagnose produces the heuristic {failure_diagnosis, root_cause,
// improved_strategy, confidence_in_fix}. This is the structural-mismatch
// fallback diagnoseWithLLM uses when no LLM is available or its call fails.
func diagnose(sk *Skill, eval *Evaluation) *Reflection {
	response := eval.ResponseSnippet
	query := eval.QueryText

	var rootCause RootCause
	var diagnosis string
	confidence := 0.4

	switch {
	case len(strings.Fields(response)) > 3*len(strings.Fields(query)) && len(strings.Fields(query)) > 0:
		rootCause = RootCauseTooVerbose
		diagnosis = "response is disproportionately long relative to the query"
		confidence = 0.4
	case len(strings.Fields(response)) < len(strings.Fields(query))/2:
		rootCause = RootCauseIncomplete
		diagnosis = "response appears truncated or underspecified"
		confidence = 0.35
	case queryOverlapRatio(query, response) > 0.8:
		rootCause = RootCauseOffTopic
		diagnosis = "response largely restates the query without adding information"
		confidence = 0.45
	case sk.SkillType == TypeResponseFormat && !strings.Contains(response, "```"):
		rootCause = RootCauseWrongFormat
		diagnosis = "expected formatted output was not produced"
		confidence = 0.5
	default:
		rootCause = RootCauseWrongApproach
		diagnosis = "response did not satisfy the query given the applied strategy"
		confidence = 0.3
	}

	improved := sk.Strategy
	switch rootCause {
	case RootCauseTooVerbose:
		improved = sk.Strategy + " Keep the response concise and avoid restating context the user already provided."
	case RootCauseIncomplete:
		improved = sk.Strategy + " Ensure the response fully addresses every part of the question before concluding."
	case RootCauseOffTopic:
		improved = sk.Strategy + " Directly answer the question instead of repeating it back."
	case RootCauseWrongFormat:
		improved = sk.Strategy + " Use a fenced code block for any code in the response."
	}

	return &Reflection{
		SkillID:          sk.ID,
		EvaluationID:     eval.ID,
		FailureDiagnosis: diagnosis,
		RootCause:        rootCause,
		ImprovedStrategy: improved,
		ConfidenceInFix:  confidence,
	}
}
