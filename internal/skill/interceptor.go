// internal/skill/interceptor.go
package skill

import (
	"context"
	"fmt"
	"log"
)

// Message mirrors the minimal shape the assembler/outlet pipeline needs —
// role + content — without importing the chat package (keeps skill
// dependency-free of the transport layer, per spec.md's "duck-typed stores"
// redesign note: interceptors operate on a plain message slice).
type Message struct {
	Role    string
	Content string
}

const minSkillConfidence = 0.4

// BeforeLLM is the Before-LLM interceptor: classifies the latest user
// message, looks up the best matching skill, and — if found — injects a
// "[SKILL: name] Apply this response strategy: ..." system message
// immediately before the last user message, preserving ordering.
func BeforeLLM(store *Store, messages []Message, priorTurns int) ([]Message, *Classification, *Skill) {
	if len(messages) == 0 {
		return messages, nil, nil
	}
	lastUserIdx := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			lastUserIdx = i
			break
		}
	}
	if lastUserIdx == -1 {
		return messages, nil, nil
	}

	classification := Classify(messages[lastUserIdx].Content, priorTurns)

	matches, err := store.FindMatchingSkills(messages[lastUserIdx].Content, minSkillConfidence, 1)
	if err != nil || len(matches) == 0 {
		return messages, &classification, nil
	}
	best := matches[0]

	injected := Message{
		Role:    "system",
		Content: fmt.Sprintf("[SKILL: %s] Apply this response strategy: %s", best.Name, best.Strategy),
	}

	out := make([]Message, 0, len(messages)+1)
	out = append(out, messages[:lastUserIdx]...)
	out = append(out, injected, messages[lastUserIdx])
	out = append(out, messages[lastUserIdx+1:]...)

	log.Printf("[SkillInterceptor] injected skill %q (confidence=%.2f) for category=%s", best.Name, best.Confidence, classification.Primary)
	return out, &classification, best
}

// AfterLLMResult is what the detached after-LLM task produces.
type AfterLLMResult struct {
	Evaluation *Evaluation
	Success    bool
}

// AfterLLM runs evaluation in a detached goroutine so it never blocks the
// response path, per spec.md §4.5's "After-LLM Interceptor" and §5's
// decoupled background-task model. The returned channel receives at most
// one result and is closed when the task finishes (immediately, with no
// result, when matchedSkill is nil); callers may read it or fire-and-forget,
// matching "no ordering guarantees" for learning tasks. llmSvc is nilable: when set, evaluation and any triggered
// reflection try the LLM path first and fall back to heuristics, per
// spec.md §4.5; when nil, the heuristic path runs directly.
func AfterLLM(ctx context.Context, llmSvc LLMService, store *Store, query, response string, matchedSkill *Skill, conversationID, messageID string) <-chan AfterLLMResult {
	resultCh := make(chan AfterLLMResult, 1)
	if matchedSkill == nil {
		close(resultCh)
		return resultCh
	}

	go func() {
		defer close(resultCh)
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[SkillInterceptor] AfterLLM recovered from panic: %v", r)
			}
		}()

		score, reasoning := EvaluateWithLLM(ctx, llmSvc, query, response, matchedSkill)
		eval := &Evaluation{
			SkillID:         matchedSkill.ID,
			MessageID:       messageID,
			ConversationID:  conversationID,
			Score:           score,
			Reasoning:       reasoning,
			QueryText:       query,
			ResponseSnippet: truncate(response, 300),
		}
		if err := store.SaveEvaluation(eval); err != nil {
			log.Printf("[SkillInterceptor] WARNING: failed to save evaluation: %v", err)
		}

		success := score >= 3.5
		if _, err := store.UpdateConfidence(matchedSkill.ID, success); err != nil {
			log.Printf("[SkillInterceptor] WARNING: failed to update confidence: %v", err)
		}

		if score < 3.0 {
			MaybeReflect(ctx, llmSvc, store, matchedSkill, eval)
		}

		resultCh <- AfterLLMResult{Evaluation: eval, Success: success}
	}()

	return resultCh
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
