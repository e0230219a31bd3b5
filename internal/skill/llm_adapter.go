// internal/skill/llm_adapter.go
package skill

import (
	"context"
	"encoding/json"
	"fmt"

	llm "go-llama/internal/llm"
)

// LLMService is the narrow interface the evaluator/reflection engine need
// from an LLM: a single structured-JSON call. Mirrors internal/memory's
// LLMService shape (itself grounded on internal/goal/llm_adapter.go) so the
// whole repo talks to internal/llm.Client the same way, without coupling
// skill's evaluation logic to memory's or goal's package.
type LLMService interface {
	GenerateJSON(ctx context.Context, prompt string, target interface{}) error
}

// LLMAdapter implements LLMService using the existing llm.Client.
type LLMAdapter struct {
	Client *llm.Client
	URL    string
	Model  string
}

func NewLLMAdapter(client *llm.Client, url, model string) *LLMAdapter {
	return &LLMAdapter{Client: client, URL: url, Model: model}
}

func (a *LLMAdapter) GenerateJSON(ctx context.Context, prompt string, target interface{}) error {
	payload := map[string]interface{}{
		"model": a.Model,
		"messages": []map[string]string{
			{"role": "system", "content": "You are a precise JSON generator for a skill evaluation/reflection pipeline. Output only valid JSON."},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.1,
		"max_tokens":  200,
	}
	respBody, err := a.Client.Call(ctx, a.URL, payload)
	if err != nil {
		return fmt.Errorf("llm call failed: %w", err)
	}
	var llmResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &llmResp); err != nil {
		return fmt.Errorf("failed to unmarshal llm response: %w", err)
	}
	if len(llmResp.Choices) == 0 {
		return fmt.Errorf("no choices returned from llm")
	}
	return json.Unmarshal([]byte(llmResp.Choices[0].Message.Content), target)
}
