// internal/memory/llm_adapter.go
package memory

import (
	"context"
	"encoding/json"
	"fmt"

	llm "go-llama/internal/llm"
)

// LLMService is the narrow interface evolution.go needs from an LLM: a
// structured-JSON call and a raw-text call. Mirrors internal/goal's
// LLMService shape so both packages consume internal/llm the same way,
// without coupling memory's evolution logic to goal's package.
type LLMService interface {
	GenerateJSON(ctx context.Context, prompt string, target interface{}) error
	GenerateText(ctx context.Context, prompt string) (string, error)
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
			{"role": "system", "content": "You are a precise JSON generator for a memory-evolution pipeline. Output only valid JSON."},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.2,
	}
	respBody, err := a.Client.Call(ctx, a.URL, payload)
	if err != nil {
		return fmt.Errorf("llm call failed: %w", err)
	}
	content, err := extractChatContent(respBody)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(content), target)
}

func (a *LLMAdapter) GenerateText(ctx context.Context, prompt string) (string, error) {
	payload := map[string]interface{}{
		"model":       a.Model,
		"messages":    []map[string]string{{"role": "user", "content": prompt}},
		"temperature": 0.5,
	}
	respBody, err := a.Client.Call(ctx, a.URL, payload)
	if err != nil {
		return "", fmt.Errorf("llm call failed: %w", err)
	}
	return extractChatContent(respBody)
}

func extractChatContent(respBody []byte) (string, error) {
	var llmResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &llmResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal llm response: %w", err)
	}
	if len(llmResp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from llm")
	}
	return llmResp.Choices[0].Message.Content, nil
}
