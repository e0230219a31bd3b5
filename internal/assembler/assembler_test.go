// internal/assembler/assembler_test.go
package assembler

import (
	"strings"
	"testing"
)

func TestBudgetAndComposeRespectsCap(t *testing.T) {
	a := &Assembler{}
	big := strings.Repeat("x", TokenBudget*4*2)
	sections := []Section{
		{Name: "system", Priority: prioritySystemCore, Content: "system prompt", Stable: true},
		{Name: "web_search", Priority: priorityWebSearch, Content: big, Stable: false},
	}
	result := a.budgetAndCompose(sections)

	if len(result.Prompt) > TokenBudget*4+len(CacheBreak)+len(truncationMarker)+len("system prompt") {
		t.Errorf("composed prompt exceeds budget: %d chars", len(result.Prompt))
	}
	if !strings.Contains(result.Prompt, CacheBreak) {
		t.Error("expected CACHE_BREAK sentinel to separate stable/dynamic sections")
	}
	if !strings.Contains(result.DynamicSuffix, truncationMarker) {
		t.Error("expected the oversized section to carry the truncation marker")
	}
}

func TestBudgetAndComposeDropsLowestPriorityWhenFull(t *testing.T) {
	a := &Assembler{}
	sections := []Section{
		{Name: "system", Priority: prioritySystemCore, Content: strings.Repeat("a", TokenBudget*4), Stable: true},
		{Name: "conversation", Priority: priorityConversationTail, Content: "should be dropped", Stable: false},
	}
	result := a.budgetAndCompose(sections)

	found := false
	for _, d := range result.SectionsDropped {
		if d == "conversation" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected lowest-priority section to be dropped when budget is exhausted, dropped=%v", result.SectionsDropped)
	}
}

func TestInjectImagesPerProvider(t *testing.T) {
	a := &Assembler{}
	req := Request{
		Provider:    ProviderAnthropic,
		Attachments: []Attachment{{Filename: "x.png", MimeType: "image/png", Data: []byte{1, 2, 3}}},
	}
	imgs := a.injectImages(req)
	if len(imgs) != 1 || imgs[0]["type"] != "image" {
		t.Errorf("expected one anthropic-shaped image block, got %+v", imgs)
	}

	req.Provider = ProviderOllama
	imgs = a.injectImages(req)
	if len(imgs) != 1 {
		t.Fatalf("expected one ollama image block, got %d", len(imgs))
	}
	if _, ok := imgs[0]["images"]; !ok {
		t.Errorf("expected ollama block to carry an 'images' key, got %+v", imgs[0])
	}

	req.Provider = "unknown-provider"
	imgs = a.injectImages(req)
	if len(imgs) != 1 || imgs[0]["type"] != "text" {
		t.Errorf("expected text-only fallback note for unsupported provider, got %+v", imgs)
	}
}

func TestInjectImagesNilWhenNoImages(t *testing.T) {
	a := &Assembler{}
	req := Request{Provider: ProviderOpenAI, Attachments: []Attachment{{Filename: "x.txt", Text: "hello"}}}
	if imgs := a.injectImages(req); imgs != nil {
		t.Errorf("expected nil image payload for text-only attachments, got %+v", imgs)
	}
}
