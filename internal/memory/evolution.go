// internal/memory/evolution.go
package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
)

const (
	maxConceptTags       = 10
	maxKeywords          = 5
	maxEvolvedKeywords   = 10
	evolutionSimilarity  = 0.82
	linkedContextMaxDepth = 2
	defaultConfidence    = 0.8
	contextDescriptionLen = 200
)

// enrichmentPrompt asks the LLM for three distinct outputs per memory note:
// specific keywords, broad category tags, and a one-sentence rationale for
// why the note matters.
const enrichmentPrompt = `Analyze this memory content and extract structured metadata.

Content: %s

Respond in this exact JSON format:
{
    "keywords": ["keyword1", "keyword2", "keyword3"],
    "tags": ["tag1", "tag2"],
    "context_description": "A rich one-sentence description of what this memory represents and its significance"
}

Keywords should be specific technical terms, names, or concepts.
Tags should be broad categories like: code, error, solution, preference, fact, decision, tool, library.
Context description should explain WHY this memory matters.`

// Evolver runs the enrich -> find-related -> create-links -> evolve ->
// persist pipeline spec.md §4.4 describes for new memories: an LLM proposes
// concept tags and link/update decisions, each with a heuristic fallback so
// the pipeline degrades rather than blocks a turn when the LLM is
// unreachable, per spec.md §7.
type Evolver struct {
	storage  *Storage
	linker   *Linker
	llm      LLMService // nil disables the LLM-guided steps; heuristics take over entirely
}

func NewEvolver(storage *Storage, linker *Linker, llm LLMService) *Evolver {
	return &Evolver{storage: storage, linker: linker, llm: llm}
}

// linkDecision is the LLM's structured answer to "should these two memories
// be linked, and should the existing one be updated instead of creating a
// new one".
type linkDecision struct {
	ShouldLink   bool    `json:"should_link"`
	ShouldUpdate bool    `json:"should_update"`
	Confidence   float64 `json:"confidence"`
}

// EnrichFindLinkEvolvePersist runs the full pipeline for a freshly-embedded
// memory that hasn't been stored yet: it enriches concept tags, finds
// related existing memories, decides per-candidate whether to link or
// merge-update, creates the accepted links, and persists the result.
func (e *Evolver) EnrichFindLinkEvolvePersist(ctx context.Context, mem *Memory) error {
	if mem.Confidence == 0 {
		mem.Confidence = defaultConfidence
	}
	e.enrich(ctx, mem)

	related, err := e.findRelated(ctx, mem)
	if err != nil {
		log.Printf("[Evolver] WARNING: failed to find related memories, storing without links: %v", err)
		return e.storage.Store(ctx, mem)
	}

	var toLink []Memory
	for _, candidate := range related {
		decision := e.evolve(ctx, mem, candidate)
		if decision.ShouldUpdate {
			if err := e.mergeInto(ctx, &candidate, mem); err != nil {
				log.Printf("[Evolver] WARNING: failed to merge into existing memory %s: %v", candidate.ID, err)
				continue
			}
			// Merged into an existing memory: the new content doesn't need
			// its own row.
			return nil
		}
		if decision.ShouldLink {
			toLink = append(toLink, candidate)
		}
	}

	if err := e.storage.Store(ctx, mem); err != nil {
		return fmt.Errorf("failed to persist evolved memory: %w", err)
	}

	if len(toLink) > 0 {
		cluster := append([]Memory{*mem}, toLink...)
		if err := e.linker.CreateLinks(ctx, cluster); err != nil {
			log.Printf("[Evolver] WARNING: failed to create links: %v", err)
		}
	}
	return nil
}

// enrich fills the three distinct enrich_memory outputs spec.md §4.4 calls
// for: Keywords (specific terms), ConceptTags standing in for the broad
// category Tags, and a one-sentence ContextDescription. The LLM answers all
// three in one call; on failure or absence it falls back to the same
// degraded-mode defaults as the original: unique words of 4 or more
// characters, ranked by frequency and capped at maxKeywords, a single "general" tag, and a truncated content
// snippet as the description.
func (e *Evolver) enrich(ctx context.Context, mem *Memory) {
	if e.llm != nil {
		var result struct {
			Keywords           []string `json:"keywords"`
			Tags               []string `json:"tags"`
			ContextDescription string   `json:"context_description"`
		}
		prompt := fmt.Sprintf(enrichmentPrompt, mem.Content)
		if err := e.llm.GenerateJSON(ctx, prompt, &result); err == nil {
			mem.Keywords = unionCapped(mem.Keywords, result.Keywords, maxKeywords)
			mem.ConceptTags = unionCapped(mem.ConceptTags, result.Tags, maxConceptTags)
			if result.ContextDescription != "" {
				mem.ContextDescription = result.ContextDescription
			}
			return
		}
		log.Printf("[Evolver] WARNING: memory enrichment LLM call failed, falling back to heuristic")
	}
	mem.Keywords = unionCapped(mem.Keywords, heuristicKeywords(mem.Content, maxKeywords), maxKeywords)
	mem.ConceptTags = unionCapped(mem.ConceptTags, []string{"general"}, maxConceptTags)
	if mem.ContextDescription == "" {
		mem.ContextDescription = truncateRunes(mem.Content, contextDescriptionLen)
	}
}

// findRelated looks for existing memories similar enough to be candidates
// for linking or merging.
func (e *Evolver) findRelated(ctx context.Context, mem *Memory) ([]Memory, error) {
	if len(mem.Embedding) == 0 {
		return nil, nil
	}
	return e.storage.FindMemoryClusters(ctx, mem.Tier, mem.Embedding, evolutionSimilarity, 5)
}

// evolve decides, per related-memory candidate, whether to link the two or
// merge the new content into the existing memory — LLM-guided with a
// similarity-threshold fallback default when the LLM is unavailable or its
// answer doesn't parse.
func (e *Evolver) evolve(ctx context.Context, mem *Memory, candidate Memory) linkDecision {
	if e.llm != nil {
		var decision linkDecision
		prompt := fmt.Sprintf(
			"Memory A: %s\nMemory B: %s\n\nShould these be linked as related facts (should_link), or does B supersede/duplicate A such that A should be updated instead (should_update)? Respond as JSON {\"should_link\":bool,\"should_update\":bool,\"confidence\":0-1}.",
			candidate.Content, mem.Content,
		)
		if err := e.llm.GenerateJSON(ctx, prompt, &decision); err == nil {
			return decision
		}
		log.Printf("[Evolver] WARNING: link/update LLM call failed, falling back to similarity default")
	}
	// Fallback default: a cluster match found by findRelated already cleared
	// the similarity threshold, so treat it as linkable but never an
	// automatic merge (merging without LLM confirmation risks losing data).
	return linkDecision{ShouldLink: true, ShouldUpdate: false, Confidence: evolutionSimilarity}
}

// mergeInto folds a new memory's content into an existing one instead of
// storing it as a separate row, then persists the update.
func (e *Evolver) mergeInto(ctx context.Context, existing *Memory, incoming *Memory) error {
	existing.Content = existing.Content + "\n" + incoming.Content
	existing.ConceptTags = unionCapped(existing.ConceptTags, incoming.ConceptTags, maxConceptTags)
	existing.Keywords = unionCapped(existing.Keywords, incoming.Keywords, maxEvolvedKeywords)
	if incoming.ContextDescription != "" {
		existing.ContextDescription = incoming.ContextDescription
	}
	existing.EvolutionCount++
	return e.storage.UpdateMemory(ctx, existing)
}

// GetLinkedContext performs a breadth-first walk of RelatedMemories starting
// at rootID, capped at linkedContextMaxDepth hops, per spec.md §4.4's
// get_linked_context(max_depth=2).
func (e *Evolver) GetLinkedContext(ctx context.Context, rootID string) ([]Memory, error) {
	visited := map[string]bool{rootID: true}
	frontier := []string{rootID}
	var out []Memory

	for depth := 0; depth < linkedContextMaxDepth && len(frontier) > 0; depth++ {
		byID, err := e.storage.GetMemoriesByIDs(ctx, frontier)
		if err != nil {
			return out, fmt.Errorf("failed to fetch linked memories at depth %d: %w", depth, err)
		}
		var next []string
		for _, id := range frontier {
			mem, ok := byID[id]
			if !ok {
				continue
			}
			if id != rootID {
				out = append(out, *mem)
			}
			for _, linkedID := range mem.RelatedMemories {
				if !visited[linkedID] {
					visited[linkedID] = true
					next = append(next, linkedID)
				}
			}
		}
		frontier = next
	}
	return out, nil
}

// truncateRunes cuts s to at most n runes, for the no-LLM context_description
// fallback.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func unionCapped(a, b []string, cap int) []string {
	seen := map[string]bool{}
	var out []string
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.ToLower(strings.TrimSpace(s))
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
			if len(out) >= cap {
				return out
			}
		}
	}
	return out
}

// heuristicKeywords is the no-LLM fallback: lowercase words longer than 3
// characters, ranked by frequency, excluding a small stopword set.
func heuristicKeywords(text string, limit int) []string {
	counts := map[string]int{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()[]{}")
		if len(w) <= 3 || stopwords[w] {
			continue
		}
		counts[w]++
	}
	type kv struct {
		word  string
		count int
	}
	var kvs []kv
	for w, c := range counts {
		kvs = append(kvs, kv{w, c})
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].count != kvs[j].count {
			return kvs[i].count > kvs[j].count
		}
		return kvs[i].word < kvs[j].word
	})
	out := make([]string, 0, limit)
	for i, e := range kvs {
		if i >= limit {
			break
		}
		out = append(out, e.word)
	}
	return out
}

var stopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"been": true, "were": true, "what": true, "when": true, "which": true,
	"their": true, "about": true, "there": true, "would": true, "could": true,
	"should": true,
}
