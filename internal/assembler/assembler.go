// internal/assembler/assembler.go
package assembler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"go-llama/internal/graph"
	"go-llama/internal/memory"
	"go-llama/internal/retrieval"
	"go-llama/internal/tools"
)

// Assembler is the Parallel Context Assembler of spec.md §4.2: it gathers
// every retrieval source concurrently (Phase 1), gates the remaining
// sequential decisions (Phase 2), then composes a budgeted prompt.
type Assembler struct {
	storage  *memory.Storage
	embedder *memory.Embedder
	graph    *graph.Store
	planner  *retrieval.Planner
	preflight *retrieval.PreflightCache
	toolRegistry *tools.Registry
	systemPrompt string
	embedderURL  string
}

func NewAssembler(storage *memory.Storage, embedder *memory.Embedder, g *graph.Store, planner *retrieval.Planner, preflight *retrieval.PreflightCache, toolRegistry *tools.Registry, systemPrompt, embedderURL string) *Assembler {
	return &Assembler{
		storage: storage, embedder: embedder, graph: g, planner: planner,
		preflight: preflight, toolRegistry: toolRegistry, systemPrompt: systemPrompt,
		embedderURL: embedderURL,
	}
}

// gathered holds the Phase 1 fan-out results before composition.
type gathered struct {
	historyMatches    []memory.RetrievalResult
	manualMemories    []memory.RetrievalResult
	autonomousMemories []memory.RetrievalResult
	graphResult       *graph.SearchResult
	conversationTail  string
	attachmentText    string
}

// Assemble runs the full two-phase pipeline and returns a composed, budgeted
// prompt ready to send to the LLM.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*Assembled, error) {
	plan := a.planner.Analyze(req.Query, req.History, retrieval.ExtractTechnologies(req.Query))

	g := a.gatherPhase1(ctx, req, plan)

	webSection, usedWeb := a.gatePhase2(ctx, req, plan)

	sections := a.composeSections(req, plan, g, webSection)
	assembled := a.budgetAndCompose(sections)
	assembled.UsedWebSearch = usedWeb
	assembled.AssembledAt = time.Now().UTC()

	if imgs := a.injectImages(req); imgs != nil {
		assembled.ImagePayload = imgs
	}

	return assembled, nil
}

// gatherPhase1 fans every independent retrieval source out concurrently via
// errgroup, matching spec.md §4.2's "gather everything, decide later" phase.
func (a *Assembler) gatherPhase1(ctx context.Context, req Request, plan retrieval.Plan) gathered {
	var g gathered
	if plan.Decision == retrieval.DecisionNone {
		g.conversationTail = formatTail(req.History)
		return g
	}

	grp, gctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		if a.preflight != nil {
			if result, ok := a.preflight.Get(gctx, "embedder", a.embedderURL); ok && !result.Reachable {
				log.Printf("[Assembler] embedder marked unreachable by preflight cache, skipping memory retrieval")
				return nil
			}
		}
		embedding, err := a.embedder.Embed(gctx, req.Query)
		if a.preflight != nil {
			a.preflight.Set(gctx, "embedder", a.embedderURL, retrieval.PreflightResult{Reachable: err == nil, Error: errString(err)})
		}
		if err != nil {
			log.Printf("[Assembler] WARNING: embed failed, skipping memory retrieval: %v", err)
			return nil
		}
		userID := req.UserID
		results, err := a.storage.Search(gctx, memory.RetrievalQuery{
			Query: req.Query, UserID: &userID, IncludePersonal: true,
			IncludeCollective: true, Limit: plan.MaxResults, MinScore: 0.3,
		}, embedding)
		if err != nil {
			log.Printf("[Assembler] WARNING: memory search failed: %v", err)
			return nil
		}
		g.manualMemories = results
		return nil
	})

	if plan.Decision == retrieval.DecisionGraph || plan.Decision == retrieval.DecisionHybrid {
		grp.Go(func() error {
			res, err := a.graph.SearchByQuery(gctx, req.Query, req.UserID, plan.MaxResults)
			if err != nil {
				log.Printf("[Assembler] WARNING: graph search failed: %v", err)
				return nil
			}
			g.graphResult = res
			return nil
		})
	}

	grp.Go(func() error {
		g.conversationTail = formatTail(req.History)
		return nil
	})

	grp.Go(func() error {
		for _, att := range req.Attachments {
			if att.Text != "" {
				text := att.Text
				if len(text) > 8000 {
					text = text[:8000]
				}
				g.attachmentText += fmt.Sprintf("\n--- attachment: %s ---\n%s\n", att.Filename, text)
			}
		}
		return nil
	})

	if err := grp.Wait(); err != nil {
		log.Printf("[Assembler] WARNING: phase 1 gather returned an error: %v", err)
	}
	return g
}

// gatePhase2 makes the sequential decisions that depend on Phase 1 results:
// whether web search is warranted, and what it returns if so.
func (a *Assembler) gatePhase2(ctx context.Context, req Request, plan retrieval.Plan) (string, bool) {
	if plan.Decision != retrieval.DecisionSearch && plan.Decision != retrieval.DecisionHybrid && plan.Decision != retrieval.DecisionWeb {
		return "", false
	}
	if a.toolRegistry == nil {
		return "", false
	}
	tool, err := a.toolRegistry.Get(tools.ToolNameSearch)
	if err != nil {
		return "", false
	}
	result, err := tool.Execute(ctx, map[string]interface{}{
		"query": req.Query, "is_interactive": true,
	})
	if err != nil || result == nil || !result.Success {
		return "", false
	}
	out := result.Output
	if len(out) > WebSubBudget*4 { // ~4 chars/token heuristic, matches budgetAndCompose
		out = out[:WebSubBudget*4]
	}
	return out, true
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (a *Assembler) composeSections(req Request, plan retrieval.Plan, g gathered, webSection string) []Section {
	var sections []Section

	sections = append(sections, Section{Name: "system", Priority: prioritySystemCore, Content: a.systemPrompt, Stable: true})

	if g.graphResult != nil {
		if ctxStr := graph.FormatContextForPrompt(g.graphResult); ctxStr != "" {
			sections = append(sections, Section{Name: "graph", Priority: priorityGraphContext, Content: ctxStr, Stable: true})
		}
	}

	if len(g.manualMemories) > 0 {
		sections = append(sections, Section{Name: "memories", Priority: priorityManualMemories, Content: formatMemories(g.manualMemories), Stable: true})
	}

	if g.attachmentText != "" {
		sections = append(sections, Section{Name: "attachments", Priority: priorityRAGChunks, Content: g.attachmentText, Stable: false})
	}

	if webSection != "" {
		sections = append(sections, Section{Name: "web_search", Priority: priorityWebSearch, Content: webSection, Stable: false})
	}

	sections = append(sections, Section{Name: "conversation", Priority: priorityConversationTail, Content: g.conversationTail + "\nUser: " + req.Query, Stable: false})

	return sections
}

// budgetAndCompose enforces the 8000-token cap (approximated at 4 chars per
// token, matching the teacher's existing chunking heuristics) by dropping
// lowest-priority sections first, then truncating the last surviving section
// at a newline boundary.
func (a *Assembler) budgetAndCompose(sections []Section) *Assembled {
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].Priority < sections[j].Priority })

	const charsPerToken = 4
	budgetChars := TokenBudget * charsPerToken

	var kept []Section
	var dropped []string
	used := 0
	for _, s := range sections {
		if used+len(s.Content) <= budgetChars {
			kept = append(kept, s)
			used += len(s.Content)
			continue
		}
		remaining := budgetChars - used
		if remaining <= 0 {
			dropped = append(dropped, s.Name)
			continue
		}
		truncated := s.Content[:remaining]
		if idx := strings.LastIndex(truncated, "\n"); idx > 0 {
			truncated = truncated[:idx]
		}
		truncated += truncationMarker
		kept = append(kept, Section{Name: s.Name, Priority: s.Priority, Content: truncated, Stable: s.Stable})
		used = budgetChars
	}

	var stableParts, dynamicParts []string
	var emitted []string
	for _, s := range kept {
		emitted = append(emitted, s.Name)
		if s.Stable {
			stableParts = append(stableParts, s.Content)
		} else {
			dynamicParts = append(dynamicParts, s.Content)
		}
	}

	stable := strings.Join(stableParts, "\n\n")
	dynamic := strings.Join(dynamicParts, "\n\n")

	if len(dropped) > 0 {
		log.Printf("[Assembler] dropped %d section(s) to respect budget: %v", len(dropped), dropped)
	}

	return &Assembled{
		Prompt:          stable + CacheBreak + dynamic,
		StablePrefix:    stable,
		DynamicSuffix:   dynamic,
		SectionsEmitted: emitted,
		SectionsDropped: dropped,
	}
}

func formatTail(history []string) string {
	if len(history) == 0 {
		return ""
	}
	return strings.Join(history, "\n")
}

func formatMemories(results []memory.RetrievalResult) string {
	var b strings.Builder
	b.WriteString("Relevant memories:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "- (%.2f) %s\n", r.Score, r.Memory.Content)
	}
	return b.String()
}
