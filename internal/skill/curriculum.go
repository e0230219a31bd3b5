// internal/skill/curriculum.go
package skill

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Proposal is a candidate skill the Curriculum Engine wants to add.
type Proposal struct {
	Name      string
	SkillType Type
	Strategy  string
	Triggers  []string
	Priority  float64
	Level     int
	Source    Source
	Parents   []string
}

// SkillTemplate is a Level-1 curriculum seed for one (primary, sub) query
// type: its name, full strategy text, trigger phrases, and skill_type. This
// is the Go side of the reference implementation's SKILL_TEMPLATES table.
// Templates cover 12 of the classifier's 15 leaves; creative/roleplay,
// technical/system_admin and conversational/meta have no baseline skill.
type SkillTemplate struct {
	Primary   Category
	Sub       string
	Name      string
	Strategy  string
	Triggers  []string
	SkillType Type
}

// skillTemplates mirrors curriculum.py's SKILL_TEMPLATES: one templated
// strategy for each of 12 (primary, sub) pairs the classifier recognizes
// (see SkillTemplate for the three pairs without one). SkillType
// follows the reference's _map_type, which defaults unlisted pairs to
// TypeSearchStrategy.
var skillTemplates = []SkillTemplate{
	{CategoryFactual, "definition", "concise_definition",
		"Provide a clear, concise definition first (1-2 sentences), then elaborate with context and examples. Use authoritative language.",
		[]string{"what is", "define", "meaning of", "what are"}, TypeSearchStrategy},
	{CategoryFactual, "comparison", "structured_comparison",
		"Format the comparison as a structured table or side-by-side analysis. Cover: key differences, similarities, use cases, and recommendation. Include pros/cons for each.",
		[]string{"compare", "versus", "vs", "difference between", "better than"}, TypeResponseFormat},
	{CategoryFactual, "lookup", "fact_lookup",
		"Provide the direct answer first, then supporting context. Cite sources when available. If uncertain, state confidence level.",
		[]string{"who is", "when did", "where is", "how many"}, TypeSearchStrategy},
	{CategoryResearch, "deep_dive", "deep_research",
		"Structure as: Overview, Key Concepts, Details, Examples, Summary. Use headers for navigation. Aim for comprehensive but scannable output.",
		[]string{"explain in detail", "deep dive", "comprehensive", "thorough explanation"}, TypeSearchStrategy},
	{CategoryResearch, "multi_source", "multi_source_synthesis",
		"Search multiple sources (web + memories + documents). Synthesize findings into a coherent narrative. Number sources [1]-[5] for citation. Highlight agreements and contradictions between sources.",
		[]string{"find everything", "research", "all about", "investigate"}, TypeRetrievalCombo},
	{CategoryResearch, "current_events", "current_events_search",
		"Always use web search for time-sensitive queries. Lead with the most recent information. Include dates. Flag if information may be outdated. Cross-reference multiple sources.",
		[]string{"latest", "recent news", "current", "today", "this week"}, TypeSearchStrategy},
	{CategoryCreative, "writing", "creative_writing",
		"Match the requested format exactly (poem, story, essay). Use vivid language and varied sentence structure. Include a compelling opening and satisfying conclusion.",
		[]string{"write a poem", "write a story", "compose", "draft an essay"}, TypeConversationPattern},
	{CategoryCreative, "brainstorm", "brainstorm_generator",
		"Generate 5-10 diverse ideas. Range from conventional to creative. For each idea: one-line pitch plus brief explanation. Organize by feasibility or category.",
		[]string{"ideas for", "brainstorm", "suggest", "come up with"}, TypeConversationPattern},
	{CategoryTechnical, "code_debug", "debug_assistant",
		"1) Identify the error type. 2) Explain root cause. 3) Provide the fix with code. 4) Explain why the fix works. 5) Suggest prevention. Always show before/after code.",
		[]string{"fix this error", "debug", "not working", "exception", "traceback"}, TypeErrorRecovery},
	{CategoryTechnical, "code_generate", "code_generator",
		"1) Clarify requirements from the query. 2) Choose appropriate approach. 3) Write clean, commented code. 4) Include error handling. 5) Add usage example. Follow the user's language/framework.",
		[]string{"write a function", "implement", "create a script", "build a"}, TypeResponseFormat},
	{CategoryConversational, "follow_up", "context_aware_followup",
		"Reference the previous conversation context explicitly. Connect the follow-up to prior points. If the reference is ambiguous, ask a clarifying question before answering.",
		[]string{"what about", "and also", "how about", "can you also"}, TypeConversationPattern},
	{CategoryConversational, "clarification", "adaptive_explainer",
		"Restate the concept using different words and analogies. Start simpler than the original. Use concrete examples. Offer to go even simpler or more detailed.",
		[]string{"explain differently", "simpler", "eli5", "rephrase"}, TypeConversationPattern},
}

// CompositionRule names two existing verified/mastered parent skills whose
// combination is worth proposing as a new composed skill.
type CompositionRule struct {
	ParentA, ParentB string
	ChildName        string
	ChildStrategy    string
	ChildType        Type
	Level            int
	Triggers         []string
}

// defaultCompositionRules mirrors curriculum.py's COMPOSITION_RULES: each
// entry composes two skillTemplates entries (named by their skill name, not
// their category/sub) into a higher-level skill.
var defaultCompositionRules = []CompositionRule{
	{ParentA: "multi_source_synthesis", ParentB: "structured_comparison", ChildName: "search_then_compare",
		ChildStrategy: "First search multiple sources for information on both items, then structure a comparison table from the gathered data. Cite sources for each claim.",
		ChildType: TypeRetrievalCombo, Level: 2,
		Triggers: []string{"compare using latest data", "research and compare", "which is better based on"}},
	{ParentA: "debug_assistant", ParentB: "current_events_search", ChildName: "debug_with_search",
		ChildStrategy: "1) Analyze the error locally. 2) Search for the specific error message online. 3) Cross-reference Stack Overflow / GitHub issues. 4) Synthesize a solution from multiple sources. 5) Provide tested fix with explanation.",
		ChildType: TypeRetrievalCombo, Level: 2,
		Triggers: []string{"search for this error", "find solution online", "anyone else had this"}},
	{ParentA: "deep_research", ParentB: "adaptive_explainer", ChildName: "research_then_explain_simply",
		ChildStrategy: "First gather comprehensive information, then distill it into a simple explanation. Start with a one-sentence summary, then build complexity gradually. Use analogies from everyday life.",
		ChildType: TypeResponseFormat, Level: 2,
		Triggers: []string{"explain like i'm five", "simple explanation of complex", "break down"}},
	{ParentA: "code_generator", ParentB: "debug_assistant", ChildName: "iterative_code_with_verification",
		ChildStrategy: "1) Generate initial code. 2) Mentally trace through it for bugs. 3) If issues found, fix them before presenting. 4) Include test cases. 5) Note any edge cases the user should be aware of.",
		ChildType: TypeResponseFormat, Level: 3,
		Triggers: []string{"write and test", "implement with tests", "robust implementation"}},
}

// CurriculumEngine runs the seed/compose/replace phases at most every 300s,
// per spec.md §4.5.
type CurriculumEngine struct {
	store *Store
	cron  *cron.Cron
	mu    sync.Mutex
	lastRun time.Time
}

// NewCurriculumEngine constructs the engine; call Start to begin the
// background schedule (not started automatically, matching the teacher's
// Worker.Start()/Stop() explicit-lifecycle convention).
func NewCurriculumEngine(store *Store) *CurriculumEngine {
	return &CurriculumEngine{store: store, cron: cron.New()}
}

// Start schedules Tick every 5 minutes via robfig/cron, and runs AutoSeed
// immediately if the library is empty.
func (c *CurriculumEngine) Start() error {
	count, err := c.store.CountSkills()
	if err == nil && count == 0 {
		c.AutoSeed(5)
	}
	if _, err := c.cron.AddFunc("@every 5m", c.Tick); err != nil {
		return fmt.Errorf("failed to schedule curriculum tick: %w", err)
	}
	c.cron.Start()
	log.Printf("[Curriculum] started (tick every 5m)")
	return nil
}

// Stop halts the background schedule.
func (c *CurriculumEngine) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
	log.Printf("[Curriculum] stopped")
}

// AutoSeed inserts up to cap Level-1 skills from skillTemplates when the
// library is empty, per S5.
func (c *CurriculumEngine) AutoSeed(cap int) {
	added := 0
	for _, t := range skillTemplates {
		if added >= cap {
			break
		}
		if _, err := c.store.ListByName(t.Name); err == nil {
			continue // already exists
		}
		sk := &Skill{
			Name:            t.Name,
			SkillType:       t.SkillType,
			Description:     fmt.Sprintf("baseline strategy for %s/%s queries", t.Primary, t.Sub),
			Strategy:        t.Strategy,
			TriggerPatterns: t.Triggers,
			Confidence:      0.5,
			State:           StateCandidate,
			SourceOf:        SourceCurriculum,
		}
		if err := c.store.AddSkill(sk); err != nil {
			log.Printf("[Curriculum] WARNING: failed to auto-seed %q: %v", t.Name, err)
			continue
		}
		added++
	}
	log.Printf("[Curriculum] auto-seeded %d skill(s)", added)
}

// Tick runs the seed/compose/replace phases, gated to at most once per 300s.
// Only Level 1 proposals auto-commit; compose() always proposes Level 2/3
// children, so they surface in the sorted proposal list (for a future manual
// review path) without ever being auto-added here, matching the reference
// engine's "Only seed Level 1 skills automatically" rule.
func (c *CurriculumEngine) Tick() {
	c.mu.Lock()
	if time.Since(c.lastRun) < 300*time.Second && !c.lastRun.IsZero() {
		c.mu.Unlock()
		return
	}
	c.lastRun = time.Now()
	c.mu.Unlock()

	var proposals []Proposal
	proposals = append(proposals, c.seedMissing()...)
	proposals = append(proposals, c.compose()...)
	proposals = append(proposals, c.replaceDeprecated()...)

	sortProposalsByPriority(proposals)

	for _, p := range proposals {
		if p.Priority >= 0.7 && p.Level == 1 {
			c.commitProposal(p)
		}
	}
}

func sortProposalsByPriority(proposals []Proposal) {
	for i := 1; i < len(proposals); i++ {
		for j := i; j > 0 && proposals[j].Priority > proposals[j-1].Priority; j-- {
			proposals[j], proposals[j-1] = proposals[j-1], proposals[j]
		}
	}
}

func (c *CurriculumEngine) seedMissing() []Proposal {
	var proposals []Proposal
	for _, t := range skillTemplates {
		if _, err := c.store.ListByName(t.Name); err == nil {
			continue
		}
		proposals = append(proposals, Proposal{
			Name: t.Name, SkillType: t.SkillType,
			Strategy: t.Strategy,
			Triggers: t.Triggers,
			Priority: 0.8, Level: 1, Source: SourceCurriculum,
		})
	}
	return proposals
}

func (c *CurriculumEngine) compose() []Proposal {
	var proposals []Proposal
	for _, rule := range defaultCompositionRules {
		a, errA := c.store.ListByName(rule.ParentA)
		b, errB := c.store.ListByName(rule.ParentB)
		if errA != nil || errB != nil {
			continue
		}
		if !isComposable(a.State) || !isComposable(b.State) {
			continue
		}
		if _, err := c.store.ListByName(rule.ChildName); err == nil {
			continue
		}
		proposals = append(proposals, Proposal{
			Name: rule.ChildName, SkillType: rule.ChildType,
			Strategy: rule.ChildStrategy, Triggers: rule.Triggers,
			Priority: 0.7, Level: rule.Level,
			Source: SourceComposed, Parents: []string{a.ID, b.ID},
		})
	}
	return proposals
}

func isComposable(s State) bool { return s == StateVerified || s == StateMastered }

func (c *CurriculumEngine) replaceDeprecated() []Proposal {
	// Reference implementation scans deprecated skills used >=3 times and
	// proposes a "_v2" replacement; modeled here the same way.
	var proposals []Proposal
	rows, err := c.store.db.Query(`SELECT name, id, times_used FROM skills WHERE state = ?`, string(StateDeprecated))
	if err != nil {
		return proposals
	}
	defer rows.Close()
	for rows.Next() {
		var name, id string
		var timesUsed int
		if err := rows.Scan(&name, &id, &timesUsed); err != nil {
			continue
		}
		if timesUsed < 3 {
			continue
		}
		v2Name := name + "_v2"
		if _, err := c.store.ListByName(v2Name); err == nil {
			continue
		}
		proposals = append(proposals, Proposal{
			Name: v2Name, SkillType: TypeConversationPattern,
			Strategy: "Improvement needed: prior version was deprecated for low confidence.",
			Priority: 0.6, Level: 1, Source: SourceCurriculum, Parents: []string{id},
		})
	}
	return proposals
}

func (c *CurriculumEngine) commitProposal(p Proposal) {
	sk := &Skill{
		Name: p.Name, SkillType: p.SkillType, Strategy: p.Strategy,
		TriggerPatterns: p.Triggers, Confidence: 0.5, State: StateCandidate,
		SourceOf: p.Source, ParentSkillIDs: p.Parents,
	}
	if err := c.store.AddSkill(sk); err != nil {
		log.Printf("[Curriculum] WARNING: failed to commit proposal %q: %v", p.Name, err)
		return
	}
	for _, parentID := range p.Parents {
		_ = c.store.LogComposition(sk.ID, parentID)
	}
	log.Printf("[Curriculum] committed proposal %q (priority=%.2f, level=%d)", p.Name, p.Priority, p.Level)
}
