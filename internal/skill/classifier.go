// internal/skill/classifier.go
package skill

import (
	"regexp"
	"strings"
)

// Category is the top-level query taxonomy used by the Before-LLM
// interceptor to pick a relevant skill. Each category carries a set of
// sub-types (see classifierPatterns/keywordTaxonomy) the same way the
// reference classifier nests factual/definition, factual/lookup,
// factual/comparison, and so on.
type Category string

const (
	CategoryFactual        Category = "factual"
	CategoryResearch       Category = "research"
	CategoryCreative       Category = "creative"
	CategoryTechnical      Category = "technical"
	CategoryConversational Category = "conversational"
)

// Classification is the result of classifying a user message.
type Classification struct {
	Primary    Category
	Sub        string
	Confidence float64
	Signals    []string
	IsFollowUp bool
}

type classifierPattern struct {
	re      *regexp.Regexp
	primary Category
	sub     string
	weight  float64
}

// classifierPatterns is the regex signal table: (pattern, primary, sub,
// confidence). Ordering mirrors the taxonomy's tree (factual, research,
// creative, technical, conversational), each primary's sub-types in
// definition/lookup/comparison-equivalent order.
var classifierPatterns = []classifierPattern{
	{regexp.MustCompile(`(?i)\b(what is|what are|define|definition of|meaning of)\b`), CategoryFactual, "definition", 0.8},
	{regexp.MustCompile(`(?i)\b(who is|who was|who are)\b`), CategoryFactual, "lookup", 0.8},
	{regexp.MustCompile(`(?i)\b(when did|when was|when is|what year)\b`), CategoryFactual, "lookup", 0.8},
	{regexp.MustCompile(`(?i)\b(where is|where was|where are)\b`), CategoryFactual, "lookup", 0.7},
	{regexp.MustCompile(`(?i)\b(compare|versus|vs\.?|difference between|better than|pros and cons)\b`), CategoryFactual, "comparison", 0.85},

	{regexp.MustCompile(`(?i)\b(explain|in detail|deep dive|comprehensive|thorough|elaborate)\b`), CategoryResearch, "deep_dive", 0.7},
	{regexp.MustCompile(`(?i)\b(find everything|research|investigate|all about|tell me everything)\b`), CategoryResearch, "multi_source", 0.75},
	{regexp.MustCompile(`(?i)\b(latest|recent|news|current|today|this week)\b`), CategoryResearch, "current_events", 0.7},

	{regexp.MustCompile(`(?i)\b(write|compose|draft|create|generate)\s+(a |an |the )?(poem|story|essay|article|blog|email|letter)\b`), CategoryCreative, "writing", 0.85},
	{regexp.MustCompile(`(?i)\b(ideas? for|brainstorm|suggest|come up with|think of)\b`), CategoryCreative, "brainstorm", 0.7},
	{regexp.MustCompile(`(?i)\b(pretend|roleplay|act as|you are a|imagine you)\b`), CategoryCreative, "roleplay", 0.8},

	{regexp.MustCompile(`(?i)\b(fix|debug|error|bug|exception|traceback|stack trace)\b`), CategoryTechnical, "code_debug", 0.8},
	{regexp.MustCompile(`(?i)\b(write|create|implement|build|code)\s+(a |an |the )?(function|class|script|program|api|endpoint)\b`), CategoryTechnical, "code_generate", 0.85},
	{regexp.MustCompile(`(?i)\bhow to (install|configure|setup|deploy|run)\b`), CategoryTechnical, "system_admin", 0.7},

	{regexp.MustCompile(`(?i)\b(what about|and also|how about|what if)\b`), CategoryConversational, "follow_up", 0.5},
	{regexp.MustCompile(`(?i)\b(explain that|rephrase|say that again|differently|simpler|eli5)\b`), CategoryConversational, "clarification", 0.7},
	{regexp.MustCompile(`(?i)\b(how do you work|what can you do|your capabilities|help me understand you)\b`), CategoryConversational, "meta", 0.8},
}

// keywordTaxonomy gives secondary, weaker signal: per (primary, sub) overlap
// with the query's word set, capped at 0.6 the same way the regex table is
// capped at its own per-entry confidence ceiling.
var keywordTaxonomy = map[Category]map[string][]string{
	CategoryFactual: {
		"definition": {"meaning", "define", "what"},
		"lookup":     {"who", "when", "where", "how many", "how much", "how old"},
		"comparison": {"compare", "versus", "better", "worse", "difference", "similar"},
	},
	CategoryResearch: {
		"deep_dive":      {"detail", "thorough", "comprehensive", "explain", "how does"},
		"multi_source":   {"everything", "research", "investigate", "all sources"},
		"current_events": {"latest", "news", "recent", "today", "update"},
	},
	CategoryCreative: {
		"writing":   {"write", "compose", "draft", "poem", "story", "essay"},
		"brainstorm": {"ideas", "brainstorm", "suggest", "options", "alternatives"},
		"roleplay":  {"pretend", "roleplay", "character", "persona", "act as"},
	},
	CategoryTechnical: {
		"code_debug":    {"error", "fix", "bug", "debug", "traceback", "exception"},
		"code_generate": {"implement", "function", "class", "code", "script", "api"},
		"system_admin":  {"install", "configure", "deploy", "setup", "docker", "server"},
	},
	CategoryConversational: {
		"follow_up":     {"also", "what about", "and", "too", "as well"},
		"clarification": {"rephrase", "simpler", "again", "clarify", "eli5"},
		"meta":          {"capabilities", "how do you", "what can you"},
	},
}

var pronounFollowUpRe = regexp.MustCompile(`(?i)^(it|that|this|they|those|he|she)\b`)
var shortImperativeRe = regexp.MustCompile(`(?i)^(do|make|create|build|show|list|get|find)\b`)
var urlOrPathRe = regexp.MustCompile(`https?://|/[\w/]+\.\w+`)

type categorySub struct {
	primary Category
	sub     string
}

// Classify categorizes a message against the taxonomy using regex signals,
// keyword-taxonomy overlap, structural features, and follow-up detection.
// Each signal votes for a (primary, sub) pair with its own confidence; the
// highest-scoring pair wins, matching the reference classifier's per-pair
// scoreboard rather than a single running best.
func Classify(message string, priorTurns int) Classification {
	trimmed := strings.TrimSpace(message)
	lower := strings.ToLower(trimmed)
	words := strings.Fields(lower)

	scores := map[categorySub]float64{}
	var order []categorySub
	var signals []string
	vote := func(cs categorySub, score float64, signal string) {
		if _, seen := scores[cs]; !seen {
			order = append(order, cs)
		}
		if score > scores[cs] {
			scores[cs] = score
		}
		signals = append(signals, signal)
	}

	for _, p := range classifierPatterns {
		if p.re.MatchString(lower) {
			vote(categorySub{p.primary, p.sub}, p.weight, "pattern:"+string(p.primary)+"/"+p.sub)
		}
	}

	wordSet := map[string]bool{}
	for _, w := range words {
		wordSet[w] = true
	}
	for primary, subs := range keywordTaxonomy {
		for sub, keywords := range subs {
			overlap := 0
			for _, kw := range keywords {
				if strings.Contains(lower, kw) {
					overlap++
				}
			}
			if overlap == 0 {
				continue
			}
			score := float64(overlap) * 0.2
			if score > 0.6 {
				score = 0.6
			}
			vote(categorySub{primary, sub}, score, "keywords:"+string(primary)+"/"+sub)
		}
	}

	if strings.Contains(lower, "?") {
		vote(categorySub{CategoryFactual, "definition"}, 0.3, "structure:has_question_mark")
	}
	if len(words) > 20 {
		vote(categorySub{CategoryResearch, "deep_dive"}, 0.3, "structure:long_query")
	}
	if strings.Contains(lower, "`") {
		vote(categorySub{CategoryTechnical, "code_debug"}, 0.5, "structure:has_code")
	}
	if urlOrPathRe.MatchString(lower) {
		vote(categorySub{CategoryResearch, "multi_source"}, 0.3, "structure:has_url")
	}
	if len(words) > 0 && len(words) <= 5 && shortImperativeRe.MatchString(lower) {
		vote(categorySub{CategoryTechnical, "code_generate"}, 0.3, "structure:short_imperative")
	}

	isFollowUp := pronounFollowUpRe.MatchString(trimmed) || (priorTurns > 0 && len(words) <= 4)
	if priorTurns >= 2 && isFollowUp {
		vote(categorySub{CategoryConversational, "follow_up"}, 0.6, "context:follow_up")
	}

	bestCategory := CategoryConversational
	bestSub := "follow_up"
	bestScore := 0.0
	for _, cs := range order {
		if scores[cs] > bestScore {
			bestScore = scores[cs]
			bestCategory = cs.primary
			bestSub = cs.sub
		}
	}
	if bestScore == 0 {
		bestScore = 0.3
		signals = append(signals, "fallback:default")
	}
	if bestScore > 0.99 {
		bestScore = 0.99
	}

	return Classification{Primary: bestCategory, Sub: bestSub, Confidence: bestScore, Signals: signals, IsFollowUp: isFollowUp}
}
