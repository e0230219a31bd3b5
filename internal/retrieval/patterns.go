// internal/retrieval/patterns.go
package retrieval

import "regexp"

// patternFamily is a pre-compiled set of regexes scored against the query.
// Pre-compiling at construction (here, package init) mirrors the teacher's
// tools/circuit_breaker.go-style "do the expensive setup once" idiom.
type patternFamily struct {
	name     string
	patterns []*regexp.Regexp
}

func compileFamily(name string, exprs []string) patternFamily {
	pf := patternFamily{name: name}
	for _, e := range exprs {
		pf.patterns = append(pf.patterns, regexp.MustCompile(e))
	}
	return pf
}

func (pf patternFamily) score(text string) int {
	count := 0
	for _, re := range pf.patterns {
		if re.MatchString(text) {
			count++
		}
	}
	return count
}

var (
	simplePatterns = compileFamily("simple", []string{
		`(?i)^\s*(hi|hello|hey|yo|sup|thanks|thank you|ok|okay|cool|nice|great|got it|sounds good|bye|goodbye)\s*[.!]?\s*$`,
	})

	codePatterns = compileFamily("code", []string{
		`(?i)\b(function|class|import|package|module|struct|interface)\b`,
		"```",
		`(?i)\b(compile|syntax error|stack trace|traceback)\b`,
		`(?i)\b(python|golang|javascript|typescript|rust|java|c\+\+)\b`,
	})

	debuggingPatterns = compileFamily("debugging", []string{
		`(?i)\b(bug|error|exception|crash|fails?|broken|doesn'?t work|not working)\b`,
		`(?i)\b(why (is|does|doesn'?t)|what'?s wrong)\b`,
		`(?i)\b(traceback|stack ?trace|panic:|nil pointer|segfault)\b`,
	})

	architecturePatterns = compileFamily("architecture", []string{
		`(?i)\b(architect(ure)?|design pattern|microservice|scalab(le|ility)|system design)\b`,
		`(?i)\b(trade-?offs?|pros and cons|best approach|should I use)\b`,
		`(?i)\b(database schema|api design|infrastructure)\b`,
	})

	memoryTriggerPatterns = compileFamily("memory_trigger", []string{
		`(?i)\b(like I said|as I mentioned|as we discussed|remember when|you told me|I told you)\b`,
		`(?i)\b(my (project|app|company|team) (uses|is|has))\b`,
		`(?i)\b(remember (that|this)|don'?t forget)\b`,
		`(?i)\b(again|last time|previously|earlier (we|I))\b`,
	})

	externalKnowledgePatterns = compileFamily("external_knowledge", []string{
		`(?i)\b(latest|current|recent|today'?s|this (week|month|year))\b`,
		`(?i)\b(news|release notes|changelog|version \d)\b`,
		`(?i)\b(search (the web|online)|look up|google)\b`,
		`(?i)\bhttps?://`,
	})
)

// knownTechnologies is the hardcoded vocabulary used by extractTechnologies,
// grounded in adaptive_retrieval.py's own hardcoded list.
var knownTechnologies = []string{
	"python", "golang", "go", "javascript", "typescript", "rust", "java",
	"c++", "c#", "ruby", "php", "swift", "kotlin",
	"react", "vue", "angular", "svelte", "nextjs", "django", "flask",
	"fastapi", "gin", "express", "spring", "rails",
	"postgres", "postgresql", "mysql", "sqlite", "mongodb", "redis", "qdrant",
	"docker", "kubernetes", "terraform", "aws", "gcp", "azure",
	"graphql", "rest", "grpc", "websocket",
}
