// internal/retrieval/types.go
package retrieval

// Decision is the retrieval strategy chosen for a query.
type Decision string

const (
	DecisionNone   Decision = "none"
	DecisionMemory Decision = "memory"
	DecisionGraph  Decision = "graph"
	DecisionSearch Decision = "search"
	DecisionHybrid Decision = "hybrid"
	DecisionWeb    Decision = "web"
)

// Complexity buckets the query's estimated retrieval effort.
type Complexity string

const (
	ComplexitySimple      Complexity = "simple"
	ComplexityModerate    Complexity = "moderate"
	ComplexityComplex     Complexity = "complex"
	ComplexitySpecialized Complexity = "specialized"
)

// Plan is the output of Analyze: what to retrieve and how much of it.
type Plan struct {
	Decision     Decision   `json:"decision"`
	Complexity   Complexity `json:"complexity"`
	Confidence   float64    `json:"confidence"`
	Reasoning    string     `json:"reasoning"`
	MaxResults   int        `json:"max_results"`
	SearchQueries []string  `json:"search_queries"`
}

// Outcome is one recorded retrieval result used to learn per-strategy,
// per-technology, per-keyword success rates.
type Outcome struct {
	QueryType    string  `json:"query_type"`
	Source       string  `json:"source"`
	WasUsed      bool    `json:"was_used"`
	HadResults   bool    `json:"had_results"`
	ResponseScore float64 `json:"response_score"`
	QueryText    string  `json:"query_text"`
	Timestamp    int64   `json:"timestamp"`
}
