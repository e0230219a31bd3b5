// internal/retrieval/learner.go
package retrieval

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const learnerRedisKey = "retrieval:learned_boost_stats"

// strategyStats is the per-(strategy, technology|keyword) running tally used
// to compute the learned boost.
type strategyStats struct {
	Counts map[string]map[string]int `json:"counts"` // strategy -> key -> success count
}

// Learner maintains the planner's learned-boost side-store: for each
// (strategy, weight) recorded from past outcomes matching query keywords or
// technologies, it contributes up to 0.3 to that strategy's confidence.
type Learner struct {
	rdb  *redis.Client
	mu   sync.Mutex
	data strategyStats
}

// NewLearner loads (or lazily initializes) the learned-boost stats from
// Redis. rdb may be nil, in which case the learner operates purely in-memory
// for the lifetime of the process (graceful degradation, no user-visible
// failure).
func NewLearner(rdb *redis.Client) *Learner {
	l := &Learner{
		rdb:  rdb,
		data: strategyStats{Counts: map[string]map[string]int{}},
	}
	l.load()
	return l
}

func (l *Learner) load() {
	if l.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	raw, err := l.rdb.Get(ctx, learnerRedisKey).Bytes()
	if err != nil {
		return // fresh store, or redis unavailable: degrade silently
	}
	var loaded strategyStats
	if err := json.Unmarshal(raw, &loaded); err == nil && loaded.Counts != nil {
		l.data = loaded
	}
}

func (l *Learner) persist() {
	if l.rdb == nil {
		return
	}
	raw, err := json.Marshal(l.data)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.rdb.Set(ctx, learnerRedisKey, raw, 0).Err(); err != nil {
		log.Printf("[RetrievalLearner] WARNING: failed to persist learned-boost stats: %v", err)
	}
}

// RecordOutcome updates per-strategy success counts keyed by both
// technologies and keywords extracted from the query.
func (l *Learner) RecordOutcome(query string, strategyUsed Decision, successful bool, technologies []string) {
	if !successful {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	strategy := string(strategyUsed)
	if l.data.Counts[strategy] == nil {
		l.data.Counts[strategy] = map[string]int{}
	}
	for _, tech := range technologies {
		l.data.Counts[strategy][tech]++
	}
	for _, kw := range ExtractSearchTerms(query) {
		l.data.Counts[strategy][kw]++
	}
	l.persist()
}

// LearnedBoost returns the best learned strategy for the given terms and
// technologies, with its boosted confidence, and whether a boost applies at
// all (false if no matching history exists).
func (l *Learner) LearnedBoost(ruleBased Decision, terms []string, technologies []string) (Decision, float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := append(append([]string{}, terms...), technologies...)
	if len(keys) == 0 {
		return ruleBased, 0, false
	}

	best := ruleBased
	bestScore := 0.0
	for strategy, counts := range l.data.Counts {
		score := 0.0
		for _, k := range keys {
			c := counts[k]
			if c == 0 {
				continue
			}
			boost := 0.02 * float64(c)
			if boost > 0.1 {
				boost = 0.1
			}
			score += boost
		}
		if score > 0.3 {
			score = 0.3
		}
		if score > bestScore {
			bestScore = score
			best = Decision(strategy)
		}
	}

	if bestScore == 0 {
		return ruleBased, 0, false
	}
	return best, bestScore, true
}
