// internal/retrieval/retrieval_learner.go
package retrieval

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const retrievalLearnerRedisKey = "retrieval:source_stats"
const emaAlpha = 0.3
const neutralScore = 3.0
const minObservations = 5

// sourceBucket is the per-(query_type, source) aggregate described in
// spec.md §4.5's "Retrieval Learner": EMA-updated avg_score_with (used and
// had results), avg_score_without (not used), and a usefulness ratio.
type sourceBucket struct {
	AvgScoreWith    float64 `json:"avg_score_with"`
	AvgScoreWithout float64 `json:"avg_score_without"`
	UsedCount       int     `json:"used_count"`
	HelpfulCount    int     `json:"helpful_count"`
	Observations    int     `json:"observations"`
}

// RetrievalLearner tracks per-(query_type, source) usefulness to recommend
// which sources to consult for future queries of the same type.
type RetrievalLearner struct {
	rdb  *redis.Client
	mu   sync.Mutex
	data map[string]*sourceBucket // key: queryType + "|" + source
}

func NewRetrievalLearner(rdb *redis.Client) *RetrievalLearner {
	l := &RetrievalLearner{rdb: rdb, data: map[string]*sourceBucket{}}
	l.load()
	return l
}

func bucketKey(queryType, source string) string { return queryType + "|" + source }

func (l *RetrievalLearner) load() {
	if l.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	raw, err := l.rdb.Get(ctx, retrievalLearnerRedisKey).Bytes()
	if err != nil {
		return
	}
	var loaded map[string]*sourceBucket
	if err := json.Unmarshal(raw, &loaded); err == nil {
		l.data = loaded
	}
}

func (l *RetrievalLearner) persist() {
	if l.rdb == nil {
		return
	}
	raw, err := json.Marshal(l.data)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.rdb.Set(ctx, retrievalLearnerRedisKey, raw, 0).Err(); err != nil {
		log.Printf("[RetrievalLearner] WARNING: failed to persist source stats: %v", err)
	}
}

// RecordOutcome updates the bucket for (queryType, source). score is nil
// when no evaluation completed by the time this runs — per the resolved
// Open Question, that's treated as a neutral 3.0, never reaching across the
// after-LLM task boundary to wait for one.
func (l *RetrievalLearner) RecordOutcome(queryType, source string, wasUsed, hadResults bool, score *float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := bucketKey(queryType, source)
	b, ok := l.data[key]
	if !ok {
		b = &sourceBucket{}
		l.data[key] = b
	}

	effectiveScore := neutralScore
	if score != nil {
		effectiveScore = *score
	}

	b.Observations++
	if wasUsed && hadResults {
		b.UsedCount++
		if b.AvgScoreWith == 0 {
			b.AvgScoreWith = effectiveScore
		} else {
			b.AvgScoreWith = emaAlpha*effectiveScore + (1-emaAlpha)*b.AvgScoreWith
		}
		if effectiveScore >= 3.5 {
			b.HelpfulCount++
		}
	} else {
		if b.AvgScoreWithout == 0 {
			b.AvgScoreWithout = effectiveScore
		} else {
			b.AvgScoreWithout = emaAlpha*effectiveScore + (1-emaAlpha)*b.AvgScoreWithout
		}
	}
	l.persist()
}

// RecommendationScore returns the blended recommendation score for
// (queryType, source): 0.6*help_ratio + 0.4*clamp((avg_with-avg_without)/5,
// 0, 1). Sources with fewer than minObservations return an exploratory 0.7.
func (l *RetrievalLearner) RecommendationScore(queryType, source string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.data[bucketKey(queryType, source)]
	if !ok || b.Observations < minObservations {
		return 0.7
	}

	helpRatio := 0.0
	if b.UsedCount > 0 {
		helpRatio = float64(b.HelpfulCount) / float64(b.UsedCount)
	}

	delta := (b.AvgScoreWith - b.AvgScoreWithout) / 5.0
	if delta < 0 {
		delta = 0
	}
	if delta > 1 {
		delta = 1
	}

	return 0.6*helpRatio + 0.4*delta
}
