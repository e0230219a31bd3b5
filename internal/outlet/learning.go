// internal/outlet/learning.go
package outlet

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go-llama/internal/graph"
	"go-llama/internal/memory"
)

// LearningTask is one unit of post-response background work: memory
// extraction and negative-knowledge extraction (see run). No named-entity or
// relation extraction runs here, so the graph only receives invalidations.
// All writes are scoped by UserID.
type LearningTask struct {
	UserID         string
	ConversationID string
	MessageID      string
	Response       string
}

var negativeKnowledgeRe = regexp.MustCompile(`(?i)\b([A-Za-z][A-Za-z0-9_ ]{1,40}?)\s+(does not|doesn't|is not|isn't|cannot|can't)\s+([a-z][a-z0-9_ ]{1,60})`)

// LearningDispatcher is a named, bounded background task runner — per
// spec.md §9's "detached background learning tasks" design note, it mirrors
// the teacher's TaggerQueue worker-pool idiom so tests can drain pending
// work deterministically instead of racing a bare goroutine.
type LearningDispatcher struct {
	storage  *memory.Storage
	embedder *memory.Embedder
	graph    *graph.Store

	queue   chan namedTask
	workers int
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	dispatched int64
	completed  int64
	failed     int64
}

type namedTask struct {
	id   string
	task LearningTask
}

func NewLearningDispatcher(storage *memory.Storage, embedder *memory.Embedder, g *graph.Store, workers, queueSize int) *LearningDispatcher {
	if workers < 1 {
		workers = 2
	}
	if queueSize < 32 {
		queueSize = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &LearningDispatcher{
		storage: storage, embedder: embedder, graph: g,
		queue: make(chan namedTask, queueSize), workers: workers,
		ctx: ctx, cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	log.Printf("[Outlet.Learning] started with %d workers", workers)
	return d
}

// Dispatch enqueues a task without blocking the turn that produced it, per
// spec.md §5's "background tasks have no ordering guarantees relative to
// the next turn" requirement. Returns a task id for logging/correlation.
func (d *LearningDispatcher) Dispatch(task LearningTask) string {
	id := fmt.Sprintf("learning_%d", atomic.AddInt64(&d.dispatched, 1))
	select {
	case d.queue <- namedTask{id: id, task: task}:
	default:
		log.Printf("[Outlet.Learning] WARNING: queue full, dropping task %s", id)
	}
	return id
}

func (d *LearningDispatcher) worker(n int) {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case nt := <-d.queue:
			if err := d.run(d.ctx, nt.task); err != nil {
				atomic.AddInt64(&d.failed, 1)
				log.Printf("[Outlet.Learning] worker %d: task %s failed: %v", n, nt.id, err)
			} else {
				atomic.AddInt64(&d.completed, 1)
			}
		}
	}
}

func (d *LearningDispatcher) run(ctx context.Context, task LearningTask) error {
	if err := d.extractMemory(ctx, task); err != nil {
		log.Printf("[Outlet.Learning] WARNING: memory extraction failed: %v", err)
	}
	if err := d.extractNegativeKnowledge(ctx, task); err != nil {
		log.Printf("[Outlet.Learning] WARNING: negative-knowledge extraction failed: %v", err)
	}
	return nil
}

// extractMemory emits new memory notes for durable statements in the
// response, with a coarse conflict check against similar existing memories
// (the heuristic fallback for the LLM-driven extraction/conflict-resolution
// path spec.md describes).
func (d *LearningDispatcher) extractMemory(ctx context.Context, task LearningTask) error {
	if d.storage == nil || d.embedder == nil {
		return nil
	}
	sentences := splitSentences(task.Response)
	for _, s := range sentences {
		if len(s) < 20 || len(s) > 400 {
			continue
		}
		if !looksDurable(s) {
			continue
		}
		embedding, err := d.embedder.Embed(ctx, s)
		if err != nil {
			log.Printf("[Outlet.Learning] WARNING: failed to embed extracted memory, skipping: %v", err)
			continue
		}
		userID := task.UserID
		mem := &memory.Memory{
			Content:   s,
			Tier:      memory.TierRecent,
			UserID:    &userID,
			CreatedAt: time.Now().UTC(),
			Metadata: map[string]interface{}{
				"source":          "outlet_extraction",
				"conversation_id": task.ConversationID,
			},
			Embedding: embedding,
		}
		if err := d.storage.Store(ctx, mem); err != nil {
			return err
		}
	}
	return nil
}

// looksDurable is the heuristic fallback for "is this worth remembering":
// first-person factual statements about preferences/facts rather than
// questions or transient chit-chat.
func looksDurable(s string) bool {
	lower := strings.ToLower(s)
	if strings.HasSuffix(strings.TrimSpace(s), "?") {
		return false
	}
	for _, cue := range []string{"i use", "i'm using", "my project", "we use", "always", "prefer", "is named", "is called"} {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

func splitSentences(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == '\n' })
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// extractNegativeKnowledge captures "X does not Y" style facts and stores
// them as invalidating graph relationships, per spec.md §4.6 step 5.
func (d *LearningDispatcher) extractNegativeKnowledge(ctx context.Context, task LearningTask) error {
	if d.graph == nil {
		return nil
	}
	matches := negativeKnowledgeRe.FindAllStringSubmatch(task.Response, -1)
	for _, m := range matches {
		subject := strings.TrimSpace(m[1])
		predicate := strings.TrimSpace(m[3])
		if !graph.IsValidEntity(subject) {
			continue
		}
		label := graph.SanitizeLabel("NOT_" + firstWord(predicate))
		if _, err := d.graph.InvalidateRelationships(subject, label, task.UserID); err != nil {
			log.Printf("[Outlet.Learning] WARNING: failed to invalidate %q %s: %v", subject, label, err)
		}
	}
	return nil
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "RELATES_TO"
	}
	return fields[0]
}

// Stop signals all workers to exit and waits for in-flight tasks to finish.
func (d *LearningDispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

// Stats returns dispatched/completed/failed counters (used by tests wanting
// to assert "drain_pending" style completion).
func (d *LearningDispatcher) Stats() (dispatched, completed, failed int64) {
	return atomic.LoadInt64(&d.dispatched), atomic.LoadInt64(&d.completed), atomic.LoadInt64(&d.failed)
}
