// internal/outlet/outlet.go
package outlet

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"go-llama/internal/memory"
)

// ProcessRequest carries everything the Outlet Pipeline needs for one turn.
type ProcessRequest struct {
	UserID         string
	ConversationID string
	MessageID      string
	Response       string // raw LLM output, pre action-marker stripping
	UsedWebSearch  bool
	RetrievalContext string // combined context used this turn, for optional validation
}

// Result is what the caller (the websocket/chat handler) needs after Process
// returns: the cleaned text to display/persist, plus bookkeeping.
type Result struct {
	CleanedText      string
	MarkersExecuted  int
	MarkersStripped  int
	ValidationNote   string
	BackgroundTaskID string
}

// Pipeline is the Outlet/Learning Pipeline of spec.md §4.6: action-marker
// execution, the security gate, optional response validation, persistence,
// and a detached background learning task — mirroring the teacher's
// TaggerQueue worker-pool idiom for the learning dispatch.
type Pipeline struct {
	executor  *Executor
	storage   *memory.Storage
	embedder  *memory.Embedder
	validator ResponseValidator // nil disables step 3
	learner   *LearningDispatcher
}

// ResponseValidator is the optional LLM-as-judge check of step 3.
type ResponseValidator interface {
	Validate(ctx context.Context, response, retrievalContext string) (note string, err error)
}

func NewPipeline(executor *Executor, storage *memory.Storage, embedder *memory.Embedder, validator ResponseValidator, learner *LearningDispatcher) *Pipeline {
	return &Pipeline{executor: executor, storage: storage, embedder: embedder, validator: validator, learner: learner}
}

// Process runs the full five-step pipeline and returns the text the caller
// should display and persist.
func (p *Pipeline) Process(ctx context.Context, req ProcessRequest) (*Result, error) {
	markers := ScanMarkers(req.Response)

	executable := ApplySecurityGate(markers, req.UsedWebSearch)

	result := &Result{MarkersStripped: len(markers)}

	cleaned := req.Response
	if len(markers) > 0 {
		// Execute first (so SEARCH_EMAIL can splice in a replacement), then
		// strip every originally-scanned marker from the displayed text —
		// stripping happens unconditionally per spec.md §4.6 step 1/2,
		// independent of whether execution was gated off.
		replacements := make(map[int]string, len(executable))
		for _, m := range executable {
			repl, err := p.executor.Execute(ctx, req.UserID, m)
			if err != nil {
				log.Printf("[Outlet] WARNING: action marker %s failed: %v", m.Type, err)
				continue
			}
			if m.Type == MarkerSearchEmail {
				replacements[m.Start] = repl
			}
			result.MarkersExecuted++
		}
		cleaned = spliceAndStrip(req.Response, markers, replacements)
	}

	if p.validator != nil {
		note, err := p.validator.Validate(ctx, cleaned, req.RetrievalContext)
		if err != nil {
			log.Printf("[Outlet] WARNING: response validation failed, skipping: %v", err)
		} else if note != "" {
			result.ValidationNote = note
			cleaned = cleaned + "\n\n" + note
		}
	}

	result.CleanedText = cleaned

	if err := p.persist(ctx, req, cleaned); err != nil {
		log.Printf("[Outlet] WARNING: failed to persist assistant message: %v", err)
	}

	if p.learner != nil {
		result.BackgroundTaskID = p.learner.Dispatch(LearningTask{
			UserID: req.UserID, ConversationID: req.ConversationID,
			MessageID: req.MessageID, Response: cleaned,
		})
	}

	return result, nil
}

// spliceAndStrip removes every scanned marker's span from text, substituting
// any SEARCH_EMAIL replacement in place rather than deleting it outright.
func spliceAndStrip(text string, markers []Marker, replacements map[int]string) string {
	var out []byte
	last := 0
	for _, m := range markers {
		if m.Start < last {
			continue
		}
		out = append(out, text[last:m.Start]...)
		if repl, ok := replacements[m.Start]; ok {
			out = append(out, repl...)
		}
		last = m.End
	}
	out = append(out, text[last:]...)
	return collapseNewlines(string(out))
}

// persist implements step 4: it indexes the cleaned assistant message in the
// memory store (with an embedding when an embedder is wired). It does not
// touch the conversation record, so the conversation's updated_at is left
// as it was.
func (p *Pipeline) persist(ctx context.Context, req ProcessRequest, cleaned string) error {
	if p.storage == nil {
		return nil
	}
	var embedding []float32
	if p.embedder != nil {
		if e, err := p.embedder.Embed(ctx, cleaned); err == nil {
			embedding = e
		}
	}
	userID := req.UserID
	mem := &memory.Memory{
		ID:             uuid.New().String(),
		Content:        cleaned,
		Tier:           memory.TierRecent,
		UserID:         &userID,
		CreatedAt:      time.Now().UTC(),
		LastAccessedAt: time.Now().UTC(),
		Metadata: map[string]interface{}{
			"source":          "assistant_message",
			"conversation_id": req.ConversationID,
			"message_id":      req.MessageID,
		},
		Embedding: embedding,
	}
	if err := p.storage.Store(ctx, mem); err != nil {
		return fmt.Errorf("failed to index assistant message: %w", err)
	}
	return nil
}
