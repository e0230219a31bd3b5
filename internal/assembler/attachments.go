// internal/assembler/attachments.go
package assembler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"go-llama/internal/memory"
)

const maxAttachmentMemoryChars = 8000

// PersistAttachmentText stores a non-image attachment's extracted text as a
// capped-length memory so later turns can retrieve it, per spec.md §4.2.
func (a *Assembler) PersistAttachmentText(ctx context.Context, userID, conversationID, filename, text string) error {
	if text == "" {
		return nil
	}
	if len(text) > maxAttachmentMemoryChars {
		text = text[:maxAttachmentMemoryChars]
	}

	embedding, err := a.embedder.Embed(ctx, text)
	if err != nil {
		log.Printf("[Assembler] WARNING: failed to embed attachment %q, storing without embedding: %v", filename, err)
	}

	mem := &memory.Memory{
		ID:              uuid.New().String(),
		Content:         fmt.Sprintf("[attachment: %s]\n%s", filename, text),
		Tier:            memory.TierRecent,
		UserID:          &userID,
		CreatedAt:       time.Now().UTC(),
		LastAccessedAt:  time.Now().UTC(),
		ImportanceScore: 0.5,
		Metadata: map[string]interface{}{
			"source":          "attachment",
			"filename":        filename,
			"conversation_id": conversationID,
		},
		Embedding: embedding,
	}
	if err := a.storage.Store(ctx, mem); err != nil {
		return fmt.Errorf("failed to persist attachment memory: %w", err)
	}
	return nil
}
