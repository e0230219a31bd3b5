package goal

// ArchiveManager handles archiving and revival logic
type ArchiveManager struct {
    Repo GoalRepository
}

// NewArchiveManager creates a new archive manager
func NewArchiveManager(repo GoalRepository) *ArchiveManager {
    return &ArchiveManager{Repo: repo}
}

// ArchiveGoal marks a goal archived with the given reason. It only changes the
// in-memory goal; nothing is written to Repo, so the caller persists it.
func (a *ArchiveManager) ArchiveGoal(g *Goal, reason ArchiveReason) error {
    g.State = StateArchived
    g.ArchiveReason = reason
    return nil
}
