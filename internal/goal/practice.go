package goal

// PracticeEnvironment manages self-directed simulations
type PracticeEnvironment struct {
    // Future: LLM Client for generating personalities
}

// NewPracticeEnvironment creates a new practice environment
func NewPracticeEnvironment() *PracticeEnvironment {
    return &PracticeEnvironment{}
}

// RunSimulation executes a practice scenario
// This is a placeholder for Phase 5/Advanced logic
func (p *PracticeEnvironment) RunSimulation(scenario string) (string, error) {
    // In full implementation, this spins up LLM personalities to roleplay
    return "Simulation Placeholder", nil
}
