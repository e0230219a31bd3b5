// Package cognition wires the Adaptive Retrieval Planner, Parallel Context
// Assembler, GraphRAG store, Skill Voyager, Outlet/Learning Pipeline, and
// Playbook subsystem into one bundle, constructed once at startup and shared
// across requests — unlike the legacy per-request memory.NewStorage/
// NewEmbedder construction in the WebSocket handler, the SQLite-backed
// skill/playbook stores and the cron-driven Curriculum Engine are stateful
// and must not be reopened per message.
package cognition

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"go-llama/internal/assembler"
	"go-llama/internal/config"
	"go-llama/internal/graph"
	"go-llama/internal/memory"
	"go-llama/internal/outlet"
	"go-llama/internal/playbook"
	"go-llama/internal/retrieval"
	"go-llama/internal/skill"
	"go-llama/internal/tools"
)

// Bundle holds every cognition-layer component live for the process
// lifetime. A nil *Bundle means the cognition layer is disabled (GrowerAI
// off, or a component failed to initialize); callers must treat it as
// optional, matching the teacher's IsAvailable()-gated duck-typed stores.
type Bundle struct {
	GraphStore       *graph.Store
	Planner          *retrieval.Planner
	Learner          *retrieval.Learner
	PreflightCache   *retrieval.PreflightCache
	RetrievalLearner *retrieval.RetrievalLearner

	Assembler *assembler.Assembler

	Skills     *skill.Store
	Curriculum *skill.CurriculumEngine

	Playbooks        *playbook.Store
	PlaybookRecorder *playbook.Recorder
	PlaybookAdvisor  *playbook.Advisor

	Outlet             *outlet.Pipeline
	LearningDispatcher *outlet.LearningDispatcher
}

// New builds every cognition component from cfg.GrowerAI.Cognition. storage
// and embedder are the already-constructed shared GrowerAI memory clients
// (qdrant gRPC client and embedding HTTP client are both safe to share across
// goroutines). toolRegistry is the already-registered tool set (SearXNG, web
// parsers) the assembler needs for Phase 1's web-search fan-out.
func New(cfg *config.Config, rdb *redis.Client, gormDB *gorm.DB, storage *memory.Storage, embedder *memory.Embedder, toolRegistry *tools.Registry) (*Bundle, error) {
	cog := cfg.GrowerAI.Cognition

	graphStore, err := graph.NewStore(gormDB)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize graph store: %w", err)
	}

	learner := retrieval.NewLearner(rdb)
	planner := retrieval.NewPlanner(learner)
	preflight := retrieval.NewPreflightCache(rdb)
	retrievalLearner := retrieval.NewRetrievalLearner(rdb)

	asm := assembler.NewAssembler(
		storage, embedder, graphStore, planner, preflight, toolRegistry,
		memory.FormatAsSystemPrompt(nil, cfg.GrowerAI.Personality.GoodBehaviorBias),
		cfg.GrowerAI.EmbeddingModel.URL,
	)

	skillPath := cog.SkillVoyager.DBPath
	skills, err := skill.Open(skillPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open skill store at %s: %w", skillPath, err)
	}
	curriculum := skill.NewCurriculumEngine(skills)
	if err := curriculum.Start(); err != nil {
		return nil, fmt.Errorf("failed to start curriculum engine: %w", err)
	}

	playbookPath := cog.Playbook.DBPath
	playbooks, err := playbook.Open(playbookPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open playbook store at %s: %w", playbookPath, err)
	}
	recorder := playbook.NewRecorder(playbooks, skills)
	advisor := playbook.NewAdvisor(playbooks, skills)

	executor := outlet.NewExecutor(nil, nil, nil, nil)
	learningDispatcher := outlet.NewLearningDispatcher(
		storage, embedder, graphStore,
		cog.Outlet.LearningWorkers, cog.Outlet.LearningQueueSize,
	)
	pipeline := outlet.NewPipeline(executor, storage, embedder, nil, learningDispatcher)

	return &Bundle{
		GraphStore:         graphStore,
		Planner:            planner,
		Learner:            learner,
		PreflightCache:     preflight,
		RetrievalLearner:   retrievalLearner,
		Assembler:          asm,
		Skills:             skills,
		Curriculum:         curriculum,
		Playbooks:          playbooks,
		PlaybookRecorder:   recorder,
		PlaybookAdvisor:    advisor,
		Outlet:             pipeline,
		LearningDispatcher: learningDispatcher,
	}, nil
}

// Close releases every held resource (SQLite handles, cron schedule,
// dispatcher workers) for a clean shutdown.
func (b *Bundle) Close() {
	if b == nil {
		return
	}
	if b.Curriculum != nil {
		b.Curriculum.Stop()
	}
	if b.LearningDispatcher != nil {
		b.LearningDispatcher.Stop()
	}
	if b.Skills != nil {
		b.Skills.Close()
	}
	if b.Playbooks != nil {
		b.Playbooks.Close()
	}
}
