// internal/skill/store.go
package skill

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a skill/evaluation lookup misses.
var ErrNotFound = errors.New("skill: not found")

// Store is the single-writer SQLite-backed skill library, grounded directly
// in skill_voyager/skill_store.py's schema and query shapes. A sync.Mutex
// serializes writers the way the Python reference relies on SQLite's own
// single-writer semantics.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the skill database at path and ensures
// its schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open skill db: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer, matches the SQLite single-writer model

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	log.Printf("[SkillStore] opened %s", path)
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS skills (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			skill_type TEXT NOT NULL,
			description TEXT DEFAULT '',
			strategy TEXT DEFAULT '',
			trigger_patterns TEXT DEFAULT '[]',
			confidence REAL DEFAULT 0.5,
			times_used INTEGER DEFAULT 0,
			times_succeeded INTEGER DEFAULT 0,
			times_failed INTEGER DEFAULT 0,
			parent_skill_ids TEXT DEFAULT '[]',
			child_skill_ids TEXT DEFAULT '[]',
			state TEXT DEFAULT 'candidate',
			source TEXT DEFAULT 'observed',
			created_at REAL NOT NULL,
			last_used_at REAL DEFAULT 0,
			last_evaluated_at REAL DEFAULT 0,
			revision_count INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_skills_type ON skills(skill_type)`,
		`CREATE INDEX IF NOT EXISTS idx_skills_state ON skills(state)`,
		`CREATE INDEX IF NOT EXISTS idx_skills_confidence ON skills(confidence DESC)`,
		`CREATE TABLE IF NOT EXISTS evaluations (
			id TEXT PRIMARY KEY,
			skill_id TEXT NOT NULL,
			message_id TEXT DEFAULT '',
			conversation_id TEXT DEFAULT '',
			score REAL NOT NULL,
			reasoning TEXT DEFAULT '',
			query_text TEXT DEFAULT '',
			response_snippet TEXT DEFAULT '',
			evaluated_at REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evaluations_skill ON evaluations(skill_id)`,
		`CREATE TABLE IF NOT EXISTS composition_log (
			child_skill_id TEXT NOT NULL,
			parent_skill_id TEXT NOT NULL,
			composed_at REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS corrections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			correction_type TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			message_id TEXT DEFAULT '',
			original_snippet TEXT DEFAULT '',
			corrected_snippet TEXT DEFAULT '',
			skill_name TEXT DEFAULT '',
			skill_id TEXT DEFAULT '',
			query_type TEXT DEFAULT '',
			timestamp REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS correction_stats (
			skill_id TEXT PRIMARY KEY,
			skill_name TEXT NOT NULL,
			times_corrected INTEGER DEFAULT 0,
			times_edited INTEGER DEFAULT 0,
			times_regenerated INTEGER DEFAULT 0,
			times_thumbs_down INTEGER DEFAULT 0,
			last_correction REAL DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// AddSkill inserts a new skill, assigning an id if empty. Duplicate ids are
// reported as an error (caller sees a degraded {success:false} boundary) per
// spec.md's "invalid state writes" error kind.
func (s *Store) AddSkill(sk *Skill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sk.ID == "" {
		sk.ID = uuid.New().String()
	}
	if sk.CreatedAt.IsZero() {
		sk.CreatedAt = time.Now().UTC()
	}
	if sk.Confidence == 0 {
		sk.Confidence = 0.5
	}
	if sk.State == "" {
		sk.State = StateCandidate
	}

	triggers, _ := json.Marshal(sk.TriggerPatterns)
	parents, _ := json.Marshal(sk.ParentSkillIDs)
	children, _ := json.Marshal(sk.ChildSkillIDs)

	_, err := s.db.Exec(
		`INSERT INTO skills (id, name, skill_type, description, strategy, trigger_patterns,
			confidence, times_used, times_succeeded, times_failed, parent_skill_ids,
			child_skill_ids, state, source, created_at, last_used_at, last_evaluated_at, revision_count)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		sk.ID, sk.Name, string(sk.SkillType), sk.Description, sk.Strategy, string(triggers),
		sk.Confidence, sk.TimesUsed, sk.TimesSucceeded, sk.TimesFailed, string(parents),
		string(children), string(sk.State), string(sk.SourceOf), float64(sk.CreatedAt.Unix()),
		float64(sk.LastUsedAt.Unix()), float64(sk.LastEvaluatedAt.Unix()), sk.RevisionCount,
	)
	if err != nil {
		log.Printf("[SkillStore] WARNING: failed to add skill %q: %v", sk.Name, err)
		return fmt.Errorf("failed to add skill: %w", err)
	}
	return nil
}

func scanSkill(row interface {
	Scan(dest ...interface{}) error
}) (*Skill, error) {
	var sk Skill
	var skillType, state, source, triggers, parents, children string
	var createdAt, lastUsed, lastEval float64

	err := row.Scan(
		&sk.ID, &sk.Name, &skillType, &sk.Description, &sk.Strategy, &triggers,
		&sk.Confidence, &sk.TimesUsed, &sk.TimesSucceeded, &sk.TimesFailed, &parents,
		&children, &state, &source, &createdAt, &lastUsed, &lastEval, &sk.RevisionCount,
	)
	if err != nil {
		return nil, err
	}
	sk.SkillType = Type(skillType)
	sk.State = State(state)
	sk.SourceOf = Source(source)
	sk.CreatedAt = time.Unix(int64(createdAt), 0).UTC()
	sk.LastUsedAt = time.Unix(int64(lastUsed), 0).UTC()
	sk.LastEvaluatedAt = time.Unix(int64(lastEval), 0).UTC()
	_ = json.Unmarshal([]byte(triggers), &sk.TriggerPatterns)
	_ = json.Unmarshal([]byte(parents), &sk.ParentSkillIDs)
	_ = json.Unmarshal([]byte(children), &sk.ChildSkillIDs)
	return &sk, nil
}

const skillColumns = `id, name, skill_type, description, strategy, trigger_patterns,
	confidence, times_used, times_succeeded, times_failed, parent_skill_ids,
	child_skill_ids, state, source, created_at, last_used_at, last_evaluated_at, revision_count`

// GetSkill fetches a skill by id.
func (s *Store) GetSkill(id string) (*Skill, error) {
	row := s.db.QueryRow(`SELECT `+skillColumns+` FROM skills WHERE id = ?`, id)
	sk, err := scanSkill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sk, err
}

// FindMatchingSkills ranks candidate skills against the query: for each
// skill with confidence >= minConfidence in an active state, compute
// match_score = max over trigger patterns of (jaccard(query,pattern) + 0.3
// if the pattern is a substring of the query), then rank by
// match_score*confidence.
func (s *Store) FindMatchingSkills(query string, minConfidence float64, limit int) ([]*Skill, error) {
	rows, err := s.db.Query(
		`SELECT `+skillColumns+` FROM skills WHERE confidence >= ? AND state IN ('candidate','verified','mastered')`,
		minConfidence,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query skills: %w", err)
	}
	defer rows.Close()

	type scored struct {
		sk    *Skill
		score float64
	}
	var candidates []scored
	queryLower := strings.ToLower(query)
	queryWords := tokenSet(queryLower)

	for rows.Next() {
		sk, err := scanSkill(rows)
		if err != nil {
			continue
		}
		matchScore := 0.0
		for _, pattern := range sk.TriggerPatterns {
			score := computeMatchScore(queryLower, queryWords, pattern)
			if score > matchScore {
				matchScore = score
			}
		}
		if matchScore <= 0 {
			continue
		}
		candidates = append(candidates, scored{sk: sk, score: matchScore * sk.Confidence})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	out := make([]*Skill, 0, limit)
	for i, c := range candidates {
		if i >= limit {
			break
		}
		out = append(out, c.sk)
	}
	return out, nil
}

func tokenSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}

// computeMatchScore is the exact formula from skill_store.py's
// _compute_match_score: kw_score = overlap/len(pattern_words), plus 0.3 if
// the whole pattern is a verbatim substring of the query.
func computeMatchScore(queryLower string, queryWords map[string]bool, pattern string) float64 {
	patternLower := strings.ToLower(pattern)
	patternWords := strings.Fields(patternLower)
	if len(patternWords) == 0 {
		return 0
	}
	overlap := 0
	for _, w := range patternWords {
		if queryWords[w] {
			overlap++
		}
	}
	kwScore := float64(overlap) / float64(len(patternWords))
	if strings.Contains(queryLower, patternLower) {
		kwScore += 0.3
	}
	return kwScore
}

// UpdateConfidence applies the asymmetric EMA (alpha=0.1 on success, 0.2 on
// failure, target 1 or 0, clamped to [0.05,0.99]) and runs the lifecycle
// state machine in the exact elif-chain order from skill_store.py.
func (s *Store) UpdateConfidence(id string, success bool) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sk, err := s.getSkillLocked(id)
	if err != nil {
		return 0, err
	}

	alpha := 0.1
	target := 1.0
	if !success {
		alpha = 0.2
		target = 0.0
	}
	newConfidence := sk.Confidence + alpha*(target-sk.Confidence)
	if newConfidence < 0.05 {
		newConfidence = 0.05
	}
	if newConfidence > 0.99 {
		newConfidence = 0.99
	}

	timesUsed := sk.TimesUsed + 1
	succeeded := sk.TimesSucceeded
	failed := sk.TimesFailed
	if success {
		succeeded++
	} else {
		failed++
	}

	newState := nextState(sk.State, newConfidence, succeeded)

	_, err = s.db.Exec(
		`UPDATE skills SET confidence=?, times_used=?, times_succeeded=?, times_failed=?,
			state=?, last_used_at=? WHERE id=?`,
		newConfidence, timesUsed, succeeded, failed, string(newState), float64(time.Now().UTC().Unix()), id,
	)
	if err != nil {
		return sk.Confidence, fmt.Errorf("failed to persist confidence update: %w", err)
	}
	if newState != sk.State {
		log.Printf("[SkillStore] skill %q transitioned %s -> %s (confidence=%.2f)", sk.Name, sk.State, newState, newConfidence)
	}
	return newConfidence, nil
}

func (s *Store) getSkillLocked(id string) (*Skill, error) {
	row := s.db.QueryRow(`SELECT `+skillColumns+` FROM skills WHERE id = ?`, id)
	sk, err := scanSkill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sk, err
}

// nextState implements the exact elif-chain: mastered requires
// verified-or-better with confidence>=0.85 and succeeded>=5; verified
// requires confidence>=0.6 and succeeded>=2; deprecated overrides anything
// once confidence<0.2.
func nextState(current State, confidence float64, succeeded int) State {
	switch {
	case confidence >= 0.85 && succeeded >= 5 && (current == StateVerified || current == StateMastered):
		return StateMastered
	case confidence >= 0.6 && succeeded >= 2:
		if current == StateMastered {
			return current // mastered only demotes via explicit evolution, not confidence alone
		}
		return StateVerified
	case confidence < 0.2:
		return StateDeprecated
	default:
		return current
	}
}

// DemoteToVerified implements "mastered -> verified (must re-prove)" when a
// skill's strategy evolves, per spec.md's state machine.
func (s *Store) DemoteToVerified(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE skills SET state=? WHERE id=? AND state=?`, string(StateVerified), id, string(StateMastered))
	return err
}

// ApplyPenalty floors the confidence at 0.1 and deducts penalty atomically,
// matching spec.md §5's "UPDATE ... SET confidence = MAX(0.1, confidence -
// penalty)" lost-update-avoidance requirement.
func (s *Store) ApplyPenalty(id string, penalty float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`UPDATE skills SET confidence = MAX(0.1, confidence - ?) WHERE id = ?`, penalty, id,
	)
	if err != nil {
		return 0, err
	}
	var confidence float64
	if err := s.db.QueryRow(`SELECT confidence FROM skills WHERE id=?`, id).Scan(&confidence); err != nil {
		return 0, err
	}
	return confidence, nil
}

// BumpConfidenceCapped adds delta to a skill's confidence, capped at max,
// used by Reflection's "+0.05 (cap 0.7)" rule after a successful evolution.
func (s *Store) BumpConfidenceCapped(id string, delta, max float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`UPDATE skills SET confidence = MIN(?, confidence + ?) WHERE id = ?`, max, delta, id,
	)
	if err != nil {
		return 0, err
	}
	var confidence float64
	if err := s.db.QueryRow(`SELECT confidence FROM skills WHERE id=?`, id).Scan(&confidence); err != nil {
		return 0, err
	}
	return confidence, nil
}

// UpdateStrategy persists an evolved strategy string and bumps RevisionCount,
// used by the Reflection subsystem.
func (s *Store) UpdateStrategy(id, newStrategy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE skills SET strategy=?, revision_count=revision_count+1 WHERE id=?`, newStrategy, id)
	return err
}

// CountSkills returns the total number of skills in the library.
func (s *Store) CountSkills() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM skills`).Scan(&count)
	return count, err
}

// ListByName checks whether a skill with the given name already exists
// (used by the Curriculum Engine's seed-missing phase).
func (s *Store) ListByName(name string) (*Skill, error) {
	row := s.db.QueryRow(`SELECT `+skillColumns+` FROM skills WHERE name = ? LIMIT 1`, name)
	sk, err := scanSkill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sk, err
}

// LogComposition records a parent->child composition edge.
func (s *Store) LogComposition(childID, parentID string) error {
	_, err := s.db.Exec(
		`INSERT INTO composition_log (child_skill_id, parent_skill_id, composed_at) VALUES (?,?,?)`,
		childID, parentID, float64(time.Now().UTC().Unix()),
	)
	return err
}

// CompositionTree returns the parent ids a composed skill was built from.
func (s *Store) CompositionTree(childID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT parent_skill_id FROM composition_log WHERE child_skill_id = ?`, childID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var parents []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err == nil {
			parents = append(parents, p)
		}
	}
	return parents, nil
}

// SaveEvaluation persists an evaluator result and updates the skill's
// last_evaluated_at.
func (s *Store) SaveEvaluation(e *Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.EvaluatedAt.IsZero() {
		e.EvaluatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO evaluations (id, skill_id, message_id, conversation_id, score, reasoning, query_text, response_snippet, evaluated_at)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		e.ID, e.SkillID, e.MessageID, e.ConversationID, e.Score, e.Reasoning, e.QueryText, e.ResponseSnippet, float64(e.EvaluatedAt.Unix()),
	)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE skills SET last_evaluated_at=? WHERE id=?`, float64(e.EvaluatedAt.Unix()), e.SkillID)
	return err
}

// CountEvaluations returns how many evaluations a skill has accumulated.
// The Reflection trigger's times_used >= 1 gate reads the skill's own
// TimesUsed counter, not this count.
func (s *Store) CountEvaluations(skillID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM evaluations WHERE skill_id = ?`, skillID).Scan(&count)
	return count, err
}
