// internal/playbook/store.go
package playbook

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

// ErrNotFound is returned when a playbook lookup misses.
var ErrNotFound = errors.New("playbook: not found")

// Store is the single-writer SQLite-backed playbook library, grounded in
// the same schema/query idiom as internal/skill.Store (spec.md names no
// dedicated playbook backing store, so this mirrors the sibling Voyager
// subsystem's persistence shape rather than inventing a new one).
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open playbook db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	log.Printf("[PlaybookStore] opened %s", path)
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS playbooks (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			task_type TEXT DEFAULT '',
			difficulty TEXT DEFAULT 'medium',
			steps TEXT DEFAULT '[]',
			decision_tree TEXT DEFAULT '',
			code_templates TEXT DEFAULT '[]',
			guardrails TEXT DEFAULT '[]',
			examples TEXT DEFAULT '[]',
			technologies TEXT DEFAULT '[]',
			keywords TEXT DEFAULT '[]',
			confidence REAL DEFAULT 0.5,
			times_used INTEGER DEFAULT 0,
			success_count INTEGER DEFAULT 0,
			failure_count INTEGER DEFAULT 0,
			generated_by TEXT DEFAULT 'manual',
			created_at REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_playbooks_task_type ON playbooks(task_type)`,
		`CREATE TABLE IF NOT EXISTS outcome_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			keywords TEXT DEFAULT '[]',
			technologies TEXT DEFAULT '[]',
			success INTEGER NOT NULL,
			query_type TEXT DEFAULT '',
			created_at REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS auto_skill_creations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at REAL NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

const playbookColumns = `id, name, task_type, difficulty, steps, decision_tree, code_templates, guardrails, examples, technologies, keywords, confidence, times_used, success_count, failure_count, generated_by, created_at`

// AddPlaybook inserts a new playbook, assigning an id if empty.
func (s *Store) AddPlaybook(p *Playbook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	steps, _ := json.Marshal(p.Steps)
	templates, _ := json.Marshal(p.CodeTemplates)
	guardrails, _ := json.Marshal(p.Guardrails)
	examples, _ := json.Marshal(p.Examples)
	technologies, _ := json.Marshal(p.Technologies)
	keywords, _ := json.Marshal(p.Keywords)

	_, err := s.db.Exec(
		`INSERT INTO playbooks (`+playbookColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, p.TaskType, string(p.Difficulty), string(steps), p.DecisionTree,
		string(templates), string(guardrails), string(examples), string(technologies), string(keywords),
		p.Confidence, p.TimesUsed, p.SuccessCount, p.FailureCount, string(p.GeneratedBy),
		float64(p.CreatedAt.Unix()),
	)
	if err != nil {
		return fmt.Errorf("failed to insert playbook: %w", err)
	}
	return nil
}

func scanPlaybook(row interface {
	Scan(dest ...interface{}) error
}) (*Playbook, error) {
	var p Playbook
	var difficulty, generatedBy string
	var steps, templates, guardrails, examples, technologies, keywords string
	var createdAt float64
	err := row.Scan(
		&p.ID, &p.Name, &p.TaskType, &difficulty, &steps, &p.DecisionTree,
		&templates, &guardrails, &examples, &technologies, &keywords,
		&p.Confidence, &p.TimesUsed, &p.SuccessCount, &p.FailureCount, &generatedBy,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	p.Difficulty = Difficulty(difficulty)
	p.GeneratedBy = GeneratedBy(generatedBy)
	p.CreatedAt = time.Unix(int64(createdAt), 0).UTC()
	_ = json.Unmarshal([]byte(steps), &p.Steps)
	_ = json.Unmarshal([]byte(templates), &p.CodeTemplates)
	_ = json.Unmarshal([]byte(guardrails), &p.Guardrails)
	_ = json.Unmarshal([]byte(examples), &p.Examples)
	_ = json.Unmarshal([]byte(technologies), &p.Technologies)
	_ = json.Unmarshal([]byte(keywords), &p.Keywords)
	return &p, nil
}

func (s *Store) GetPlaybook(id string) (*Playbook, error) {
	row := s.db.QueryRow(`SELECT `+playbookColumns+` FROM playbooks WHERE id = ?`, id)
	p, err := scanPlaybook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// FindMatchingPlaybooks ranks candidate playbooks against task text and a
// technology list: match_score is keyword/technology overlap against the
// task (a jaccard-style overlap, mirroring internal/skill's trigger-pattern
// matching shape since spec.md does not give playbooks their own formula).
func (s *Store) FindMatchingPlaybooks(task string, technologies []string, limit int) ([]*Playbook, error) {
	rows, err := s.db.Query(`SELECT ` + playbookColumns + ` FROM playbooks`)
	if err != nil {
		return nil, fmt.Errorf("failed to query playbooks: %w", err)
	}
	defer rows.Close()

	taskLower := strings.ToLower(task)
	taskWords := map[string]bool{}
	for _, w := range strings.Fields(taskLower) {
		taskWords[w] = true
	}
	techSet := map[string]bool{}
	for _, t := range technologies {
		techSet[strings.ToLower(t)] = true
	}

	type scored struct {
		p     *Playbook
		score float64
	}
	var candidates []scored
	for rows.Next() {
		p, err := scanPlaybook(rows)
		if err != nil {
			continue
		}
		score := matchScore(p, taskLower, taskWords, techSet)
		if score <= 0 {
			continue
		}
		candidates = append(candidates, scored{p: p, score: score})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	out := make([]*Playbook, 0, limit)
	for i, c := range candidates {
		if i >= limit {
			break
		}
		out = append(out, c.p)
	}
	return out, nil
}

// BestMatchScore returns the highest match_score among existing playbooks
// for the given task/technologies — used by auto-playbook synthesis's "no
// similar playbook with match_score>=0.5 exists" guard.
func (s *Store) BestMatchScore(task string, technologies []string) (float64, error) {
	matches, err := s.FindMatchingPlaybooks(task, technologies, 1)
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, nil
	}
	taskLower := strings.ToLower(task)
	taskWords := map[string]bool{}
	for _, w := range strings.Fields(taskLower) {
		taskWords[w] = true
	}
	techSet := map[string]bool{}
	for _, t := range technologies {
		techSet[strings.ToLower(t)] = true
	}
	return matchScore(matches[0], taskLower, taskWords, techSet), nil
}

func matchScore(p *Playbook, taskLower string, taskWords, techSet map[string]bool) float64 {
	kwOverlap, kwTotal := 0, len(p.Keywords)
	for _, kw := range p.Keywords {
		if taskWords[strings.ToLower(kw)] {
			kwOverlap++
		}
	}
	techOverlap, techTotal := 0, len(p.Technologies)
	for _, t := range p.Technologies {
		if techSet[strings.ToLower(t)] {
			techOverlap++
		}
	}
	var kwScore, techScore float64
	if kwTotal > 0 {
		kwScore = float64(kwOverlap) / float64(kwTotal)
	}
	if techTotal > 0 {
		techScore = float64(techOverlap) / float64(techTotal)
	}
	score := 0.6*kwScore + 0.4*techScore
	if strings.Contains(taskLower, strings.ToLower(p.TaskType)) && p.TaskType != "" {
		score += 0.2
	}
	return score
}

// BumpStats increments times_used and either success_count or failure_count.
func (s *Store) BumpStats(id string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col := "failure_count"
	if success {
		col = "success_count"
	}
	_, err := s.db.Exec(`UPDATE playbooks SET times_used = times_used + 1, `+col+` = `+col+` + 1 WHERE id = ?`, id)
	return err
}

// LogOutcome appends one row to the outcome log, for pattern-clustering
// auto-skill-generation lookups.
func (s *Store) LogOutcome(o Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keywords, _ := json.Marshal(o.Keywords)
	technologies, _ := json.Marshal(o.Technologies)
	successInt := 0
	if o.Success {
		successInt = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO outcome_log (keywords, technologies, success, query_type, created_at) VALUES (?,?,?,?,?)`,
		string(keywords), string(technologies), successInt, o.QueryType, float64(time.Now().UTC().Unix()),
	)
	return err
}

// ClusterStats returns the total and successful outcome-log rows in the last
// window whose keyword/technology set overlaps the given one by at least one
// term — the "pattern clustering by (keywords, technologies, success)"
// lookup spec.md §4.7 describes.
func (s *Store) ClusterStats(keywords, technologies []string, window time.Duration) (total, successes int, err error) {
	since := time.Now().UTC().Add(-window).Unix()
	rows, err := s.db.Query(`SELECT keywords, technologies, success FROM outcome_log WHERE created_at >= ?`, float64(since))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query outcome log: %w", err)
	}
	defer rows.Close()

	want := map[string]bool{}
	for _, k := range keywords {
		want[strings.ToLower(k)] = true
	}
	for _, t := range technologies {
		want[strings.ToLower(t)] = true
	}

	for rows.Next() {
		var kwJSON, techJSON string
		var success int
		if err := rows.Scan(&kwJSON, &techJSON, &success); err != nil {
			continue
		}
		var kws, techs []string
		_ = json.Unmarshal([]byte(kwJSON), &kws)
		_ = json.Unmarshal([]byte(techJSON), &techs)
		if !overlaps(want, kws) && !overlaps(want, techs) {
			continue
		}
		total++
		if success == 1 {
			successes++
		}
	}
	return total, successes, nil
}

func overlaps(want map[string]bool, terms []string) bool {
	for _, t := range terms {
		if want[strings.ToLower(t)] {
			return true
		}
	}
	return false
}

// CountRecentAutoSkillCreations returns how many auto-skill creations have
// happened within the last window — the rate-limiting cap of 5/hour.
func (s *Store) CountRecentAutoSkillCreations(window time.Duration) (int, error) {
	since := time.Now().UTC().Add(-window).Unix()
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM auto_skill_creations WHERE created_at >= ?`, float64(since)).Scan(&count)
	return count, err
}

// RecordAutoSkillCreation logs that an auto-skill creation just happened.
func (s *Store) RecordAutoSkillCreation() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO auto_skill_creations (created_at) VALUES (?)`, float64(time.Now().UTC().Unix()))
	return err
}

// CountPlaybooks returns the total number of stored playbooks.
func (s *Store) CountPlaybooks() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM playbooks`).Scan(&n)
	return n, err
}
