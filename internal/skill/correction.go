// internal/skill/correction.go
package skill

import (
	"log"
	"time"
)

// correctionPenalties is the exact deduction table from correction_learner.py.
var correctionPenalties = map[CorrectionType]float64{
	CorrectionEdit:       0.05,
	CorrectionRegenerate: 0.08,
	CorrectionThumbsDown: 0.10,
	CorrectionExplicit:   0.12,
}

// RecordCorrection deducts the type-specific penalty from the skill's
// confidence (floored at 0.1) and records the event + aggregate stats, per
// spec.md §4.5's Correction Learner.
func (s *Store) RecordCorrection(c *Correction) (float64, error) {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	_, err := s.db.Exec(
		`INSERT INTO corrections (correction_type, conversation_id, message_id, original_snippet,
			corrected_snippet, skill_name, skill_id, query_type, timestamp)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		string(c.Type), c.ConversationID, c.MessageID, truncate(c.OriginalResponse, 500),
		truncate(c.CorrectedText, 500), c.SkillName, c.SkillID, c.QueryType, float64(c.Timestamp.Unix()),
	)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	err = s.upsertCorrectionStatsLocked(c)
	s.mu.Unlock()
	if err != nil {
		log.Printf("[CorrectionLearner] WARNING: failed to update correction stats: %v", err)
	}

	if c.SkillID == "" {
		return 0, nil
	}
	penalty := correctionPenalties[c.Type]
	if penalty == 0 {
		penalty = correctionPenalties[CorrectionEdit]
	}
	newConfidence, err := s.ApplyPenalty(c.SkillID, penalty)
	if err != nil {
		return 0, err
	}
	log.Printf("[CorrectionLearner] correction penalty: skill %q confidence -> %.2f (type=%s)", c.SkillName, newConfidence, c.Type)
	return newConfidence, nil
}

func (s *Store) upsertCorrectionStatsLocked(c *Correction) error {
	var corrected, edited, regenerated, thumbs int
	err := s.db.QueryRow(
		`SELECT times_corrected, times_edited, times_regenerated, times_thumbs_down FROM correction_stats WHERE skill_id=?`,
		c.SkillID,
	).Scan(&corrected, &edited, &regenerated, &thumbs)

	if err != nil {
		_, err = s.db.Exec(
			`INSERT INTO correction_stats (skill_id, skill_name, times_corrected, times_edited,
				times_regenerated, times_thumbs_down, last_correction) VALUES (?,?,1,?,?,?,?)`,
			c.SkillID, c.SkillName,
			boolToInt(c.Type == CorrectionEdit), boolToInt(c.Type == CorrectionRegenerate),
			boolToInt(c.Type == CorrectionThumbsDown), float64(c.Timestamp.Unix()),
		)
		return err
	}

	corrected++
	switch c.Type {
	case CorrectionEdit:
		edited++
	case CorrectionRegenerate:
		regenerated++
	case CorrectionThumbsDown:
		thumbs++
	}
	_, err = s.db.Exec(
		`UPDATE correction_stats SET times_corrected=?, times_edited=?, times_regenerated=?,
			times_thumbs_down=?, last_correction=? WHERE skill_id=?`,
		corrected, edited, regenerated, thumbs, float64(c.Timestamp.Unix()), c.SkillID,
	)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CorrectionStatsFor returns the aggregate correction history for every
// skill, ordered by most-corrected first (supplemental dashboard data).
func (s *Store) CorrectionStatsFor() ([]CorrectionStats, error) {
	rows, err := s.db.Query(
		`SELECT skill_id, skill_name, times_corrected, times_edited, times_regenerated,
			times_thumbs_down, last_correction FROM correction_stats ORDER BY times_corrected DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CorrectionStats
	for rows.Next() {
		var cs CorrectionStats
		var lastCorrection float64
		if err := rows.Scan(&cs.SkillID, &cs.SkillName, &cs.TimesCorrected, &cs.TimesEdited,
			&cs.TimesRegenerated, &cs.TimesThumbsDown, &lastCorrection); err != nil {
			continue
		}
		cs.LastCorrection = time.Unix(int64(lastCorrection), 0).UTC()
		out = append(out, cs)
	}
	return out, nil
}

// TotalCorrections returns the total number of correction events recorded.
func (s *Store) TotalCorrections() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM corrections`).Scan(&count)
	return count, err
}
