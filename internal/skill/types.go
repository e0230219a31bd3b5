// internal/skill/types.go
package skill

import "time"

// State is a skill's lifecycle stage.
type State string

const (
	StateCandidate  State = "candidate"
	StateVerified   State = "verified"
	StateMastered   State = "mastered"
	StateDeprecated State = "deprecated"
)

// Source records how a skill came to exist.
type Source string

const (
	SourceObserved  Source = "observed"
	SourceComposed  Source = "composed"
	SourceCurriculum Source = "curriculum"
	SourceManual    Source = "manual"
)

// Type categorizes what kind of strategy a skill encodes.
type Type string

const (
	TypeSearchStrategy    Type = "search_strategy"
	TypeResponseFormat    Type = "response_format"
	TypeRetrievalCombo    Type = "retrieval_combo"
	TypeConversationPattern Type = "conversation_pattern"
	TypeErrorRecovery     Type = "error_recovery"
)

// Skill is a persistent, evaluated prompt strategy with a confidence EMA and
// lifecycle state, matching skill_voyager/skill_store.py's Skill dataclass.
type Skill struct {
	ID              string
	Name            string
	SkillType       Type
	Description     string
	Strategy        string // the prompt fragment injected before the last user message
	TriggerPatterns []string
	Confidence      float64
	TimesUsed       int
	TimesSucceeded  int
	TimesFailed     int
	ParentSkillIDs  []string
	ChildSkillIDs   []string
	State           State
	SourceOf        Source
	CreatedAt       time.Time
	LastUsedAt      time.Time
	LastEvaluatedAt time.Time
	RevisionCount   int // number of times Reflection has applied an improved strategy
}

// Evaluation is a single scored judgment of how well a skill's response
// performed, per spec.md's Skill Evaluation entity.
type Evaluation struct {
	ID              string
	SkillID         string
	MessageID       string
	ConversationID  string
	Score           float64 // 1-5
	Reasoning       string
	QueryText       string
	ResponseSnippet string
	EvaluatedAt     time.Time
}

// RootCause is the diagnosed reason a response using a skill scored low.
type RootCause string

const (
	RootCauseWrongFormat  RootCause = "wrong_format"
	RootCauseMissingInfo  RootCause = "missing_info"
	RootCauseTooVerbose   RootCause = "too_verbose"
	RootCauseOffTopic     RootCause = "off_topic"
	RootCauseWrongApproach RootCause = "wrong_approach"
	RootCauseIncomplete   RootCause = "incomplete"
)

// Reflection is the diagnosis+fix produced when a skill underperforms.
type Reflection struct {
	ID               string
	SkillID          string
	EvaluationID     string
	FailureDiagnosis string
	RootCause        RootCause
	ImprovedStrategy string
	ConfidenceInFix  float64
	Applied          bool
	CreatedAt        time.Time
}

// CorrectionType is the kind of negative user signal recorded.
type CorrectionType string

const (
	CorrectionEdit        CorrectionType = "edit"
	CorrectionRegenerate  CorrectionType = "regenerate"
	CorrectionThumbsDown  CorrectionType = "thumbs_down"
	CorrectionExplicit    CorrectionType = "explicit"
)

// Correction is a negative feedback event implying the skill applied to a
// response should lose confidence.
type Correction struct {
	Type               CorrectionType
	ConversationID     string
	MessageID          string
	OriginalResponse   string
	CorrectedText      string
	SkillName          string
	SkillID            string
	QueryType          string
	Timestamp          time.Time
}

// CorrectionStats aggregates correction history per skill (supplemental
// dashboard data from correction_learner.py, beyond what spec.md requires).
type CorrectionStats struct {
	SkillID          string
	SkillName        string
	TimesCorrected   int
	TimesEdited      int
	TimesRegenerated int
	TimesThumbsDown  int
	LastCorrection   time.Time
}

// CompositionLogEntry records that a composed skill's parents were combined
// at a point in time (composition_log table in skill_store.py).
type CompositionLogEntry struct {
	ChildSkillID  string
	ParentSkillID string
	ComposedAt    time.Time
}
