package models

import (
	"fmt"
	"time"
)

// ── Bounds ───────────────────────────────────────────────────

const (
	// MaxPerformanceHistory is the number of performance entries kept per agent.
	MaxPerformanceHistory = 100
	// MaxRecentInteractions is the number of interaction summaries kept in memory.
	MaxRecentInteractions = 50
	// MaxPatterns caps both success and anti pattern lists.
	MaxPatterns = 20
)

// ── Agent Types ──────────────────────────────────────────────

// AgentType is a named content-generation role tracked per organization.
type AgentType string

const (
	AgentContentWriter AgentType = "content_writer"
	AgentEmailMarketer AgentType = "email_marketer"
	AgentSocialManager AgentType = "social_manager"
	AgentSEOOptimizer  AgentType = "seo_optimizer"
	AgentAdManager     AgentType = "ad_manager"
	AgentAnalyst       AgentType = "analyst"
)

// AllAgentTypes returns every known agent type in enum order.
func AllAgentTypes() []AgentType {
	return []AgentType{
		AgentContentWriter,
		AgentEmailMarketer,
		AgentSocialManager,
		AgentSEOOptimizer,
		AgentAdManager,
		AgentAnalyst,
	}
}

// Valid reports whether t is one of the known agent types.
func (t AgentType) Valid() bool {
	for _, known := range AllAgentTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ParseAgentType converts a raw string into an AgentType.
func ParseAgentType(s string) (AgentType, error) {
	t := AgentType(s)
	if !t.Valid() {
		return "", &ValidationError{Field: "agent_type", Reason: fmt.Sprintf("unknown agent type %q", s)}
	}
	return t, nil
}

// ── Agent State ──────────────────────────────────────────────

// AgentState is the single learning record for an (organization, agent type) pair.
type AgentState struct {
	ID                 string             `json:"id"`
	OrganizationID     string             `json:"organization_id"`
	AgentType          AgentType          `json:"agent_type"`
	Memory             AgentMemory        `json:"memory"`
	LearnedPreferences LearnedPreferences `json:"learned_preferences"`
	PerformanceHistory []PerformanceEntry `json:"performance_history"`
	Version            int64              `json:"version"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// NewAgentState returns a state with empty memory and default preferences.
func NewAgentState(id, orgID string, agentType AgentType, now time.Time) *AgentState {
	return &AgentState{
		ID:                 id,
		OrganizationID:     orgID,
		AgentType:          agentType,
		Memory:             NewAgentMemory(),
		LearnedPreferences: DefaultPreferences(),
		PerformanceHistory: []PerformanceEntry{},
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// PerformanceEntry is one recorded outcome for a completed task. Immutable once appended.
type PerformanceEntry struct {
	Timestamp time.Time          `json:"timestamp"`
	TaskID    string             `json:"task_id"`
	TaskType  string             `json:"task_type"`
	Metrics   PerformanceMetrics `json:"metrics"`
}

// PerformanceMetrics is a sparse set of observed rates. A nil field was not observed.
type PerformanceMetrics struct {
	OpenRate       *float64 `json:"open_rate,omitempty"`
	ClickRate      *float64 `json:"click_rate,omitempty"`
	ConversionRate *float64 `json:"conversion_rate,omitempty"`
	ApprovalRate   *float64 `json:"approval_rate,omitempty"`
	RevisionCount  *int     `json:"revision_count,omitempty"`
}

// Rate returns a pointer to v, for building sparse metrics.
func Rate(v float64) *float64 { return &v }

// Count returns a pointer to n.
func Count(n int) *int { return &n }

// Validate rejects rates outside [0,1] and negative revision counts.
func (m PerformanceMetrics) Validate() error {
	rates := []struct {
		name string
		v    *float64
	}{
		{"open_rate", m.OpenRate},
		{"click_rate", m.ClickRate},
		{"conversion_rate", m.ConversionRate},
		{"approval_rate", m.ApprovalRate},
	}
	for _, r := range rates {
		if r.v != nil && (*r.v < 0 || *r.v > 1) {
			return &ValidationError{Field: "metrics." + r.name, Reason: fmt.Sprintf("%v is outside [0,1]", *r.v)}
		}
	}
	if m.RevisionCount != nil && *m.RevisionCount < 0 {
		return &ValidationError{Field: "metrics.revision_count", Reason: "must be non-negative"}
	}
	return nil
}

// ── Memory ───────────────────────────────────────────────────

// AgentMemory holds everything the engine has learned from past tasks.
type AgentMemory struct {
	OrganizationContext string                       `json:"organization_context,omitempty"`
	TaskLearnings       map[string]*TaskTypeLearning `json:"task_learnings"`
	RecentInteractions  []InteractionSummary         `json:"recent_interactions"`
	SuccessPatterns     []SuccessPattern             `json:"success_patterns"`
	AntiPatterns        []AntiPattern                `json:"anti_patterns"`
}

// NewAgentMemory returns an empty memory with non-nil collections.
func NewAgentMemory() AgentMemory {
	return AgentMemory{
		TaskLearnings:      make(map[string]*TaskTypeLearning),
		RecentInteractions: []InteractionSummary{},
		SuccessPatterns:    []SuccessPattern{},
		AntiPatterns:       []AntiPattern{},
	}
}

// TaskTypeLearning accumulates counters and a score for one task type.
type TaskTypeLearning struct {
	TaskType                 string    `json:"task_type"`
	TotalTasks               int       `json:"total_tasks"`
	SuccessfulTasks          int       `json:"successful_tasks"`
	AveragePerformanceScore  float64   `json:"average_performance_score"`
	BestPerformingApproaches []string  `json:"best_performing_approaches"`
	CommonIssues             []string  `json:"common_issues"`
	LastUpdated              time.Time `json:"last_updated"`
}

// SuccessRate returns successful/total in [0,1], or 0 when no tasks were seen.
func (l *TaskTypeLearning) SuccessRate() float64 {
	if l == nil || l.TotalTasks == 0 {
		return 0
	}
	return float64(l.SuccessfulTasks) / float64(l.TotalTasks)
}

// Outcome classifies a single task result.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePending Outcome = "pending"
)

// InteractionSummary records a task for later feedback attribution.
type InteractionSummary struct {
	Timestamp          time.Time          `json:"timestamp"`
	TaskID             string             `json:"task_id"`
	TaskType           string             `json:"task_type"`
	ContentSummary     string             `json:"content_summary,omitempty"`
	Outcome            Outcome            `json:"outcome"`
	PerformanceMetrics PerformanceMetrics `json:"performance_metrics"`
	UserFeedback       *UserFeedback      `json:"user_feedback,omitempty"`
}

// UserFeedback is the stored copy of feedback attached to an interaction.
type UserFeedback struct {
	Rating       int          `json:"rating"`
	FeedbackText string       `json:"feedback_text,omitempty"`
	Corrections  []Correction `json:"corrections,omitempty"`
	Approved     bool         `json:"approved"`
	ReceivedAt   time.Time    `json:"received_at"`
}

// ── Patterns ─────────────────────────────────────────────────

// SuccessPattern is a mined observation about what worked.
// An empty TaskTypes list applies to every task type.
type SuccessPattern struct {
	ID               string    `json:"id"`
	Pattern          string    `json:"pattern"`
	Description      string    `json:"description"`
	TaskTypes        []string  `json:"task_types"`
	PerformanceBoost float64   `json:"performance_boost"`
	UsageCount       int       `json:"usage_count"`
	LastUsed         time.Time `json:"last_used"`
}

// AppliesTo reports whether the pattern is global or scoped to taskType.
func (p SuccessPattern) AppliesTo(taskType string) bool {
	return appliesTo(p.TaskTypes, taskType)
}

// AntiPattern is a mined observation about what failed.
type AntiPattern struct {
	ID           string    `json:"id"`
	Pattern      string    `json:"pattern"`
	Description  string    `json:"description"`
	Reason       string    `json:"reason"`
	TaskTypes    []string  `json:"task_types"`
	Occurrences  int       `json:"occurrences"`
	LastOccurred time.Time `json:"last_occurred"`
}

// AppliesTo reports whether the anti pattern is global or scoped to taskType.
func (p AntiPattern) AppliesTo(taskType string) bool {
	return appliesTo(p.TaskTypes, taskType)
}

func appliesTo(taskTypes []string, taskType string) bool {
	if len(taskTypes) == 0 {
		return true
	}
	for _, t := range taskTypes {
		if t == taskType {
			return true
		}
	}
	return false
}

// ── Preferences ──────────────────────────────────────────────

// LearnedPreferences captures style and messaging choices for an agent.
type LearnedPreferences struct {
	ContentStyle       ContentStyle                 `json:"content_style"`
	Messaging          Messaging                    `json:"messaging"`
	AudiencePatterns   map[string]AudiencePattern   `json:"audience_patterns"`
	ChannelPreferences map[string]ChannelPreference `json:"channel_preferences"`
	ProductPreferences map[string]ProductPreference `json:"product_preferences"`
}

// ContentStyle describes tone and formatting preferences.
type ContentStyle struct {
	PreferredTone   []string `json:"preferred_tone"`
	AvoidTones      []string `json:"avoid_tones"`
	SentenceLength  string   `json:"sentence_length,omitempty"`
	ParagraphLength string   `json:"paragraph_length,omitempty"`
	UseEmojis       bool     `json:"use_emojis"`
	FormalityLevel  int      `json:"formality_level"`
}

// Messaging holds copy elements that have performed well.
type Messaging struct {
	PreferredCTAs             []string `json:"preferred_ctas"`
	EffectiveHooks            []string `json:"effective_hooks"`
	TopPerformingSubjectLines []string `json:"top_performing_subject_lines"`
	PreferredHeadlineFormulas []string `json:"preferred_headline_formulas"`
}

// AudiencePattern records what resonates with one audience segment.
type AudiencePattern struct {
	EffectiveAngles []string `json:"effective_angles"`
	PainPoints      []string `json:"pain_points,omitempty"`
	PreferredTone   string   `json:"preferred_tone,omitempty"`
}

// ChannelPreference records delivery preferences for one channel.
type ChannelPreference struct {
	BestSendTimes []string `json:"best_send_times,omitempty"`
	MaxLength     int      `json:"max_length,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

// ProductPreference records messaging that works for one product.
type ProductPreference struct {
	EffectiveValueProps []string `json:"effective_value_props"`
	KeyFeatures         []string `json:"key_features,omitempty"`
}

// DefaultPreferences seeds a professional, emoji-free style at formality 6.
func DefaultPreferences() LearnedPreferences {
	return LearnedPreferences{
		ContentStyle: ContentStyle{
			PreferredTone:   []string{"professional", "friendly"},
			AvoidTones:      []string{},
			SentenceLength:  "medium",
			ParagraphLength: "medium",
			UseEmojis:       false,
			FormalityLevel:  6,
		},
		Messaging: Messaging{
			PreferredCTAs:             []string{},
			EffectiveHooks:            []string{},
			TopPerformingSubjectLines: []string{},
			PreferredHeadlineFormulas: []string{},
		},
		AudiencePatterns:   make(map[string]AudiencePattern),
		ChannelPreferences: make(map[string]ChannelPreference),
		ProductPreferences: make(map[string]ProductPreference),
	}
}

// PreferencesPatch carries dashboard edits. Nil fields are left unchanged;
// map entries are upserted by key.
type PreferencesPatch struct {
	OrganizationContext *string                      `json:"organization_context,omitempty"`
	ContentStyle        *ContentStyle                `json:"content_style,omitempty"`
	Messaging           *Messaging                   `json:"messaging,omitempty"`
	AudiencePatterns    map[string]AudiencePattern   `json:"audience_patterns,omitempty"`
	ChannelPreferences  map[string]ChannelPreference `json:"channel_preferences,omitempty"`
	ProductPreferences  map[string]ProductPreference `json:"product_preferences,omitempty"`
}

// Validate checks the formality range of a replacement content style.
func (p PreferencesPatch) Validate() error {
	if p.ContentStyle != nil && (p.ContentStyle.FormalityLevel < 0 || p.ContentStyle.FormalityLevel > 10) {
		return &ValidationError{Field: "content_style.formality_level", Reason: "must be within [0,10]"}
	}
	return nil
}

// ── Feedback ─────────────────────────────────────────────────

// Feedback is an explicit user rating of a generated task.
type Feedback struct {
	TaskID       string       `json:"task_id"`
	Rating       int          `json:"rating"`
	FeedbackText string       `json:"feedback_text,omitempty"`
	Corrections  []Correction `json:"corrections,omitempty"`
	Approved     bool         `json:"approved"`
}

// Correction is a single field-level edit made by a reviewer.
type Correction struct {
	Field     string `json:"field"`
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
}

// Validate rejects ratings outside [1,5].
func (f Feedback) Validate() error {
	if f.Rating < 1 || f.Rating > 5 {
		return &ValidationError{Field: "rating", Reason: fmt.Sprintf("%d is outside [1,5]", f.Rating)}
	}
	return nil
}

// ── Derived views ────────────────────────────────────────────

// InsightType classifies a LearningInsight.
type InsightType string

const (
	InsightImprovement InsightType = "improvement"
	InsightWarning     InsightType = "warning"
	InsightPattern     InsightType = "pattern"
)

// LearningInsight is a derived statement about a trend or cluster. Never persisted.
type LearningInsight struct {
	ID              string      `json:"id"`
	Type            InsightType `json:"type"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Evidence        []Evidence  `json:"evidence"`
	Actionable      bool        `json:"actionable"`
	SuggestedAction string      `json:"suggested_action,omitempty"`
	Confidence      float64     `json:"confidence"`
	GeneratedAt     time.Time   `json:"generated_at"`
}

// Evidence backs an insight with before/after figures.
type Evidence struct {
	Metric      string  `json:"metric"`
	Before      float64 `json:"before"`
	After       float64 `json:"after"`
	Improvement float64 `json:"improvement"`
}

// Health is the qualitative classification of an agent's aggregate results.
type Health string

const (
	HealthExcellent      Health = "excellent"
	HealthGood           Health = "good"
	HealthNeedsAttention Health = "needs_attention"
	HealthPoor           Health = "poor"
)

// TrendDirection is the direction of a metric between two windows.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
)

// Trend is a percent change of one metric between the last two windows.
type Trend struct {
	Metric    string         `json:"metric"`
	Direction TrendDirection `json:"direction"`
	Change    float64        `json:"change"`
}

// AgentAnalysis is the dashboard view of an agent. Never persisted.
type AgentAnalysis struct {
	OverallHealth           Health            `json:"overall_health"`
	TotalTasksProcessed     int               `json:"total_tasks_processed"`
	SuccessRate             float64           `json:"success_rate"`
	AveragePerformanceScore float64           `json:"average_performance_score"`
	TopPerformingTaskTypes  []string          `json:"top_performing_task_types"`
	AreasForImprovement     []string          `json:"areas_for_improvement"`
	RecentInsights          []LearningInsight `json:"recent_insights"`
	Trends                  []Trend           `json:"trends"`
}

// LearningContext is handed to the content generator before a task runs.
type LearningContext struct {
	Preferences      LearnedPreferences `json:"preferences"`
	RelevantPatterns []SuccessPattern   `json:"relevant_patterns"`
	AntiPatterns     []AntiPattern      `json:"anti_patterns"`
	TaskLearnings    *TaskTypeLearning  `json:"task_learnings"`
	ContextPrompt    string             `json:"context_prompt"`
}

// ── Errors ───────────────────────────────────────────────────

// ValidationError is returned when input or stored data has the wrong shape.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}
