package models

import (
	"fmt"
	"maps"
	"slices"
)

// Validate checks the invariants every stored AgentState must hold.
// Stores call it on both read and write.
func (s *AgentState) Validate() error {
	if s == nil {
		return &ValidationError{Field: "state", Reason: "is nil"}
	}
	if s.OrganizationID == "" {
		return &ValidationError{Field: "organization_id", Reason: "is required"}
	}
	if !s.AgentType.Valid() {
		return &ValidationError{Field: "agent_type", Reason: fmt.Sprintf("unknown agent type %q", s.AgentType)}
	}
	if n := len(s.PerformanceHistory); n > MaxPerformanceHistory {
		return &ValidationError{Field: "performance_history", Reason: fmt.Sprintf("%d entries exceeds %d", n, MaxPerformanceHistory)}
	}
	if n := len(s.Memory.RecentInteractions); n > MaxRecentInteractions {
		return &ValidationError{Field: "memory.recent_interactions", Reason: fmt.Sprintf("%d entries exceeds %d", n, MaxRecentInteractions)}
	}
	if n := len(s.Memory.SuccessPatterns); n > MaxPatterns {
		return &ValidationError{Field: "memory.success_patterns", Reason: fmt.Sprintf("%d entries exceeds %d", n, MaxPatterns)}
	}
	if n := len(s.Memory.AntiPatterns); n > MaxPatterns {
		return &ValidationError{Field: "memory.anti_patterns", Reason: fmt.Sprintf("%d entries exceeds %d", n, MaxPatterns)}
	}
	for taskType, l := range s.Memory.TaskLearnings {
		if l == nil {
			return &ValidationError{Field: "memory.task_learnings." + taskType, Reason: "is null"}
		}
		if l.SuccessfulTasks < 0 || l.TotalTasks < l.SuccessfulTasks {
			return &ValidationError{
				Field:  "memory.task_learnings." + taskType,
				Reason: fmt.Sprintf("counters out of order (total=%d successful=%d)", l.TotalTasks, l.SuccessfulTasks),
			}
		}
	}
	if f := s.LearnedPreferences.ContentStyle.FormalityLevel; f < 0 || f > 10 {
		return &ValidationError{Field: "learned_preferences.content_style.formality_level", Reason: fmt.Sprintf("%d is outside [0,10]", f)}
	}
	return nil
}

// Normalize replaces nil collections left by older or partial records
// so callers never have to nil-check before appending.
func (s *AgentState) Normalize() {
	if s.Memory.TaskLearnings == nil {
		s.Memory.TaskLearnings = make(map[string]*TaskTypeLearning)
	}
	if s.Memory.RecentInteractions == nil {
		s.Memory.RecentInteractions = []InteractionSummary{}
	}
	if s.Memory.SuccessPatterns == nil {
		s.Memory.SuccessPatterns = []SuccessPattern{}
	}
	if s.Memory.AntiPatterns == nil {
		s.Memory.AntiPatterns = []AntiPattern{}
	}
	if s.PerformanceHistory == nil {
		s.PerformanceHistory = []PerformanceEntry{}
	}
	p := &s.LearnedPreferences
	if p.AudiencePatterns == nil {
		p.AudiencePatterns = make(map[string]AudiencePattern)
	}
	if p.ChannelPreferences == nil {
		p.ChannelPreferences = make(map[string]ChannelPreference)
	}
	if p.ProductPreferences == nil {
		p.ProductPreferences = make(map[string]ProductPreference)
	}
}

// Clone returns a deep copy of the state.
func (s *AgentState) Clone() *AgentState {
	if s == nil {
		return nil
	}
	c := *s
	c.Memory = s.Memory.Clone()
	c.LearnedPreferences = s.LearnedPreferences.Clone()
	c.PerformanceHistory = make([]PerformanceEntry, len(s.PerformanceHistory))
	for i, e := range s.PerformanceHistory {
		c.PerformanceHistory[i] = e.Clone()
	}
	return &c
}

// Clone returns a deep copy of the entry.
func (e PerformanceEntry) Clone() PerformanceEntry {
	e.Metrics = e.Metrics.Clone()
	return e
}

// Clone returns a copy whose pointers do not alias m.
func (m PerformanceMetrics) Clone() PerformanceMetrics {
	return PerformanceMetrics{
		OpenRate:       clonePtr(m.OpenRate),
		ClickRate:      clonePtr(m.ClickRate),
		ConversionRate: clonePtr(m.ConversionRate),
		ApprovalRate:   clonePtr(m.ApprovalRate),
		RevisionCount:  clonePtr(m.RevisionCount),
	}
}

// Clone returns a deep copy of the memory.
func (m AgentMemory) Clone() AgentMemory {
	c := AgentMemory{
		OrganizationContext: m.OrganizationContext,
		TaskLearnings:       make(map[string]*TaskTypeLearning, len(m.TaskLearnings)),
		RecentInteractions:  make([]InteractionSummary, len(m.RecentInteractions)),
		SuccessPatterns:     make([]SuccessPattern, len(m.SuccessPatterns)),
		AntiPatterns:        make([]AntiPattern, len(m.AntiPatterns)),
	}
	for k, l := range m.TaskLearnings {
		if l == nil {
			continue
		}
		lc := *l
		lc.BestPerformingApproaches = slices.Clone(l.BestPerformingApproaches)
		lc.CommonIssues = slices.Clone(l.CommonIssues)
		c.TaskLearnings[k] = &lc
	}
	for i, in := range m.RecentInteractions {
		in.PerformanceMetrics = in.PerformanceMetrics.Clone()
		if in.UserFeedback != nil {
			fb := *in.UserFeedback
			fb.Corrections = slices.Clone(fb.Corrections)
			in.UserFeedback = &fb
		}
		c.RecentInteractions[i] = in
	}
	for i, p := range m.SuccessPatterns {
		p.TaskTypes = slices.Clone(p.TaskTypes)
		c.SuccessPatterns[i] = p
	}
	for i, p := range m.AntiPatterns {
		p.TaskTypes = slices.Clone(p.TaskTypes)
		c.AntiPatterns[i] = p
	}
	return c
}

// Clone returns a deep copy of the preferences.
func (p LearnedPreferences) Clone() LearnedPreferences {
	c := p
	c.ContentStyle.PreferredTone = slices.Clone(p.ContentStyle.PreferredTone)
	c.ContentStyle.AvoidTones = slices.Clone(p.ContentStyle.AvoidTones)
	c.Messaging = Messaging{
		PreferredCTAs:             slices.Clone(p.Messaging.PreferredCTAs),
		EffectiveHooks:            slices.Clone(p.Messaging.EffectiveHooks),
		TopPerformingSubjectLines: slices.Clone(p.Messaging.TopPerformingSubjectLines),
		PreferredHeadlineFormulas: slices.Clone(p.Messaging.PreferredHeadlineFormulas),
	}
	c.AudiencePatterns = make(map[string]AudiencePattern, len(p.AudiencePatterns))
	for k, v := range p.AudiencePatterns {
		v.EffectiveAngles = slices.Clone(v.EffectiveAngles)
		v.PainPoints = slices.Clone(v.PainPoints)
		c.AudiencePatterns[k] = v
	}
	c.ChannelPreferences = make(map[string]ChannelPreference, len(p.ChannelPreferences))
	for k, v := range p.ChannelPreferences {
		v.BestSendTimes = slices.Clone(v.BestSendTimes)
		c.ChannelPreferences[k] = v
	}
	c.ProductPreferences = maps.Clone(p.ProductPreferences)
	if c.ProductPreferences == nil {
		c.ProductPreferences = make(map[string]ProductPreference)
	}
	for k, v := range c.ProductPreferences {
		v.EffectiveValueProps = slices.Clone(v.EffectiveValueProps)
		v.KeyFeatures = slices.Clone(v.KeyFeatures)
		c.ProductPreferences[k] = v
	}
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
