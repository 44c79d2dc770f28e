package learning

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campaignly/learning-engine/pkg/models"
)

const (
	// patternWindow is how many recent entries of a task type are mined.
	patternWindow = 10
	// highPerformerFactor is how far above average an entry must be.
	highPerformerFactor = 1.2
	// minHighPerformers is the cluster size that yields a pattern.
	minHighPerformers = 3
	// highPerformerBoost is the boost recorded on mined patterns.
	highPerformerBoost = 15
)

// PatternSet holds patterns produced by one detection pass.
type PatternSet struct {
	Success []models.SuccessPattern
	Anti    []models.AntiPattern
}

// IdentifyPatterns looks at the most recent entries of taskType and emits a
// success pattern when enough of them beat the average open or click rate.
// Performance data alone never yields anti patterns.
func IdentifyPatterns(history []models.PerformanceEntry, taskType string, now time.Time) PatternSet {
	set := PatternSet{Success: []models.SuccessPattern{}, Anti: []models.AntiPattern{}}

	recent := entriesOfType(history, taskType)
	if len(recent) > patternWindow {
		recent = recent[len(recent)-patternWindow:]
	}
	if len(recent) == 0 {
		return set
	}

	avgOpen, hasOpen := meanOf(recent, openRate)
	avgClick, hasClick := meanOf(recent, clickRate)

	var high int
	for _, e := range recent {
		m := e.Metrics
		switch {
		case hasOpen && m.OpenRate != nil && *m.OpenRate > highPerformerFactor*avgOpen:
			high++
		case hasClick && m.ClickRate != nil && *m.ClickRate > highPerformerFactor*avgClick:
			high++
		}
	}
	if high < minHighPerformers {
		return set
	}

	set.Success = append(set.Success, models.SuccessPattern{
		ID:               uuid.NewString(),
		Pattern:          fmt.Sprintf("High performing %s content", taskType),
		Description:      fmt.Sprintf("%d of the last %d %s tasks beat the average open or click rate by more than 20%%", high, len(recent), taskType),
		TaskTypes:        []string{taskType},
		PerformanceBoost: highPerformerBoost,
		UsageCount:       high,
		LastUsed:         now,
	})
	return set
}

// MergeSuccessPatterns folds incoming into existing by exact pattern text.
// A match is replaced in place and keeps its ID; anything else is appended.
// The result holds at most the 20 most recent patterns.
func MergeSuccessPatterns(existing, incoming []models.SuccessPattern) []models.SuccessPattern {
	out := existing
	for _, p := range incoming {
		if i := indexOf(out, func(q models.SuccessPattern) bool { return q.Pattern == p.Pattern }); i >= 0 {
			p.ID = out[i].ID
			out[i] = p
			continue
		}
		out = append(out, p)
	}
	return successPatterns.Trim(out)
}

// MergeAntiPatterns is MergeSuccessPatterns for anti patterns.
func MergeAntiPatterns(existing, incoming []models.AntiPattern) []models.AntiPattern {
	out := existing
	for _, p := range incoming {
		if i := indexOf(out, func(q models.AntiPattern) bool { return q.Pattern == p.Pattern }); i >= 0 {
			p.ID = out[i].ID
			out[i] = p
			continue
		}
		out = append(out, p)
	}
	return antiPatterns.Trim(out)
}

func indexOf[T any](list []T, match func(T) bool) int {
	for i, v := range list {
		if match(v) {
			return i
		}
	}
	return -1
}

// ── Metric accessors ────────────────────────────────────────

type metricFunc func(models.PerformanceMetrics) *float64

func openRate(m models.PerformanceMetrics) *float64 { return m.OpenRate }
func clickRate(m models.PerformanceMetrics) *float64 { return m.ClickRate }

// samplesOf returns the present values of metric across entries.
func samplesOf(entries []models.PerformanceEntry, metric metricFunc) []float64 {
	var out []float64
	for _, e := range entries {
		if v := metric(e.Metrics); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

// meanOf averages metric over the entries that have it.
func meanOf(entries []models.PerformanceEntry, metric metricFunc) (float64, bool) {
	return mean(samplesOf(entries, metric))
}

func mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}
