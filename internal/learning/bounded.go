package learning

import "github.com/campaignly/learning-engine/pkg/models"

// BoundedHistory caps an append-only list to its Limit most recent items.
// Oldest items are evicted first.
type BoundedHistory[T any] struct {
	Limit int
}

// Push appends items and trims the result to the limit.
func (b BoundedHistory[T]) Push(list []T, items ...T) []T {
	return b.Trim(append(list, items...))
}

// Trim drops the oldest items until at most Limit remain.
func (b BoundedHistory[T]) Trim(list []T) []T {
	if b.Limit <= 0 || len(list) <= b.Limit {
		return list
	}
	out := make([]T, b.Limit)
	copy(out, list[len(list)-b.Limit:])
	return out
}

var (
	performanceHistory = BoundedHistory[models.PerformanceEntry]{Limit: models.MaxPerformanceHistory}
	recentInteractions = BoundedHistory[models.InteractionSummary]{Limit: models.MaxRecentInteractions}
	successPatterns    = BoundedHistory[models.SuccessPattern]{Limit: models.MaxPatterns}
	antiPatterns       = BoundedHistory[models.AntiPattern]{Limit: models.MaxPatterns}
)
