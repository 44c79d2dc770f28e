package learning

import (
	"context"
	"fmt"
	"strings"

	"github.com/campaignly/learning-engine/pkg/models"
)

const (
	maxPromptHooks       = 5
	maxPromptCTAs        = 5
	maxPromptPatterns    = 5
	maxPromptValueProps  = 3
	maxPromptAudienceAng = 3
)

// BuildLearningContext selects the preferences, patterns and rollup that
// apply to req.TaskType and renders the context prompt.
func BuildLearningContext(state *models.AgentState, req models.ContextRequest) models.LearningContext {
	relevant := []models.SuccessPattern{}
	for _, p := range state.Memory.SuccessPatterns {
		if p.AppliesTo(req.TaskType) {
			relevant = append(relevant, p)
		}
	}
	avoid := []models.AntiPattern{}
	for _, p := range state.Memory.AntiPatterns {
		if p.AppliesTo(req.TaskType) {
			avoid = append(avoid, p)
		}
	}

	var learnings *models.TaskTypeLearning
	if l, ok := state.Memory.TaskLearnings[req.TaskType]; ok && l != nil {
		c := *l
		learnings = &c
	}

	prefs := state.LearnedPreferences.Clone()
	return models.LearningContext{
		Preferences:      prefs,
		RelevantPatterns: relevant,
		AntiPatterns:     avoid,
		TaskLearnings:    learnings,
		ContextPrompt:    BuildContextPrompt(prefs, relevant, avoid, learnings, req),
	}
}

// BuildContextPrompt renders the prompt fragment handed to the content generator.
// Sections appear in a fixed order and only when they have content; the
// style section is always present. Sections are separated by a blank line.
func BuildContextPrompt(
	prefs models.LearnedPreferences,
	relevant []models.SuccessPattern,
	avoid []models.AntiPattern,
	learnings *models.TaskTypeLearning,
	req models.ContextRequest,
) string {
	var sections []string
	add := func(title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		sections = append(sections, "## "+title+"\n"+strings.Join(lines, "\n"))
	}

	add("Content Style Preferences", styleLines(prefs.ContentStyle))
	add("Effective Hooks", bullets(head(prefs.Messaging.EffectiveHooks, maxPromptHooks)))
	add("Preferred Calls to Action", bullets(head(prefs.Messaging.PreferredCTAs, maxPromptCTAs)))

	var follow []string
	for _, p := range head(relevant, maxPromptPatterns) {
		follow = append(follow, "- "+p.Description)
	}
	add("Successful Patterns to Follow", follow)

	var avoidLines []string
	for _, p := range head(avoid, maxPromptPatterns) {
		avoidLines = append(avoidLines, fmt.Sprintf("- %s (Reason: %s)", p.Description, p.Reason))
	}
	add("Patterns to Avoid", avoidLines)

	if req.ProductID != "" {
		if product, ok := prefs.ProductPreferences[req.ProductID]; ok {
			add("Effective Value Propositions for This Product", bullets(head(product.EffectiveValueProps, maxPromptValueProps)))
		}
	}
	if req.AudienceID != "" {
		if audience, ok := prefs.AudiencePatterns[req.AudienceID]; ok {
			add("Angles That Resonate With This Audience", bullets(head(audience.EffectiveAngles, maxPromptAudienceAng)))
		}
	}

	if learnings != nil {
		lines := []string{
			fmt.Sprintf("- Tasks completed: %d", learnings.TotalTasks),
			fmt.Sprintf("- Success rate: %.0f%%", learnings.SuccessRate()*100),
		}
		if len(learnings.BestPerformingApproaches) > 0 {
			lines = append(lines, "- Best approaches: "+strings.Join(learnings.BestPerformingApproaches, ", "))
		}
		if len(learnings.CommonIssues) > 0 {
			lines = append(lines, "- Common issues: "+strings.Join(learnings.CommonIssues, ", "))
		}
		add(fmt.Sprintf("Learnings for %s Tasks", req.TaskType), lines)
	}

	return strings.Join(sections, "\n\n")
}

func styleLines(s models.ContentStyle) []string {
	var lines []string
	if len(s.PreferredTone) > 0 {
		lines = append(lines, "- Preferred tones: "+strings.Join(s.PreferredTone, ", "))
	}
	if len(s.AvoidTones) > 0 {
		lines = append(lines, "- Tones to avoid: "+strings.Join(s.AvoidTones, ", "))
	}
	lines = append(lines, fmt.Sprintf("- Formality level: %d/10", s.FormalityLevel))
	if s.SentenceLength != "" {
		lines = append(lines, "- Sentence length: "+s.SentenceLength)
	}
	if s.ParagraphLength != "" {
		lines = append(lines, "- Paragraph length: "+s.ParagraphLength)
	}
	if s.UseEmojis {
		lines = append(lines, "- Emojis: Use emojis where they fit")
	} else {
		lines = append(lines, "- Emojis: Do not use emojis")
	}
	return lines
}

func bullets(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, "- "+it)
	}
	return out
}

func head[T any](list []T, n int) []T {
	if len(list) > n {
		return list[:n]
	}
	return list
}

// GetLearningContext loads (or creates) the agent's state and builds the
// generation-time context for req.TaskType.
func (e *Engine) GetLearningContext(ctx context.Context, req models.ContextRequest) (lc *models.LearningContext, err error) {
	const op = "get_learning_context"
	ctx, end := e.startOp(ctx, op, req.OrganizationID, req.AgentType)
	defer func() { end(err) }()

	if err := models.ValidateKey(req.OrganizationID, req.AgentType); err != nil {
		return nil, err
	}
	if req.TaskType == "" {
		return nil, &models.ValidationError{Field: "task_type", Reason: "is required"}
	}

	st, err := e.getOrCreate(ctx, req.OrganizationID, req.AgentType)
	if err != nil {
		return nil, err
	}
	out := BuildLearningContext(st, req)
	return &out, nil
}
