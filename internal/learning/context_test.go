package learning_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaignly/learning-engine/internal/learning"
	"github.com/campaignly/learning-engine/pkg/models"
)

func TestBuildContextPrompt_Defaults(t *testing.T) {
	st := models.NewAgentState("id-1", "org-1", models.AgentContentWriter, testNow)
	lc := learning.BuildLearningContext(st, models.ContextRequest{TaskType: "blog_post"})

	want := "## Content Style Preferences\n" +
		"- Preferred tones: professional, friendly\n" +
		"- Formality level: 6/10\n" +
		"- Sentence length: medium\n" +
		"- Paragraph length: medium\n" +
		"- Emojis: Do not use emojis"
	assert.Equal(t, want, lc.ContextPrompt)
	assert.Nil(t, lc.TaskLearnings)
	assert.Empty(t, lc.RelevantPatterns)
	assert.Empty(t, lc.AntiPatterns)
}

func fullState() *models.AgentState {
	st := models.NewAgentState("id-1", "org-1", models.AgentEmailMarketer, testNow)
	st.LearnedPreferences.ContentStyle = models.ContentStyle{
		PreferredTone:  []string{"warm"},
		AvoidTones:     []string{"pushy"},
		UseEmojis:      true,
		FormalityLevel: 3,
	}
	st.LearnedPreferences.Messaging = models.Messaging{
		EffectiveHooks: []string{"h1", "h2", "h3", "h4", "h5", "h6"},
		PreferredCTAs:  []string{"Start free trial"},
	}
	st.LearnedPreferences.ProductPreferences["prod-1"] = models.ProductPreference{
		EffectiveValueProps: []string{"v1", "v2", "v3", "v4"},
	}
	st.LearnedPreferences.AudiencePatterns["smb"] = models.AudiencePattern{
		EffectiveAngles: []string{"save time"},
	}
	st.Memory.SuccessPatterns = []models.SuccessPattern{
		{Pattern: "global", Description: "Lead with a question"},
		{Pattern: "email", Description: "Short subject lines", TaskTypes: []string{"email_single"}},
		{Pattern: "blog", Description: "Long form", TaskTypes: []string{"blog_post"}},
	}
	st.Memory.AntiPatterns = []models.AntiPattern{
		{Pattern: "salesy", Description: "Content received low rating (1/5)", Reason: "Too salesy", TaskTypes: []string{"email_single"}},
		{Pattern: "blog", Description: "Walls of text", Reason: "Hard to read", TaskTypes: []string{"blog_post"}},
	}
	st.Memory.TaskLearnings["email_single"] = &models.TaskTypeLearning{
		TaskType:                 "email_single",
		TotalTasks:               8,
		SuccessfulTasks:          6,
		BestPerformingApproaches: []string{"personalized opener", "single CTA"},
		CommonIssues:             []string{},
	}
	return st
}

func TestBuildContextPrompt_AllSections(t *testing.T) {
	lc := learning.BuildLearningContext(fullState(), models.ContextRequest{
		TaskType:   "email_single",
		ProductID:  "prod-1",
		AudienceID: "smb",
	})

	want := strings.Join([]string{
		"## Content Style Preferences\n" +
			"- Preferred tones: warm\n" +
			"- Tones to avoid: pushy\n" +
			"- Formality level: 3/10\n" +
			"- Emojis: Use emojis where they fit",
		"## Effective Hooks\n- h1\n- h2\n- h3\n- h4\n- h5",
		"## Preferred Calls to Action\n- Start free trial",
		"## Successful Patterns to Follow\n- Lead with a question\n- Short subject lines",
		"## Patterns to Avoid\n- Content received low rating (1/5) (Reason: Too salesy)",
		"## Effective Value Propositions for This Product\n- v1\n- v2\n- v3",
		"## Angles That Resonate With This Audience\n- save time",
		"## Learnings for email_single Tasks\n" +
			"- Tasks completed: 8\n" +
			"- Success rate: 75%\n" +
			"- Best approaches: personalized opener, single CTA",
	}, "\n\n")
	assert.Equal(t, want, lc.ContextPrompt)

	assert.Len(t, lc.RelevantPatterns, 2)
	assert.Len(t, lc.AntiPatterns, 1)
	require.NotNil(t, lc.TaskLearnings)
	assert.Equal(t, 8, lc.TaskLearnings.TotalTasks)
}

func TestBuildContextPrompt_UnknownProductAndAudience(t *testing.T) {
	lc := learning.BuildLearningContext(fullState(), models.ContextRequest{
		TaskType:   "landing_page",
		ProductID:  "prod-unknown",
		AudienceID: "enterprise",
	})

	assert.NotContains(t, lc.ContextPrompt, "Value Propositions")
	assert.NotContains(t, lc.ContextPrompt, "Angles That Resonate")
	assert.NotContains(t, lc.ContextPrompt, "Learnings for")
	assert.NotContains(t, lc.ContextPrompt, "Patterns to Avoid")
	assert.Contains(t, lc.ContextPrompt, "## Successful Patterns to Follow\n- Lead with a question")
}

func TestBuildContextPrompt_Deterministic(t *testing.T) {
	req := models.ContextRequest{TaskType: "email_single", ProductID: "prod-1", AudienceID: "smb"}
	first := learning.BuildLearningContext(fullState(), req).ContextPrompt
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, learning.BuildLearningContext(fullState(), req).ContextPrompt)
	}
}

func TestGetLearningContext_RequiresTaskType(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.GetLearningContext(context.Background(), models.ContextRequest{
		OrganizationID: "org-1", AgentType: models.AgentContentWriter,
	})
	var ve *models.ValidationError
	assert.ErrorAs(t, err, &ve)
}
