package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarizeCountsLists(t *testing.T) {
	got := Summarize(map[string]any{
		"contacts": []any{1, 2, 3},
		"status":   "success",
	})
	assert.Equal(t, map[string]any{"contacts_found": 3}, got)
}

func TestSummarizeFallsBackToMessage(t *testing.T) {
	got := Summarize(map[string]any{"message": "Cadence created", "status": "success"})
	assert.Equal(t, map[string]any{"details": "Cadence created"}, got)

	got = Summarize(map[string]any{"status": "success"})
	assert.Equal(t, map[string]any{"details": "Execution completed."}, got)

	got = Summarize(nil)
	assert.Contains(t, got, "details")
}

func TestSuggestActionsFollowsWorkflowOrderAndDedupes(t *testing.T) {
	got := SuggestActions([]string{"create_cadence", "search_leads", "add_contacts_to_cadence"})
	assert.Equal(t, []string{
		"Add these contacts to a new list",
		"Start an outreach campaign for these contacts",
		"Generate personalized emails for these contacts",
		"Create a cadence for follow-up outreach",
		"Add more contacts to this cadence",
		"Monitor cadence performance",
		"Create similar cadences for other segments",
		"Review and activate the cadence",
		"Monitor outreach performance",
	}, got)
}

func TestSuggestActionsEmptyForNoTools(t *testing.T) {
	assert.Empty(t, SuggestActions(nil))
}
