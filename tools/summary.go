package tools

// Summarize reduces a tool result to counts of its list fields, so that
// progress events and aggregates stay small. Results without lists fall back
// to their message.
func Summarize(result map[string]any) map[string]any {
	if result == nil {
		return map[string]any{"details": "Result is not a document."}
	}
	summary := map[string]any{}
	for key, value := range result {
		if list, ok := value.([]any); ok {
			summary[key+"_found"] = len(list)
		}
	}
	if len(summary) == 0 {
		if msg, ok := result["message"].(string); ok {
			summary["details"] = msg
		} else {
			summary["details"] = "Execution completed."
		}
	}
	return summary
}

var followUps = map[string][]string{
	"search_leads": {
		"Add these contacts to a new list",
		"Start an outreach campaign for these contacts",
		"Generate personalized emails for these contacts",
		"Create a cadence for follow-up outreach",
	},
	"search_companies": {
		"Find contacts at these companies",
		"Search for decision makers at these companies",
		"Generate company-specific outreach emails",
	},
	"generate_email": {
		"Create a cadence using this email template",
		"Search for more contacts to send this email to",
		"Generate variations of this email",
	},
	"create_cadence": {
		"Add more contacts to this cadence",
		"Monitor cadence performance",
		"Create similar cadences for other segments",
	},
	"add_contacts_to_cadence": {
		"Review and activate the cadence",
		"Add more contacts to this cadence",
		"Monitor outreach performance",
	},
}

// Suggestions follow the workflow order, not map iteration order.
var toolSuggestionOrder = []string{
	"search_leads",
	"search_companies",
	"generate_email",
	"create_cadence",
	"add_contacts_to_cadence",
}

// SuggestActions returns deduplicated follow-up actions for the tools that
// ran.
func SuggestActions(toolNames []string) []string {
	ran := make(map[string]bool, len(toolNames))
	for _, n := range toolNames {
		ran[n] = true
	}
	seen := make(map[string]bool)
	var out []string
	for _, tool := range toolSuggestionOrder {
		if !ran[tool] {
			continue
		}
		for _, s := range followUps[tool] {
			if seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
