package tools

import (
	"strings"

	"github.com/salesflow/agent/convo"
)

// DefaultArgs synthesizes arguments for a tool the model failed to request.
// The goal text and the accumulated workflow context fill in what they can;
// the rest stays empty for result injection to complete at execution time.
func DefaultArgs(tool, goal string, wctx *convo.WorkflowContext) map[string]any {
	switch tool {
	case "create_cadence":
		return map[string]any{
			"name":         campaignName(goal),
			"cadence_type": "constant",
			"white_days":   []any{"Mo", "Tu", "We", "Th", "Fr"},
			"is_active":    false,
		}

	case "add_contacts_to_cadence":
		args := map[string]any{
			"cadence_id":     "auto_filled_by_system",
			"name":           "auto_filled_by_system",
			"recipients_ids": []any{},
		}
		if wctx != nil {
			if len(wctx.ContactIDs) > 0 {
				args["recipients_ids"] = toAnyList(wctx.ContactIDs)
			}
			if wctx.CadenceID != "" {
				args["cadence_id"] = wctx.CadenceID
			}
			if wctx.CadenceName != "" {
				args["name"] = wctx.CadenceName
			}
		}
		return args

	case "generate_email":
		return map[string]any{
			"tone":       "professional",
			"email_type": "outreach",
			"purpose":    "introduce services",
		}

	case "search_companies":
		args := map[string]any{"companyName": []any{}}
		if wctx != nil && len(wctx.ContactCompanyNames) > 0 {
			args["companyName"] = toAnyList(wctx.ContactCompanyNames)
		}
		return args

	case "search_leads":
		args := map[string]any{}
		if wctx != nil {
			if len(wctx.CompanyIDs) > 0 {
				args["companyIds"] = toAnyList(wctx.CompanyIDs)
			} else if len(wctx.CompanyNames) > 0 {
				args["companyName"] = toAnyList(wctx.CompanyNames)
			}
		}
		return args

	default:
		return map[string]any{}
	}
}

func campaignName(goal string) string {
	lower := strings.ToLower(goal)
	switch {
	case strings.Contains(goal, "BFSI") || strings.Contains(lower, "banking"):
		return "BFSI Outreach Campaign"
	case strings.Contains(lower, "tech"):
		return "Technology Outreach Campaign"
	default:
		return "Auto Campaign"
	}
}
