package convo

import (
	"fmt"
	"strings"
)

type (
	// WorkflowContext summarizes what previous tool executions produced so
	// later planning and argument synthesis can reference real data instead
	// of guessing.
	WorkflowContext struct {
		ContactIDs          []string
		CompanyIDs          []string
		ContactCompanyNames []string
		CompanyNames        []string
		Industries          []string
		Locations           []string
		EmailContent        *EmailContent
		CadenceID           string
		CadenceName         string
		RecipientsIDs       []string
		OriginalRequest     string
		ToolCounts          map[string]int
	}

	// EmailContent is the generated email carried through the workflow.
	EmailContent struct {
		Body    string
		Subject string
	}
)

// Limits on how much history the context builder inspects. Item extraction
// stops after maxItemsPerTool entries per tool output and after
// maxToolOutputs outputs overall.
const (
	maxItemsPerTool = 101
	maxToolOutputs  = 10
)

// BuildContext scans the history newest-first and extracts identifiers and
// artifacts from prior tool results. The original request is the first user
// message with substantial content that is not a plan command.
func BuildContext(messages []Message, outputs []ToolOutput) *WorkflowContext {
	wc := &WorkflowContext{ToolCounts: make(map[string]int)}

	for _, m := range messages {
		if m.Role == RoleUser && len(m.Content) > 10 && !IsResumeCommand(m.Content) {
			wc.OriginalRequest = m.Content
			break
		}
	}

	seen := 0
	for i := len(outputs) - 1; i >= 0 && seen < maxToolOutputs; i-- {
		o := outputs[i]
		wc.ToolCounts[o.ToolName]++
		seen++
		result, ok := o.Result.(map[string]any)
		if !ok {
			continue
		}
		switch o.ToolName {
		case "search_leads":
			wc.extractContacts(result)
		case "search_companies":
			wc.extractCompanies(result)
		case "generate_email":
			if wc.EmailContent == nil {
				wc.EmailContent = extractEmail(result)
			}
		case "create_cadence":
			if wc.CadenceID == "" {
				wc.CadenceID, _ = result["cadence_id"].(string)
				wc.CadenceName, _ = result["cadence_name"].(string)
			}
		case "add_contacts_to_cadence":
			if len(wc.RecipientsIDs) == 0 {
				wc.RecipientsIDs = stringSlice(result["recipients_ids"])
			}
		}
	}
	return wc
}

// Summary renders the context as the markdown block injected into planning
// prompts. Empty sections are omitted.
func (wc *WorkflowContext) Summary() string {
	var b strings.Builder
	b.WriteString("## COMPLETED WORKFLOW SUMMARY\n")
	if wc.OriginalRequest != "" {
		fmt.Fprintf(&b, "Original request: %s\n", wc.OriginalRequest)
	}
	for tool, n := range wc.ToolCounts {
		fmt.Fprintf(&b, "- %s executed %d time(s)\n", tool, n)
	}

	if len(wc.ContactIDs) > 0 || len(wc.CompanyIDs) > 0 {
		b.WriteString("\n## AVAILABLE DATA FROM PREVIOUS STEPS\n")
		if len(wc.ContactIDs) > 0 {
			fmt.Fprintf(&b, "- contact_ids: %d available\n", len(wc.ContactIDs))
		}
		if len(wc.CompanyIDs) > 0 {
			fmt.Fprintf(&b, "- company_ids: %d available\n", len(wc.CompanyIDs))
		}
		if len(wc.CompanyNames) > 0 {
			fmt.Fprintf(&b, "- company_names: %s\n", strings.Join(limit(wc.CompanyNames, 10), ", "))
		}
		if len(wc.ContactCompanyNames) > 0 {
			fmt.Fprintf(&b, "- contact_company_names: %s\n", strings.Join(limit(wc.ContactCompanyNames, 10), ", "))
		}
		if len(wc.Industries) > 0 {
			fmt.Fprintf(&b, "- industries: %s\n", strings.Join(limit(wc.Industries, 10), ", "))
		}
		if len(wc.Locations) > 0 {
			fmt.Fprintf(&b, "- locations: %s\n", strings.Join(limit(wc.Locations, 10), ", "))
		}
	}

	if wc.EmailContent != nil || wc.CadenceID != "" || len(wc.RecipientsIDs) > 0 {
		b.WriteString("\n## WORKFLOW ARTIFACTS\n")
		if wc.EmailContent != nil {
			fmt.Fprintf(&b, "- email subject: %s\n", wc.EmailContent.Subject)
		}
		if wc.CadenceID != "" {
			fmt.Fprintf(&b, "- cadence: %s (%s)\n", wc.CadenceName, wc.CadenceID)
		}
		if len(wc.RecipientsIDs) > 0 {
			fmt.Fprintf(&b, "- recipients already added: %d\n", len(wc.RecipientsIDs))
		}
	}
	return b.String()
}

func (wc *WorkflowContext) extractContacts(result map[string]any) {
	contacts, _ := result["contacts"].([]any)
	for i, c := range contacts {
		if i >= maxItemsPerTool {
			break
		}
		m, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if id := asString(m["id"]); id != "" {
			wc.ContactIDs = appendUnique(wc.ContactIDs, id)
		}
		if name := asString(m["company_name"]); name != "" && name != "N/A" {
			wc.ContactCompanyNames = appendUnique(wc.ContactCompanyNames, name)
		}
		if ind := asString(m["industry"]); ind != "" && ind != "N/A" {
			wc.Industries = appendUnique(wc.Industries, ind)
		}
		if loc := asString(m["location"]); loc != "" {
			wc.Locations = appendUnique(wc.Locations, loc)
		}
	}
	companies, _ := result["companies"].([]any)
	for i, c := range companies {
		if i >= maxItemsPerTool {
			break
		}
		if m, ok := c.(map[string]any); ok {
			if id := asString(m["id"]); id != "" {
				wc.CompanyIDs = appendUnique(wc.CompanyIDs, id)
			}
		}
	}
}

func (wc *WorkflowContext) extractCompanies(result map[string]any) {
	companies, _ := result["companies"].([]any)
	for i, c := range companies {
		if i >= maxItemsPerTool {
			break
		}
		m, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if id := asString(m["id"]); id != "" {
			wc.CompanyIDs = appendUnique(wc.CompanyIDs, id)
		}
		if name := asString(m["name"]); name != "" && name != "N/A" {
			wc.CompanyNames = appendUnique(wc.CompanyNames, name)
		}
		if ind := asString(m["industry"]); ind != "" && ind != "N/A" {
			wc.Industries = appendUnique(wc.Industries, ind)
		}
		if loc := asString(m["location"]); loc != "" {
			wc.Locations = appendUnique(wc.Locations, loc)
		}
	}
}

func extractEmail(result map[string]any) *EmailContent {
	if ec, ok := result["email_content"].(map[string]any); ok {
		result = ec
	}
	body := asString(result["body"])
	subject := asString(result["subject"])
	if body == "" && subject == "" {
		return nil
	}
	return &EmailContent{Body: body, Subject: subject}
}

func appendUnique(s []string, v string) []string {
	for _, e := range s {
		if e == v {
			return s
		}
	}
	return append(s, v)
}

func limit(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return fmt.Sprintf("%.0f", s)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str := asString(e); str != "" {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}
