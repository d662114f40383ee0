package tools

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"goa.design/clue/log"
)

// ErrDependencyFailed reports a step whose dependency ended in failure.
type DependencyFailedError struct {
	StepID string
}

func (e *DependencyFailedError) Error() string {
	return fmt.Sprintf("cannot execute: dependency %q failed", e.StepID)
}

// InjectResults merges prior step results into a step's arguments. depIDs
// lists the step's dependencies in plan order; results maps step id to the
// raw tool result. The original args map is not modified.
func InjectResults(ctx context.Context, tool string, args map[string]any, depIDs []string, results map[string]map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}

	for _, depID := range depIDs {
		dep, ok := results[depID]
		if !ok {
			continue
		}
		if status, _ := dep["status"].(string); status == "failed" {
			return nil, &DependencyFailedError{StepID: depID}
		}

		switch {
		case tool == "search_leads":
			if companies, ok := dep["companies"].([]any); ok {
				out["companyIds"] = collectField(companies, "id")
				log.Debugf(ctx, "injected %d company ids into search_leads from %s", len(companies), depID)
			}

		case tool == "search_companies":
			if contacts, ok := dep["contacts"].([]any); ok {
				out["companyName"] = uniqueField(contacts, "company_name")
			}

		case tool == "create_cadence":
			body, _ := dep["body"].(string)
			subject, _ := dep["subject"].(string)
			if body != "" && subject != "" {
				out["template_details"] = map[string]any{"body": body, "subject": subject}
			}

		case tool == "add_contacts_to_cadence":
			if dep["cadence_id"] != nil && dep["cadence_name"] != nil {
				out["cadence_id"] = dep["cadence_id"]
				out["name"] = dep["cadence_name"]
			}
			if contacts, ok := dep["contacts"].([]any); ok {
				out["recipients_ids"] = capList(uniqueField(contacts, "id"), maxRecipients)
			}
		}
	}

	// Recipients may come from a search that is not a declared dependency.
	// Prior results are scanned in plan order so the first matching step
	// always wins.
	if tool == "add_contacts_to_cadence" && !hasUsableRecipients(out["recipients_ids"]) {
		for _, stepID := range orderedStepIDs(results) {
			contacts, ok := results[stepID]["contacts"].([]any)
			if !ok {
				continue
			}
			out["recipients_ids"] = capList(uniqueField(contacts, "id"), maxRecipients)
			log.Debugf(ctx, "filled recipients_ids from step %s contacts", stepID)
			break
		}
	}

	return out, nil
}

// maxRecipients caps how many contact ids a single injection pulls into a
// cadence.
const maxRecipients = 20

// orderedStepIDs returns the result keys sorted by step number, so step_2
// sorts before step_10.
func orderedStepIDs(results map[string]map[string]any) []string {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ni, iok := stepNumber(ids[i])
		nj, jok := stepNumber(ids[j])
		if iok && jok {
			return ni < nj
		}
		if iok != jok {
			return iok
		}
		return ids[i] < ids[j]
	})
	return ids
}

func stepNumber(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "step_")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

func capList(list []any, n int) []any {
	if len(list) > n {
		return list[:n]
	}
	return list
}

// hasUsableRecipients reports whether recipients_ids already holds a
// non-empty list of numeric contact ids.
func hasUsableRecipients(v any) bool {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return false
	}
	for _, e := range list {
		s, ok := e.(string)
		if !ok || !isDigits(s) {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// collectField pulls the named field from a list of documents, keeping order
// and skipping empties.
func collectField(docs []any, field string) []any {
	var out []any
	for _, d := range docs {
		m, ok := d.(map[string]any)
		if !ok {
			continue
		}
		if v := m[field]; v != nil && fmt.Sprint(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

// uniqueField is collectField with case-insensitive deduplication.
func uniqueField(docs []any, field string) []any {
	seen := make(map[string]bool)
	var out []any
	for _, d := range docs {
		m, ok := d.(map[string]any)
		if !ok {
			continue
		}
		v := m[field]
		if v == nil {
			continue
		}
		key := strings.ToLower(fmt.Sprint(v))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
