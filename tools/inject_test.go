package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInjectResultsCompanyIDsIntoLeadSearch(t *testing.T) {
	results := map[string]map[string]any{
		"step_1": {"companies": []any{
			map[string]any{"id": "c-1", "name": "Acme"},
			map[string]any{"id": "c-2", "name": "Globex"},
			map[string]any{"name": "NoID"},
		}},
	}
	out, err := InjectResults(context.Background(), "search_leads", map[string]any{"seniority": []any{"cxo"}}, []string{"step_1"}, results)
	require.NoError(t, err)
	assert.Equal(t, []any{"c-1", "c-2"}, out["companyIds"])
	assert.Equal(t, []any{"cxo"}, out["seniority"])
}

func TestInjectResultsCompanyNamesIntoCompanySearch(t *testing.T) {
	results := map[string]map[string]any{
		"step_1": {"contacts": []any{
			map[string]any{"company_name": "Acme"},
			map[string]any{"company_name": "acme"},
			map[string]any{"company_name": "Globex"},
		}},
	}
	out, err := InjectResults(context.Background(), "search_companies", map[string]any{}, []string{"step_1"}, results)
	require.NoError(t, err)
	assert.Equal(t, []any{"Acme", "Globex"}, out["companyName"])
}

func TestInjectResultsTemplateIntoCadence(t *testing.T) {
	results := map[string]map[string]any{
		"step_2": {"subject": "Hello", "body": "Hi there"},
	}
	out, err := InjectResults(context.Background(), "create_cadence", map[string]any{"name": "Q3"}, []string{"step_2"}, results)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"subject": "Hello", "body": "Hi there"}, out["template_details"])
}

func TestInjectResultsCadenceAndRecipients(t *testing.T) {
	results := map[string]map[string]any{
		"step_3": {"cadence_id": "cad-1", "cadence_name": "Q3"},
		"step_1": {"contacts": []any{
			map[string]any{"id": "11"},
			map[string]any{"id": "11"},
			map[string]any{"id": "12"},
		}},
	}
	out, err := InjectResults(context.Background(), "add_contacts_to_cadence", map[string]any{}, []string{"step_3", "step_1"}, results)
	require.NoError(t, err)
	assert.Equal(t, "cad-1", out["cadence_id"])
	assert.Equal(t, "Q3", out["name"])
	assert.Equal(t, []any{"11", "12"}, out["recipients_ids"])
}

func TestInjectResultsRecipientsFromNonDependencyStep(t *testing.T) {
	results := map[string]map[string]any{
		"step_3": {"cadence_id": "cad-1", "cadence_name": "Q3"},
		"step_1": {"contacts": []any{map[string]any{"id": "42"}}},
	}
	out, err := InjectResults(context.Background(), "add_contacts_to_cadence",
		map[string]any{"recipients_ids": []any{"not-a-number"}}, []string{"step_3"}, results)
	require.NoError(t, err)
	assert.Equal(t, []any{"42"}, out["recipients_ids"])
}

func TestInjectResultsRecipientsFallbackPrefersEarliestStep(t *testing.T) {
	results := map[string]map[string]any{
		"step_10": {"contacts": []any{map[string]any{"id": "99"}}},
		"step_2":  {"contacts": []any{map[string]any{"id": "7"}}},
		"step_3":  {"cadence_id": "cad-1", "cadence_name": "Q3"},
	}
	// Map iteration order varies between runs; the pick must not.
	for range 20 {
		out, err := InjectResults(context.Background(), "add_contacts_to_cadence", map[string]any{}, []string{"step_3"}, results)
		require.NoError(t, err)
		assert.Equal(t, []any{"7"}, out["recipients_ids"])
	}
}

func TestInjectResultsFailedDependency(t *testing.T) {
	results := map[string]map[string]any{
		"step_1": {"status": "failed", "error": "upstream broke"},
	}
	_, err := InjectResults(context.Background(), "search_leads", map[string]any{}, []string{"step_1"}, results)
	var depErr *DependencyFailedError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "step_1", depErr.StepID)
}

func TestInjectResultsLeavesArgsAloneWithoutMatches(t *testing.T) {
	in := map[string]any{"tone": "professional"}
	out, err := InjectResults(context.Background(), "generate_email", in, []string{"step_1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	out["extra"] = true
	assert.NotContains(t, in, "extra")
}
