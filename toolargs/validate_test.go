package toolargs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDropsUnknownParams(t *testing.T) {
	args := map[string]any{
		"designation": []any{"CTO"},
		"mood":        "optimistic",
		"limit":       float64(50),
	}
	out := ValidateAndFilter(context.Background(), "search_leads", args)
	assert.Equal(t, []any{"CTO"}, out["designation"])
	assert.Equal(t, float64(50), out["limit"])
	assert.NotContains(t, out, "mood")
}

func TestValidateCorrectsParamNames(t *testing.T) {
	args := map[string]any{
		"job_title":    []any{"CTO"},
		"company_size": []any{"51-200"},
		"department":   []any{"Engineering"},
		"company_name": []any{"Acme"},
		"hq_city":      []any{"Pune"},
	}
	out := ValidateAndFilter(context.Background(), "search_leads", args)
	assert.Contains(t, out, "designation")
	assert.Contains(t, out, "size")
	assert.Contains(t, out, "functionalLevel")
	assert.Contains(t, out, "companyName")
	assert.Contains(t, out, "hqCity")
	assert.NotContains(t, out, "job_title")
}

func TestValidateLocationIsToolSpecific(t *testing.T) {
	leads := ValidateAndFilter(context.Background(), "search_leads", map[string]any{"location": []any{"Pune"}})
	assert.Contains(t, leads, "city")

	companies := ValidateAndFilter(context.Background(), "search_companies", map[string]any{"location": []any{"Pune"}})
	assert.Contains(t, companies, "hqCity")
	assert.NotContains(t, companies, "city")
}

func TestValidateNormalizesKeyCasing(t *testing.T) {
	out := ValidateAndFilter(context.Background(), "search_leads", map[string]any{
		"functionallevel": []any{"Engineering"},
		"companyname":     []any{"Acme"},
	})
	assert.Contains(t, out, "functionalLevel")
	assert.Contains(t, out, "companyName")
}

func TestValidateCanonicalCitySpellings(t *testing.T) {
	out := ValidateAndFilter(context.Background(), "search_leads", map[string]any{
		"city": []any{"bangalore", "Bombay", "Chennai", "madras"},
	})
	require.Contains(t, out, "city")
	assert.Equal(t, []any{"Bengaluru", "Mumbai", "Chennai"}, out["city"])
}

func TestValidateScalarCityPromotesToList(t *testing.T) {
	out := ValidateAndFilter(context.Background(), "search_leads", map[string]any{"city": "calcutta"})
	assert.Equal(t, []any{"Kolkata"}, out["city"])
}

func TestValidateDedupesListValues(t *testing.T) {
	out := ValidateAndFilter(context.Background(), "search_leads", map[string]any{
		"designation": []any{"CTO", "cto", "CEO"},
	})
	assert.Equal(t, []any{"CTO", "CEO"}, out["designation"])
}

func TestValidateUnknownToolPassesThrough(t *testing.T) {
	args := map[string]any{"whatever": 1}
	out := ValidateAndFilter(context.Background(), "unknown_tool", args)
	assert.Equal(t, args, out)
}

func TestValidateCadenceParams(t *testing.T) {
	out := ValidateAndFilter(context.Background(), "create_cadence", map[string]any{
		"name":             "Q3 Outreach",
		"cadence_type":     "constant",
		"white_days":       []any{"Mo", "Tu"},
		"template_details": map[string]any{"body": "b", "subject": "s"},
		"steps":            []any{"bogus"},
	})
	assert.Contains(t, out, "name")
	assert.Contains(t, out, "template_details")
	assert.NotContains(t, out, "steps")
}

func TestAllowedParams(t *testing.T) {
	names := AllowedParams("generate_email")
	assert.ElementsMatch(t, []string{"tone", "email_type", "purpose", "example"}, names)
	assert.Nil(t, AllowedParams("nope"))
}

func TestIsSearchTool(t *testing.T) {
	assert.True(t, IsSearchTool("search_leads"))
	assert.True(t, IsSearchTool("search_companies"))
	assert.False(t, IsSearchTool("create_cadence"))
}
