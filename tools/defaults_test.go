package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/salesflow/agent/convo"
)

func TestDefaultArgsCreateCadenceNamesByGoal(t *testing.T) {
	args := DefaultArgs("create_cadence", "reach out to BFSI leaders", nil)
	assert.Equal(t, "BFSI Outreach Campaign", args["name"])
	assert.Equal(t, "constant", args["cadence_type"])
	assert.Equal(t, false, args["is_active"])

	args = DefaultArgs("create_cadence", "target tech startups", nil)
	assert.Equal(t, "Technology Outreach Campaign", args["name"])

	args = DefaultArgs("create_cadence", "follow up", nil)
	assert.Equal(t, "Auto Campaign", args["name"])
}

func TestDefaultArgsAddContactsFillsFromContext(t *testing.T) {
	wctx := &convo.WorkflowContext{
		ContactIDs:  []string{"1", "2"},
		CadenceID:   "cad-1",
		CadenceName: "Q3",
	}
	args := DefaultArgs("add_contacts_to_cadence", "", wctx)
	assert.Equal(t, []any{"1", "2"}, args["recipients_ids"])
	assert.Equal(t, "cad-1", args["cadence_id"])
	assert.Equal(t, "Q3", args["name"])
}

func TestDefaultArgsAddContactsWithoutContextUsesSentinels(t *testing.T) {
	args := DefaultArgs("add_contacts_to_cadence", "", nil)
	assert.Equal(t, "auto_filled_by_system", args["cadence_id"])
	assert.Empty(t, args["recipients_ids"])
}

func TestDefaultArgsSearchLeadsPrefersCompanyIDs(t *testing.T) {
	wctx := &convo.WorkflowContext{
		CompanyIDs:   []string{"c-1"},
		CompanyNames: []string{"Acme"},
	}
	args := DefaultArgs("search_leads", "", wctx)
	assert.Equal(t, []any{"c-1"}, args["companyIds"])
	assert.NotContains(t, args, "companyName")

	wctx.CompanyIDs = nil
	args = DefaultArgs("search_leads", "", wctx)
	assert.Equal(t, []any{"Acme"}, args["companyName"])
}

func TestDefaultArgsSearchCompaniesUsesContactCompanies(t *testing.T) {
	wctx := &convo.WorkflowContext{ContactCompanyNames: []string{"Acme", "Globex"}}
	args := DefaultArgs("search_companies", "", wctx)
	assert.Equal(t, []any{"Acme", "Globex"}, args["companyName"])
}

func TestDefaultArgsUnknownToolIsEmpty(t *testing.T) {
	assert.Empty(t, DefaultArgs("mystery", "", nil))
}
