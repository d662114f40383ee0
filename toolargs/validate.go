// Package toolargs cleans model-produced tool arguments before execution:
// unknown parameters are dropped, common misnamings are corrected, values are
// normalized to canonical spellings and mapped onto the CRM's closed
// vocabularies.
package toolargs

import (
	"context"
	"strings"

	"goa.design/clue/log"
)

// allowedParams lists the accepted argument names per tool. Anything else
// the model invents is dropped after name correction.
var allowedParams = map[string]map[string]bool{
	"search_leads": set(
		"companyName", "hqCountry", "hqState", "hqCity",
		"industry", "size", "revenue", "fundingType",
		"fundingMinDate", "fundingMaxDate",
		"fullName", "seniority", "functionalLevel", "designation",
		"country", "state", "city", "companyIds", "limit",
	),
	"search_companies": set(
		"companyName", "hqCountry", "hqState", "hqCity",
		"industry", "companytype", "hiringAreas", "speciality",
		"size", "revenue", "fundingType",
		"fundingMinDate", "fundingMaxDate",
		"foundedMin", "foundedMax", "employeeMin", "employeeMax",
		"technologies", "keywords", "websiteList", "linkedinLink",
		"country", "state", "city", "name", "domain", "limit", "offset",
	),
	"generate_email": set("tone", "email_type", "purpose", "example"),
	"create_cadence": set(
		"name", "cadence_type", "recipients", "tags",
		"start_date", "start_time", "white_days",
		"is_active", "status", "template_details",
	),
	"add_contacts_to_cadence": set("name", "recipients_ids", "cadence_id"),
}

// paramCorrections maps the misnamings models commonly produce to the real
// parameter names. Tool-specific overrides are applied first.
var paramCorrections = map[string]string{
	"company_size": "size",
	"job_title":    "designation",
	"jobTitle":     "designation",
	"position":     "designation",
	"role":         "designation",
	"department":   "functionalLevel",
	"job_function": "functionalLevel",
	"company_name": "companyName",
	"headquarters": "hqCity",
	"hq_country":   "hqCountry",
	"hq_state":     "hqState",
	"hq_city":      "hqCity",
}

// toolParamCorrections holds per-tool corrections that differ from the
// shared table. Contact searches take "location" as the contact city while
// company searches take it as the headquarters city.
var toolParamCorrections = map[string]map[string]string{
	"search_leads":     {"location": "city"},
	"search_companies": {"location": "hqCity", "city": "hqCity", "country": "hqCountry", "state": "hqState"},
}

// ValidateAndFilter corrects argument names, normalizes keys and values and
// drops anything the tool does not accept. It never fails: garbage in means
// fewer arguments out, and the caller logs what was dropped.
func ValidateAndFilter(ctx context.Context, tool string, args map[string]any) map[string]any {
	allowed, known := allowedParams[tool]
	if !known {
		return args
	}
	out := make(map[string]any, len(args))
	for key, val := range args {
		name := correctParam(tool, key)
		name = canonicalKey(name)
		if !allowed[name] {
			log.Debugf(ctx, "dropping unsupported argument: tool=%s arg=%s", tool, key)
			continue
		}
		out[name] = normalizeValue(name, val)
	}
	return out
}

func correctParam(tool, key string) string {
	if m, ok := toolParamCorrections[tool]; ok {
		if corrected, ok := m[key]; ok {
			return corrected
		}
	}
	if corrected, ok := paramCorrections[key]; ok {
		return corrected
	}
	return key
}

func set(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// AllowedParams returns the accepted argument names for a tool, for prompt
// construction.
func AllowedParams(tool string) []string {
	allowed, ok := allowedParams[tool]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(allowed))
	for k := range allowed {
		names = append(names, k)
	}
	return names
}

// IsSearchTool reports whether the tool takes CRM search filters and so is
// eligible for vocabulary mapping.
func IsSearchTool(tool string) bool {
	return strings.HasPrefix(tool, "search_")
}
