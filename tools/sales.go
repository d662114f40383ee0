package tools

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"goa.design/clue/log"

	"github.com/salesflow/agent/crm"
	"github.com/salesflow/agent/llm"
	"github.com/salesflow/agent/toolargs"
)

type (
	// SalesToolsOptions configures NewSalesTools.
	SalesToolsOptions struct {
		// CRM is the sales data client. Required.
		CRM *crm.Client
		// LLM generates email content. Required.
		LLM llm.Client
		// UserID is stamped on cadence payloads. Required.
		UserID string
		// Vocabulary resolves search enum values to their API documents.
		Vocabulary *toolargs.Vocabulary
		// EmailModels is the fallback chain for email generation.
		EmailModels []string
	}

	salesTools struct {
		crm         *crm.Client
		llm         llm.Client
		userID      string
		vocab       *toolargs.Vocabulary
		emailModels []string
	}
)

// DefaultEmailModels is the fallback chain for email generation.
var DefaultEmailModels = []string{"openai/gpt-4o-mini"}

// DefaultSearchLimit caps search results when no limit argument is given.
const DefaultSearchLimit = 100

// NewSalesTools builds a registry with the five sales tools registered.
func NewSalesTools(opts SalesToolsOptions) (*Registry, error) {
	if opts.CRM == nil {
		return nil, errors.New("tools: CRM is required")
	}
	if opts.LLM == nil {
		return nil, errors.New("tools: LLM is required")
	}
	if opts.UserID == "" {
		return nil, errors.New("tools: UserID is required")
	}
	st := &salesTools{
		crm:         opts.CRM,
		llm:         opts.LLM,
		userID:      opts.UserID,
		vocab:       opts.Vocabulary,
		emailModels: opts.EmailModels,
	}
	if st.vocab == nil {
		st.vocab = &toolargs.Vocabulary{}
	}
	if len(st.emailModels) == 0 {
		st.emailModels = DefaultEmailModels
	}

	r := NewRegistry()
	for _, t := range []*Tool{
		{
			Name:        "search_leads",
			Description: "Search for contacts (leads) with contact and company filters. Returns contacts with ids, designations, companies and emails.",
			Schema:      searchLeadsSchema,
			Handler:     st.searchLeads,
		},
		{
			Name:        "search_companies",
			Description: "Search for companies by name, location, industry, size, revenue or funding.",
			Schema:      searchCompaniesSchema,
			Handler:     st.searchCompanies,
		},
		{
			Name:        "generate_email",
			Description: "Generate an outreach email with the given tone, type and purpose. Returns subject and body with [snake_case] placeholders.",
			Schema:      generateEmailSchema,
			Handler:     st.generateEmail,
		},
		{
			Name:        "create_cadence",
			Description: "Create an email cadence (sequence) with a first email step built from template_details.",
			Schema:      createCadenceSchema,
			Handler:     st.createCadence,
		},
		{
			Name:        "add_contacts_to_cadence",
			Description: "Add contacts to an existing cadence by cadence_id and recipients_ids.",
			Schema:      addContactsSchema,
			Handler:     st.addContacts,
		},
	} {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (st *salesTools) searchLeads(ctx context.Context, args map[string]any) (map[string]any, error) {
	limit := intArg(args, "limit", DefaultSearchLimit)

	companyIDs := stringList(args["companyIds"])
	var companyNames []any
	if len(companyIDs) > 0 {
		// IDs take priority; a name search on top would narrow incorrectly.
		log.Debugf(ctx, "searching by %d company id(s), ignoring companyName", len(companyIDs))
	} else if names := stringList(args["companyName"]); len(names) > 0 {
		companyNames = st.resolveCompanyNames(ctx, names)
	}

	payload := map[string]any{
		"userId": st.userID,
		"company": map[string]any{
			"companyName":    companyNames,
			"hqCountry":      listArg(args, "hqCountry"),
			"hqState":        listArg(args, "hqState"),
			"hqCity":         listArg(args, "hqCity"),
			"industry":       st.industryDocs(stringList(args["industry"])),
			"size":           st.sizeDocs(stringList(args["size"])),
			"revenue":        listArg(args, "revenue"),
			"fundingType":    st.fundingDocs(stringList(args["fundingType"])),
			"fundingMinDate": args["fundingMinDate"],
			"fundingMaxDate": args["fundingMaxDate"],
			"speciality":     []any{},
			"boardline":      false,
		},
		"contact": map[string]any{
			"fullName":        listArg(args, "fullName"),
			"seniority":       excludeDocs("seniority", stringList(args["seniority"])),
			"functionalLevel": excludeDocs("function", stringList(args["functionalLevel"])),
			"designation":     listArg(args, "designation"),
			"country":         listArg(args, "country"),
			"state":           listArg(args, "state"),
			"city":            listArg(args, "city"),
			"companyIds":      toAnyList(companyIDs),
			"companyName":     companyNames,
		},
		"isFilter": true,
	}

	result, err := st.crm.SearchContacts(ctx, payload, limit)
	if err != nil {
		return nil, err
	}
	return formatLeadResponse(result, limit), nil
}

func (st *salesTools) searchCompanies(ctx context.Context, args map[string]any) (map[string]any, error) {
	limit := intArg(args, "limit", DefaultSearchLimit)
	payload := map[string]any{
		"userId":         st.userID,
		"companyName":    listArg(args, "companyName"),
		"hqCountry":      listArg(args, "hqCountry"),
		"hqState":        listArg(args, "hqState"),
		"hqCity":         listArg(args, "hqCity"),
		"industry":       st.industryDocs(stringList(args["industry"])),
		"type":           listArg(args, "companytype"),
		"hiringAreas":    listArg(args, "hiringAreas"),
		"speciality":     listArg(args, "speciality"),
		"size":           st.sizeDocs(stringList(args["size"])),
		"revenue":        listArg(args, "revenue"),
		"fundingType":    st.fundingDocs(stringList(args["fundingType"])),
		"fundingMinDate": args["fundingMinDate"],
		"fundingMaxDate": args["fundingMaxDate"],
		"isFilter":       true,
	}

	result, err := st.crm.SearchCompanies(ctx, payload, limit)
	if err != nil {
		return nil, err
	}
	return formatCompanyResponse(result, limit), nil
}

func (st *salesTools) generateEmail(ctx context.Context, args map[string]any) (map[string]any, error) {
	tone := stringArg(args, "tone", "professional")
	emailType := stringArg(args, "email_type", "outreach")
	purpose := stringArg(args, "purpose", "general outreach")
	example := stringArg(args, "example", "")

	var b strings.Builder
	fmt.Fprintf(&b, "Generate an email with the following characteristics:\nTone: %s\nType: %s\nPurpose: %s\n", tone, emailType, purpose)
	if example != "" {
		fmt.Fprintf(&b, "Example: %s\n", example)
	}
	b.WriteString("Please provide only the subject and the body of the email. Ensure all dynamic placeholders are in the [snake_case] format.")

	resp, err := st.llm.Complete(ctx, &llm.Request{
		Models:      st.emailModels,
		Temperature: 0.4,
		MaxTokens:   1000,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: emailSystemPrompt},
			{Role: llm.RoleUser, Content: b.String()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("email generation failed: %w", err)
	}
	if resp.Content == "" {
		return nil, errors.New("email generation returned no content")
	}
	subject, body := splitEmail(normalizePlaceholders(resp.Content))
	return map[string]any{
		"status":  "success",
		"subject": subject,
		"body":    body,
	}, nil
}

const emailSystemPrompt = "You are an AI assistant that generates emails. For all dynamic placeholders, " +
	"strictly use the format [snake_case_placeholder]. For example, use [recipient_name], " +
	"[your_company_name], [meeting_date]. Do not use double brackets [[]] or other formats for placeholders."

func (st *salesTools) createCadence(ctx context.Context, args map[string]any) (map[string]any, error) {
	name := stringArg(args, "name", "")
	if name == "" {
		return nil, errors.New("cadence name is required")
	}
	now := time.Now()
	startDate, ok := args["start_date"].(map[string]any)
	if !ok {
		startDate = map[string]any{"year": now.Year(), "month": int(now.Month()), "day": now.Day()}
	}
	startTime, ok := args["start_time"].(map[string]any)
	if !ok {
		startTime = map[string]any{"hour": now.Hour(), "minute": now.Minute(), "second": now.Second()}
	}
	whiteDays := listArg(args, "white_days")
	if len(whiteDays) == 0 {
		whiteDays = []any{"Mo", "Tu", "We", "Th", "Fr"}
	}

	payload := map[string]any{
		"name": name,
		"type": stringArg(args, "cadence_type", "constant"),
		"tags": listArg(args, "tags"),
		"schedule": map[string]any{
			"startDate": startDate,
			"startTime": startTime,
			"whiteDays": whiteDays,
		},
		"listType":       "",
		"listId":         nil,
		"toEmails":       []any{},
		"steps":          []any{},
		"isActive":       boolArg(args, "is_active", false),
		"status":         stringArg(args, "status", "paused"),
		"copyTempPhases": false,
		"userId":         st.userID,
	}

	cadence, err := st.crm.CreateCadence(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create cadence: %w", err)
	}
	cadenceID := extractOID(cadence["_id"])
	if cadenceID == "" {
		return nil, errors.New("failed to create cadence: no cadence id returned")
	}

	var emailBody, emailSubject string
	if td, ok := args["template_details"].(map[string]any); ok {
		emailBody = stringArg(td, "body", "")
		emailSubject = stringArg(td, "subject", "")
	}

	stepPayload := map[string]any{
		"id":           nanoid(),
		"name":         "Email Phase 1",
		"sequenceName": name,
		"order":        0,
		"type":         "email",
		"isEvent":      false,
		"status":       "paused",
		"userId":       st.userID,
		"schedule": map[string]any{
			"startDate": startDate,
			"startTime": startTime,
			"endDate":   []any{},
			"endTime":   []any{},
			"blackDays": []any{},
			"whiteDays": whiteDays,
		},
		"interval":   map[string]any{"number": 10, "mode": "Minutes"},
		"sequenceId": cadenceID,
		"addUnsubLink": true,
		"template": map[string]any{
			"name":    "DT-" + nanoid(),
			"subject": emailSubject,
			"userId":  st.userID,
			"type":    "html",
			"editor":  "rte",
			"status":  "active",
			"content": emailBody,
			"dynamic": true,
			"cc":      []any{},
			"bcc":     []any{},
		},
	}

	if _, err := st.crm.CreateCadenceStep(ctx, cadenceID, stepPayload); err != nil {
		return map[string]any{
			"status":       "partial_success",
			"message":      fmt.Sprintf("Cadence %q created but with some issues: %v", name, err),
			"cadence_id":   cadenceID,
			"cadence_name": name,
			"data":         cadence,
		}, nil
	}

	return map[string]any{
		"status":       "success",
		"message":      fmt.Sprintf("Cadence %q created successfully", name),
		"cadence_id":   cadenceID,
		"cadence_name": name,
		"data":         cadence,
	}, nil
}

func (st *salesTools) addContacts(ctx context.Context, args map[string]any) (map[string]any, error) {
	recipients := stringList(args["recipients_ids"])
	if len(recipients) == 0 {
		return nil, errors.New("recipients_ids is required")
	}
	cadenceID := stringArg(args, "cadence_id", "")
	if cadenceID == "" {
		return nil, errors.New("cadence_id is required")
	}
	payload := map[string]any{
		"name":           stringArg(args, "name", ""),
		"cadence_id":     cadenceID,
		"recipients_ids": toAnyList(recipients),
		"userId":         st.userID,
	}
	result, err := st.crm.AddContactsToCadence(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to add contacts to cadence: %w", err)
	}
	msg := stringArg(result, "msg", "")
	if msg == "" {
		msg = stringArg(result, "message", "")
	}
	if msg == "" {
		if queued, ok := result["queuedContacts"]; ok {
			msg = fmt.Sprintf("%v", queued)
		} else {
			return nil, errors.New("failed to add contacts to cadence: unexpected response format")
		}
	}
	return map[string]any{
		"status":         "success",
		"message":        msg,
		"cadence_id":     cadenceID,
		"recipients_ids": toAnyList(recipients),
		"details":        result,
	}, nil
}

// resolveCompanyNames maps raw company names through the typeahead index,
// preferring exact case-insensitive matches. Unresolvable names are dropped.
func (st *salesTools) resolveCompanyNames(ctx context.Context, names []string) []any {
	var out []any
	for _, raw := range names {
		suggestions, err := st.crm.TypeaheadCompany(ctx, raw)
		if err != nil || len(suggestions) == 0 {
			continue
		}
		exact := -1
		for i, s := range suggestions {
			if name, _ := s["name"].(string); strings.EqualFold(strings.TrimSpace(name), strings.TrimSpace(raw)) {
				exact = i
				break
			}
		}
		if exact >= 0 {
			out = append(out, suggestions[exact])
			continue
		}
		for _, s := range suggestions {
			out = append(out, s)
		}
	}
	return out
}

// industryDocs wraps industries in the API filter document, expanding group
// names like "BFSI" into their member industries.
func (st *salesTools) industryDocs(names []string) []any {
	var out []any
	for _, n := range names {
		members := st.vocab.ExpandIndustryGroups([]string{n})
		if len(members) == 0 {
			members = []string{n}
		}
		for _, m := range members {
			out = append(out, map[string]any{"industry": m, "exclude": false})
		}
	}
	return out
}

func (st *salesTools) sizeDocs(sizes []string) []any {
	var out []any
	for _, s := range sizes {
		out = append(out, map[string]any{"size": s, "exclude": false})
	}
	return out
}

func (st *salesTools) fundingDocs(types []string) []any {
	var out []any
	for _, t := range types {
		out = append(out, map[string]any{"fundingType": t, "exclude": false})
	}
	return out
}

func excludeDocs(field string, values []string) []any {
	var out []any
	for _, v := range values {
		out = append(out, map[string]any{field: v, "exclude": false})
	}
	return out
}

func formatLeadResponse(result map[string]any, limit int) map[string]any {
	contacts, _ := result["contacts"].([]any)
	if len(contacts) > limit {
		contacts = contacts[:limit]
	}
	formatted := make([]any, 0, len(contacts))
	for _, c := range contacts {
		m, ok := c.(map[string]any)
		if !ok {
			continue
		}
		name := strings.TrimSpace(stringArg(m, "first_name", "") + " " + stringArg(m, "last_name", ""))
		if name == "" {
			name = "N/A"
		}
		formatted = append(formatted, map[string]any{
			"id":               m["person_id"],
			"company_id":       m["company_id"],
			"name":             name,
			"designation":      stringArg(m, "position", "N/A"),
			"seniority":        stringArg(m, "seniority", "N/A"),
			"functional_level": stringArg(m, "functional_level", "N/A"),
			"company_name":     stringArg(m, "company_name", "N/A"),
			"industry":         stringArg(m, "industry", "N/A"),
			"location":         joinLocation(m, "person_city", "person_state", "person_country"),
			"email":            stringArg(m, "primary_email", "N/A"),
			"linkedin":         stringArg(m, "linkedin_profile", "N/A"),
		})
	}
	return map[string]any{
		"status":         "success",
		"message":        fmt.Sprintf("Found %d contacts", len(formatted)),
		"contacts":       formatted,
		"total_contacts": len(formatted),
	}
}

func formatCompanyResponse(result map[string]any, limit int) map[string]any {
	companies, _ := result["companies"].([]any)
	if len(companies) > limit {
		companies = companies[:limit]
	}
	formatted := make([]any, 0, len(companies))
	for _, c := range companies {
		m, ok := c.(map[string]any)
		if !ok {
			continue
		}
		formatted = append(formatted, map[string]any{
			"id":       m["id"],
			"name":     stringArg(m, "name", "N/A"),
			"industry": stringArg(m, "industry", "N/A"),
			"location": joinLocation(m, "city", "state", "country"),
			"size":     stringArg(m, "comp_size_range", "N/A"),
			"type":     stringArg(m, "company_type", "N/A"),
			"revenue":  stringArg(m, "revenue_range", "N/A"),
		})
	}
	return map[string]any{
		"status":          "success",
		"message":         fmt.Sprintf("Found %d companies", len(formatted)),
		"companies":       formatted,
		"total_companies": len(formatted),
	}
}

var (
	placeholderPattern = regexp.MustCompile(`\[([^\[\]]+?)\]`)
	separatorPattern   = regexp.MustCompile(`[\s-]+`)
	invalidRunePattern = regexp.MustCompile(`[^a-zA-Z0-9_]`)
)

// normalizePlaceholders rewrites [Some Placeholder] to [some_placeholder].
func normalizePlaceholders(content string) string {
	return placeholderPattern.ReplaceAllStringFunc(content, func(match string) string {
		inner := strings.TrimSpace(match[1 : len(match)-1])
		inner = strings.ReplaceAll(inner, "'s", "")
		inner = strings.ReplaceAll(inner, "'", "")
		inner = separatorPattern.ReplaceAllString(inner, "_")
		inner = invalidRunePattern.ReplaceAllString(inner, "")
		return "[" + strings.ToLower(inner) + "]"
	})
}

// splitEmail extracts the subject line and body from generated content.
func splitEmail(content string) (subject, body string) {
	lines := strings.Split(content, "\n")
	var bodyLines []string
	for _, line := range lines {
		if subject == "" && strings.HasPrefix(strings.ToLower(line), "subject:") {
			subject = strings.TrimSpace(line[len("subject:"):])
			continue
		}
		bodyLines = append(bodyLines, line)
	}
	if subject == "" && len(lines) > 1 {
		subject = strings.TrimSpace(lines[0])
		bodyLines = lines[1:]
	}
	if subject == "" {
		subject = "Generated Email"
	}
	var cleaned []string
	for _, line := range bodyLines {
		if s := strings.TrimSpace(line); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return subject, strings.Join(cleaned, "\n\n")
}

func extractOID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case map[string]any:
		s, _ := id["$oid"].(string)
		return s
	default:
		return ""
	}
}

// nanoid returns a short base-36 identifier from 32 random bits.
func nanoid() string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return strconv.FormatUint(uint64(binary.BigEndian.Uint32(buf[:])), 36)
}

func stringArg(args map[string]any, key, def string) string {
	if s, ok := args[key].(string); ok && s != "" {
		return s
	}
	return def
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func boolArg(args map[string]any, key string, def bool) bool {
	if b, ok := args[key].(bool); ok {
		return b
	}
	return def
}

func listArg(args map[string]any, key string) []any {
	switch v := args[key].(type) {
	case []any:
		return v
	case nil:
		return []any{}
	default:
		return []any{v}
	}
}

func stringList(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			switch val := e.(type) {
			case string:
				out = append(out, val)
			case float64:
				out = append(out, strconv.FormatFloat(val, 'f', -1, 64))
			}
		}
		return out
	case string:
		if s == "" {
			return nil
		}
		return []string{s}
	default:
		return nil
	}
}

func toAnyList(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func joinLocation(m map[string]any, keys ...string) string {
	var parts []string
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return "N/A"
	}
	return strings.Join(parts, ", ")
}
