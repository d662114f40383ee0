package toolargs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"goa.design/clue/log"

	"github.com/salesflow/agent/llm"
)

type (
	// Mapper rewrites free-form search filter values onto the CRM's closed
	// vocabularies using a small LLM call. Mapping is best effort: any
	// failure returns the validated arguments unchanged.
	Mapper struct {
		client llm.Client
		vocab  *Vocabulary
		models []string
	}

	// MapperOptions configures NewMapper.
	MapperOptions struct {
		// Client performs the mapping completions. Required.
		Client llm.Client
		// Vocabulary is the value set to map onto. Required.
		Vocabulary *Vocabulary
		// Models is the fallback chain for mapping calls.
		Models []string
	}
)

// DefaultMapperModels is the fallback chain used when none is configured.
var DefaultMapperModels = []string{"openai/gpt-4o-mini", "anthropic/claude-3.5-sonnet"}

// NewMapper creates a vocabulary mapper.
func NewMapper(opts MapperOptions) (*Mapper, error) {
	if opts.Client == nil {
		return nil, errors.New("toolargs: Client is required")
	}
	if opts.Vocabulary == nil {
		return nil, errors.New("toolargs: Vocabulary is required")
	}
	models := opts.Models
	if len(models) == 0 {
		models = DefaultMapperModels
	}
	return &Mapper{client: opts.Client, vocab: opts.Vocabulary, models: models}, nil
}

// enumParams are the search filter names whose values come from a closed
// vocabulary.
var enumParams = map[string]func(*Vocabulary) []string{
	"functionalLevel": func(v *Vocabulary) []string { return v.FunctionalLevels },
	"industry":        func(v *Vocabulary) []string { return v.Industries },
	"seniority":       func(v *Vocabulary) []string { return v.Seniorities },
	"size":            func(v *Vocabulary) []string { return v.Sizes },
	"revenue":         func(v *Vocabulary) []string { return v.Revenues },
	"fundingType":     func(v *Vocabulary) []string { return v.FundingTypes },
	"hiringAreas":     func(v *Vocabulary) []string { return v.HiringAreas },
	"companytype":     func(v *Vocabulary) []string { return v.CompanyTypes },
}

// MapEnums maps the enum-valued arguments of a search tool onto the
// vocabulary. Non-search tools and argument sets without enum parameters
// pass through untouched, as does anything on mapping failure.
func (m *Mapper) MapEnums(ctx context.Context, tool string, args map[string]any) map[string]any {
	if !IsSearchTool(tool) {
		return args
	}
	var enumArgs []string
	for name := range args {
		if _, ok := enumParams[name]; ok {
			enumArgs = append(enumArgs, name)
		}
	}
	if len(enumArgs) == 0 {
		return args
	}

	prompt := m.buildPrompt(args, enumArgs)
	resp, err := m.client.Complete(ctx, &llm.Request{
		Models:      m.models,
		Temperature: 0,
		JSONMode:    true,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: mapperSystemPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		log.Printf(ctx, "enum mapping failed, keeping validated args: %v", err)
		return args
	}
	mapped, err := decodeJSONObject(resp.Content)
	if err != nil {
		log.Printf(ctx, "enum mapping returned malformed JSON, keeping validated args: %v", err)
		return args
	}

	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	for _, name := range enumArgs {
		v, ok := mapped[name]
		if !ok {
			continue
		}
		// The model may invent values; only vocabulary members survive. A
		// mapping with no valid member keeps the validated value instead.
		if valid := intersectAllowed(v, enumParams[name](m.vocab)); len(valid) > 0 {
			out[name] = valid
		}
	}
	return out
}

// intersectAllowed keeps the mapped values present in the allowed list,
// matching case-insensitively and returning the vocabulary spelling.
func intersectAllowed(v any, allowed []string) []any {
	canon := make(map[string]string, len(allowed))
	for _, a := range allowed {
		canon[strings.ToLower(a)] = a
	}
	var vals []any
	switch t := v.(type) {
	case []any:
		vals = t
	case string:
		vals = []any{t}
	default:
		return nil
	}
	seen := make(map[string]bool)
	var out []any
	for _, e := range vals {
		s, ok := e.(string)
		if !ok {
			continue
		}
		a, ok := canon[strings.ToLower(s)]
		if !ok || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

const mapperSystemPrompt = `You map user-provided sales filter values onto a fixed vocabulary.
Return a JSON object containing only the mapped parameters. Each value must
be an array of strings drawn exactly from the allowed values. If a value has
no reasonable match, omit the parameter. Expand umbrella terms: "BFSI" covers
banking, financial services and insurance industries.`

func (m *Mapper) buildPrompt(args map[string]any, enumArgs []string) string {
	var b strings.Builder
	b.WriteString("Map the following parameters.\n\n")
	for _, name := range enumArgs {
		allowed := enumParams[name](m.vocab)
		fmt.Fprintf(&b, "Parameter %q with value %v\nAllowed values: %s\n\n",
			name, args[name], strings.Join(allowed, ", "))
	}
	return b.String()
}

// decodeJSONObject extracts the JSON object embedded in a model response,
// tolerating prose around it by slicing from the first '{' to the last '}'.
func decodeJSONObject(content string) (map[string]any, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("decode mapping: %w", err)
	}
	return out, nil
}
