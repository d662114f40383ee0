package toolargs

import "strings"

// keyCasing maps lowercased argument names to their canonical camelCase
// form. Models frequently emit all-lowercase keys.
var keyCasing = map[string]string{
	"functionallevel": "functionalLevel",
	"companyname":     "companyName",
	"companyids":      "companyIds",
	"hqcountry":       "hqCountry",
	"hqstate":         "hqState",
	"hqcity":          "hqCity",
	"fundingtype":     "fundingType",
	"fundingmindate":  "fundingMinDate",
	"fundingmaxdate":  "fundingMaxDate",
	"fullname":        "fullName",
	"hiringareas":     "hiringAreas",
	"linkedinlink":    "linkedinLink",
	"websitelist":     "websiteList",
}

// citySynonyms maps colloquial Indian city names to the spellings the CRM
// indexes.
var citySynonyms = map[string]string{
	"bangalore": "Bengaluru",
	"bombay":    "Mumbai",
	"calcutta":  "Kolkata",
	"madras":    "Chennai",
}

// cityParams are the argument names whose values are city lists.
var cityParams = map[string]bool{"city": true, "hqCity": true}

func canonicalKey(key string) string {
	if canonical, ok := keyCasing[strings.ToLower(key)]; ok {
		return canonical
	}
	return key
}

// normalizeValue canonicalizes city spellings and deduplicates list values.
// Scalars promote to single-element lists for the parameters that take
// lists.
func normalizeValue(name string, val any) any {
	if !cityParams[name] {
		if list, ok := val.([]any); ok {
			return dedupeList(list)
		}
		return val
	}
	var items []any
	switch v := val.(type) {
	case []any:
		items = v
	case string:
		items = []any{v}
	default:
		return val
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			out = append(out, item)
			continue
		}
		if canonical, ok := citySynonyms[strings.ToLower(strings.TrimSpace(s))]; ok {
			out = append(out, canonical)
		} else {
			out = append(out, s)
		}
	}
	return dedupeList(out)
}

func dedupeList(items []any) []any {
	seen := make(map[string]bool, len(items))
	out := make([]any, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			out = append(out, item)
			continue
		}
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
