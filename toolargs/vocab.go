package toolargs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type (
	// Vocabulary holds the CRM's closed value sets. Search filters only
	// accept values from these lists, so model-produced values are mapped
	// onto them before execution.
	Vocabulary struct {
		FunctionalLevels []string
		Industries       []string
		Seniorities      []string
		Sizes            []string
		Revenues         []string
		FundingTypes     []string
		HiringAreas      []string
		CompanyTypes     []string

		// industryGroups maps group names to their member industries.
		industryGroups map[string][]string
	}

	vocabEntry struct {
		Function    string `json:"function"`
		Industry    string `json:"industry"`
		Group       string `json:"group"`
		Seniority   string `json:"seniority"`
		Size        string `json:"size"`
		Revenue     string `json:"revenue"`
		FundingType string `json:"fundingType"`
		HiringArea  string `json:"hiringArea"`
		Type        string `json:"type"`
		Exclude     bool   `json:"exclude"`
	}
)

// LoadVocabulary reads the enum data files from dir. Entries marked exclude
// are dropped. Missing files leave the corresponding list empty rather than
// failing, so a partial data set still works.
func LoadVocabulary(dir string) (*Vocabulary, error) {
	v := &Vocabulary{industryGroups: make(map[string][]string)}
	load := func(name string, fn func(vocabEntry)) error {
		entries, err := readEntries(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("load %s: %w", name, err)
		}
		for _, e := range entries {
			if e.Exclude {
				continue
			}
			fn(e)
		}
		return nil
	}

	steps := []struct {
		file string
		fn   func(vocabEntry)
	}{
		{"functional_level.json", func(e vocabEntry) { v.FunctionalLevels = append(v.FunctionalLevels, e.Function) }},
		{"industries.json", func(e vocabEntry) {
			v.Industries = append(v.Industries, e.Industry)
			if e.Group != "" {
				v.industryGroups[e.Group] = append(v.industryGroups[e.Group], e.Industry)
			}
		}},
		{"seniority.json", func(e vocabEntry) { v.Seniorities = append(v.Seniorities, e.Seniority) }},
		{"sizes.json", func(e vocabEntry) { v.Sizes = append(v.Sizes, e.Size) }},
		{"revenues.json", func(e vocabEntry) { v.Revenues = append(v.Revenues, e.Revenue) }},
		{"fundingTypes.json", func(e vocabEntry) { v.FundingTypes = append(v.FundingTypes, e.FundingType) }},
		{"hiringareas.json", func(e vocabEntry) { v.HiringAreas = append(v.HiringAreas, e.HiringArea) }},
		{"productandservice.json", func(e vocabEntry) { v.CompanyTypes = append(v.CompanyTypes, e.Type) }},
	}
	for _, s := range steps {
		if err := load(s.file, s.fn); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func readEntries(path string) ([]vocabEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []vocabEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ExpandIndustryGroups returns every industry belonging to the groups named
// in names. Names that match no group are ignored; the result is
// deduplicated.
func (v *Vocabulary) ExpandIndustryGroups(names []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range names {
		for _, ind := range v.industryGroups[name] {
			if !seen[ind] {
				seen[ind] = true
				out = append(out, ind)
			}
		}
	}
	return out
}

// SetIndustryGroups replaces the group table; primarily for tests and
// in-memory vocabularies.
func (v *Vocabulary) SetIndustryGroups(groups map[string][]string) {
	v.industryGroups = groups
}
