// Package facts holds the static tables: nutrition values, the contact directory
// and the priority asset map. Only a document marked verified takes precedence
// over scraped pages and uploaded documents; the embedded defaults are not.
package facts

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"salesrep/llm"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Nutrition struct {
	Product     string  `yaml:"product"`
	ServingSize string  `yaml:"serving_size"`
	Calories    int     `yaml:"calories"`
	ProteinG    float64 `yaml:"protein_g"`
	FatG        float64 `yaml:"fat_g"`
	SodiumMg    int     `yaml:"sodium_mg"`
}

type Contact struct {
	Department string `yaml:"department"`
	Email      string `yaml:"email"`
	Phone      string `yaml:"phone,omitempty"`
}

// PriorityAsset is a hand-verified label to URL mapping. Order matters: the first
// entry for a label is canonical.
type PriorityAsset struct {
	Label       string   `yaml:"label"`
	URL         string   `yaml:"url"`
	Description string   `yaml:"description,omitempty"`
	Aliases     []string `yaml:"aliases,omitempty"`
}

type Facts struct {
	// Verified is set by whoever checked the tables against current spec sheets.
	Verified  bool            `yaml:"verified"`
	Priority  []PriorityAsset `yaml:"priority"`
	Nutrition []Nutrition     `yaml:"nutrition"`
	Contacts  []Contact       `yaml:"contacts"`
}

// Default returns the embedded tables.
func Default() *Facts {
	f, err := Parse(defaultsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded facts are invalid: %v", err))
	}
	return f
}

// Load reads tables from path, or returns the embedded defaults when path is empty.
func Load(path string) (*Facts, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read facts file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates a facts document.
func Parse(data []byte) (*Facts, error) {
	var f Facts
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse facts: %w", err)
	}
	for i, p := range f.Priority {
		if strings.TrimSpace(p.Label) == "" || strings.TrimSpace(p.URL) == "" {
			return nil, fmt.Errorf("priority entry %d: label and url are required", i)
		}
	}
	for i, n := range f.Nutrition {
		if strings.TrimSpace(n.Product) == "" {
			return nil, fmt.Errorf("nutrition entry %d: product is required", i)
		}
	}
	if len(f.Priority) == 0 && len(f.Nutrition) == 0 && len(f.Contacts) == 0 {
		return nil, errors.New("facts document is empty")
	}
	return &f, nil
}

// PriorityEntries converts the priority map to catalog entries, in order.
func (f *Facts) PriorityEntries() []llm.AssetEntry {
	entries := make([]llm.AssetEntry, 0, len(f.Priority))
	for _, p := range f.Priority {
		entries = append(entries, llm.AssetEntry{
			Label:       strings.ToUpper(strings.TrimSpace(p.Label)),
			URL:         strings.TrimSpace(p.URL),
			Source:      llm.SourceHardcoded,
			Description: p.Description,
			Aliases:     p.Aliases,
		})
	}
	return entries
}

// LookupNutrition finds a product by case-insensitive name.
func (f *Facts) LookupNutrition(product string) (Nutrition, bool) {
	want := strings.ToLower(strings.TrimSpace(product))
	for _, n := range f.Nutrition {
		if strings.ToLower(n.Product) == want {
			return n, true
		}
	}
	return Nutrition{}, false
}

// Label names the trust level of the tables in the prompt.
func (f *Facts) Label() string {
	if f != nil && f.Verified {
		return "VERIFIED"
	}
	return "UNVERIFIED REFERENCE"
}

// NutritionTable renders the nutrition facts for the system prompt.
func (f *Facts) NutritionTable() string {
	if len(f.Nutrition) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	sb.WriteString("Product | Serving | Calories | Protein (g) | Fat (g) | Sodium (mg)\n")
	for _, n := range f.Nutrition {
		fmt.Fprintf(&sb, "%s | %s | %d | %g | %g | %d\n",
			n.Product, n.ServingSize, n.Calories, n.ProteinG, n.FatG, n.SodiumMg)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// ContactTable renders the contact directory for the system prompt.
func (f *Facts) ContactTable() string {
	if len(f.Contacts) == 0 {
		return "(none)"
	}
	var lines []string
	for _, c := range f.Contacts {
		line := fmt.Sprintf("%s: %s", c.Department, c.Email)
		if c.Phone != "" {
			line += ", " + c.Phone
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
