package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/quill/pkg/accounts"
	"github.com/platinummonkey/quill/pkg/billing"
)

// planFile is the YAML shape of a plan catalog override
type planFile struct {
	Plans []planEntry `yaml:"plans"`
}

type planEntry struct {
	Plan        string `yaml:"plan"`
	Name        string `yaml:"name"`
	PriceCents  int64  `yaml:"price_cents"`
	Currency    string `yaml:"currency"`
	NoteLimit   int    `yaml:"note_limit"`
	Description string `yaml:"description"`
}

// LoadPlanCatalog returns the plan catalog, overridden from the YAML file at
// path when one is configured. An empty path means the built-in catalog.
func LoadPlanCatalog(path string) (billing.Catalog, error) {
	if path == "" {
		return billing.DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan catalog: %w", err)
	}

	var file planFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse plan catalog: %w", err)
	}
	if len(file.Plans) == 0 {
		return nil, fmt.Errorf("plan catalog %s defines no plans", path)
	}

	catalog := make(billing.Catalog, 0, len(file.Plans))
	for _, entry := range file.Plans {
		plan := accounts.Plan(entry.Plan)
		if plan != accounts.PlanFree && plan != accounts.PlanPro {
			return nil, fmt.Errorf("unknown plan %q in catalog %s", entry.Plan, path)
		}
		if entry.Currency == "" {
			entry.Currency = "USD"
		}
		catalog = append(catalog, billing.PlanInfo{
			Plan:        plan,
			Name:        entry.Name,
			PriceCents:  entry.PriceCents,
			Currency:    entry.Currency,
			NoteLimit:   entry.NoteLimit,
			Description: entry.Description,
		})
	}

	if _, ok := catalog.Find(accounts.PlanPro); !ok {
		return nil, fmt.Errorf("plan catalog %s is missing the pro plan", path)
	}
	return catalog, nil
}
