package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"infraforge/internal/assets"
)

// CatalogModel is one entry of the embedded model catalog.
type CatalogModel struct {
	DisplayName string `json:"displayName"`
	APIName     string `json:"apiName"`
	Default     bool   `json:"default,omitempty"`
}

// CatalogProvider groups the catalog models of one provider.
type CatalogProvider struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"displayName"`
	Models      []CatalogModel `json:"models"`
}

type catalogFile struct {
	Providers []CatalogProvider `json:"providers"`
}

var (
	catalogOnce sync.Once
	catalog     []CatalogProvider
	catalogErr  error
)

func loadCatalog() ([]CatalogProvider, error) {
	catalogOnce.Do(func() {
		var parsed catalogFile
		if err := json.Unmarshal(assets.ModelsData, &parsed); err != nil {
			catalogErr = fmt.Errorf("parse models asset: %w", err)
			return
		}
		catalog = parsed.Providers
	})
	return catalog, catalogErr
}

// ListProviders returns the embedded model catalog grouped by provider.
func ListProviders() ([]CatalogProvider, error) {
	return loadCatalog()
}

// DefaultModelFor resolves the catalog's default model name for a provider.
// The first model marked default wins; a provider with no marked default
// falls back to its first listed model.
func DefaultModelFor(providerID string) (string, error) {
	providers, err := loadCatalog()
	if err != nil {
		return "", err
	}
	providerID = strings.TrimSpace(providerID)
	for _, p := range providers {
		if p.ID != providerID {
			continue
		}
		if len(p.Models) == 0 {
			break
		}
		for _, m := range p.Models {
			if m.Default {
				return m.APIName, nil
			}
		}
		return p.Models[0].APIName, nil
	}
	return "", fmt.Errorf("no catalog models for provider %s", providerID)
}
