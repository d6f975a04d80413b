package ai

import (
	"context"
	"log"
	"strings"

	"github.com/zhouzirui/crisis-desk/backend/internal/model/chat"
)

// Discovery lists chat-capable models and substitutes a fixed fallback list
// when listing fails or comes back empty.
type Discovery struct {
	gateway   Gateway
	fallback  []string
	preferred string
	hint      string
}

// DiscoveryConfig holds the constants discovery works from.
type DiscoveryConfig struct {
	Fallback  []string
	Preferred string
	Hint      string
}

// NewDiscovery creates a Discovery. The fallback list is copied.
func NewDiscovery(gateway Gateway, cfg DiscoveryConfig) *Discovery {
	return &Discovery{
		gateway:   gateway,
		fallback:  append([]string(nil), cfg.Fallback...),
		preferred: strings.TrimSpace(cfg.Preferred),
		hint:      strings.ToLower(strings.TrimSpace(cfg.Hint)),
	}
}

// Discover queries the gateway once.
func (d *Discovery) Discover(ctx context.Context) chat.ModelCatalog {
	models, err := d.gateway.ListModels(ctx)
	if err != nil {
		log.Printf("[discovery] model listing failed, using fallback list: %v", err)
		return d.fallbackCatalog(err.Error())
	}

	ids := make([]string, 0, len(models))
	for _, m := range models {
		if m.SupportsChat && m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		log.Printf("[discovery] provider returned no chat models, using fallback list")
		return d.fallbackCatalog("no chat-capable models returned")
	}

	return chat.ModelCatalog{
		Models:       ids,
		Source:       chat.CatalogListed,
		DefaultModel: d.pickDefault(ids),
	}
}

// Fallback returns a copy of the configured fallback list.
func (d *Discovery) Fallback() []string {
	return append([]string(nil), d.fallback...)
}

func (d *Discovery) fallbackCatalog(reason string) chat.ModelCatalog {
	ids := d.Fallback()
	return chat.ModelCatalog{
		Models:       ids,
		Source:       chat.CatalogFallback,
		DefaultModel: d.pickDefault(ids),
		Error:        reason,
	}
}

// pickDefault prefers the configured model, then the first id containing the
// hint, else the first id.
func (d *Discovery) pickDefault(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	for _, id := range ids {
		if d.preferred != "" && id == d.preferred {
			return id
		}
	}
	if d.hint != "" {
		for _, id := range ids {
			if strings.Contains(strings.ToLower(id), d.hint) {
				return id
			}
		}
	}
	return ids[0]
}
