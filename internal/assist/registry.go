package assist

import (
	"fmt"
	"log"
	"strings"

	"github.com/veritas-protocol/veritas-console/internal/lawref"
)

// Build constructs a Provider from a ProviderConfig. An empty provider name
// selects the offline rule engine.
func Build(cfg ProviderConfig, catalog *lawref.Catalog, logger *log.Logger) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "rule", "offline", "":
		return NewRuleProvider(catalog, DefaultTemplates()), nil
	case "openai":
		return NewOpenAIProvider(cfg.Endpoint, cfg.Model, cfg.APIKey, catalog, logger)
	default:
		return nil, fmt.Errorf("unknown assist provider: %s", cfg.Provider)
	}
}
