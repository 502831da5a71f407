package provider

import (
	"github.com/veracity-labs/triangulate/pkg/config"
	"github.com/veracity-labs/triangulate/pkg/httpx"
)

// BuildRegistry constructs the full adapter fleet over one shared substrate
// client. Keyed providers are registered regardless of credentials; the
// router skips uncredentialed ones so the registry shape stays stable.
func BuildRegistry(client *httpx.Client, cfg *config.Config) *Registry {
	reg := NewRegistry()

	// Open, keyless tier.
	reg.Register(NewWikipediaProvider(client))
	reg.Register(NewWikidataProvider(client))
	reg.Register(NewWaybackProvider(client))
	reg.Register(NewOpenAlexProvider(client, cfg.ContactEmail))
	reg.Register(NewCrossrefProvider(client, cfg.ContactEmail))
	reg.Register(NewArxivProvider(client))
	reg.Register(NewPubMedProvider(client))
	reg.Register(NewEuropePMCProvider(client))
	reg.Register(NewWorldBankProvider(client))
	reg.Register(NewOECDProvider(client))
	reg.Register(NewIMFProvider(client))
	reg.Register(NewEurostatProvider(client))
	reg.Register(NewNominatimProvider(client))
	reg.Register(NewOverpassProvider(client))
	reg.Register(NewGDELTProvider(client))
	reg.Register(NewSECEdgarProvider(client))

	// Keyed tier.
	reg.Register(NewFREDProvider(client, cfg.Key("fred")))
	reg.Register(NewNPSProvider(client, cfg.Key("nps")))
	reg.Register(NewTavilyProvider(client, cfg.Key("tavily")))
	reg.Register(NewBraveProvider(client, cfg.Key("brave")))
	reg.Register(NewSerperProvider(client, cfg.Key("serper")))
	reg.Register(NewSerpAPIProvider(client, cfg.Key("serpapi")))

	// Per-provider circuit overrides from config.
	for name, pc := range cfg.ProviderCircuits {
		p, ok := reg.Get(name)
		if !ok {
			continue
		}
		for _, host := range p.Descriptor().Hosts {
			client.Breakers().Tune(host, pc.Threshold, pc.Cooldown)
		}
	}

	return reg
}

// Credentialed reports whether a registered provider can actually run: open
// providers always can, keyed ones only with a key configured.
func Credentialed(p Provider, cfg *config.Config) bool {
	desc := p.Descriptor()
	if desc.KeyName == "" {
		return true
	}
	return cfg.HasKey(desc.Name)
}
