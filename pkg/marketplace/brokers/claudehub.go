package brokers

import "github.com/platinummonkey/skillmeat/pkg/marketplace"

// ClaudeHubMaxPageSize is the largest page the ClaudeHub catalog serves
const ClaudeHubMaxPageSize = 50

// ClaudeHubProvider builds read-only brokers for the ClaudeHub catalog
type ClaudeHubProvider struct{}

func (ClaudeHubProvider) NewConfig() Config { return &ClaudeHubConfig{} }

func (ClaudeHubProvider) New(name string, cfg Config, deps Deps) (marketplace.Broker, error) {
	c, ok := cfg.(*ClaudeHubConfig)
	if !ok {
		return nil, configError(name, TypeClaudeHub, cfg)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger := deps.logger()
	return NewHTTPBroker(HTTPOptions{
		Name:        name,
		Endpoint:    c.Endpoint,
		MaxPageSize: ClaudeHubMaxPageSize,
		RateLimit:   c.RateLimitOrDefault(),
		CacheTTL:    c.CacheTTLOrDefault(),
		Token:       tokenFromEnv(c.TokenEnv, logger),
		Timeout:     deps.timeout(),
		Transport:   deps.Transport,
		Format:      ClaudeHubFormat{},
		Verifier:    deps.Verifier,
		Logger:      logger,
		Metrics:     deps.Metrics,
		ReadOnly:    true,
	}), nil
}
