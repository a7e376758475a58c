package marketplace

import "time"

// BrokerConfig holds the settings every provider type shares. Provider
// configuration types embed it inline.
type BrokerConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Endpoint  string           `yaml:"endpoint"`
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty"`
	// CacheTTL is in seconds
	CacheTTL *int `yaml:"cache_ttl,omitempty"`
}

// RateLimitOrDefault returns the configured limits or DefaultRateLimit
func (c BrokerConfig) RateLimitOrDefault() RateLimitConfig {
	if c.RateLimit == nil {
		return DefaultRateLimit()
	}
	return *c.RateLimit
}

// CacheTTLOrDefault returns the configured TTL or DefaultCacheTTL
func (c BrokerConfig) CacheTTLOrDefault() time.Duration {
	if c.CacheTTL == nil {
		return DefaultCacheTTL
	}
	return time.Duration(*c.CacheTTL) * time.Second
}

// Validate checks the shared settings
func (c BrokerConfig) Validate() error {
	if c.Endpoint == "" {
		return NewValidationError("endpoint is required")
	}
	if c.RateLimit != nil {
		if err := c.RateLimit.Validate(); err != nil {
			return err
		}
	}
	if c.CacheTTL != nil && *c.CacheTTL < 0 {
		return NewValidationError("cache_ttl cannot be negative, got %d", *c.CacheTTL)
	}
	return nil
}
