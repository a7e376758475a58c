package brokers

import (
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/skillmeat/pkg/marketplace"
	"github.com/platinummonkey/skillmeat/pkg/observability"
	"github.com/platinummonkey/skillmeat/pkg/signing"
)

// Provider type tags
const (
	TypeLocal     = "local"
	TypeSkillMeat = "skillmeat"
	TypeClaudeHub = "claudehub"
	TypeCustom    = "custom"
)

// Config is a provider-specific configuration. Each provider type has its
// own struct so fields that belong to another provider fail strict decoding.
type Config interface {
	Common() *marketplace.BrokerConfig
}

// SkillMeatConfig configures the SkillMeat marketplace
type SkillMeatConfig struct {
	marketplace.BrokerConfig `yaml:",inline"`
	// TokenEnv names the environment variable holding a bearer token
	TokenEnv string `yaml:"token_env,omitempty"`
}

func (c *SkillMeatConfig) Common() *marketplace.BrokerConfig { return &c.BrokerConfig }

// ClaudeHubConfig configures the ClaudeHub catalog
type ClaudeHubConfig struct {
	marketplace.BrokerConfig `yaml:",inline"`
	TokenEnv                 string `yaml:"token_env,omitempty"`
}

func (c *ClaudeHubConfig) Common() *marketplace.BrokerConfig { return &c.BrokerConfig }

// CustomConfig configures a self-hosted marketplace
type CustomConfig struct {
	marketplace.BrokerConfig `yaml:",inline"`
	// SchemaURL points at a JSON object mapping listing fields to the
	// provider's native field names
	SchemaURL string `yaml:"schema_url,omitempty"`
	TokenEnv  string `yaml:"token_env,omitempty"`
}

func (c *CustomConfig) Common() *marketplace.BrokerConfig { return &c.BrokerConfig }

// LocalConfig configures a directory-backed marketplace
type LocalConfig struct {
	marketplace.BrokerConfig `yaml:",inline"`
}

func (c *LocalConfig) Common() *marketplace.BrokerConfig { return &c.BrokerConfig }

// Deps are the shared collaborators handed to every provider
type Deps struct {
	Logger      *logrus.Logger
	Metrics     *observability.Metrics
	Verifier    signing.Verifier
	HTTPTimeout time.Duration
	// Transport overrides the base HTTP transport
	Transport http.RoundTripper
}

// Provider constructs brokers of one type
type Provider interface {
	// NewConfig returns an empty configuration to decode into
	NewConfig() Config
	// New builds a broker from a decoded configuration
	New(name string, cfg Config, deps Deps) (marketplace.Broker, error)
}

// DefaultProviders returns the built-in provider set keyed by type tag
func DefaultProviders() map[string]Provider {
	return map[string]Provider{
		TypeLocal:     LocalProvider{},
		TypeSkillMeat: SkillMeatProvider{},
		TypeClaudeHub: ClaudeHubProvider{},
		TypeCustom:    CustomProvider{},
	}
}

func tokenFromEnv(envName string, logger *logrus.Logger) string {
	if envName == "" {
		return ""
	}
	token := os.Getenv(envName)
	if token == "" {
		logger.Debugf("Token variable %s is empty, requests will be anonymous", envName)
	}
	return token
}

func configError(name string, want string, got Config) error {
	return marketplace.NewValidationError("broker %s: expected %s config, got %T", name, want, got)
}

func (d Deps) logger() *logrus.Logger {
	if d.Logger == nil {
		return logrus.New()
	}
	return d.Logger
}

func (d Deps) timeout() time.Duration {
	if d.HTTPTimeout <= 0 {
		return 30 * time.Second
	}
	return d.HTTPTimeout
}
