package brokers

import (
	"context"

	"github.com/platinummonkey/skillmeat/pkg/marketplace"
)

// SkillMeatMaxPageSize is the largest page the SkillMeat API serves
const SkillMeatMaxPageSize = 100

// SkillMeatBroker talks to the SkillMeat marketplace API
type SkillMeatBroker struct {
	*HTTPBroker
}

// SubmissionStatus reports the review state of a submission
func (b *SkillMeatBroker) SubmissionStatus(ctx context.Context, submissionID string) (*marketplace.PublishResult, error) {
	return b.submissionStatus(ctx, submissionID)
}

// SkillMeatProvider builds SkillMeat brokers
type SkillMeatProvider struct{}

func (SkillMeatProvider) NewConfig() Config { return &SkillMeatConfig{} }

func (SkillMeatProvider) New(name string, cfg Config, deps Deps) (marketplace.Broker, error) {
	c, ok := cfg.(*SkillMeatConfig)
	if !ok {
		return nil, configError(name, TypeSkillMeat, cfg)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger := deps.logger()
	return &SkillMeatBroker{
		HTTPBroker: NewHTTPBroker(HTTPOptions{
			Name:        name,
			Endpoint:    c.Endpoint,
			MaxPageSize: SkillMeatMaxPageSize,
			RateLimit:   c.RateLimitOrDefault(),
			CacheTTL:    c.CacheTTLOrDefault(),
			Token:       tokenFromEnv(c.TokenEnv, logger),
			Timeout:     deps.timeout(),
			Transport:   deps.Transport,
			Format:      SkillMeatFormat{},
			Verifier:    deps.Verifier,
			Logger:      logger,
			Metrics:     deps.Metrics,
		}),
	}, nil
}
