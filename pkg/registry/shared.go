package registry

import (
	"sync"

	"github.com/platinummonkey/skillmeat/pkg/config"
)

var (
	sharedMu sync.Mutex
	shared   *Registry
)

// Shared returns a process-wide registry, creating it on first use from
// SKILLMEAT_HOME. A non-empty configDir always builds a fresh registry, which
// then becomes the shared one.
func Shared(configDir string, opts ...Option) (*Registry, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if configDir == "" && shared != nil {
		return shared, nil
	}

	if configDir == "" {
		cfg, err := config.LoadConfig()
		if err != nil {
			return nil, err
		}
		configDir = cfg.Home
	}

	r, err := New(configDir, opts...)
	if err != nil {
		return nil, err
	}
	shared = r
	return r, nil
}
