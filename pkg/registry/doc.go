// Package registry loads marketplace brokers from marketplace.yaml.
//
// # Overview
//
// The document maps broker names to provider settings. The name selects the
// provider type, so an entry called "claudehub" is always a ClaudeHub broker:
//
//	brokers:
//	  skillmeat:
//	    enabled: true
//	    endpoint: https://marketplace.skillmeat.dev/api/v1
//	    rate_limit: {max_requests: 60, time_window: 60, retry_after: 60}
//	    cache_ttl: 300
//	    token_env: SKILLMEAT_TOKEN
//
// Each entry is decoded strictly into its provider's configuration type, so a
// key that belongs to another provider (schema_url on skillmeat, say) skips
// the entry with a warning instead of being silently ignored. Entries with an
// unknown type, no endpoint, or an endpoint outside local://, file://,
// http:// and https:// are skipped the same way. Only a document that cannot
// be parsed at all fails New and Reload.
//
// EnableBroker and DisableBroker edit the node tree, preserving comments and
// key order, before reloading.
//
// # Usage Example
//
//	reg, err := registry.New(cfg.Home, registry.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer reg.CloseAll()
//
//	if err := reg.Watch(ctx); err != nil {
//		logger.WithError(err).Warn("Hot reload disabled")
//	}
//	result := marketplace.AggregateListings(ctx, reg.Enabled(), query, cfg.FanoutTimeout)
//
// # Related Packages
//
//   - pkg/marketplace/brokers: Provider implementations and config types
//   - pkg/config: Supplies the home directory
package registry
