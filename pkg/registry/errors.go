package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrBrokerRegistry is returned when the configuration document is
	// malformed or a registration conflicts
	ErrBrokerRegistry = errors.New("broker registry error")

	// ErrBrokerNotFound is returned by Get for names without a live broker
	ErrBrokerNotFound = fmt.Errorf("%w: broker not found", ErrBrokerRegistry)
)

// IsBrokerRegistryError checks if the error is or wraps ErrBrokerRegistry
func IsBrokerRegistryError(err error) bool {
	return errors.Is(err, ErrBrokerRegistry)
}

// IsNotFound checks if the error is or wraps ErrBrokerNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBrokerNotFound)
}
