package cluster

import "errors"

var (
	// ErrNoCoordinator is returned when a topology has no addressable coordinator
	ErrNoCoordinator = errors.New("topology has no coordinator")

	// ErrNoPublicKey is returned when the coordinator's key could not be read
	ErrNoPublicKey = errors.New("coordinator returned no public key")
)
