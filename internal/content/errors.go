package content

import "errors"

var (
	// ErrStoreUnavailable marks failures reaching the content store (connection loss, pool closed).
	ErrStoreUnavailable = errors.New("content store unavailable")
	// ErrUnknownStrategy is returned when a configured strategy name is not registered.
	ErrUnknownStrategy = errors.New("unknown strategy")
)
