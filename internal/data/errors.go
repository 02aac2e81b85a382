package data

import "errors"

// ErrUnknownStoreDriver is returned by NewStateStore for an unsupported driver name.
var ErrUnknownStoreDriver = errors.New("unknown state store driver")
