package exchange

import "errors"

var (
	errNotAMap      = errors.New("unexpected response shape")
	errMissingField = errors.New("missing field in response")
	errNotSupported = errors.New("not supported by this venue adapter")
)
