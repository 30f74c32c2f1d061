package rpcserver

import "errors"

// Error taxonomy from spec.md §7. Event handlers and public operations
// return these directly or wrapped with fmt.Errorf("%w", ...) so callers
// can match with errors.Is.
var (
	// ErrInvalidArgument signals a precondition failure at API entry
	// (an empty required identity field, or an output buffer too small).
	ErrInvalidArgument = errors.New("rpcserver: invalid argument")

	// ErrNotSupported signals an API called on an RpcServer that was
	// never attached to a connection.
	ErrNotSupported = errors.New("rpcserver: not supported (not attached to a connection)")

	// ErrNotFound signals a required inbound MQTT5 property was absent.
	// No function in this package returns it: the request parser sees
	// a missing property through PropertyBag's ok result and drops the
	// request silently.
	ErrNotFound = errors.New("rpcserver: property not found")

	// ErrInvalidState signals an event delivered to a faulted instance.
	ErrInvalidState = errors.New("rpcserver: invalid state")
)
