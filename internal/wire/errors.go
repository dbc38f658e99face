package wire

import "errors"

// Sentinel errors surfaced by the Request Normalizer. Callers distinguish
// them with errors.Is.
var (
	// ErrDeserialize means the request body matched neither dialect schema.
	ErrDeserialize = errors.New("wire: request body did not match either dialect schema")

	// ErrBadRequest means a structural violation was found after parsing
	// (e.g. a Code-ingress system prompt that isn't an array post-injection).
	ErrBadRequest = errors.New("wire: structural violation in request")

	// ErrTestMessage means the canonical "Hi" probe matched; callers should
	// respond with a canned 200 instead of forwarding upstream.
	ErrTestMessage = errors.New("wire: canonical test message probe matched")
)
