package ports

import "errors"

// ErrDuplicateRequestID is returned when a request id is recorded twice.
// The protocol library is expected to generate unique ids; this is a
// defensive check.
var ErrDuplicateRequestID = errors.New("request id already outstanding")

// ErrUnknownRequest is returned when resolving a request id that was never
// recorded. This is the defense against unsolicited or replayed responses.
var ErrUnknownRequest = errors.New("unknown request id")

// OutstandingStore tracks AuthnRequests sent but not yet answered, mapping
// each protocol request id to the location the user should return to after
// authentication.
type OutstandingStore interface {
	// Record inserts a request id with its return location. Returns
	// ErrDuplicateRequestID if the id is already outstanding.
	Record(requestID, returnLocation string) error

	// Resolve looks up the return location for a request id. Returns
	// ErrUnknownRequest if the id was never recorded.
	Resolve(requestID string) (string, error)

	// Forget removes a request id. Idempotent; called exactly once after a
	// response for that id has been fully processed, so an id can never be
	// resolved twice.
	Forget(requestID string)

	// IDs returns every outstanding request id. Response verification is
	// given the full set because the response carries the correlating id.
	IDs() []string
}
