package enginetypes

import "encoding/json"

// CanonicalID is the request identifier forced onto every canonical
// rendering, so that two calls differing only in id compare equal.
const CanonicalID uint64 = 0

// Canonical renders the request for storage and comparison: the identifier
// is forced to CanonicalID and the payload attributes are stripped, so two
// requests naming the same forkchoice produce identical bytes.
func (r ForkchoiceUpdatedRequest) Canonical() ([]byte, error) {
	c := r
	c.ID = CanonicalID
	c.Attributes = nil
	return json.Marshal(c)
}

// WithID returns a live copy of the request carrying the given identifier.
func (r ForkchoiceUpdatedRequest) WithID(id uint64) ForkchoiceUpdatedRequest {
	c := r
	c.ID = id
	return c
}

// Canonical renders the response for storage with the identifier forced to
// CanonicalID.
func (r ForkchoiceUpdatedResponse) Canonical() ([]byte, error) {
	c := r
	c.ID = CanonicalID
	return json.Marshal(c)
}

// WithID returns a live copy of the response carrying the given identifier,
// for return to a specific caller.
func (r ForkchoiceUpdatedResponse) WithID(id uint64) ForkchoiceUpdatedResponse {
	c := r
	c.ID = id
	return c
}

// Canonical renders the request for storage with the identifier forced to
// CanonicalID.
func (r NewPayloadRequest) Canonical() ([]byte, error) {
	c := r
	c.ID = CanonicalID
	return json.Marshal(c)
}

// Canonical renders the response for storage with the identifier forced to
// CanonicalID.
func (r PayloadStatusResponse) Canonical() ([]byte, error) {
	c := r
	c.ID = CanonicalID
	return json.Marshal(c)
}

// WithID returns a live copy of the response carrying the given identifier.
func (r PayloadStatusResponse) WithID(id uint64) PayloadStatusResponse {
	c := r
	c.ID = id
	return c
}

// Canonical renders the response for storage with the identifier forced to
// CanonicalID.
func (r TransitionConfigurationResponse) Canonical() ([]byte, error) {
	c := r
	c.ID = CanonicalID
	return json.Marshal(c)
}

// WithID returns a live copy of the generic response carrying the given
// identifier.
func (r Response) WithID(id uint64) Response {
	c := r
	c.ID = id
	return c
}
