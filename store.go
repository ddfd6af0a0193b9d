package guardedengineproxy

import (
	"context"
	"time"
)

// RecordStore is the persistence collaborator. It receives the canonical
// rendering of each accepted call keyed by method name and arrival time.
// Durability and ordering are the store's concern; write failures are
// logged by the proxy and never alter the reply already prepared for the
// caller.
type RecordStore interface {
	SaveRecord(ctx context.Context, method string, arrived time.Time, canonical []byte) error
}

// discardStore is the default RecordStore when none is configured.
type discardStore struct{}

func (discardStore) SaveRecord(context.Context, string, time.Time, []byte) error { return nil }
