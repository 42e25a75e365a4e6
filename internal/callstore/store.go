package callstore

import "context"

// Store persists call records and pushes every write to subscribers.
//
// Subscription contract: the channel receives the record after each write and
// nil if the record is deleted; the cancel func must be called on teardown.
type Store interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, bool, error)

	// SetStatus is the unconditional write of the store contract.
	SetStatus(ctx context.Context, id string, status Status) (Record, error)

	// SetStatusIfActive refuses to overwrite a terminal status and returns
	// ErrAlreadyTerminal instead.
	SetStatusIfActive(ctx context.Context, id string, status Status) (Record, error)

	Delete(ctx context.Context, id string) error

	Subscribe(ctx context.Context, id string) (<-chan *Record, func(), error)
}
