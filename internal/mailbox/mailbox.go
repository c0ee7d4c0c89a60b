// Package mailbox implements the keyed drop-box transport shared by the worker
// and its clients. A mailbox is a set of pending payloads keyed by request id:
// insertion is Publish, consumption is Read followed by Delete.
package mailbox

import (
	"context"
	"errors"
)

type Mailbox interface {
	// Publish stores payload under id. Readers never observe a partial payload
	// under the final key.
	Publish(ctx context.Context, id string, payload []byte) error
	// List returns the ids currently pending, in no particular order.
	List(ctx context.Context) ([]string, error)
	// Read returns the payload for id, or shared.ErrNotFound.
	Read(ctx context.Context, id string) ([]byte, error)
	// Delete removes id. It is idempotent; the bool reports whether this call
	// was the one that removed it.
	Delete(ctx context.Context, id string) (bool, error)
	// Probe checks that the mailbox exists and accepts writes.
	Probe(ctx context.Context) error
	// Purge removes the mailbox and everything in it.
	Purge(ctx context.Context) error
}

// Ensurer is implemented by backends that must be created before use.
type Ensurer interface {
	Ensure() error
}

// Pair is the inbound request mailbox and the outbound response mailbox.
type Pair struct {
	Requests  Mailbox
	Responses Mailbox
}

func (p Pair) Probe(ctx context.Context) error {
	if err := p.Requests.Probe(ctx); err != nil {
		return err
	}
	return p.Responses.Probe(ctx)
}

func (p Pair) Ensure() error {
	for _, m := range []Mailbox{p.Requests, p.Responses} {
		if e, ok := m.(Ensurer); ok {
			if err := e.Ensure(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p Pair) Purge(ctx context.Context) error {
	return errors.Join(p.Requests.Purge(ctx), p.Responses.Purge(ctx))
}
