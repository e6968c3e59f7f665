package types

import "context"

// Sink is the contract between the in-memory stores and durable storage.
type Sink interface {

	/*
		Put persists one record.

		Records carry absolute values, so Put must keep the larger value when a record
		for the same key is already stored. Write policies may deliver records out of order.
	*/
	Put(ctx context.Context, rec Record) error

	// Load returns every stored record. It is used once at startup to restore the stores.
	Load(ctx context.Context) ([]Record, error)
}
