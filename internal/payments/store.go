package payments

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("payment not found")
	ErrAlreadyExists   = errors.New("payment already exists")
	ErrVersionConflict = errors.New("payment version conflict")
)

// Store persists payment records keyed by id.
//
// Update is a compare-and-swap on Version: it fails with ErrVersionConflict
// when the stored version differs from p.Version, and on success bumps
// p.Version to the stored value. Delete of an unknown id is not an error.
// List returns records in insertion order.
type Store interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	List(ctx context.Context) ([]*Payment, error)
	Update(ctx context.Context, p *Payment) error
	Delete(ctx context.Context, id string) error
}
