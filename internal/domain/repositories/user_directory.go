package repositories

import (
	"context"

	"github.com/zatekoja/hospitalops/internal/domain/entities"
)

// UserDirectory is a read-only view of the hospital's user records
type UserDirectory interface {
	// Lookup resolves a user by ID
	Lookup(ctx context.Context, id int64) (*entities.User, error)

	// IteratePatients streams verified patient IDs in batches. fn is
	// called once per batch and iteration stops on its first error.
	IteratePatients(ctx context.Context, batchSize int, fn func(ids []int64) error) error

	// ListAvailableNurses returns verified nurses
	ListAvailableNurses(ctx context.Context) ([]*entities.User, error)

	// ListAvailableDoctors returns verified doctors
	ListAvailableDoctors(ctx context.Context) ([]*entities.User, error)
}
