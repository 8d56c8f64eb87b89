package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/zatekoja/hospitalops/internal/domain/entities"
	"github.com/zatekoja/hospitalops/internal/domain/repositories"
	"github.com/zatekoja/hospitalops/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/hospitalops/pkg/errors"
)

// UserDirectoryAdapter implements the read-only UserDirectory interface
type UserDirectoryAdapter struct {
	client *postgres.Client
}

// NewUserDirectoryAdapter creates a new user directory adapter
func NewUserDirectoryAdapter(client *postgres.Client) repositories.UserDirectory {
	return &UserDirectoryAdapter{client: client}
}

// Lookup resolves a user by ID
func (a *UserDirectoryAdapter) Lookup(ctx context.Context, id int64) (*entities.User, error) {
	query, args, err := dialect.From("users").
		Select("id", "name", "role", "verified", "hospital").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	user := &entities.User{}
	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(
		&user.ID, &user.Name, &user.Role, &user.Verified, &user.Hospital,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("user with id %d not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get user", err)
	}
	return user, nil
}

// IteratePatients streams verified patient IDs in keyset-paginated batches
func (a *UserDirectoryAdapter) IteratePatients(ctx context.Context, batchSize int, fn func(ids []int64) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}

	var after int64
	for {
		query, args, err := dialect.From("users").
			Select("id").
			Where(goqu.Ex{"role": entities.RolePatient, "verified": true}).
			Where(goqu.C("id").Gt(after)).
			Order(goqu.I("id").Asc()).
			Limit(uint(batchSize)).
			ToSQL()
		if err != nil {
			return apperrors.NewInternalError("failed to build query", err)
		}

		rows, err := a.client.DB().QueryContext(ctx, query, args...)
		if err != nil {
			return apperrors.NewInternalError("failed to list patients", err)
		}

		ids := make([]int64, 0, batchSize)
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return apperrors.NewInternalError("failed to scan patient id", err)
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return apperrors.NewInternalError("failed to list patients", err)
		}
		rows.Close()

		if len(ids) == 0 {
			return nil
		}
		if err := fn(ids); err != nil {
			return err
		}
		if len(ids) < batchSize {
			return nil
		}
		after = ids[len(ids)-1]
	}
}

// ListAvailableNurses returns verified nurses
func (a *UserDirectoryAdapter) ListAvailableNurses(ctx context.Context) ([]*entities.User, error) {
	return a.listByRole(ctx, entities.RoleNurse)
}

// ListAvailableDoctors returns verified doctors
func (a *UserDirectoryAdapter) ListAvailableDoctors(ctx context.Context) ([]*entities.User, error) {
	return a.listByRole(ctx, entities.RoleDoctor)
}

func (a *UserDirectoryAdapter) listByRole(ctx context.Context, role entities.UserRole) ([]*entities.User, error) {
	query, args, err := dialect.From("users").
		Select("id", "name", "role", "verified", "hospital").
		Where(goqu.Ex{"role": role, "verified": true}).
		Order(goqu.I("name").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list users", err)
	}
	defer rows.Close()

	var users []*entities.User
	for rows.Next() {
		user := &entities.User{}
		if err := rows.Scan(&user.ID, &user.Name, &user.Role, &user.Verified, &user.Hospital); err != nil {
			return nil, apperrors.NewInternalError("failed to scan user", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}
