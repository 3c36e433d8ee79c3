package roles

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockroom/stockroom/internal/platform/db"
	"github.com/stockroom/stockroom/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, name, is_active, created_at, created_by, updated_at, updated_by`

// ListActive returns active roles ordered by name.
func (r *Repository) ListActive(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.IsActive, &role.CreatedAt, &role.CreatedBy, &role.UpdatedAt, &role.UpdatedBy); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// Get fetches a role by ID.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

// Create inserts role.
func (r *Repository) Create(ctx context.Context, role Role) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `INSERT INTO roles (`+roleColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+roleColumns,
		role.ID, role.Name, role.IsActive, role.CreatedAt, role.CreatedBy, role.UpdatedAt, role.UpdatedBy))
}

// Update overwrites the mutable fields of role.
func (r *Repository) Update(ctx context.Context, role Role) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `UPDATE roles SET name = $2, is_active = $3, updated_at = $4, updated_by = $5
WHERE id = $1
RETURNING `+roleColumns,
		role.ID, role.Name, role.IsActive, role.UpdatedAt, role.UpdatedBy))
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.IsActive, &role.CreatedAt, &role.CreatedBy, &role.UpdatedAt, &role.UpdatedBy)
	switch {
	case err == nil:
		return role, nil
	case errors.Is(err, pgx.ErrNoRows):
		return Role{}, shared.ErrNotFound
	case db.IsUniqueViolation(err):
		return Role{}, ErrDuplicateName
	default:
		return Role{}, err
	}
}

var _ RepositoryPort = (*Repository)(nil)
