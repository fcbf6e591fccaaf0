package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var (
	upsertUserSQL = `
INSERT INTO %[1]s_users (` + userColumns + `)
VALUES (:id, :email, :phone, :display_name, :is_superuser)
ON CONFLICT (id)
DO UPDATE SET
    email = EXCLUDED.email,
    phone = EXCLUDED.phone,
    display_name = EXCLUDED.display_name,
    is_superuser = EXCLUDED.is_superuser;`

	getUserSQL = `
SELECT ` + userColumns + `
FROM %[1]s_users
WHERE id = ?;`

	findUserByContactSQL = `
SELECT ` + userColumns + `
FROM %[1]s_users
WHERE id = ? OR LOWER(email) = LOWER(?) OR (phone <> '' AND phone = ?)
ORDER BY CASE WHEN id = ? THEN 0 ELSE 1 END, id ASC
LIMIT 1;`
)

// UpsertUser inserts or updates a directory entry.
func (q *Queries) UpsertUser(ctx context.Context, user *UserRecord) error {
	var query = q.format(upsertUserSQL)
	if _, err := sqlx.NamedExecContext(ctx, q.db, query, user); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// GetUser retrieves a directory entry by id. Returns nil if it does not exist.
func (q *Queries) GetUser(ctx context.Context, id string) (*UserRecord, error) {
	var (
		user UserRecord
		err  = sqlx.GetContext(ctx, q.db, &user, q.rebind(getUserSQL), id)
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// FindUserByContact resolves an id, email (case-insensitive) or phone number to a directory entry.
// An exact id match wins. Returns nil if nothing matches.
func (q *Queries) FindUserByContact(ctx context.Context, identifier string) (*UserRecord, error) {
	var (
		user UserRecord
		err  = sqlx.GetContext(ctx, q.db, &user, q.rebind(findUserByContactSQL),
			identifier, identifier, identifier, identifier)
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return &user, nil
}
