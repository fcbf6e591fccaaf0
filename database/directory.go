package database

import (
	"context"
	"strings"
)

// Directory resolves contact identifiers and superuser status from the users table.
type Directory struct {
	queries *Queries
}

// NewDirectory creates a Directory over the given handle and namespace.
func NewDirectory(db DBTX, namespace string) *Directory {
	return &Directory{queries: NewQueries(db, namespace)}
}

// ResolveUser returns the user id for an id, email or phone number, or "" if nothing matches.
func (d *Directory) ResolveUser(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", nil
	}

	var user, err = d.queries.FindUserByContact(ctx, identifier)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", nil
	}
	return user.ID, nil
}

// IsSuperuser reports whether the user holds the superuser role. Unknown users are not superusers.
func (d *Directory) IsSuperuser(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}

	var user, err = d.queries.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return user != nil && user.IsSuperuser, nil
}

// UpsertUser inserts or updates a directory entry.
func (d *Directory) UpsertUser(ctx context.Context, user *UserRecord) error {
	return d.queries.UpsertUser(ctx, user)
}
