package membership

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"

	"go-membership/database"
)

var (
	// ErrInvalidNamespace is returned when the namespace contains invalid characters
	ErrInvalidNamespace = errors.New("namespace must contain only lowercase letters, numbers, and underscores, and start with a letter")

	// validNamespacePattern validates SQL-safe identifiers
	validNamespacePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// maxNamespaceLength keeps the longest derived index name within Postgres' 63 byte limit.
const maxNamespaceLength = 36

// ValidateNamespace checks if the namespace is valid as a table name prefix.
func ValidateNamespace(namespace string) error {
	if namespace == "" {
		return errors.New("namespace cannot be empty")
	}

	if len(namespace) > maxNamespaceLength {
		return fmt.Errorf("namespace must be %d characters or less", maxNamespaceLength)
	}

	if !validNamespacePattern.MatchString(namespace) {
		return ErrInvalidNamespace
	}

	return nil
}

// Store is the durable home of communities, memberships and leader assignments.
// Every mutation runs inside a transaction opened by the Store.
type Store struct {
	db        *sqlx.DB
	namespace string
}

// NewStore creates a Store over db using tables prefixed with namespace.
func NewStore(db *sqlx.DB, namespace string) (*Store, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return nil, fmt.Errorf("invalid namespace: %w", err)
	}

	return &Store{
		db:        db,
		namespace: namespace,
	}, nil
}

// Migrate creates the store's tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if err := database.Migrate(ctx, s.db, s.namespace); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Namespace returns the table prefix.
func (s *Store) Namespace() string {
	return s.namespace
}

// queries returns non-transactional queries for reads.
func (s *Store) queries() *database.Queries {
	return database.NewQueries(s.db, s.namespace)
}

// inTx runs fn inside a transaction and commits if fn returns nil.
// Errors that are not engine errors are classified by storeError.
func (s *Store) inTx(ctx context.Context, op string, fn func(q *database.Queries) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storeError(op, fmt.Errorf("failed to begin transaction: %w", err))
	}

	if err := fn(database.NewQueries(tx, s.namespace)); err != nil {
		_ = tx.Rollback()
		return storeError(op, err)
	}

	if err := tx.Commit(); err != nil {
		return storeError(op, fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func communityFromRow(row *database.CommunityRecord) Community {
	var community = Community{
		ID:        row.ID,
		Name:      row.Name,
		IsActive:  row.IsActive,
		CreatedAt: fromMillis(row.CreatedAt),
	}
	if row.AdminID != nil {
		community.AdminID = *row.AdminID
	}
	return community
}

func recordFromRow(row *database.MembershipRecord) Record {
	return Record{
		ID:          row.ID,
		UserID:      row.UserID,
		CommunityID: row.CommunityID,
		Status:      Status(row.Status),
		Role:        Role(row.Role),
		BlockRef:    row.BlockRef,
		Address:     row.Address,
		RequestedAt: fromMillis(row.RequestedAt),
		UpdatedAt:   fromMillis(row.UpdatedAt),
	}
}

func recordsFromRows(rows []*database.MembershipRecord) []Record {
	var records = make([]Record, len(rows))
	for i, row := range rows {
		records[i] = recordFromRow(row)
	}
	return records
}

func leaderFromRow(row *database.LeaderRecord) LeaderAssignment {
	return LeaderAssignment{
		ID:          row.ID,
		CommunityID: row.CommunityID,
		UserID:      row.UserID,
		LeaderType:  LeaderType(row.LeaderType),
		IsActive:    row.IsActive,
		AssignedBy:  row.AssignedBy,
		AssignedAt:  fromMillis(row.AssignedAt),
	}
}

func adminRef(userID string) *string {
	if userID == "" {
		return nil
	}
	return &userID
}
