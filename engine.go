package membership

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Engine applies the membership rules on top of a Store.
// It keeps no state between calls; every operation is a single transaction.
type Engine struct {
	store    *Store
	identity IdentityProvider
	options  options
	logger   *slog.Logger
}

// New creates an Engine.
func New(store *Store, identity IdentityProvider, opts ...Option) *Engine {
	var options = defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Engine{
		store:    store,
		identity: identity,
		options:  options,
		logger:   options.logger.With("namespace", store.Namespace()),
	}
}

// PublicCommunityID returns the configured always-public community, or "".
func (e *Engine) PublicCommunityID() string {
	return e.options.publicCommunityID
}

func (e *Engine) isPublic(communityID string) bool {
	return e.options.publicCommunityID != "" && communityID == e.options.publicCommunityID
}

func (e *Engine) nowMillis() int64 {
	return toMillis(e.options.now())
}

// requireSuperuser fails with Unauthorized unless actor is a superuser.
func (e *Engine) requireSuperuser(ctx context.Context, actor string) error {
	isSuperuser, err := e.isSuperuser(ctx, actor)
	if err != nil {
		return err
	}
	if !isSuperuser {
		return newError(CodeUnauthorized, "user %q is not a superuser", actor)
	}
	return nil
}

// requireAdminOf fails with Unauthorized unless actor administers communityID or is a superuser.
func (e *Engine) requireAdminOf(ctx context.Context, communityID, actor string) error {
	isSuperuser, err := e.isSuperuser(ctx, actor)
	if err != nil {
		return err
	}
	if isSuperuser {
		return nil
	}

	community, err := e.store.queries().GetCommunity(ctx, communityID)
	if err != nil {
		return storeError("get community", err)
	}
	if community == nil || community.AdminID == nil || *community.AdminID != actor {
		return newError(CodeUnauthorized, "user %q does not administer community %s", actor, communityID)
	}
	return nil
}

func (e *Engine) isSuperuser(ctx context.Context, actor string) (bool, error) {
	if actor == "" {
		return false, nil
	}

	isSuperuser, err := e.identity.IsSuperuser(ctx, actor)
	if err != nil {
		return false, storeError("check superuser", err)
	}
	return isSuperuser, nil
}

// resolveUser maps an identifier to a user id, failing with NotFound if nobody matches.
func (e *Engine) resolveUser(ctx context.Context, identifier string) (string, error) {
	userID, err := e.identity.ResolveUser(ctx, identifier)
	if err != nil {
		return "", storeError("resolve user", err)
	}
	if userID == "" {
		return "", newError(CodeNotFound, "no user matches %q", identifier)
	}
	return userID, nil
}

func newID() string {
	return uuid.New().String()
}

func requireIDs(ids ...string) error {
	for _, id := range ids {
		if id == "" {
			return newError(CodeValidation, "user and community ids are required")
		}
	}
	return nil
}
