package user

import (
	"context"

	"github.com/jackc/pgconn"
	"github.com/pkg/errors"

	"github.com/alignlab/alignd/internal/db"
	"github.com/alignlab/alignd/pkg/model"
)

// Store is the persistence interface for users and subscription tiers.
type Store interface {
	Add(ctx context.Context, user *model.User) error
	ByID(ctx context.Context, id model.UserID) (*model.User, error)
	ByUsername(ctx context.Context, username string) (*model.User, error)
	ByEmail(ctx context.Context, email string) (*model.User, error)
	TierByName(ctx context.Context, name string) (*model.SubscriptionTier, error)
	TierByID(ctx context.Context, id model.SubscriptionTierID) (*model.SubscriptionTier, error)
	UpdateStorage(ctx context.Context, id model.UserID, delta int64) error
}

// SessionStore is the persistence interface for user sessions.
type SessionStore interface {
	Add(ctx context.Context, session *model.UserSession) error
	ByID(ctx context.Context, id model.SessionID) (*model.UserSession, error)
	Delete(ctx context.Context, id model.SessionID) error
}

// PostgresStore implements Store on the bun singleton.
type PostgresStore struct{}

// NewPostgresStore returns the Postgres-backed user store.
func NewPostgresStore() *PostgresStore { return &PostgresStore{} }

// Add inserts a user row, translating uniqueness violations on username or
// email into ErrDuplicateUser.
func (*PostgresStore) Add(ctx context.Context, user *model.User) error {
	_, err := db.Bun().NewInsert().Model(user).Returning("*").Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return db.ErrDuplicateUser{Username: user.Username}
		}
		return errors.Wrap(err, "adding user")
	}
	return nil
}

// ByID returns the user with the given ID, with the subscription tier joined.
func (*PostgresStore) ByID(ctx context.Context, id model.UserID) (*model.User, error) {
	var user model.User
	err := db.Bun().NewSelect().Model(&user).
		Relation("Tier").
		Where("\"user\".id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, db.MatchSentinelError(err)
	}
	return &user, nil
}

// ByUsername returns the user with the given username.
func (*PostgresStore) ByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := db.Bun().NewSelect().Model(&user).
		Relation("Tier").
		Where("username = ?", username).
		Scan(ctx)
	if err != nil {
		return nil, db.MatchSentinelError(err)
	}
	return &user, nil
}

// ByEmail returns the user with the given email.
func (*PostgresStore) ByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := db.Bun().NewSelect().Model(&user).
		Where("email = ?", email).
		Scan(ctx)
	if err != nil {
		return nil, db.MatchSentinelError(err)
	}
	return &user, nil
}

// TierByName returns the subscription tier with the given name.
func (*PostgresStore) TierByName(
	ctx context.Context, name string,
) (*model.SubscriptionTier, error) {
	var tier model.SubscriptionTier
	err := db.Bun().NewSelect().Model(&tier).
		Where("name = ?", name).
		Where("active").
		Scan(ctx)
	if err != nil {
		return nil, db.MatchSentinelError(err)
	}
	return &tier, nil
}

// TierByID returns the subscription tier with the given ID.
func (*PostgresStore) TierByID(
	ctx context.Context, id model.SubscriptionTierID,
) (*model.SubscriptionTier, error) {
	var tier model.SubscriptionTier
	err := db.Bun().NewSelect().Model(&tier).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, db.MatchSentinelError(err)
	}
	return &tier, nil
}

// UpdateStorage adds delta (which may be negative) to the user's storage
// usage counter, clamped at zero.
func (*PostgresStore) UpdateStorage(
	ctx context.Context, id model.UserID, delta int64,
) error {
	_, err := db.Bun().NewUpdate().Model((*model.User)(nil)).
		Set("used_storage = GREATEST(0, used_storage + ?)", delta).
		Set("modified_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	return errors.Wrapf(err, "updating storage for user %d", id)
}

// PostgresSessionStore implements SessionStore on the bun singleton.
type PostgresSessionStore struct{}

// NewPostgresSessionStore returns the Postgres-backed session store.
func NewPostgresSessionStore() *PostgresSessionStore { return &PostgresSessionStore{} }

// Add inserts a session row.
func (*PostgresSessionStore) Add(ctx context.Context, session *model.UserSession) error {
	_, err := db.Bun().NewInsert().Model(session).Returning("*").Exec(ctx)
	return errors.Wrap(err, "adding user session")
}

// ByID returns the session with the given ID.
func (*PostgresSessionStore) ByID(
	ctx context.Context, id model.SessionID,
) (*model.UserSession, error) {
	var session model.UserSession
	err := db.Bun().NewSelect().Model(&session).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, db.MatchSentinelError(err)
	}
	return &session, nil
}

// Delete removes the session with the given ID.
func (*PostgresSessionStore) Delete(ctx context.Context, id model.SessionID) error {
	_, err := db.Bun().NewDelete().Model((*model.UserSession)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return errors.Wrapf(err, "deleting session %d", id)
}
