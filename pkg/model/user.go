package model

import (
	"time"

	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/guregu/null.v3"
)

// BCryptCost is the work factor used when hashing user passwords.
const BCryptCost = 12

// UserID is the type for user IDs.
type UserID int

// SessionID is the type for user session IDs.
type SessionID int

// SubscriptionTierID is the type for subscription tier IDs.
type SubscriptionTierID int

// User corresponds to a row in the "users" DB table.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID           UserID             `bun:"id,pk,autoincrement" json:"id"`
	Email        string             `bun:"email" json:"email"`
	Username     string             `bun:"username" json:"username"`
	PasswordHash null.String        `bun:"password_hash" json:"-"`
	Admin        bool               `bun:"admin" json:"admin"`
	Active       bool               `bun:"active" json:"active"`
	TierID       SubscriptionTierID `bun:"subscription_tier_id" json:"subscription_tier_id"`
	UsedStorage  int64              `bun:"used_storage" json:"used_storage"`
	CreatedAt    time.Time          `bun:"created_at,nullzero" json:"created_at"`
	ModifiedAt   time.Time          `bun:"modified_at,nullzero" json:"modified_at"`

	Tier *SubscriptionTier `bun:"rel:belongs-to,join:subscription_tier_id=id" json:"-"`
}

// UserSession corresponds to a row in the "user_sessions" DB table.
type UserSession struct {
	bun.BaseModel `bun:"table:user_sessions"`

	ID     SessionID `bun:"id,pk,autoincrement" json:"id"`
	UserID UserID    `bun:"user_id" json:"user_id"`
	Expiry time.Time `bun:"expiry" json:"expiry"`
}

// SubscriptionTier corresponds to a row in the "subscription_tiers" DB table.
// Storage limits are in bytes.
type SubscriptionTier struct {
	bun.BaseModel `bun:"table:subscription_tiers"`

	ID                 SubscriptionTierID `bun:"id,pk,autoincrement" json:"id"`
	Name               string             `bun:"name" json:"name"`
	DisplayName        string             `bun:"display_name" json:"display_name"`
	TotalStorageLimit  int64              `bun:"total_storage_limit" json:"total_storage_limit"`
	MaxConcurrentTasks int                `bun:"max_concurrent_tasks" json:"max_concurrent_tasks"`
	Active             bool               `bun:"active" json:"active"`
}

// ValidatePassword checks that the supplied password is correct.
func (user User) ValidatePassword(password string) bool {
	if !user.PasswordHash.Valid {
		return false
	}
	err := bcrypt.CompareHashAndPassword(
		[]byte(user.PasswordHash.ValueOrZero()),
		[]byte(password))
	return err == nil
}

// UpdatePasswordHash updates the model's password hash employing necessary cryptographic
// techniques.
func (user *User) UpdatePasswordHash(password string) error {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), BCryptCost)
	if err != nil {
		return err
	}
	user.PasswordHash = null.StringFrom(string(passwordHash))
	return nil
}

// CanAdministrate checks whether "user" may act on resources owned by other users.
func (user User) CanAdministrate() bool {
	return user.Admin
}
