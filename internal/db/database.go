package db

import (
	"database/sql"
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotFound is returned if nothing is found.
var ErrNotFound = errors.New("not found")

// ErrDuplicateUser is returned when trying to create a user with a username
// or email that is already taken.
type ErrDuplicateUser struct {
	Username string
}

func (s ErrDuplicateUser) Error() string {
	return fmt.Sprintf("user with username %q already exists", s.Username)
}

// MatchSentinelError converts driver-level errors into the sentinel errors
// the rest of the codebase branches on.
func MatchSentinelError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
