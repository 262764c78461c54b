// Package users is a thin pass-through over the externally managed user
// store. The service applies no logic of its own here beyond duplicate
// username checks; authentication against these users is currently disabled.
package users

import (
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrUsernameTaken indicates a create or rename collided with an existing
// username.
var ErrUsernameTaken = errors.New("username already taken")

// User is one administrative user. The password is stored as the managed
// store delivers it and is never serialized back out.
type User struct {
	ID       string `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
	Password string `db:"password" json:"-"`
}

// Store reads and writes the managed user table.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a Store over an open user database connection.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// List returns every user's id and username.
func (s *Store) List() ([]User, error) {
	users := make([]User, 0)
	err := s.db.Select(&users, "select id, username from users order by username")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// Create adds a user, rejecting duplicate usernames.
func (s *Store) Create(username, password string) error {
	var existing int
	err := s.db.Get(&existing, "select count(*) from users where username = $1", username)
	if err != nil {
		return fmt.Errorf("checking for existing user %s: %w", username, err)
	}
	if existing > 0 {
		return ErrUsernameTaken
	}
	_, err = s.db.Exec("insert into users (username, password) values ($1, $2)", username, password)
	if err != nil {
		return fmt.Errorf("creating user %s: %w", username, err)
	}
	return nil
}

// Delete removes a user by id.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec("delete from users where id = $1", id); err != nil {
		return fmt.Errorf("deleting user %s: %w", id, err)
	}
	return nil
}

// UpdatePassword replaces a user's password.
func (s *Store) UpdatePassword(id, password string) error {
	if _, err := s.db.Exec("update users set password = $1 where id = $2", password, id); err != nil {
		return fmt.Errorf("updating password for user %s: %w", id, err)
	}
	return nil
}

// UpdateUsername renames a user, rejecting usernames held by anyone else.
func (s *Store) UpdateUsername(id, username string) error {
	var existing int
	err := s.db.Get(&existing, "select count(*) from users where username = $1 and id <> $2", username, id)
	if err != nil {
		return fmt.Errorf("checking username %s availability: %w", username, err)
	}
	if existing > 0 {
		return ErrUsernameTaken
	}
	if _, err = s.db.Exec("update users set username = $1 where id = $2", username, id); err != nil {
		return fmt.Errorf("renaming user %s: %w", id, err)
	}
	return nil
}
