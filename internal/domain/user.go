package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is an identity record. Credentials are stored as a bcrypt hash only.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	Email        string
	CreatedAt    time.Time
}

// Validate ensures the user record is complete
func (u *User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return errors.New("username cannot be empty")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash cannot be empty")
	}
	if !strings.Contains(u.Email, "@") {
		return errors.New("email must be a valid address")
	}
	return nil
}
