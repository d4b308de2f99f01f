package users

import "time"

// User is the account row. PasswordHash is an argon2id self-describing hash.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}
