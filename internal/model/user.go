package model

import "time"

// User is keyed by the identity provider's subject claim. Rows are written
// once on first login and never updated by the login flow.
type User struct {
	ID         string    `db:"id" json:"id"`
	Email      string    `db:"email" json:"email"`
	Name       string    `db:"name" json:"name"`
	Picture    string    `db:"picture" json:"picture"`
	Registered time.Time `db:"registered" json:"registered"`
}

type UserSession struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	IP        string    `db:"ip"`
	UserAgent string    `db:"user_agent"`
	CreatedAt time.Time `db:"created_at"`
}
