package models

import "time"

// UserStatus is the account state owned by the identity service; the chat
// core only reads it to reject inactive accounts at connect time.
type UserStatus string

const (
	UserActive    UserStatus = "active"
	UserSuspended UserStatus = "suspended"
)

// User is the profile subset the messaging core consumes: display identity,
// account state and push destination.
type User struct {
	ID                   int        `db:"id" json:"id"`
	DisplayName          string     `db:"display_name" json:"display_name"`
	Status               UserStatus `db:"status" json:"status"`
	PushToken            *string    `db:"push_token" json:"-"`
	NotificationsEnabled bool       `db:"notifications_enabled" json:"notifications_enabled"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
}
