package model

import "time"

type User struct {
	ID           string     `db:"id" json:"id"`
	DisplayName  string     `db:"display_name" json:"displayName"`
	APITokenHash string     `db:"api_token_hash" json:"-"`
	DisabledAt   *time.Time `db:"disabled_at" json:"disabledAt,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
}

type CreateUserParams struct {
	ID           string
	DisplayName  string
	APITokenHash string
}
