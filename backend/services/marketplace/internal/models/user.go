package models

import (
	"slices"
	"time"
)

// Role is a marketplace capacity. Roles are only ever added.
type Role string

const (
	RoleDriver Role = "driver"
	RoleHost   Role = "host"
)

const DefaultUserName = "Unknown User"

// User is an account with its green credit balance.
type User struct {
	ID              string    `json:"id,omitempty"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	Roles           []Role    `json:"roles"`
	GreenCredits    int       `json:"greenCredits"`
	ProfileImageURL *string   `json:"profileImageURL,omitempty"`
	PhoneNumber     *string   `json:"phoneNumber,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	IsVerified      bool      `json:"isVerified"`
	TotalBookings   int       `json:"totalBookings"`
	Rating          float64   `json:"rating"`
}

// HasRole reports whether the user holds role.
func (u User) HasRole(role Role) bool {
	return slices.Contains(u.Roles, role)
}

// EncodeUser converts u into a store document body.
func EncodeUser(u User) (map[string]any, error) {
	return encodeDocument(u)
}

// DecodeUser converts a store document into a User, filling the name and role defaults.
func DecodeUser(id string, data map[string]any) (User, error) {
	var u User
	if err := decodeDocument("user", id, data, &u); err != nil {
		return User{}, err
	}
	u.ID = id
	if u.Email == "" {
		return User{}, missingField("user", id, "email")
	}
	if u.Name == "" {
		u.Name = DefaultUserName
	}
	if len(u.Roles) == 0 {
		u.Roles = []Role{RoleDriver}
	}
	return u, nil
}
