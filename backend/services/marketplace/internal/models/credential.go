package models

import "time"

// Credential is the login record of a user, keyed by lowercased email. It is stored apart from
// the User document so the hash never reaches clients.
type Credential struct {
	Email        string    `json:"-"`
	UserID       string    `json:"userId"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// EncodeCredential converts c into a store document body.
func EncodeCredential(c Credential) (map[string]any, error) {
	return encodeDocument(c)
}

// DecodeCredential converts a store document into a Credential.
func DecodeCredential(email string, data map[string]any) (Credential, error) {
	var c Credential
	if err := decodeDocument("credential", email, data, &c); err != nil {
		return Credential{}, err
	}
	c.Email = email
	switch {
	case c.UserID == "":
		return Credential{}, missingField("credential", email, "userId")
	case c.PasswordHash == "":
		return Credential{}, missingField("credential", email, "passwordHash")
	}
	return c, nil
}
