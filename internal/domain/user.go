package domain

import (
	"time"
)

// User is a registered account. PasswordHash is never serialized.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	FirstName        string     `json:"firstName"`
	LastName         string     `json:"lastName"`
	BirthDate        string     `json:"birthDate,omitempty"`
	PhoneNumber      string     `json:"phoneNumber,omitempty"`
	IsVerified       bool       `json:"isVerified"`
	RegistrationDate time.Time  `json:"registrationDate"`
	LastLoginDate    *time.Time `json:"lastLoginDate"`
}

// Clone returns a deep copy so callers can mutate without aliasing
// store-internal state.
func (u *User) Clone() *User {
	c := *u
	if u.LastLoginDate != nil {
		t := *u.LastLoginDate
		c.LastLoginDate = &t
	}
	return &c
}

// Summary is the abbreviated user shape returned alongside login tokens.
type Summary struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Summary returns the abbreviated view of the user.
func (u *User) Summary() Summary {
	return Summary{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// TokenPair holds a freshly minted access and refresh token.
type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}
