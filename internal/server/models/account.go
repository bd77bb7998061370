// Package models contains the server's domain types.
package models

import "time"

// MediaSlot names one of the two image slots an account owns.
type MediaSlot int

const (
	SlotAvatar MediaSlot = iota + 1
	SlotCover
)

func (s MediaSlot) String() string {
	switch s {
	case SlotAvatar:
		return "avatar"
	case SlotCover:
		return "cover image"
	default:
		return "unknown"
	}
}

// MediaRef points at a stored blob. URL is what clients see; Key is the
// store-side handle needed to delete it. The zero value means "no media".
type MediaRef struct {
	URL string
	Key string
}

func (r MediaRef) IsZero() bool { return r.Key == "" && r.URL == "" }

// Account is a stored credential record. RefreshToken holds the one
// refresh token currently accepted for the account, or "" when none is.
type Account struct {
	ID           string
	Username     string
	Email        string
	FullName     string
	PasswordHash string
	Avatar       MediaRef
	Cover        MediaRef
	RefreshToken string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (a *Account) Media(slot MediaSlot) MediaRef {
	if slot == SlotCover {
		return a.Cover
	}
	return a.Avatar
}

func (a *Account) SetMedia(slot MediaSlot, ref MediaRef) {
	if slot == SlotCover {
		a.Cover = ref
		return
	}
	a.Avatar = ref
}

// PublicAccount is the projection of Account returned to clients. It never
// carries the password hash or the refresh token.
type PublicAccount struct {
	ID         string    `json:"_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName"`
	Avatar     string    `json:"avatar"`
	CoverImage string    `json:"coverImage"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (a *Account) Public() PublicAccount {
	return PublicAccount{
		ID:         a.ID,
		Username:   a.Username,
		Email:      a.Email,
		FullName:   a.FullName,
		Avatar:     a.Avatar.URL,
		CoverImage: a.Cover.URL,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

// OwnerProfile is the reduced account view embedded in watch history.
type OwnerProfile struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Avatar   string `json:"avatar"`
}
