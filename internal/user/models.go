package user

import (
	"time"

	id "chatwall/pkg/domain"
)

// User is the directory record behind every identity in the system.
type User struct {
	ID        id.UserID `json:"id"`
	GoogleID  string    `json:"-"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public is the subset of fields other users are allowed to see.
type Public struct {
	ID        id.UserID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
}

// ToPublic strips private fields for cross-user responses.
func (u *User) ToPublic() Public {
	return Public{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
	}
}

// GoogleProfile carries the fields read from Google's userinfo endpoint.
type GoogleProfile struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}
