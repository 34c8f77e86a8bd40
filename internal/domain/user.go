package domain

import "time"

// DefaultAvatarURL is assigned to accounts that never uploaded an avatar.
const DefaultAvatarURL = "https://lh3.googleusercontent.com/a/default-user=s96-c"

// User represents a registered reader/uploader.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	AvatarURL    string
	CreatedAt    time.Time
}
