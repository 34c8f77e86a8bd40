package domain

import "time"

// Comic is an uploaded comic book. Pages keep reading order.
type Comic struct {
	ID          string
	Title       string
	Description string
	Author      string
	CoverPath   string
	Pages       []string
	OwnerID     string
	CreatedAt   time.Time
}

// ComicMeta carries the user supplied text fields of a new comic.
type ComicMeta struct {
	Title       string
	Author      string
	Description string
}
