package repository

import (
	"context"

	"comic-shelf/internal/domain"
)

// ComicRepository exposes persistence operations for Comic records.
type ComicRepository interface {
	Create(ctx context.Context, comic *domain.Comic) error
	Get(ctx context.Context, id string) (*domain.Comic, error)
	// List returns every comic, newest first.
	List(ctx context.Context) ([]domain.Comic, error)
	Delete(ctx context.Context, id string) error
}
