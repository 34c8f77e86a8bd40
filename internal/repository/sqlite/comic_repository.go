package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"comic-shelf/internal/domain"
	"comic-shelf/internal/repository"
)

type ComicRepository struct {
	db *sql.DB
}

func NewComicRepository(db *sql.DB) repository.ComicRepository {
	return &ComicRepository{db: db}
}

func (r *ComicRepository) Create(ctx context.Context, comic *domain.Comic) error {
	if comic.CreatedAt.IsZero() {
		comic.CreatedAt = time.Now().UTC()
	}

	pages, err := encodePages(comic.Pages)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO comics (id, title, description, author, cover_url, pages, user_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		comic.ID,
		comic.Title,
		comic.Description,
		comic.Author,
		comic.CoverPath,
		pages,
		comic.OwnerID,
		comic.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert comic: %w", err)
	}
	return nil
}

func (r *ComicRepository) Get(ctx context.Context, id string) (*domain.Comic, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, title, description, author, cover_url, pages, user_id, created_at
FROM comics
WHERE id = ?`,
		id,
	)
	return scanComic(row)
}

func (r *ComicRepository) List(ctx context.Context) ([]domain.Comic, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, title, description, author, cover_url, pages, user_id, created_at
FROM comics
ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query comics: %w", err)
	}
	defer rows.Close()

	comics := []domain.Comic{}
	for rows.Next() {
		comic, err := scanComic(rows)
		if err != nil {
			return nil, err
		}
		comics = append(comics, *comic)
	}

	return comics, rows.Err()
}

func (r *ComicRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM comics WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete comic: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("comic delete rows affected: %w", err)
	}
	if aff == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanComic(scanner interface {
	Scan(dest ...any) error
}) (*domain.Comic, error) {
	var (
		comic     domain.Comic
		pages     string
		createdAt time.Time
	)

	if err := scanner.Scan(
		&comic.ID,
		&comic.Title,
		&comic.Description,
		&comic.Author,
		&comic.CoverPath,
		&pages,
		&comic.OwnerID,
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan comic: %w", err)
	}

	if err := json.Unmarshal([]byte(pages), &comic.Pages); err != nil {
		return nil, fmt.Errorf("decode pages of comic %s: %w", comic.ID, err)
	}
	comic.CreatedAt = createdAt.UTC()

	return &comic, nil
}

func encodePages(pages []string) (string, error) {
	if pages == nil {
		pages = []string{}
	}
	b, err := json.Marshal(pages)
	if err != nil {
		return "", fmt.Errorf("encode pages: %w", err)
	}
	return string(b), nil
}
