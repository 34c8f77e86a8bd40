package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"comic-shelf/internal/domain"
	"comic-shelf/internal/repository"
	"comic-shelf/internal/upload"
)

const maxTextField = 255

// Uploader stores the files of a new comic. Accept validates the whole form
// before writing anything.
type Uploader interface {
	Accept(ctx context.Context, form upload.Form) (*upload.Result, error)
	Discard(ctx context.Context, paths []string)
}

// ComicService coordinates comic listing, creation and owner-only deletion.
type ComicService interface {
	ListComics(ctx context.Context) ([]domain.Comic, error)
	CreateComic(ctx context.Context, ownerID string, meta domain.ComicMeta, files upload.Form) (*domain.Comic, error)
	DeleteComic(ctx context.Context, id, callerID string) error
}

type comicService struct {
	comics   repository.ComicRepository
	uploader Uploader
	logger   logrus.FieldLogger
}

func NewComicService(comics repository.ComicRepository, uploader Uploader, logger logrus.FieldLogger) ComicService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &comicService{
		comics:   comics,
		uploader: uploader,
		logger:   logger,
	}
}

func (s *comicService) ListComics(ctx context.Context) ([]domain.Comic, error) {
	return s.comics.List(ctx)
}

func (s *comicService) CreateComic(ctx context.Context, ownerID string, meta domain.ComicMeta, files upload.Form) (*domain.Comic, error) {
	if ownerID == "" {
		return nil, domain.Errorf(domain.ErrAuth, "Authentication required")
	}
	meta, err := normalizeMeta(meta)
	if err != nil {
		return nil, err
	}
	stored, err := s.uploader.Accept(ctx, files)
	if err != nil {
		return nil, err
	}

	comic := &domain.Comic{
		ID:          uuid.NewString(),
		Title:       meta.Title,
		Description: meta.Description,
		Author:      meta.Author,
		CoverPath:   stored.CoverPath,
		Pages:       stored.PagePaths,
		OwnerID:     ownerID,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.comics.Create(ctx, comic); err != nil {
		s.uploader.Discard(context.WithoutCancel(ctx), stored.Paths())
		return nil, fmt.Errorf("save comic: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"comic_id": comic.ID,
		"owner_id": ownerID,
		"title":    comic.Title,
		"pages":    len(comic.Pages),
	}).Info("comic created")
	return comic, nil
}

func (s *comicService) DeleteComic(ctx context.Context, id, callerID string) error {
	comic, err := s.comics.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Errorf(domain.ErrNotFound, "Comic not found")
		}
		return err
	}

	if comic.OwnerID != callerID {
		s.logger.WithFields(logrus.Fields{
			"comic_id":  id,
			"owner_id":  comic.OwnerID,
			"requester": callerID,
		}).Warn("delete attempt by non-owner")
		return domain.Errorf(domain.ErrForbidden, "Unauthorized - you can only delete your own comics")
	}

	if err := s.comics.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Errorf(domain.ErrNotFound, "Comic not found")
		}
		return err
	}

	s.logger.WithFields(logrus.Fields{"comic_id": id, "title": comic.Title}).Info("comic deleted")
	return nil
}

func normalizeMeta(meta domain.ComicMeta) (domain.ComicMeta, error) {
	meta.Title = strings.TrimSpace(meta.Title)
	meta.Author = strings.TrimSpace(meta.Author)
	meta.Description = strings.TrimSpace(meta.Description)

	if meta.Title == "" || utf8.RuneCountInString(meta.Title) > maxTextField {
		return meta, domain.Errorf(domain.ErrValidation, "Invalid input: Title is required (max %d chars)", maxTextField)
	}
	if meta.Author == "" || utf8.RuneCountInString(meta.Author) > maxTextField {
		return meta, domain.Errorf(domain.ErrValidation, "Invalid input: Author is required (max %d chars)", maxTextField)
	}
	return meta, nil
}
