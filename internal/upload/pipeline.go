// Package upload validates multipart image uploads and persists them to a
// storage.Service under generated unique names.
package upload

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"mime"
	"mime/multipart"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"comic-shelf/internal/domain"
	"comic-shelf/internal/storage"
)

// Logical buckets (storage folders) and the form fields that feed them.
const (
	BucketCovers = "covers"
	BucketPages  = "pages"

	FieldCover = "cover"
	FieldPages = "pages"

	// URLPrefix is where the static responder serves stored files.
	URLPrefix = "/uploads/"

	DefaultMaxFileSize = 5 * 1024 * 1024
	DefaultMaxPages    = 20
)

var allowedTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

// Form is the set of files submitted with a comic.
type Form struct {
	Cover []*multipart.FileHeader
	Pages []*multipart.FileHeader
}

// Result holds the reference paths of stored files; PagePaths keeps input order.
type Result struct {
	CoverPath string
	PagePaths []string
}

// Paths lists every stored path, cover first.
func (r *Result) Paths() []string {
	if r == nil {
		return nil
	}
	return append([]string{r.CoverPath}, r.PagePaths...)
}

type Config struct {
	MaxFileSize int64
	MaxPages    int
	Logger      logrus.FieldLogger
}

type Pipeline struct {
	store storage.Service
	cfg   Config
	now   func() time.Time
}

func NewPipeline(store storage.Service, cfg Config) *Pipeline {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Pipeline{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// MaxRequestBytes bounds a whole upload request body.
func (p *Pipeline) MaxRequestBytes() int64 {
	return p.cfg.MaxFileSize*int64(p.cfg.MaxPages+1) + 1<<20
}

// Validate checks the form without writing anything.
func (p *Pipeline) Validate(form Form) error {
	if len(form.Cover) == 0 && len(form.Pages) == 0 {
		return domain.Errorf(domain.ErrMissingFields, "Cover and pages are required")
	}
	if len(form.Cover) == 0 {
		return domain.Errorf(domain.ErrMissingFields, "Cover image is required")
	}
	if len(form.Pages) == 0 {
		return domain.Errorf(domain.ErrMissingFields, "At least one page is required")
	}
	if len(form.Cover) > 1 {
		return domain.Errorf(domain.ErrValidation, "Only one cover image is allowed")
	}
	if len(form.Pages) > p.cfg.MaxPages {
		return domain.Errorf(domain.ErrValidation, "At most %d pages are allowed", p.cfg.MaxPages)
	}

	for _, fh := range append(form.Cover[:1:1], form.Pages...) {
		if err := p.validateFile(fh); err != nil {
			return err
		}
	}
	return nil
}

// Accept validates the form and stores every file. Nothing is written unless
// the whole form is valid; on a storage failure already written files are removed.
func (p *Pipeline) Accept(ctx context.Context, form Form) (*Result, error) {
	if err := p.Validate(form); err != nil {
		return nil, err
	}

	res := &Result{PagePaths: make([]string, 0, len(form.Pages))}
	var written []string

	coverPath, err := p.put(ctx, BucketCovers, FieldCover, form.Cover[0])
	if err != nil {
		return nil, err
	}
	written = append(written, coverPath)
	res.CoverPath = coverPath

	for _, fh := range form.Pages {
		pagePath, err := p.put(ctx, BucketPages, FieldPages, fh)
		if err != nil {
			p.Discard(context.WithoutCancel(ctx), written)
			return nil, err
		}
		written = append(written, pagePath)
		res.PagePaths = append(res.PagePaths, pagePath)
	}

	p.cfg.Logger.WithFields(logrus.Fields{
		"cover": res.CoverPath,
		"pages": len(res.PagePaths),
	}).Debug("upload stored")
	return res, nil
}

// Discard removes stored files. Failures are logged, not returned.
func (p *Pipeline) Discard(ctx context.Context, paths []string) {
	for _, ref := range paths {
		key, ok := KeyFromPath(ref)
		if !ok {
			continue
		}
		if err := p.store.Delete(ctx, key); err != nil {
			p.cfg.Logger.WithError(err).WithField("path", ref).Warn("discard stored file")
		}
	}
}

// KeyFromPath turns a reference path into a storage key.
func KeyFromPath(ref string) (string, bool) {
	if !strings.HasPrefix(ref, URLPrefix) {
		return "", false
	}
	key := strings.TrimPrefix(ref, URLPrefix)
	if key == "" {
		return "", false
	}
	return key, true
}

func (p *Pipeline) validateFile(fh *multipart.FileHeader) error {
	contentType := declaredType(fh)
	if _, ok := allowedTypes[contentType]; !ok {
		shown := contentType
		if shown == "" {
			shown = "unknown"
		}
		return domain.Errorf(domain.ErrInvalidFileType,
			"Invalid file type. Only JPEG, PNG, GIF, and WEBP are allowed. Got: %s", shown)
	}
	if fh.Size > p.cfg.MaxFileSize {
		return domain.Errorf(domain.ErrFileTooLarge,
			"File %q is too large (%d bytes, limit %d)", fh.Filename, fh.Size, p.cfg.MaxFileSize)
	}
	return nil
}

func (p *Pipeline) put(ctx context.Context, bucket, field string, fh *multipart.FileHeader) (string, error) {
	name, err := p.uniqueName(field, fh)
	if err != nil {
		return "", err
	}
	key := path.Join(bucket, name)

	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	if err := p.store.Put(ctx, key, f, fh.Size, declaredType(fh)); err != nil {
		return "", fmt.Errorf("store upload %s: %w", fh.Filename, err)
	}
	return URLPrefix + key, nil
}

// uniqueName is <field>-<unix nanos>-<8 hex chars><ext>.
func (p *Pipeline) uniqueName(field string, fh *multipart.FileHeader) (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("random name suffix: %w", err)
	}
	return fmt.Sprintf("%s-%d-%s%s", field, p.now().UnixNano(), hex.EncodeToString(b[:]), extension(fh)), nil
}

func declaredType(fh *multipart.FileHeader) string {
	raw := fh.Header.Get("Content-Type")
	if raw == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return strings.ToLower(mediaType)
}

func extension(fh *multipart.FileHeader) string {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if ext != "" && validExt(ext) {
		return ext
	}
	if m := mimetype.Lookup(declaredType(fh)); m != nil {
		return m.Extension()
	}
	return ""
}

func validExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 10 {
		return false
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
