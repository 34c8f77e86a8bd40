package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"comic-shelf/internal/repository/sqlite"
	"comic-shelf/internal/storage"
	"comic-shelf/internal/upload"
)

type fixture struct {
	db     *sql.DB
	users  UserService
	comics ComicService
	store  *storage.LocalService
	root   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	dir := t.TempDir()
	db, err := sqlite.Open(filepath.Join(dir, "comics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.Migrate(context.Background(), db, logger))

	root := filepath.Join(dir, "uploads")
	store, err := storage.NewLocalService(root)
	require.NoError(t, err)

	tokens, err := NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	return &fixture{
		db:     db,
		users:  NewUserService(sqlite.NewUserRepository(db), tokens, bcrypt.MinCost, logger),
		comics: NewComicService(sqlite.NewComicRepository(db), upload.NewPipeline(store, upload.Config{Logger: logger}), logger),
		store:  store,
		root:   root,
	}
}
