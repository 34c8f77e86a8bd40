package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apphttp "comic-shelf/internal/http"
	"comic-shelf/internal/repository/sqlite"
	"comic-shelf/internal/service"
	"comic-shelf/internal/storage"
	"comic-shelf/internal/upload"
	"comic-shelf/internal/upload/uploadtest"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
}

type serverOptions struct {
	loginRate int
	maxPages  int
	origins   []string
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger, _ := test.NewNullLogger()
	dir := t.TempDir()

	db, err := sqlite.Open(filepath.Join(dir, "comics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.Migrate(context.Background(), db, logger))

	store, err := storage.NewLocalService(filepath.Join(dir, "uploads"))
	require.NoError(t, err)
	pipeline := upload.NewPipeline(store, upload.Config{MaxPages: opts.maxPages, Logger: logger})

	tokens, err := service.NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	origins := opts.origins
	if origins == nil {
		origins = []string{"http://localhost:3000"}
	}

	handler := apphttp.NewHandler(apphttp.Config{
		Users:          service.NewUserService(sqlite.NewUserRepository(db), tokens, bcrypt.MinCost, logger),
		Comics:         service.NewComicService(sqlite.NewComicRepository(db), pipeline, logger),
		Storage:        store,
		Logger:         logger,
		AllowedOrigins: origins,
		MaxUploadBytes: pipeline.MaxRequestBytes(),
		LoginRate:      opts.loginRate,
	})

	router := gin.New()
	router.Use(gin.Recovery())
	handler.RegisterRoutes(router)
	return &testServer{t: t, router: router}
}

func (s *testServer) do(req *http.Request) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func (s *testServer) json(method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.do(req)
}

func (s *testServer) upload(token string, fields map[string]string, files ...uploadtest.File) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	body, contentType := uploadtest.Body(s.t, fields, files...)
	req := httptest.NewRequest(http.MethodPost, "/api/comics", body)
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.do(req)
}

func (s *testServer) register(name, email, password string) apphttp.AuthResponse {
	s.t.Helper()
	rec, env := s.json(http.MethodPost, "/api/auth/register", "", map[string]string{"name": name, "email": email, "password": password})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	var auth apphttp.AuthResponse
	require.NoError(s.t, json.Unmarshal(env.Data, &auth))
	return auth
}

func (s *testServer) listComics() []apphttp.ComicResponse {
	s.t.Helper()
	rec, env := s.json(http.MethodGet, "/api/comics", "", nil)
	require.Equal(s.t, http.StatusOK, rec.Code)
	var comics []apphttp.ComicResponse
	require.NoError(s.t, json.Unmarshal(env.Data, &comics))
	return comics
}

func TestEndToEndScenario(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	a := s.register("Ada", "ada@x.com", "secret1")

	rec, env := s.json(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@x.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var b apphttp.AuthResponse
	require.NoError(t, json.Unmarshal(env.Data, &b))
	assert.NotEqual(t, a.Token, b.Token)
	assert.Equal(t, a.User.ID, b.User.ID)

	rec, env = s.upload(a.Token, map[string]string{"title": "T", "author": "Ada"},
		uploadtest.Cover("cover.png"), uploadtest.Page("p1.jpg"), uploadtest.Page("p2.jpg"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created apphttp.ComicResponse
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Len(t, created.Pages, 2)
	assert.Equal(t, a.User.ID, created.OwnerID)

	comics := s.listComics()
	require.Len(t, comics, 1)
	assert.Equal(t, "T", comics[0].Title)

	rec, env = s.json(http.MethodDelete, "/api/comics/"+created.ID, b.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Comic deleted successfully", env.Message)

	assert.Empty(t, s.listComics())
}

func TestRegisterErrors(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	s.register("Ada", "ada@x.com", "secret1")

	rec, env := s.json(http.MethodPost, "/api/auth/register", "", map[string]string{"name": "Ada", "email": "ADA@x.com", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Email already registered", env.Message)

	rec, env = s.json(http.MethodPost, "/api/auth/register", "", map[string]string{"name": "Bob", "email": "bob@x.com", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Message, "Invalid input")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec, _ = s.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	s.register("Ada", "ada@x.com", "secret1")

	rec1, env1 := s.json(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@x.com", "password": "wrong-1"})
	rec2, env2 := s.json(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "eve@x.com", "password": "secret1"})

	assert.Equal(t, http.StatusUnauthorized, rec1.Code)
	assert.Equal(t, http.StatusUnauthorized, rec2.Code)
	assert.Equal(t, env1.Message, env2.Message)
}

func TestMeAndLogout(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	a := s.register("Ada", "ada@x.com", "secret1")

	rec, env := s.json(http.MethodGet, "/api/auth/me", a.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me apphttp.UserResponse
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, a.User, me)
	assert.NotContains(t, rec.Body.String(), "password")

	rec, env = s.json(http.MethodPost, "/api/auth/logout", a.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Logged out successfully", env.Message)

	rec, _ = s.json(http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env = s.json(http.MethodGet, "/api/auth/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token", env.Message)
}

func TestCreateComicRejections(t *testing.T) {
	s := newTestServer(t, serverOptions{maxPages: 2})
	a := s.register("Ada", "ada@x.com", "secret1")
	meta := map[string]string{"title": "T", "author": "Ada"}

	rec, _ := s.upload("", meta, uploadtest.Cover("c.png"), uploadtest.Page("p.jpg"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := s.upload(a.Token, meta, uploadtest.Cover("c.png"),
		uploadtest.File{Field: upload.FieldPages, Name: "p.txt", ContentType: "text/plain", Data: []byte("x")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Message, "Invalid file type")

	rec, _ = s.upload(a.Token, meta, uploadtest.Cover("c.png"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.upload(a.Token, meta, uploadtest.Cover("c.png"), uploadtest.Page("1.jpg"), uploadtest.Page("2.jpg"), uploadtest.Page("3.jpg"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.upload(a.Token, map[string]string{"author": "Ada"}, uploadtest.Cover("c.png"), uploadtest.Page("1.jpg"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.json(http.MethodPost, "/api/comics", a.Token, map[string]string{"title": "T"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, s.listComics())
}

func TestDeleteComicGuards(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	ada := s.register("Ada", "ada@x.com", "secret1")
	bob := s.register("Bob", "bob@x.com", "secret2")

	rec, env := s.upload(ada.Token, map[string]string{"title": "T", "author": "Ada"}, uploadtest.Cover("c.png"), uploadtest.Page("p.jpg"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var comic apphttp.ComicResponse
	require.NoError(t, json.Unmarshal(env.Data, &comic))

	rec, _ = s.json(http.MethodDelete, "/api/comics/"+comic.ID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env = s.json(http.MethodDelete, "/api/comics/"+comic.ID, bob.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Unauthorized - you can only delete your own comics", env.Message)
	assert.Len(t, s.listComics(), 1)

	rec, _ = s.json(http.MethodDelete, "/api/comics/does-not-exist", ada.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeUploads(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	a := s.register("Ada", "ada@x.com", "secret1")

	rec, env := s.upload(a.Token, map[string]string{"title": "T", "author": "Ada"}, uploadtest.Cover("c.png"), uploadtest.Page("p1.jpg"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var comic apphttp.ComicResponse
	require.NoError(t, json.Unmarshal(env.Data, &comic))

	rec, _ = s.do(httptest.NewRequest(http.MethodGet, comic.Pages[0], nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "page:p1.jpg", rec.Body.String())
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	rec, _ = s.do(httptest.NewRequest(http.MethodGet, "/uploads/pages/missing.jpg", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndUnknownRoute(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health apphttp.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	_, err := time.Parse(time.RFC3339, health.Timestamp)
	assert.NoError(t, err)

	rec, env := s.json(http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Route not found", env.Message)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	req := httptest.NewRequest(http.MethodOptions, "/api/comics", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoginRateLimit(t *testing.T) {
	s := newTestServer(t, serverOptions{loginRate: 1})
	creds := map[string]string{"email": "eve@x.com", "password": "secret1"}

	rec, _ := s.json(http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := s.json(http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many requests", env.Message)
}

func loginFrom(s *testServer, ip, email, password string) *httptest.ResponseRecorder {
	s.t.Helper()
	b, err := json.Marshal(map[string]string{"email": email, "password": password})
	require.NoError(s.t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = ip + ":40000"
	rec, _ := s.do(req)
	return rec
}

func TestLoginRateLimitIsPerClient(t *testing.T) {
	s := newTestServer(t, serverOptions{loginRate: 2})
	s.register("Ada", "ada@x.com", "secret1")

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusUnauthorized, loginFrom(s, "203.0.113.9", "ada@x.com", "wrong-pass").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, loginFrom(s, "203.0.113.9", "ada@x.com", "secret1").Code)

	assert.Equal(t, http.StatusOK, loginFrom(s, "198.51.100.7", "ada@x.com", "secret1").Code)
}

func TestCORSWildcardOmitsCredentials(t *testing.T) {
	s := newTestServer(t, serverOptions{origins: []string{"*"}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://anywhere.example")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSListedOriginGetsCredentials(t *testing.T) {
	s := newTestServer(t, serverOptions{origins: []string{"*", "http://localhost:3000"}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
