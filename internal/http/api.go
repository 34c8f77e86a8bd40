package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"comic-shelf/internal/service"
	"comic-shelf/internal/storage"
)

// Config carries the handler's collaborators and settings.
type Config struct {
	Users          service.UserService
	Comics         service.ComicService
	Storage        storage.Service
	Logger         logrus.FieldLogger
	AllowedOrigins []string
	// Production hides internal error details from clients.
	Production bool
	// MaxUploadBytes caps the body of POST /api/comics.
	MaxUploadBytes int64
	// LoginRate is requests per second for the auth endpoints; 0 disables throttling.
	LoginRate int
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	users     service.UserService
	comics    service.ComicService
	storage   storage.Service
	logger    logrus.FieldLogger
	cfg       Config
	startedAt time.Time
}

func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Handler{
		users:     cfg.Users,
		comics:    cfg.Comics,
		storage:   cfg.Storage,
		logger:    cfg.Logger,
		cfg:       cfg,
		startedAt: time.Now(),
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger(h.logger), corsMiddleware(h.cfg.AllowedOrigins), errorResponder(h.logger, h.cfg.Production))

	router.GET("/health", h.health)
	router.GET("/uploads/*filepath", h.serveUpload)

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		auth.POST("/register", rateLimit(h.cfg.LoginRate), h.register)
		auth.POST("/login", rateLimit(h.cfg.LoginRate), h.login)
		auth.GET("/me", h.requireUser, h.me)
		auth.POST("/logout", h.requireUser, h.logout)

		comics := api.Group("/comics")
		comics.GET("", h.listComics)
		comics.POST("", h.requireUser, h.createComic)
		comics.DELETE("/:id", h.requireUser, h.deleteComic)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Route not found"})
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.startedAt).Seconds(),
	})
}

func corsMiddleware(allowed []string) gin.HandlerFunc {
	origins := make(map[string]struct{}, len(allowed))
	wildcard := false
	for _, o := range allowed {
		if o == "*" {
			wildcard = true
		}
		origins[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if _, ok := origins[origin]; ok && origin != "" && origin != "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		} else if wildcard {
			// any origin, never with credentials
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
