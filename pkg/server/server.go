package server

import (
	"context"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thehanda/countcam-app/pkg/auth"
	"github.com/thehanda/countcam-app/pkg/handlers"
	"github.com/thehanda/countcam-app/pkg/logging"
)

type Options struct {
	// AllowedOrigins restricts CORS. Empty allows any origin.
	AllowedOrigins []string
	// RequestTimeout bounds a single upload, model call included.
	RequestTimeout time.Duration
	Log            *zap.Logger
}

func SetupRouter(h *handlers.Handler, a *auth.Authenticator, opts Options) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(logging.GinLogger(opts.Log))
	r.Use(cors.New(corsConfig(opts.AllowedOrigins)))

	r.GET("/healthz", h.HandleHealth)
	r.POST("/api/login", a.LoginHandler)

	// --- Authenticated Route Group ---
	authorized := r.Group("/")
	authorized.Use(a.Middleware())
	{
		upload := requestTimeout(opts.RequestTimeout)
		authorized.POST("/upload", upload, h.HandleUpload)
		authorized.POST("/api/upload", upload, h.HandleUpload)

		authorized.GET("/api/records", h.HandleRecords)
		authorized.GET("/api/records/export", h.HandleExport)
		authorized.GET("/api/records/live", h.HandleLive)
		authorized.GET("/api/summary", h.HandleSummary)

		// --- Admin-Only Route Group ---
		adminRoutes := authorized.Group("/api/admin")
		adminRoutes.Use(auth.AdminOnlyMiddleware())
		{
			adminRoutes.GET("/users", h.HandleListUsers)
			adminRoutes.POST("/users", h.HandleCreateUser)
			adminRoutes.POST("/users/delete", h.HandleDeleteUser)
			adminRoutes.POST("/users/password", h.HandleChangePassword)
		}
		authorized.GET("/logout", auth.LogoutHandler)
	}

	return r
}

func corsConfig(allowed []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowed) == 0 {
		cfg.AllowOriginFunc = func(string) bool { return true }
		return cfg
	}
	cfg.AllowOriginFunc = func(origin string) bool {
		origin = strings.TrimSuffix(origin, "/")
		for _, o := range allowed {
			if strings.EqualFold(strings.TrimSuffix(o, "/"), origin) {
				return true
			}
		}
		return false
	}
	return cfg
}

// requestTimeout puts a deadline on the request context.
func requestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
