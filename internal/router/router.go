package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/skillproof/skillproof-backend/internal/config"
	"github.com/skillproof/skillproof-backend/internal/handler"
	"github.com/skillproof/skillproof-backend/internal/middleware"
	"github.com/skillproof/skillproof-backend/internal/response"
	"github.com/skillproof/skillproof-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth      *handler.AuthHandler
	Test      *handler.TestHandler
	Question  *handler.QuestionHandler
	Candidate *handler.CandidateHandler
	Material  *handler.MaterialHandler
	WS        *handler.WSHandler
	Monitor   *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// If AllowedOrigins is set in config, restrict to that list; otherwise
	// allow all so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Signed file streaming. The HMAC signature in the URL is the only
	// credential; responses must not land in shared caches.
	files := router.Group("/files")
	files.Use(middleware.NoStore())
	{
		files.GET("/*filepath", handlers.Material.StreamSigned)
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter shared by the guessable-input endpoints: login and
	// candidate session resolution (30 requests per minute per IP).
	guessLimiter := middleware.NewRateLimiter(30, time.Minute)

	// Auth group (public, rate limited).
	auth := router.Group("/api/v1/auth")
	auth.Use(guessLimiter.Middleware())
	{
		auth.POST("/admin/login", handlers.Auth.AdminLogin)
		auth.GET("/admin/me", middleware.RequireAdminJWT(authService), handlers.Auth.GetAdminProfile)
	}

	// Candidate group. No JWT: the access token path param plus the invited
	// email is the whole credential.
	candidate := router.Group("/api/v1/candidate/sessions/:token")
	candidate.Use(middleware.NoStore())
	{
		candidate.POST("/resolve", guessLimiter.Middleware(), handlers.Candidate.Resolve)
		candidate.POST("/start", handlers.Candidate.Start)
		candidate.GET("/state", handlers.Candidate.State)
		candidate.PUT("/answers", handlers.Candidate.Autosave)
		candidate.POST("/upload", handlers.Candidate.Upload)
		candidate.POST("/submit", handlers.Candidate.Submit)
	}

	// Candidate WebSocket group: live countdown plus autosave/submit actions.
	ws := router.Group("/ws/v1")
	{
		ws.GET("/candidate/sessions/:token/stream", handlers.WS.SessionStream)
	}

	// Admin group (JWT).
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		adminAPI.POST("/media/upload", handlers.Material.Upload)
		adminAPI.GET("/material", handlers.Material.FetchPrivate)

		adminAPI.POST("/tests", handlers.Test.Create)
		adminAPI.GET("/tests", handlers.Test.List)
		adminAPI.GET("/tests/:id", handlers.Test.Get)
		adminAPI.PATCH("/tests/:id", handlers.Test.Update)
		adminAPI.POST("/tests/:id/activate", handlers.Test.Activate)
		adminAPI.POST("/tests/:id/deactivate", handlers.Test.Deactivate)
		adminAPI.GET("/tests/:id/sessions", handlers.Test.ListSessions)
		adminAPI.GET("/tests/:id/monitor", handlers.Monitor.MonitorTestSSE)

		adminAPI.GET("/tests/:id/questions", handlers.Question.List)
		adminAPI.POST("/tests/:id/questions", handlers.Question.Add)
		adminAPI.PUT("/tests/:id/questions/:qid", handlers.Question.Update)
		adminAPI.DELETE("/tests/:id/questions/:qid", handlers.Question.Delete)

		adminAPI.GET("/sessions/:id/responses", handlers.Test.Review)
	}

	return router
}
