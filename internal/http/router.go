// README: HTTP router registration.
package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"repairtrack/internal/config"
	"repairtrack/internal/http/handlers"
	"repairtrack/internal/http/middleware"
)

type RouterDeps struct {
	Requests handlers.RequestService
	Quotes   handlers.QuoteService
	Jobs     handlers.JobService
	Config   config.HTTPConfig
	Logger   *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logging(log))
	r.Use(cors.New(corsConfig(deps.Config.AllowedOrigins)))
	if deps.Config.RatePerMinute > 0 {
		r.Use(middleware.NewRateLimiter(deps.Config.RatePerMinute, deps.Config.RateBurst, log).Handler())
	}

	requestHandler := handlers.NewRequestHandler(deps.Requests)
	quoteHandler := handlers.NewQuoteHandler(deps.Quotes)
	jobHandler := handlers.NewJobHandler(deps.Jobs)

	public := r.Group("/api", middleware.Actor("Customer"))
	public.POST("/service-requests", requestHandler.Create)
	public.GET("/track/:ticket", requestHandler.Track)
	public.POST("/quotes/:id/accept", quoteHandler.Accept)
	public.POST("/quotes/:id/decline", quoteHandler.Decline)

	admin := r.Group("/api/admin", middleware.Actor("Staff"))
	admin.GET("/service-requests/:id", requestHandler.Get)
	admin.GET("/service-requests/:id/transitions", requestHandler.Transitions)
	admin.GET("/service-requests/:id/next-stages", requestHandler.NextStages)
	admin.POST("/service-requests/:id/transition-stage", requestHandler.TransitionStage)
	admin.POST("/service-requests/:id/tracking", requestHandler.ApplyTracking)
	admin.PATCH("/service-requests/:id", requestHandler.Update)
	admin.PUT("/service-requests/:id/expected-dates", requestHandler.SetExpectedDates)
	admin.PATCH("/quotes/:id/price", quoteHandler.Price)
	admin.GET("/jobs/:id", jobHandler.Get)
	admin.PUT("/jobs/:id/technician", jobHandler.AssignTechnician)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}

// corsConfig opens every origin when none are configured, without credentials.
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", middleware.HeaderActor},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
