package router

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/psds-microservice/helpy/paths"
	"github.com/psds-microservice/ticket-chat-service/api"
	"github.com/psds-microservice/ticket-chat-service/internal/handler"
	"github.com/psds-microservice/ticket-chat-service/internal/model"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type Handlers struct {
	Tickets *handler.TicketHandler
	// Files is nil when no blob store is configured; the routes answer 503.
	Files  *handler.FileHandler
	Users  handler.UserLookup
	Ready  gin.HandlerFunc
	WS     http.HandlerFunc
	Logger *slog.Logger
}

func New(h Handlers) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLog(h.Logger))
	r.GET(paths.PathHealth, handler.Health)
	r.GET(paths.PathReady, h.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", gin.WrapF(h.WS))
	r.GET(paths.PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, paths.PathSwagger+"/") })
	r.GET(paths.PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = paths.PathSwagger + "/index.html"
			c.Request.RequestURI = paths.PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/openapi.json"))(c)
	})

	staff := handler.RequireRole(model.UserRoleAgent, model.UserRoleAdmin)
	customer := handler.RequireRole(model.UserRoleCustomer)

	v1 := r.Group("/api/v1")
	files := v1.Group("/files")
	if h.Files != nil {
		files.Use(handler.Caller(h.Users, h.Logger))
		files.GET("/refresh-url", h.Files.RefreshURL)
		files.POST("", h.Files.Upload)
	} else {
		files.Any("/*any", func(c *gin.Context) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "file storage is not configured"})
		})
	}

	tickets := v1.Group("/tickets", handler.Caller(h.Users, h.Logger))
	{
		tickets.POST("", customer, h.Tickets.Create)
		tickets.GET("", staff, h.Tickets.List)
		tickets.GET("/customer", customer, h.Tickets.ListMine)
		tickets.GET("/:id", h.Tickets.Get)
		tickets.PATCH("/:id/assign", staff, h.Tickets.Assign)
		tickets.PATCH("/:id/status", staff, h.Tickets.ChangeStatus)
		tickets.PATCH("/:id/close", h.Tickets.Close)
		tickets.DELETE("/:id", staff, h.Tickets.Delete)
		tickets.POST("/:id/messages", h.Tickets.AppendMessage)
	}

	return r
}

func requestLog(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.FullPath() == paths.PathHealth || c.FullPath() == "/metrics" {
			return
		}
		log.Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("took", time.Since(start)))
	}
}
