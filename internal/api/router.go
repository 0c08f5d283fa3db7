package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tapedynamics/privacyguard/internal/api/handlers"
	"github.com/Tapedynamics/privacyguard/internal/api/ws"
	"github.com/Tapedynamics/privacyguard/internal/auth"
	"github.com/Tapedynamics/privacyguard/internal/config"
	"github.com/Tapedynamics/privacyguard/internal/consent"
	"github.com/Tapedynamics/privacyguard/internal/export"
	"github.com/Tapedynamics/privacyguard/internal/pipeline"
	"github.com/Tapedynamics/privacyguard/internal/queue"
	"github.com/Tapedynamics/privacyguard/internal/search"
	"github.com/Tapedynamics/privacyguard/internal/storage"
)

type RouterConfig struct {
	APIKey   string
	Export   config.ExportConfig
	DB       *storage.PostgresStore
	MinIO    *storage.MinIOStore
	Producer *queue.Producer
	Hub      *ws.Hub
	Enqueuer *pipeline.Enqueuer
	Consent  *consent.Service
	Searcher *search.Searcher
	Builder  *export.Builder
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Identity search is the guest-facing surface and carries no API key.
	searchH := handlers.NewSearchHandler(cfg.Searcher, cfg.MinIO)
	r.POST("/search", searchH.Search)

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Photos
	photoH := handlers.NewPhotoHandler(cfg.DB, cfg.MinIO, cfg.Enqueuer, cfg.Export.BlurSigma, cfg.Export.JPEGQuality)
	v1.POST("/photos", photoH.Upload)
	v1.GET("/photos", photoH.List)
	v1.GET("/photos/:id", photoH.Get)
	v1.GET("/photos/:id/url", photoH.URL)
	v1.POST("/photos/:id/blur", photoH.Blur)
	v1.GET("/photos/:id/blurred_url", photoH.BlurredURL)

	// Faces
	faceH := handlers.NewFaceHandler(cfg.DB, cfg.Consent, cfg.Enqueuer)
	v1.GET("/photos/:id/faces", faceH.List)
	v1.POST("/photos/:id/faces/:faceId/name", faceH.Rename)
	v1.POST("/photos/:id/faces/:faceId/consent", faceH.Consent)
	v1.POST("/photos/:id/faces/:faceId/index", faceH.Index)

	// Exports
	exportH := handlers.NewExportHandler(cfg.DB, cfg.MinIO, cfg.Enqueuer, cfg.Builder)
	v1.POST("/exports", exportH.Create)
	v1.GET("/exports/approved", exportH.Download(export.ModeApproved))
	v1.GET("/exports/privacy-safe", exportH.Download(export.ModePrivacySafe))
	v1.GET("/exports/:id", exportH.Get)

	return r
}
