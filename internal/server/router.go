package server

import (
	"time"

	"github.com/gin-gonic/gin"

	"devicefarm-server/internal/agent"
	"devicefarm-server/internal/auth"
	"devicefarm-server/internal/database"
	"devicefarm-server/internal/handler"
	"devicefarm-server/internal/hub"
	"devicefarm-server/internal/middleware"
	"devicefarm-server/internal/settings"
	"devicefarm-server/internal/store"
	"devicefarm-server/internal/upload"
)

type Deps struct {
	DB          *database.DB
	Store       *store.Store
	Settings    *settings.Store
	Agent       *agent.Client
	Hub         *hub.Hub
	Uploads     *upload.Dir
	TokenConfig auth.TokenConfig

	// TokenLimiter throttles /api/auth/token. The caller owns it and stops
	// it on shutdown; nil gets a private 10/min limiter.
	TokenLimiter *middleware.RateLimiter

	// PublicBaseURL and Port tell agents where to download uploaded APKs.
	PublicBaseURL string
	Port          int
}

func NewRouter(deps Deps) *gin.Engine {
	if deps.Hub == nil {
		deps.Hub = hub.New()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(gin.Logger())
	r.MaxMultipartMemory = 32 << 20

	health := &handler.HealthHandler{DB: deps.DB}
	r.GET("/health", health.Check)

	r.Static("/apk", deps.Uploads.Path(upload.APKDir))
	r.Static("/material", deps.Uploads.Path(upload.MaterialDir))

	tokenLimiter := deps.TokenLimiter
	if tokenLimiter == nil {
		tokenLimiter = middleware.NewRateLimiter(10, time.Minute)
	}
	authHandler := &handler.AuthHandler{TokenConfig: deps.TokenConfig}
	r.POST("/api/auth/token", middleware.RateLimitMiddleware(tokenLimiter), authHandler.Token)

	wsHandler := &handler.WebSocketHandler{Hub: deps.Hub, TokenConfig: deps.TokenConfig}
	r.GET("/ws", wsHandler.Serve)

	api := r.Group("/api")
	api.Use(middleware.RequireAuth(deps.TokenConfig))

	accounts := &handler.AccountHandler{Store: deps.Store}
	api.GET("/account", accounts.List)
	api.POST("/account", accounts.Save)
	api.PUT("/account", accounts.Update)
	api.DELETE("/account", accounts.Delete)
	api.GET("/account_by_device", accounts.ByDevice)
	api.GET("/account/auto_train", accounts.AutoTrain)

	devices := &handler.DeviceHandler{Store: deps.Store, Agent: deps.Agent, Hub: deps.Hub}
	api.GET("/device", devices.List)
	api.POST("/device", devices.Save)
	api.DELETE("/device", devices.Delete)
	api.GET("/device/all", devices.All)
	api.GET("/device/init", devices.Init)
	api.PUT("/device/online", devices.Online)
	api.GET("/device/task_status", devices.TaskStatus)

	materials := &handler.MaterialHandler{Store: deps.Store, Uploads: deps.Uploads}
	api.GET("/material", materials.List)
	api.POST("/material", materials.Upload)
	api.PUT("/material", materials.UpdateUsed)
	api.DELETE("/material", materials.Delete)
	api.GET("/material/count", materials.Count)

	groups := &handler.GroupHandler{Store: deps.Store}
	api.GET("/group", groups.List)
	api.POST("/group", groups.Save)
	api.PUT("/group", groups.Update)
	api.DELETE("/group", groups.Delete)

	publishJobs := &handler.PublishJobHandler{Store: deps.Store, Hub: deps.Hub}
	api.GET("/publish_job", publishJobs.List)
	api.POST("/publish_job", publishJobs.Create)
	api.PUT("/publish_job", publishJobs.Update)
	api.DELETE("/publish_job", publishJobs.Delete)
	api.GET("/runable_publish_job", publishJobs.Runnable)
	api.GET("/publish_job/count", publishJobs.Count)
	api.GET("/publish_job/status_count", publishJobs.StatusCount)
	api.POST("/publish_job/retry", publishJobs.Retry)
	api.DELETE("/publish_job/all", publishJobs.DeleteAll)

	trainJobs := &handler.TrainJobHandler{Store: deps.Store, Hub: deps.Hub}
	api.GET("/train_job", trainJobs.List)
	api.POST("/train_job", trainJobs.Create)
	api.PUT("/train_job", trainJobs.Update)
	api.DELETE("/train_job", trainJobs.Delete)
	api.GET("/runable_train_job", trainJobs.Runnable)
	api.GET("/train_job/count", trainJobs.Count)
	api.GET("/train_job/status_count", trainJobs.StatusCount)
	api.POST("/train_job/retry", trainJobs.Retry)
	api.DELETE("/train_job/all", trainJobs.DeleteAll)

	watchers := &handler.DialogWatcherHandler{Store: deps.Store}
	api.GET("/dialog_watcher", watchers.List)
	api.POST("/dialog_watcher", watchers.Save)
	api.PUT("/dialog_watcher", watchers.Update)
	api.DELETE("/dialog_watcher", watchers.Delete)

	music := &handler.MusicHandler{Store: deps.Store}
	api.GET("/music", music.List)
	api.POST("/music", music.Save)
	api.PUT("/music", music.Update)
	api.DELETE("/music", music.Delete)
	api.GET("/music/random", music.Random)

	settingsHandler := &handler.SettingsHandler{Settings: deps.Settings, Hub: deps.Hub}
	api.GET("/settings", settingsHandler.Get)
	api.PUT("/settings", settingsHandler.Update)

	commands := &handler.CommandHandler{
		Store:   deps.Store,
		Agent:   deps.Agent,
		Uploads: deps.Uploads,
		BaseURL: deps.PublicBaseURL,
		Port:    deps.Port,
	}
	api.POST("/install", commands.Install)
	api.POST("/shell", commands.Shell)
	api.GET("/script", commands.Script)

	return r
}
