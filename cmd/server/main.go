package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"devicefarm-server/internal/agent"
	"devicefarm-server/internal/auth"
	"devicefarm-server/internal/config"
	"devicefarm-server/internal/database"
	"devicefarm-server/internal/hub"
	"devicefarm-server/internal/middleware"
	"devicefarm-server/internal/planner"
	"devicefarm-server/internal/server"
	"devicefarm-server/internal/settings"
	"devicefarm-server/internal/store"
	"devicefarm-server/internal/upload"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DatabasePath())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatal(err)
	}

	st := store.New(db)

	prefs := settings.Open(cfg.SettingsPath())
	if err := settings.ApplyToEnvironment(prefs.Current()); err != nil {
		log.Printf("settings: apply to environment: %v", err)
	}

	uploads, err := upload.New(cfg.UploadDir)
	if err != nil {
		log.Fatal(err)
	}

	h := hub.New()
	tokenCfg := auth.DefaultTokenConfig(cfg.AuthSecret)
	tokenCfg.Expiry = cfg.TokenExpiry

	var p *planner.Planner
	if cfg.PlannerEnabled {
		p = planner.New(st, planner.Options{Hub: h, StaleAfter: cfg.DeviceStaleAge})
		if err := p.Start(); err != nil {
			log.Fatal(err)
		}
	}

	tokenLimiter := middleware.NewRateLimiter(10, time.Minute)
	defer tokenLimiter.Stop()

	router := server.NewRouter(server.Deps{
		DB:            db,
		Store:         st,
		Settings:      prefs,
		Agent:         agent.NewClient(agent.Options{Port: cfg.AgentPort, Timeout: cfg.AgentTimeout}),
		Hub:           h,
		Uploads:       uploads,
		TokenConfig:   tokenCfg,
		TokenLimiter:  tokenLimiter,
		PublicBaseURL: cfg.PublicBaseURL,
		Port:          cfg.Port,
	})

	log.Printf("listening on %s (db %s)", fmt.Sprintf(":%d", cfg.Port), db.Path())
	runErr := server.Run(ctx, cfg, router)

	if p != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		p.Stop(stopCtx)
		cancel()
	}
	if runErr != nil {
		log.Printf("server: %v", runErr)
		db.Close()
		os.Exit(1)
	}
	log.Printf("server: stopped")
}
