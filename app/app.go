package app

import (
	"context"
	"log"
	"time"

	"nagano_festival_backend/config"
	"nagano_festival_backend/db"
	"nagano_festival_backend/token"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// 简化别名，便于 handlers 调用
type Ctx = gin.Context
type H = gin.H

// App 聚合各依赖
type App struct {
	Router *gin.Engine
	DB     *gorm.DB
	RDB    *redis.Client
	Tokens *token.Service
	Config config.Config
}

func MustNew() *App {
	cfg := config.Load()

	// --- DB: Postgres ---
	dbConn := db.ConnectDB(cfg)

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis: %v", err)
	}

	// --- Gin ---
	r := gin.Default()
	useCORS(r, cfg.WebOrigin)

	return &App{
		Router: r,
		DB:     dbConn,
		RDB:    rdb,
		Tokens: token.New(cfg.SecretKey),
		Config: cfg,
	}
}

func (a *App) Close() { _ = a.RDB.Close() }
