package main

import (
	"context"
	"log"
	"time"

	"nagano_festival_backend/app"
	"nagano_festival_backend/config"
	"nagano_festival_backend/db"
	"nagano_festival_backend/routes"
)

func main() {
	config.LoadEnv()

	application := app.MustNew()
	defer application.Close()

	r := application.Router

	// Health
	r.GET("/healthz", func(c *app.Ctx) { c.JSON(200, app.H{"ok": true}) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	app.EnsureRootUser(ctx, application.Config, db.NewRepo(application.DB))
	cancel()

	routes.RegisterRoutes(r, application)

	port := application.Config.Port
	log.Printf("listening on :%s", port)
	_ = r.Run(":" + port)
}
