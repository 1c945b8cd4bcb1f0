package app

import (
	"context"
	"errors"
	"log"

	"nagano_festival_backend/config"
	"nagano_festival_backend/db"
	"nagano_festival_backend/models"

	"github.com/google/uuid"
)

// EnsureRootUser は保護された root 管理者を起動時に用意する。
// 既に存在すれば何もしない。ROOT_PASSWORD 未設定ならスキップ。
func EnsureRootUser(ctx context.Context, cfg config.Config, repo *db.Repo) {
	if _, err := repo.FindUserByUserID(ctx, models.RootUserID); err == nil {
		return
	} else if !errors.Is(err, db.ErrNotFound) {
		log.Printf("root bootstrap: lookup failed: %v", err)
		return
	}

	if cfg.RootPassword == "" {
		log.Println("root bootstrap: ROOT_PASSWORD not set, skipping")
		return
	}

	root := &models.User{
		UserID:      models.RootUserID,
		DisplayName: "root",
		Handle:      uuid.NewString(),
		IsAdmin:     true,
	}
	if err := root.SetPassword(cfg.RootPassword); err != nil {
		log.Printf("root bootstrap: %v", err)
		return
	}
	if err := repo.CreateUser(ctx, root); err != nil {
		log.Printf("root bootstrap: create failed: %v", err)
		return
	}
	log.Println("root bootstrap: created root administrator")
}
