package db

import (
	"fmt"
	"log"

	"nagano_festival_backend/config"
	"nagano_festival_backend/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func ConnectDB(cfg config.Config) *gorm.DB {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort,
	)

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}

	if err := Migrate(conn); err != nil {
		log.Fatal("Failed to migrate models: ", err)
	}
	log.Println("Database connected")
	return conn
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Passkey{}); err != nil {
		return err
	}

	// email・プロバイダID は空文字を許しつつ、非空のときだけ一意
	for _, col := range []string{"email", "google_user_id", "line_user_id"} {
		stmt := fmt.Sprintf(`
		  CREATE UNIQUE INDEX IF NOT EXISTS users_%s_uniq
		  ON users (%s)
		  WHERE %s <> '';
		`, col, col, col)
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}

	return nil
}
