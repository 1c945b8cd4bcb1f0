package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config 从环境变量读取
type Config struct {
	// トークン署名用の共有シークレット
	SecretKey string

	// DB / Redis
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	RedisAddr  string
	RedisPwd   string

	// BaseURL はAPI自身の公開URL（rp_id の決定に使う）、FrontendURL はリセットリンク等の宛先
	BaseURL     string
	FrontendURL string
	WebOrigin   string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
	LineChannelID      string
	LineChannelSecret  string
	LineRedirectURI    string

	SMTPHost   string
	SMTPPort   string
	SMTPSender string
	SMTPPwd    string

	RootPassword string
	Port         string
	ChallengeTTL time.Duration
}

func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using environment as-is")
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func Load() Config {
	ttlSec, err := strconv.Atoi(getEnv("CHALLENGE_TTL_SECONDS", "600"))
	if err != nil || ttlSec <= 0 {
		ttlSec = 600
	}
	return Config{
		SecretKey: getEnv("SECRET_KEY", "dev-secret-key"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "fes_data"),
		DBPort:     getEnv("DB_PORT", "5432"),
		RedisAddr:  getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPwd:   os.Getenv("REDIS_PASSWORD"),

		BaseURL:     os.Getenv("BASE_URL"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		WebOrigin:   getEnv("WEB_ORIGIN", "http://localhost:3000"),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURI:  os.Getenv("GOOGLE_REDIRECT_URI"),
		LineChannelID:      os.Getenv("LINE_CHANNEL_ID"),
		LineChannelSecret:  os.Getenv("LINE_CHANNEL_SECRET"),
		LineRedirectURI:    os.Getenv("LINE_REDIRECT_URI"),

		SMTPHost:   getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:   getEnv("SMTP_PORT", "587"),
		SMTPSender: os.Getenv("SMTP_SENDER"),
		SMTPPwd:    os.Getenv("SMTP_PASSWORD"),

		RootPassword: os.Getenv("ROOT_PASSWORD"),
		Port:         getEnv("PORT", "5052"),
		ChallengeTTL: time.Duration(ttlSec) * time.Second,
	}
}
