package models

import "time"

// Config はサーバーの設定情報を保持します。値は環境変数（または .env）から読み込まれます。
type Config struct {
	DatabaseURL   string `env:"DATABASE_URL,required,notEmpty"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	SessionSecret string        `env:"SESSION_SECRET" envDefault:"rock_paper_scissors_secret"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	Port           string   `env:"PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:8080"`

	// 定期クリーンアップ（cron 形式）
	CleanupSchedule string        `env:"CLEANUP_SCHEDULE" envDefault:"@daily"`
	IdlePlayerAge   time.Duration `env:"IDLE_PLAYER_AGE" envDefault:"720h"`
}
