package config

import "os"

// Config параметры процесса, читаются из окружения
type Config struct {
	Addr        string
	DatabaseURL string // пусто — in-memory хранилище
	RedisAddr   string // пусто — без кэша товаров
	AuthURL     string // пусто — dev-верификатор токенов
	BlobDir     string
	LogLevel    string
}

func Load() *Config {
	return &Config{
		Addr:        getEnv("ADDR", ":9091"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		AuthURL:     os.Getenv("AUTH_URL"),
		BlobDir:     getEnv("BLOB_DIR", "data/blobs"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
