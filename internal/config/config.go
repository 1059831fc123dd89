// Package config loads process bootstrap configuration from the environment
// and exposes the typed, DB-backed Settings store used for everything that
// can change without a restart (§4.3).
package config

import (
	"os"
	"strconv"
)

// Config holds values that are read once at process start. Anything that can
// be changed live by an admin belongs in Settings instead.
type Config struct {
	Port          int
	DatabaseURL   string
	RedisAddr     string
	JWTSecret     string
	DataDir       string
	CacheDir      string
	MediaDir      string
	FFmpegPath    string
	FFprobePath   string
	HWAccelType   string
	MaxTranscodes int
}

func Load() *Config {
	return &Config{
		Port:          envInt("PORT", 8080),
		DatabaseURL:   env("DATABASE_URL", "postgres://nexa:nexa@db:5432/nexa?sslmode=disable"),
		RedisAddr:     env("REDIS_ADDR", "redis:6379"),
		JWTSecret:     env("JWT_SECRET", "change-me-in-production"),
		DataDir:       env("DATA_DIR", "/data"),
		CacheDir:      env("CACHE_DIR", ""),
		MediaDir:      env("MEDIA_DIR", "/media"),
		FFmpegPath:    env("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:   env("FFPROBE_PATH", "ffprobe"),
		HWAccelType:   env("HW_ACCEL_TYPE", "auto"),
		MaxTranscodes: envInt("MAX_TRANSCODES", 2),
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
