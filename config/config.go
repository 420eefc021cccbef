// Package config loads server settings from the environment and an optional
// .env file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the server settings.
type Config struct {
	Port              int
	DBPath            string
	Env               string
	CORSOrigins       []string
	SchedulerEnabled  bool
	SchedulerInterval time.Duration
}

// IsProduction reports whether ENV names a production deployment.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "prod") || strings.EqualFold(c.Env, "production")
}

// Load reads .env (ignored when missing) then the environment.
func Load() (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return Config{}, fmt.Errorf("config.godotenv(.env): %w", err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config.os.Stat(.env): %w", err)
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault("PORT", 8080)
	v.SetDefault("DB_PATH", "extrahours.db")
	v.SetDefault("ENV", "dev")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080")
	v.SetDefault("SCHEDULER_ENABLED", true)
	v.SetDefault("SCHEDULER_INTERVAL", time.Hour)
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:              v.GetInt("PORT"),
		DBPath:            v.GetString("DB_PATH"),
		Env:               v.GetString("ENV"),
		SchedulerEnabled:  v.GetBool("SCHEDULER_ENABLED"),
		SchedulerInterval: v.GetDuration("SCHEDULER_INTERVAL"),
	}
	for _, origin := range strings.Split(v.GetString("CORS_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("config: invalid PORT %d", cfg.Port)
	}
	if cfg.DBPath == "" {
		return Config{}, fmt.Errorf("config: DB_PATH is empty")
	}
	if cfg.SchedulerEnabled && cfg.SchedulerInterval <= 0 {
		return Config{}, fmt.Errorf("config: SCHEDULER_INTERVAL must be positive, got %s", cfg.SchedulerInterval)
	}
	return cfg, nil
}
