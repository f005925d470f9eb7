// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// maxNumberedKeys is how many GEMINI_API_KEY_<n> fallbacks are read.
const maxNumberedKeys = 10

type Config struct {
	Port     string
	LogLevel string

	DatabaseURL string

	GeminiAPIKeys        []string
	GeminiModel          string
	GeminiEmbeddingModel string
	GeminiBaseURL        string

	SupabaseJWTSecret string

	SMTPHost string
	SMTPPort int

	RedisAddr     string
	RedisPassword string
	AMQPURL       string

	LeadDelay   time.Duration
	CORSOrigins []string
}

// Load reads an optional .env file and then the process environment.
// It reports whether a .env file was found so callers can log it.
func Load() (*Config, bool) {
	envFound := godotenv.Load() == nil
	return FromViper(newViper()), envFound
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")
	v.SetDefault("GEMINI_EMBEDDING_MODEL", "text-embedding-004")
	v.SetDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")
	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("LEAD_DELAY", "2s")
	v.SetDefault("CORS_ORIGINS", "*")
	return v
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Port:                 v.GetString("PORT"),
		LogLevel:             v.GetString("LOG_LEVEL"),
		DatabaseURL:          databaseURL(v),
		GeminiAPIKeys:        geminiKeys(v),
		GeminiModel:          v.GetString("GEMINI_MODEL"),
		GeminiEmbeddingModel: v.GetString("GEMINI_EMBEDDING_MODEL"),
		GeminiBaseURL:        strings.TrimSuffix(v.GetString("GEMINI_BASE_URL"), "/"),
		SupabaseJWTSecret:    v.GetString("SUPABASE_JWT_SECRET"),
		SMTPHost:             v.GetString("SMTP_HOST"),
		SMTPPort:             v.GetInt("SMTP_PORT"),
		RedisAddr:            v.GetString("REDIS_ADDR"),
		RedisPassword:        v.GetString("REDIS_PASSWORD"),
		AMQPURL:              v.GetString("AMQP_URL"),
		LeadDelay:            v.GetDuration("LEAD_DELAY"),
		CORSOrigins:          splitList(v.GetString("CORS_ORIGINS")),
	}
	return cfg
}

// databaseURL prefers DATABASE_URL and falls back to the DB_* parts.
func databaseURL(v *viper.Viper) string {
	if url := v.GetString("DATABASE_URL"); url != "" {
		return url
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		v.GetString("DB_USER"), v.GetString("DB_PASSWORD"),
		v.GetString("DB_HOST"), v.GetString("DB_PORT"), v.GetString("DB_NAME"),
	)
}

// geminiKeys collects the primary key and numbered fallbacks in order,
// skipping blanks and duplicates.
func geminiKeys(v *viper.Viper) []string {
	seen := map[string]bool{}
	keys := []string{}
	add := func(k string) {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			return
		}
		seen[k] = true
		keys = append(keys, k)
	}

	add(v.GetString("GEMINI_API_KEY"))
	for i := 1; i <= maxNumberedKeys; i++ {
		add(v.GetString(fmt.Sprintf("GEMINI_API_KEY_%d", i)))
	}
	return keys
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
