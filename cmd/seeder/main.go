// cmd/seeder/main.go
package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/db"
	"github.com/unclebandit/outreach-backend/internal/logger"
)

const seedTimeout = time.Minute

// The seeder applies the schema and then every seed/*.sql file in name order.
func main() {
	cfg, _ := config.Load()
	log := logger.Must(cfg.LogLevel)
	defer log.Sync()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), seedTimeout)
	defer cancel()

	if err := db.Migrate(ctx, conn); err != nil {
		log.Fatal("Failed to apply schema", zap.Error(err))
	}
	log.Info("Schema applied")

	seedFiles, err := filepath.Glob(filepath.Join("seed", "*.sql"))
	if err != nil {
		log.Fatal("Invalid seed pattern", zap.Error(err))
	}
	sort.Strings(seedFiles)

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatal("Failed to read seed file", zap.String("file", file), zap.Error(err))
		}
		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			log.Fatal("Failed to execute seed file", zap.String("file", file), zap.Error(err))
		}
		log.Info("Seeded", zap.String("file", file))
	}

	log.Info("✅ Database seeding completed successfully", zap.Int("files", len(seedFiles)))
}
