package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	_ "modernc.org/sqlite"

	"github.com/vaultwatch/vaultwatch-backend/internal/registry"
)

type config struct {
	RegistryPath string `long:"registry-path" env:"MIGRATIONS_REGISTRY_PATH" default:"vaultwatch.db" description:"Path to the registry SQLite database"`
}

func main() {
	cfg := config{}
	if _, err := flags.Parse(&cfg); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		log.Fatalf("failed to parse flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runMigrations(ctx, cfg); err != nil {
		log.Fatalf("migration run failed: %v", err)
	}
}

func runMigrations(ctx context.Context, cfg config) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", cfg.RegistryPath))
	if err != nil {
		return fmt.Errorf("open registry database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("database close error: %v", err)
		}
	}()

	if err := registry.Migrate(db); err != nil {
		return err
	}

	log.Println("migrations applied successfully")
	return nil
}
