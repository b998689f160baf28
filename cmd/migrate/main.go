package main

import (
	"context"
	"flag"
	"log"
	"strings"

	"bayescal/adapters/sqlstore"
	"bayescal/internal/config"
	"bayescal/internal/migration"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	driver := flag.String("driver", cfg.Database.Driver, "Database driver (sqlite or postgres)")
	dsn := flag.String("dsn", cfg.Database.URL, "Database URL or sqlite file path")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("Usage: migrate -dsn <database_url> [-driver sqlite|postgres] (or set CALIB_DATABASE_URL)")
	}

	runner := migration.NewRunner()
	log.Printf("Applying %s to %s database", runner, *driver)

	db, err := sqlstore.Open(context.Background(), *driver, *dsn)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	defer db.Close()

	log.Printf("Schema %s ready: %s", runner.Version(), strings.Join(migration.Tables(), ", "))
}
