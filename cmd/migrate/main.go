// Database migration CLI tool
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/tradecrew/tradecrew/internal/config"
	"github.com/tradecrew/tradecrew/internal/db"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	dbURL := flag.String("db", os.Getenv("DATABASE_URL"), "Database connection URL")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	url := *dbURL
	if url == "" {
		url = cfg.Database.GetDSN()
	}

	ctx := context.Background()

	database, err := db.NewWithURL(ctx, url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	migrator := db.NewMigrator(database.Pool())
	if err := migrator.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Migrations applied")
}
