// Command migrate applies database schema migrations.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/gatherhq/api/internal/config"
	"github.com/gatherhq/api/pkg/migrations"
)

func main() {
	dir := flag.String("dir", "migrations", "Path to the migrations directory")
	dbURL := flag.String("db", "", "Database URL (defaults to DATABASE_URL or the standard DB_* env vars)")
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	databaseURL := *dbURL
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		cfg, err := config.Load()
		if err != nil {
			fatal("Error loading configuration: %v", err)
		}
		databaseURL = cfg.Database.DSN()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		fatal("Error connecting to database: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		fatal("Error pinging database: %v", err)
	}

	runner := migrations.NewRunner(db, *dir)

	switch command {
	case "up":
		err = runner.Up(ctx)
	case "down":
		err = runner.Down(ctx)
	case "status":
		err = runner.Status(ctx)
	default:
		fatal("Unknown command %q (valid: up, down, status)", command)
	}
	if err != nil {
		fatal("Error: %v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
