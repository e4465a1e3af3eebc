// Command migrate applies or rolls back the database schema.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/atriumhq/atrium/internal/config"
	"github.com/atriumhq/atrium/internal/platform/database"
	"github.com/atriumhq/atrium/internal/platform/migrations"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file applied over the environment")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: migrate [-config file] [up|down|version|force <version>]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	command := fs.Arg(0)
	if command == "" {
		command = "up"
	}

	_ = godotenv.Load()
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}

	ctx := context.Background()
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	switch command {
	case "up":
		if err := migrations.Apply(ctx, db.DB); err != nil {
			return err
		}
		fmt.Println("migrations applied")
	case "down":
		if err := migrations.Rollback(ctx, db.DB); err != nil {
			return err
		}
		fmt.Println("last migration rolled back")
	case "version":
		version, dirty, err := migrations.Version(ctx, db.DB)
		if err != nil {
			return err
		}
		fmt.Printf("version %d dirty=%v\n", version, dirty)
	case "force":
		raw := fs.Arg(1)
		if raw == "" {
			return fmt.Errorf("force requires a version")
		}
		version, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid version %q", raw)
		}
		if err := migrations.Force(ctx, db.DB, version); err != nil {
			return err
		}
		fmt.Printf("forced version %d\n", version)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}
