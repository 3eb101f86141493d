// Command nexa-seed loads a YAML fixture of users, courses and enrollments
// into the configured database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"nexa/internal/config"
	"nexa/internal/database"
	"nexa/internal/logging"
	"nexa/internal/seed"
	pkgdatabase "nexa/pkg/database"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "nexa-seed:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := flag.NewFlagSet("nexa-seed", flag.ContinueOnError)
	fixturePath := flags.String("fixture", "data/seed.yaml", "YAML fixture to load")
	dbPath := flags.String("db", "", "database path (overrides configuration)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	// Only storage settings matter here, so the JWT secret is not required.
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if path := os.Getenv(config.EnvPrefix + "CONFIG_FILE"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return err
		}
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	logger := logging.New(os.Stdout, cfg.Log.Level)

	fixture, err := seed.LoadFile(*fixturePath)
	if err != nil {
		return err
	}

	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = cfg.Database.Path
	manager, err := database.NewManager(dbConfig, database.WithLogger(logger))
	if err != nil {
		return err
	}
	defer manager.Close()

	if _, err := pkgdatabase.NewMigrationManager(manager.GetDB()).ApplyMigrations(); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	_, err = seed.Seed(context.Background(), manager, fixture, logger)
	return err
}
