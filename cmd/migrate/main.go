package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stemsi/exstem-portal/internal/config"
)

// migrate applies the documents schema used by DOCSTORE_DRIVER=postgres.
// The mongo and memory drivers need no schema.
func main() {
	var (
		migrationDir string
		steps        int
	)
	flag.StringVar(&migrationDir, "path", "migrations", "Path to migration files")
	flag.IntVar(&steps, "steps", 0, "Apply only N migrations for up/down (0 means all)")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(2)
	}

	cfg := config.Load()
	if cfg.DocStoreDriver != config.DriverPostgres {
		log.Fatalf("DOCSTORE_DRIVER is %q; migrations only apply to %q", cfg.DocStoreDriver, config.DriverPostgres)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	m, err := migrate.New("file://"+migrationDir, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Migration failed to initialize: %v", err)
	}
	defer m.Close()

	switch args[0] {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
		report("up", err)
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
		report("down", err)
	case "status":
		version, dirty, err := m.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			fmt.Println("No migrations applied; the documents table does not exist yet")
		case err != nil:
			log.Fatalf("Status failed: %v", err)
		default:
			fmt.Printf("Version: %d, Dirty: %t\n", version, dirty)
			if dirty {
				fmt.Printf("Fix the schema by hand, then run: migrate force %d\n", version)
			}
		}
	case "force":
		if len(args) < 2 {
			log.Fatal("force requires version argument")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatalf("Invalid version: %v", err)
		}
		if err := m.Force(v); err != nil {
			log.Fatalf("Force failed: %v", err)
		}
		fmt.Printf("Forced version to %d\n", v)
	default:
		printUsage()
		os.Exit(2)
	}
}

func report(direction string, err error) {
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		fmt.Println("Schema already up to date")
	case err != nil:
		log.Fatalf("%s failed: %v", direction, err)
	default:
		fmt.Printf("Migrated %s successfully\n", direction)
	}
}

func printUsage() {
	fmt.Println("Usage: migrate [flags] <command>")
	fmt.Println("Commands: up, down, status, force <version>")
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
