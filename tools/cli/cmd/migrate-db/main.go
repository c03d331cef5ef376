// migrate-db applies the service schema with golang-migrate against the
// database named by DATABASE_URL.
//
// Usage: migrate-db [up|down|version|force <version>]
package main

import (
	"errors"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"scamshield/pkg/config"
)

func main() {
	config.LoadDotenv()

	dsn := config.Get("DATABASE_URL", "")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}
	source := config.Get("MIGRATIONS_PATH", "file://migrations")

	m, err := migrate.New(source, dsn)
	if err != nil {
		log.Fatalf("open migrations: %v", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			log.Printf("close: source=%v db=%v", srcErr, dbErr)
		}
	}()

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("migrate up: %v", err)
		}
	case "down":
		if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("migrate down: %v", err)
		}
	case "version":
		// handled below
	case "force":
		if len(os.Args) < 3 {
			log.Fatal("force requires a version argument")
		}
		v, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalf("force version must be an integer: %v", err)
		}
		if err := m.Force(v); err != nil {
			log.Fatalf("migrate force: %v", err)
		}
	default:
		log.Fatalf("unknown command %q (want up, down, version, or force)", command)
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		log.Println("schema at version 0 (no migrations applied)")
		return
	}
	if err != nil {
		log.Fatalf("read version: %v", err)
	}
	log.Printf("schema at version %d (dirty: %v)", version, dirty)
}
